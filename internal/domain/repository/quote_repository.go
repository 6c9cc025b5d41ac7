package repository

import (
	"context"
	"time"

	"guidebook/internal/domain/entity"
)

type QuoteRepository interface {
	Create(ctx context.Context, quote *entity.Quote) error
	GetByID(ctx context.Context, id string) (*entity.Quote, error)
	ListByRoom(ctx context.Context, roomID string) ([]*entity.Quote, error)
	// ListExpiredPending returns pending quotes whose expiresAt is at or before now.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.Quote, error)

	// Transition applies t atomically. It fails with entity.ErrQuoteNotPending
	// when the stored status is no longer t.From, and with entity.ErrQuoteExpired
	// when t.To is accepted or declined and t.At is not before expiresAt.
	// When t.Booking is set it is stored in the same write.
	Transition(ctx context.Context, t entity.QuoteTransition) (*entity.Quote, error)
}
