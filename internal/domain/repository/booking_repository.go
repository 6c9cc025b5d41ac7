package repository

import (
	"context"

	"guidebook/internal/domain/entity"
)

// Bookings are created by QuoteRepository.Transition, never on their own.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Booking, error)
	GetByRoomID(ctx context.Context, roomID string) (*entity.Booking, error)

	// Update reads the booking, runs apply against it and writes the result in
	// one transaction. An error from apply aborts the write and is returned as is.
	Update(ctx context.Context, id string, apply entity.BookingUpdate) (*entity.Booking, error)
}
