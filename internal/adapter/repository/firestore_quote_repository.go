package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

type firestoreQuoteRepository struct {
	client *firestore.Client
}

func NewFirestoreQuoteRepository(client *firestore.Client) repository.QuoteRepository {
	return &firestoreQuoteRepository{
		client: client,
	}
}

func (r *firestoreQuoteRepository) Create(ctx context.Context, quote *entity.Quote) error {
	if quote.ID == "" {
		quote.ID = uuid.New().String()
	}

	_, err := r.client.Collection("quotes").Doc(quote.ID).Create(ctx, quote)
	if err != nil {
		return errors.Internal("Failed to create quote", err)
	}
	return nil
}

func (r *firestoreQuoteRepository) GetByID(ctx context.Context, id string) (*entity.Quote, error) {
	doc, err := r.client.Collection("quotes").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Quote", err)
		}
		return nil, errors.Internal("Failed to get quote", err)
	}

	var quote entity.Quote
	if err := doc.DataTo(&quote); err != nil {
		return nil, errors.Internal("Failed to parse quote data", err)
	}
	return &quote, nil
}

func (r *firestoreQuoteRepository) ListByRoom(ctx context.Context, roomID string) ([]*entity.Quote, error) {
	query := r.client.Collection("quotes").Where("roomId", "==", roomID).OrderBy("createdAt", firestore.Asc)
	return r.collect(query.Documents(ctx))
}

func (r *firestoreQuoteRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*entity.Quote, error) {
	query := r.client.Collection("quotes").
		Where("status", "==", string(entity.QuoteStatusPending)).
		Where("expiresAt", "<=", now)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.collect(query.Documents(ctx))
}

func (r *firestoreQuoteRepository) collect(iter *firestore.DocumentIterator) ([]*entity.Quote, error) {
	defer iter.Stop()

	var quotes []*entity.Quote
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to iterate quotes", err)
		}

		var quote entity.Quote
		if err := doc.DataTo(&quote); err != nil {
			return nil, errors.Internal("Failed to parse quote data", err)
		}
		quotes = append(quotes, &quote)
	}
	return quotes, nil
}

func (r *firestoreQuoteRepository) Transition(ctx context.Context, t entity.QuoteTransition) (*entity.Quote, error) {
	quoteRef := r.client.Collection("quotes").Doc(t.QuoteID)

	var result entity.Quote
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(quoteRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Quote", err)
			}
			return err
		}

		var quote entity.Quote
		if err := doc.DataTo(&quote); err != nil {
			return err
		}
		if err := t.Apply(&quote); err != nil {
			return err
		}

		if t.Booking != nil {
			bookingRef := r.client.Collection("bookings").Doc(t.Booking.ID)
			if err := tx.Create(bookingRef, t.Booking); err != nil {
				return err
			}
		}
		if err := tx.Set(quoteRef, quote); err != nil {
			return err
		}

		result = quote
		return nil
	})
	if err != nil {
		return nil, wrapTxError("Failed to update quote", err)
	}

	return &result, nil
}
