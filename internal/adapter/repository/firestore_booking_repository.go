package repository

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

type firestoreBookingRepository struct {
	client *firestore.Client
}

func NewFirestoreBookingRepository(client *firestore.Client) repository.BookingRepository {
	return &firestoreBookingRepository{
		client: client,
	}
}

func (r *firestoreBookingRepository) GetByID(ctx context.Context, id string) (*entity.Booking, error) {
	doc, err := r.client.Collection("bookings").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Booking", err)
		}
		return nil, errors.Internal("Failed to get booking", err)
	}

	var booking entity.Booking
	if err := doc.DataTo(&booking); err != nil {
		return nil, errors.Internal("Failed to parse booking data", err)
	}
	return &booking, nil
}

// GetByRoomID returns the most recent booking made in the room.
func (r *firestoreBookingRepository) GetByRoomID(ctx context.Context, roomID string) (*entity.Booking, error) {
	iter := r.client.Collection("bookings").
		Where("roomId", "==", roomID).
		OrderBy("createdAt", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err != nil {
		if err == iterator.Done {
			return nil, errors.NotFound("Booking", nil)
		}
		return nil, errors.Internal("Failed to query booking by room", err)
	}

	var booking entity.Booking
	if err := doc.DataTo(&booking); err != nil {
		return nil, errors.Internal("Failed to parse booking data", err)
	}
	return &booking, nil
}

func (r *firestoreBookingRepository) Update(ctx context.Context, id string, apply entity.BookingUpdate) (*entity.Booking, error) {
	ref := r.client.Collection("bookings").Doc(id)

	var result entity.Booking
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return errors.NotFound("Booking", err)
			}
			return err
		}

		var booking entity.Booking
		if err := doc.DataTo(&booking); err != nil {
			return err
		}
		if err := apply(&booking); err != nil {
			return err
		}
		if err := tx.Set(ref, booking); err != nil {
			return err
		}

		result = booking
		return nil
	})
	if err != nil {
		return nil, wrapTxError("Failed to update booking", err)
	}

	return &result, nil
}
