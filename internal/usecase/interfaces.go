package usecase

import (
	"context"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

// ProfileRateSource supplies a guide's configured hourly rate.
type ProfileRateSource interface {
	HourlyRate(ctx context.Context, guideID string) (float64, error)
}

type BookingEventPublisher interface {
	Publish(ctx context.Context, event entity.BookingEvent) error
}

// BookingCache is a best-effort read cache keyed by room. Failures are
// swallowed by implementations.
type BookingCache interface {
	Get(ctx context.Context, roomID string) (*entity.Booking, bool)
	Set(ctx context.Context, roomID string, booking *entity.Booking)
	Invalidate(ctx context.Context, roomID string)
}

// RoomBroadcaster pushes encoded frames to live connections.
type RoomBroadcaster interface {
	SendToRoom(roomID string, message []byte, excludeUserID string)
	SendToUser(userID string, message []byte)
}

type userRateSource struct {
	users repository.UserRepository
}

// NewUserRateSource reads hourly rates from user profiles.
func NewUserRateSource(users repository.UserRepository) ProfileRateSource {
	return &userRateSource{users: users}
}

func (s *userRateSource) HourlyRate(ctx context.Context, guideID string) (float64, error) {
	user, err := s.users.GetByID(ctx, guideID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.HourlyRate, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, entity.BookingEvent) error { return nil }

type noopCache struct{}

func (noopCache) Get(context.Context, string) (*entity.Booking, bool) { return nil, false }
func (noopCache) Set(context.Context, string, *entity.Booking)        {}
func (noopCache) Invalidate(context.Context, string)                  {}
