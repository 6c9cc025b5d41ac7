package repository

import (
	"context"

	"guidebook/internal/domain/entity"
)

type ChatRepository interface {
	Create(ctx context.Context, room *entity.ChatRoom) error
	GetByID(ctx context.Context, id string) (*entity.ChatRoom, error)
	FindByParticipants(ctx context.Context, travellerID, guideID string) (*entity.ChatRoom, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.ChatRoom, int64, error)
	Update(ctx context.Context, room *entity.ChatRoom) error

	// Messages are returned oldest first.
	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessagesByRoom(ctx context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error)
}
