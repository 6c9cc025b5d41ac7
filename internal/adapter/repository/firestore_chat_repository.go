package repository

import (
	"context"
	"log"
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

type firestoreChatRepository struct {
	client *firestore.Client
}

func NewFirestoreChatRepository(client *firestore.Client) repository.ChatRepository {
	return &firestoreChatRepository{
		client: client,
	}
}

func (r *firestoreChatRepository) rooms() *firestore.CollectionRef {
	return r.client.Collection("rooms")
}

func (r *firestoreChatRepository) Create(ctx context.Context, room *entity.ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}

	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	room.ParticipantIDs = participantIDs(room.Participants)

	_, err := r.rooms().Doc(room.ID).Set(ctx, room)
	if err != nil {
		return errors.Internal("Failed to create room", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	doc, err := r.rooms().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("Room", err)
		}
		return nil, errors.Internal("Failed to get room", err)
	}

	var room entity.ChatRoom
	if err := doc.DataTo(&room); err != nil {
		return nil, errors.Internal("Failed to parse room data", err)
	}

	return &room, nil
}

func (r *firestoreChatRepository) FindByParticipants(ctx context.Context, travellerID, guideID string) (*entity.ChatRoom, error) {
	iter := r.rooms().Where("participantIds", "array-contains", travellerID).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Internal("Failed to query rooms", err)
		}

		var room entity.ChatRoom
		if err := doc.DataTo(&room); err != nil {
			continue
		}
		if room.HasRole(travellerID, entity.RoleTraveller) && room.HasRole(guideID, entity.RoleGuide) {
			return &room, nil
		}
	}

	return nil, errors.NotFound("Room", nil)
}

func (r *firestoreChatRepository) ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	query := r.rooms().Where("participantIds", "array-contains", userID).OrderBy("lastMessageAt", firestore.Desc)

	allDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while fetching rooms for user %s: %v", userID, err)
		return nil, 0, errors.Internal("Failed to fetch rooms", err)
	}

	total := int64(len(allDocs))
	start, end := pageBounds(len(allDocs), limit, offset)

	rooms := make([]*entity.ChatRoom, 0, end-start)
	for _, doc := range allDocs[start:end] {
		var room entity.ChatRoom
		if err := doc.DataTo(&room); err != nil {
			log.Printf("Error parsing room data for user %s: %v", userID, err)
			continue
		}
		rooms = append(rooms, &room)
	}

	return rooms, total, nil
}

func (r *firestoreChatRepository) Update(ctx context.Context, room *entity.ChatRoom) error {
	room.UpdatedAt = time.Now()
	room.ParticipantIDs = participantIDs(room.Participants)

	_, err := r.rooms().Doc(room.ID).Set(ctx, room)
	if err != nil {
		return errors.Internal("Failed to update room", err)
	}

	return nil
}

func (r *firestoreChatRepository) CreateMessage(ctx context.Context, message *entity.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	_, err := r.rooms().Doc(message.RoomID).Collection("messages").Doc(message.ID).Set(ctx, message)
	if err != nil {
		return errors.Internal("Failed to create message", err)
	}

	return nil
}

func (r *firestoreChatRepository) GetMessagesByRoom(ctx context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	query := r.rooms().Doc(roomID).Collection("messages").OrderBy("createdAt", firestore.Asc)

	countDocs, err := query.Documents(ctx).GetAll()
	if err != nil {
		log.Printf("Firestore error while counting messages for room %s: %v", roomID, err)
		return nil, 0, errors.Internal("Failed to count messages for room", err)
	}
	total := int64(len(countDocs))

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*entity.Message
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.Printf("Firestore error while iterating messages for room %s: %v", roomID, err)
			return nil, 0, errors.Internal("Failed to iterate messages", err)
		}

		var message entity.Message
		if err := doc.DataTo(&message); err != nil {
			return nil, 0, errors.Internal("Failed to parse message data", err)
		}
		messages = append(messages, &message)
	}

	return messages, total, nil
}

func participantIDs(participants []entity.Participant) []string {
	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

func pageBounds(n, limit, offset int) (int, int) {
	start := offset
	if start > n {
		start = n
	}
	end := n
	if limit > 0 && start+limit < n {
		end = start + limit
	}
	return start, end
}
