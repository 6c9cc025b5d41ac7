package usecase

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/internal/domain/service"
	"guidebook/internal/infrastructure/ratelimit"
	ws "guidebook/internal/infrastructure/websocket"
	"guidebook/pkg/errors"
)

// SystemSenderID is the sender of server-authored notices.
const SystemSenderID = "system"

type ChatUseCase struct {
	chatRepo    repository.ChatRepository
	userRepo    repository.UserRepository
	uploader    service.MediaUploader
	broadcaster RoomBroadcaster
	rateLimiter *ratelimit.RateLimiter
	clock       clockwork.Clock
}

func NewChatUseCase(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	uploader service.MediaUploader,
	broadcaster RoomBroadcaster,
	rateLimiter *ratelimit.RateLimiter,
	clock clockwork.Clock,
) *ChatUseCase {
	return &ChatUseCase{
		chatRepo:    chatRepo,
		userRepo:    userRepo,
		uploader:    uploader,
		broadcaster: broadcaster,
		rateLimiter: rateLimiter,
		clock:       clock,
	}
}

type CreateRoomInput struct {
	CounterpartID string
	ContextRef    string
}

type SendMessageInput struct {
	RoomID       string
	Type         entity.MessageType
	Text         string
	Attachments  []entity.Attachment
	ClientTempID string
}

// CreateRoom opens the thread between the caller and a counterpart. One of
// them must be a traveller and the other a guide. An existing room for the
// pair is returned as is.
func (uc *ChatUseCase) CreateRoom(ctx context.Context, userID string, input CreateRoomInput) (*entity.ChatRoom, error) {
	if input.CounterpartID == "" || input.CounterpartID == userID {
		return nil, errors.Validation("A different counterpart is required", nil)
	}

	caller, err := uc.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	counterpart, err := uc.userRepo.GetByID(ctx, input.CounterpartID)
	if err != nil {
		return nil, err
	}

	var traveller, guide *entity.User
	switch {
	case caller.Role == entity.UserRoleTraveller && counterpart.Role == entity.UserRoleGuide:
		traveller, guide = caller, counterpart
	case caller.Role == entity.UserRoleGuide && counterpart.Role == entity.UserRoleTraveller:
		traveller, guide = counterpart, caller
	default:
		return nil, errors.Validation("A room needs one traveller and one guide", nil)
	}

	existing, err := uc.chatRepo.FindByParticipants(ctx, traveller.ID, guide.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}

	// Only a room that is actually created costs a token.
	if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionCreateRoom); !allowed {
		log.Printf("CreateRoom Rate Limited: User %s must wait %v", userID, wait)
		return nil, errors.TooManyRequests("Too many rooms created, please wait")
	}

	room := &entity.ChatRoom{
		ID: uuid.New().String(),
		Participants: []entity.Participant{
			{UserID: traveller.ID, Role: entity.RoleTraveller, DisplayName: traveller.DisplayName, AvatarURL: traveller.AvatarURL},
			{UserID: guide.ID, Role: entity.RoleGuide, DisplayName: guide.DisplayName, AvatarURL: guide.AvatarURL},
		},
		ContextRef:    input.ContextRef,
		LastMessageAt: uc.clock.Now(),
	}
	if err := uc.chatRepo.Create(ctx, room); err != nil {
		log.Printf("CreateRoom Error: Failed to create room for %s/%s: %v", traveller.ID, guide.ID, err)
		return nil, err
	}

	log.Printf("Room %s created for traveller %s and guide %s", room.ID, traveller.ID, guide.ID)
	return room, nil
}

func (uc *ChatUseCase) GetRoom(ctx context.Context, userID, roomID string) (*entity.ChatRoom, error) {
	room, _, err := uc.roomFor(ctx, userID, roomID)
	return room, err
}

func (uc *ChatUseCase) ListRooms(ctx context.Context, userID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	return uc.chatRepo.ListByUserID(ctx, userID, limit, offset)
}

func (uc *ChatUseCase) ListMessages(ctx context.Context, userID, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	if _, _, err := uc.roomFor(ctx, userID, roomID); err != nil {
		return nil, 0, err
	}
	return uc.chatRepo.GetMessagesByRoom(ctx, roomID, limit, offset)
}

// AuthorizeRoom allows only participants to stream a room.
func (uc *ChatUseCase) AuthorizeRoom(ctx context.Context, userID, roomID string) error {
	_, _, err := uc.roomFor(ctx, userID, roomID)
	return err
}

// SendMessage stores a text or media message and broadcasts it to the room.
// ClientTempID is echoed back so the sender can reconcile its optimistic copy.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID string, input SendMessageInput) (*entity.Message, error) {
	if input.Type == "" {
		input.Type = entity.MessageTypeText
		if len(input.Attachments) > 0 {
			input.Type = entity.MessageTypeMedia
		}
	}
	if input.Type != entity.MessageTypeText && input.Type != entity.MessageTypeMedia {
		return nil, errors.Validation("Only text and media messages can be sent directly", nil)
	}

	room, participant, err := uc.roomFor(ctx, userID, input.RoomID)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		ID:           uuid.New().String(),
		ClientTempID: input.ClientTempID,
		RoomID:       room.ID,
		SenderID:     userID,
		SenderRole:   participant.Role,
		Type:         input.Type,
		Text:         strings.TrimSpace(input.Text),
		Attachments:  input.Attachments,
		CreatedAt:    uc.clock.Now(),
	}
	if err := message.Validate(); err != nil {
		return nil, errors.Validation(err.Error(), err)
	}

	// Rejected messages do not count against the sender.
	if allowed, wait := uc.rateLimiter.Allow(userID, ratelimit.ActionSendMessage); !allowed {
		log.Printf("SendMessage Rate Limited: User %s must wait %v", userID, wait)
		return nil, errors.TooManyRequests("You are sending messages too quickly. Please slow down")
	}

	if err := uc.store(ctx, room, message); err != nil {
		log.Printf("SendMessage Error: Failed to store message in room %s: %v", room.ID, err)
		return nil, err
	}
	return message, nil
}

// SendSystemMessage posts a server-authored notice into a room.
func (uc *ChatUseCase) SendSystemMessage(ctx context.Context, roomID, text string, notice *entity.SystemNotice) (*entity.Message, error) {
	room, err := uc.chatRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  SystemSenderID,
		Type:      entity.MessageTypeSystem,
		Text:      text,
		Metadata:  &entity.MessageMetadata{System: notice},
		CreatedAt: uc.clock.Now(),
	}
	if err := message.Validate(); err != nil {
		return nil, errors.Internal("Invalid system message", err)
	}

	if err := uc.store(ctx, room, message); err != nil {
		return nil, err
	}
	return message, nil
}

// PostQuoteMessage emits quote into its room as a quote message from the guide.
func (uc *ChatUseCase) PostQuoteMessage(ctx context.Context, quote *entity.Quote) (*entity.Message, error) {
	room, err := uc.chatRepo.GetByID(ctx, quote.RoomID)
	if err != nil {
		return nil, err
	}

	message := &entity.Message{
		ID:         uuid.New().String(),
		RoomID:     quote.RoomID,
		SenderID:   quote.GuideID,
		SenderRole: entity.RoleGuide,
		Type:       entity.MessageTypeQuote,
		Metadata:   &entity.MessageMetadata{Quote: quote.Snapshot()},
		CreatedAt:  uc.clock.Now(),
	}
	if err := message.Validate(); err != nil {
		return nil, errors.Internal("Invalid quote message", err)
	}

	if err := uc.store(ctx, room, message); err != nil {
		return nil, err
	}
	return message, nil
}

// UploadMedia stores files for a later media message.
func (uc *ChatUseCase) UploadMedia(ctx context.Context, userID string, files []service.MediaFile) ([]entity.Attachment, error) {
	if len(files) == 0 {
		return nil, errors.Validation("At least one file is required", nil)
	}
	if uc.uploader == nil {
		return nil, errors.Internal("Media upload is not configured", nil)
	}

	attachments, err := uc.uploader.Upload(ctx, userID, files)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Timeout("Media upload timed out", err)
		}
		return nil, errors.TransportFailure("Media upload failed", err)
	}
	return attachments, nil
}

func (uc *ChatUseCase) store(ctx context.Context, room *entity.ChatRoom, message *entity.Message) error {
	if err := uc.chatRepo.CreateMessage(ctx, message); err != nil {
		return err
	}

	room.LastMessageAt = message.CreatedAt
	room.LastMessage = previewOf(message)
	if err := uc.chatRepo.Update(ctx, room); err != nil {
		log.Printf("Failed to update room %s with last message: %v", room.ID, err)
	}

	uc.broadcast(message)
	return nil
}

func (uc *ChatUseCase) broadcast(message *entity.Message) {
	if uc.broadcaster == nil {
		return
	}
	frame, err := ws.NewFrame(ws.FrameTypeNewMessage, message.RoomID, entity.NewMessageEventFrom(message))
	if err != nil {
		log.Printf("Failed to encode new_message for room %s: %v", message.RoomID, err)
		return
	}
	uc.broadcaster.SendToRoom(message.RoomID, frame, "")
}

func (uc *ChatUseCase) roomFor(ctx context.Context, userID, roomID string) (*entity.ChatRoom, entity.Participant, error) {
	if roomID == "" {
		return nil, entity.Participant{}, errors.Validation("Room id is required", nil)
	}
	room, err := uc.chatRepo.GetByID(ctx, roomID)
	if err != nil {
		return nil, entity.Participant{}, err
	}
	participant, ok := room.Participant(userID)
	if !ok {
		return nil, entity.Participant{}, errors.Forbidden("User is not a participant in this room", nil)
	}
	return room, participant, nil
}

func previewOf(m *entity.Message) string {
	switch m.Type {
	case entity.MessageTypeText, entity.MessageTypeSystem:
		return m.Text
	case entity.MessageTypeMedia:
		if m.Text != "" {
			return m.Text
		}
		return "Sent an attachment"
	case entity.MessageTypeQuote:
		return "Sent a quote"
	}
	return ""
}
