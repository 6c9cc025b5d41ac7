package handler

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/entity"
	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
	"guidebook/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createRoomRequest struct {
	CounterpartID string `json:"counterpart_id" validate:"required"`
	ContextRef    string `json:"context_ref"`
}

type sendMessageRequest struct {
	Type         string              `json:"type" validate:"omitempty,oneof=text media"`
	Text         string              `json:"text" validate:"max=4000"`
	Attachments  []entity.Attachment `json:"attachments" validate:"max=10"`
	ClientTempID string              `json:"client_temp_id" validate:"max=64"`
}

func (h *ChatHandler) CreateRoom(c echo.Context) error {
	var req createRoomRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	room, err := h.chatUseCase.CreateRoom(c.Request().Context(), getUserIDFromContext(c), usecase.CreateRoomInput{
		CounterpartID: req.CounterpartID,
		ContextRef:    req.ContextRef,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, room)
}

func (h *ChatHandler) ListRooms(c echo.Context) error {
	p := utils.GetPaginationParams(c, 20)

	rooms, total, err := h.chatUseCase.ListRooms(c.Request().Context(), getUserIDFromContext(c), p.PageSize, p.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, rooms, total, p.Page, p.PageSize)
}

func (h *ChatHandler) GetRoom(c echo.Context) error {
	room, err := h.chatUseCase.GetRoom(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, room)
}

// ListMessages returns the room's history oldest first.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	p := utils.GetPaginationParams(c, 50)

	messages, total, err := h.chatUseCase.ListMessages(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), p.PageSize, p.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Paginated(c, messages, total, p.Page, p.PageSize)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), getUserIDFromContext(c), usecase.SendMessageInput{
		RoomID:       c.Param("id"),
		Type:         entity.MessageType(req.Type),
		Text:         req.Text,
		Attachments:  req.Attachments,
		ClientTempID: req.ClientTempID,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
