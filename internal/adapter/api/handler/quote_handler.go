package handler

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/entity"
	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

type QuoteHandler struct {
	quoteUseCase *usecase.QuoteUseCase
}

func NewQuoteHandler(quoteUseCase *usecase.QuoteUseCase) *QuoteHandler {
	return &QuoteHandler{
		quoteUseCase: quoteUseCase,
	}
}

type createQuoteRequest struct {
	RoomID      string           `json:"room_id" validate:"required"`
	SessionDate string           `json:"session_date" validate:"required,datetime=2006-01-02"`
	SessionTime string           `json:"session_time" validate:"required,datetime=15:04"`
	Timezone    string           `json:"timezone"`
	Hours       float64          `json:"hours" validate:"required,gt=0,max=24"`
	Location    *entity.Location `json:"location"`
	Notes       string           `json:"notes" validate:"max=1000"`
}

type quoteActionRequest struct {
	QuoteID string `json:"quote_id" validate:"required"`
}

func (h *QuoteHandler) CreateQuote(c echo.Context) error {
	var req createQuoteRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	quote, err := h.quoteUseCase.CreateQuote(c.Request().Context(), getUserIDFromContext(c), usecase.CreateQuoteInput{
		RoomID:      req.RoomID,
		SessionDate: req.SessionDate,
		SessionTime: req.SessionTime,
		Timezone:    req.Timezone,
		Hours:       req.Hours,
		Location:    req.Location,
		Notes:       req.Notes,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, quote)
}

func (h *QuoteHandler) GetQuote(c echo.Context) error {
	quote, err := h.quoteUseCase.GetQuote(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, quote)
}

func (h *QuoteHandler) ListRoomQuotes(c echo.Context) error {
	quotes, err := h.quoteUseCase.ListQuotes(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, quotes)
}

// AcceptQuote responds with the booking the acceptance created.
func (h *QuoteHandler) AcceptQuote(c echo.Context) error {
	booking, err := h.quoteUseCase.AcceptQuote(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, booking)
}

func (h *QuoteHandler) DeclineQuote(c echo.Context) error {
	var req quoteActionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	quote, err := h.quoteUseCase.DeclineQuote(c.Request().Context(), getUserIDFromContext(c), req.QuoteID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, quote)
}
