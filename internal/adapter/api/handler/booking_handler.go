package handler

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

type BookingHandler struct {
	bookingUseCase *usecase.BookingUseCase
}

func NewBookingHandler(bookingUseCase *usecase.BookingUseCase) *BookingHandler {
	return &BookingHandler{
		bookingUseCase: bookingUseCase,
	}
}

type paymentRequest struct {
	BookingID string  `json:"booking_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

type bookingActionRequest struct {
	BookingID string `json:"booking_id" validate:"required"`
}

type cancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// GetRoomBooking answers with null data when no quote in the room was accepted.
func (h *BookingHandler) GetRoomBooking(c echo.Context) error {
	booking, err := h.bookingUseCase.GetBookingByChatRoom(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, booking)
}

func (h *BookingHandler) GetBooking(c echo.Context) error {
	booking, err := h.bookingUseCase.GetBooking(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, booking)
}

func (h *BookingHandler) PayAdvance(c echo.Context) error {
	input, err := bindPayment(c)
	if err != nil {
		return response.Error(c, err)
	}

	receipt, err := h.bookingUseCase.PayAdvance(c.Request().Context(), getUserIDFromContext(c), input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, receipt)
}

func (h *BookingHandler) PayFull(c echo.Context) error {
	input, err := bindPayment(c)
	if err != nil {
		return response.Error(c, err)
	}

	receipt, err := h.bookingUseCase.PayFull(c.Request().Context(), getUserIDFromContext(c), input)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, receipt)
}

func (h *BookingHandler) MarkServiceComplete(c echo.Context) error {
	var req bookingActionRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	booking, err := h.bookingUseCase.MarkServiceComplete(c.Request().Context(), getUserIDFromContext(c), req.BookingID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, booking)
}

func (h *BookingHandler) CancelBooking(c echo.Context) error {
	var req cancelBookingRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, errors.BadRequest("Invalid request body", err))
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	booking, err := h.bookingUseCase.CancelBooking(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req.Reason)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, booking)
}

func (h *BookingHandler) OverrideServiceComplete(c echo.Context) error {
	booking, err := h.bookingUseCase.OverrideServiceComplete(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, booking)
}

func bindPayment(c echo.Context) (usecase.BookingPaymentInput, error) {
	var req paymentRequest
	if err := c.Bind(&req); err != nil {
		return usecase.BookingPaymentInput{}, errors.BadRequest("Invalid request body", err)
	}
	if err := c.Validate(&req); err != nil {
		return usecase.BookingPaymentInput{}, err
	}
	return usecase.BookingPaymentInput{BookingID: req.BookingID, Amount: req.Amount}, nil
}
