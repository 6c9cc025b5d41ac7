package handler

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/service"
	"guidebook/internal/usecase"
)

var (
	chatHandler    *ChatHandler
	quoteHandler   *QuoteHandler
	bookingHandler *BookingHandler
	placeHandler   *PlaceHandler
	userHandler    *UserHandler
)

func Setup(
	chatUseCase *usecase.ChatUseCase,
	quoteUseCase *usecase.QuoteUseCase,
	bookingUseCase *usecase.BookingUseCase,
	userUseCase *usecase.UserUseCase,
	places service.PlaceLookup,
) {
	chatHandler = NewChatHandler(chatUseCase)
	quoteHandler = NewQuoteHandler(quoteUseCase)
	bookingHandler = NewBookingHandler(bookingUseCase)
	placeHandler = NewPlaceHandler(places)
	userHandler = NewUserHandler(userUseCase)
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}

func GetQuoteHandler() *QuoteHandler {
	return quoteHandler
}

func GetBookingHandler() *BookingHandler {
	return bookingHandler
}

func GetPlaceHandler() *PlaceHandler {
	return placeHandler
}

func GetUserHandler() *UserHandler {
	return userHandler
}

func getUserIDFromContext(c echo.Context) string {
	if uid, ok := c.Get("uid").(string); ok {
		return uid
	}
	return ""
}
