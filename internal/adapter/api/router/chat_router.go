package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
)

func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	chatHandler := handler.GetChatHandler()
	quoteHandler := handler.GetQuoteHandler()
	bookingHandler := handler.GetBookingHandler()

	rooms := e.Group("/v1/rooms")
	rooms.Use(authMiddleware.Authenticate)

	rooms.POST("", chatHandler.CreateRoom)
	rooms.GET("", chatHandler.ListRooms)
	rooms.GET("/:id", chatHandler.GetRoom)

	rooms.GET("/:id/messages", chatHandler.ListMessages)
	rooms.POST("/:id/messages", chatHandler.SendMessage)

	rooms.GET("/:id/quotes", quoteHandler.ListRoomQuotes)
	rooms.GET("/:id/booking", bookingHandler.GetRoomBooking)
}
