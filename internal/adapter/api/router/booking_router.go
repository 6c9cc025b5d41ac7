package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
)

func SetupBookingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	bookingHandler := handler.GetBookingHandler()

	bookings := e.Group("/v1/bookings")
	bookings.Use(authMiddleware.Authenticate)

	bookings.POST("/pay-advance", bookingHandler.PayAdvance)
	bookings.POST("/pay-full", bookingHandler.PayFull)
	bookings.POST("/complete", bookingHandler.MarkServiceComplete)
	bookings.GET("/:id", bookingHandler.GetBooking)
	bookings.POST("/:id/cancel", bookingHandler.CancelBooking)

	admin := e.Group("/v1/admin/bookings")
	admin.Use(authMiddleware.Authenticate)
	admin.Use(adminMiddleware.AdminOnly)

	admin.POST("/:id/complete", bookingHandler.OverrideServiceComplete)
}
