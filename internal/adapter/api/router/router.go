package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/middleware"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, adminMiddleware *middleware.AdminMiddleware) {
	SetupChatRouter(e, authMiddleware)
	SetupQuoteRouter(e, authMiddleware)
	SetupBookingRouter(e, authMiddleware, adminMiddleware)
	SetupPlaceRouter(e, authMiddleware)
	SetupUserRouter(e, authMiddleware)
	SetupHealthRouter(e)
}
