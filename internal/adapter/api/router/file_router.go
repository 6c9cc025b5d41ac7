package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
	"guidebook/internal/infrastructure/ratelimit"
)

const actionUpload = "upload"

func SetupFileRouter(e *echo.Echo, fileHandler *handler.FileHandler, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	uploads := e.Group("/v1/uploads")
	uploads.Use(authMiddleware.Authenticate)
	uploads.Use(middleware.RateLimit(limiter, actionUpload))

	uploads.POST("", fileHandler.UploadMedia)
}
