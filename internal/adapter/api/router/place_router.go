package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
)

func SetupPlaceRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	placeHandler := handler.GetPlaceHandler()

	places := e.Group("/v1/places")
	places.Use(authMiddleware.Authenticate)

	places.GET("/search", placeHandler.Search)
	places.GET("/reverse", placeHandler.Reverse)
}
