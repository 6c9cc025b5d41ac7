package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
)

func SetupQuoteRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	quoteHandler := handler.GetQuoteHandler()

	quotes := e.Group("/v1/quotes")
	quotes.Use(authMiddleware.Authenticate)

	quotes.POST("", quoteHandler.CreateQuote)
	quotes.POST("/decline", quoteHandler.DeclineQuote)
	quotes.GET("/:id", quoteHandler.GetQuote)
	quotes.POST("/:id/accept", quoteHandler.AcceptQuote)
}
