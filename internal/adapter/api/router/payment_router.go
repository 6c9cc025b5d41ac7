package router

import (
	"github.com/labstack/echo/v4"

	"guidebook/internal/adapter/api/handler"
	"guidebook/internal/adapter/api/middleware"
	"guidebook/internal/infrastructure/ratelimit"
)

const actionPaymentWebhook = "payment_webhook"

// SetupPaymentRoutes exposes the ledger webhook. Midtrans calls it without
// credentials; the handler verifies the signature instead.
func SetupPaymentRoutes(e *echo.Echo, paymentHandler *handler.PaymentHandler, limiter *ratelimit.RateLimiter) {
	payments := e.Group("/v1/payments")
	payments.Use(middleware.RateLimit(limiter, actionPaymentWebhook))

	payments.POST("/notification", paymentHandler.MidtransCallback)
}
