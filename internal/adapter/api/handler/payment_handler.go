package handler

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/response"
)

type PaymentHandler struct {
	bookingUseCase *usecase.BookingUseCase
	serverKey      string
	sandbox        bool
}

func NewPaymentHandler(bookingUseCase *usecase.BookingUseCase, serverKey, environment string) *PaymentHandler {
	return &PaymentHandler{
		bookingUseCase: bookingUseCase,
		serverKey:      serverKey,
		sandbox:        environment != "production",
	}
}

type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	PaymentType       string `json:"payment_type"`
	FraudStatus       string `json:"fraud_status"`
}

// MidtransCallback settles installments that the charge left pending.
func (h *PaymentHandler) MidtransCallback(c echo.Context) error {
	log.Printf("Received Midtrans webhook callback from IP: %s", c.RealIP())

	var n midtransNotification
	if err := c.Bind(&n); err != nil {
		log.Printf("Failed to parse Midtrans callback: %v", err)
		return response.Error(c, errors.BadRequest("Invalid callback payload", err))
	}

	log.Printf("Midtrans webhook: OrderID=%s, Status=%s, PaymentType=%s, FraudStatus=%s",
		n.OrderID, n.TransactionStatus, n.PaymentType, n.FraudStatus)

	if err := h.verifySignature(n); err != nil {
		log.Printf("Midtrans webhook signature verification failed: %v", err)
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"status": "UNAUTHORIZED",
		})
	}

	status := n.TransactionStatus
	if status == "capture" && n.FraudStatus == "challenge" {
		status = "pending"
	}

	if _, err := h.bookingUseCase.SettlePayment(c.Request().Context(), n.OrderID, status, n.TransactionID); err != nil {
		log.Printf("Failed to process Midtrans callback for order %s: %v", n.OrderID, err)
		// 200 anyway, Midtrans retries anything else
		return c.JSON(http.StatusOK, map[string]string{
			"status": "ERROR_PROCESSED",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "OK",
	})
}

// verifySignature checks SHA512(order_id+status_code+gross_amount+server_key).
func (h *PaymentHandler) verifySignature(n midtransNotification) error {
	if n.SignatureKey == "" {
		if h.sandbox {
			log.Printf("Signature not found but running in sandbox mode, allowing webhook")
			return nil
		}
		return fmt.Errorf("no signature found in webhook")
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" {
		return fmt.Errorf("missing required fields for signature verification")
	}

	if n.SignatureKey != NotificationSignature(n.OrderID, n.StatusCode, n.GrossAmount, h.serverKey) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// NotificationSignature is the signature_key Midtrans attaches to a notification.
func NotificationSignature(orderID, statusCode, grossAmount, serverKey string) string {
	hash := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(hash[:])
}
