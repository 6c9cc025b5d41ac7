package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// MidtransLedger charges installments through the Midtrans Core API.
type MidtransLedger struct {
	serverKey  string
	baseURL    string
	httpClient *http.Client
}

func NewMidtransLedger(serverKey string, isProduction bool) *MidtransLedger {
	baseURL := "https://api.sandbox.midtrans.com/v2"
	if isProduction {
		baseURL = "https://api.midtrans.com/v2"
	}

	return &MidtransLedger{
		serverKey:  serverKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL points the ledger at another endpoint, e.g. a local stub.
func (l *MidtransLedger) WithBaseURL(baseURL string) *MidtransLedger {
	l.baseURL = baseURL
	return l
}

type midtransChargeRequest struct {
	PaymentType        string                     `json:"payment_type"`
	TransactionDetails midtransTransactionDetails `json:"transaction_details"`
	BankTransfer       *midtransBankTransfer      `json:"bank_transfer,omitempty"`
	CustomField1       string                     `json:"custom_field1,omitempty"`
}

type midtransTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type midtransBankTransfer struct {
	Bank string `json:"bank"`
}

type midtransChargeResponse struct {
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
}

func (l *MidtransLedger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	orderID := req.OrderID()
	log.Printf("Charging %s installment for booking %s, amount: %.2f", req.Installment, req.BookingID, req.Amount)

	// Midtrans takes whole rupiah.
	gross := decimal.NewFromFloat(req.Amount).Round(0).IntPart()

	chargeReq := midtransChargeRequest{
		PaymentType: "bank_transfer",
		TransactionDetails: midtransTransactionDetails{
			OrderID:     orderID,
			GrossAmount: gross,
		},
		BankTransfer: &midtransBankTransfer{Bank: "bca"},
		CustomField1: req.PayerID,
	}

	jsonData, err := json.Marshal(chargeReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/charge", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	authHeader := base64.StdEncoding.EncodeToString([]byte(l.serverKey + ":"))
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+authHeader)

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		log.Printf("Midtrans API error: %s", string(body))
		return nil, fmt.Errorf("midtrans API error: %s", string(body))
	}

	var chargeResp midtransChargeResponse
	if err := json.Unmarshal(body, &chargeResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	result := &ChargeResult{
		Status:    MapTransactionStatus(chargeResp.TransactionStatus),
		Reference: chargeResp.TransactionID,
	}
	if chargeResp.TransactionStatus == "" {
		// 4xx without a transaction is a refused charge.
		log.Printf("Midtrans refused charge %s: %s %s", orderID, chargeResp.StatusCode, chargeResp.StatusMessage)
		result.Status = ChargeFailed
	}

	log.Printf("Midtrans charge %s -> %s", orderID, result.Status)
	return result, nil
}
