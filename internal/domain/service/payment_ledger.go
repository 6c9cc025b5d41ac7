package service

import (
	"context"
	"fmt"
	"strings"

	"guidebook/internal/domain/entity"
)

type ChargeStatus string

const (
	ChargePaid    ChargeStatus = "paid"
	ChargePending ChargeStatus = "pending"
	ChargeFailed  ChargeStatus = "failed"
)

type ChargeRequest struct {
	BookingID   string
	Installment entity.InstallmentKind
	Amount      float64
	PayerID     string
}

// OrderID is the ledger-side identifier of one installment of one booking.
func (r ChargeRequest) OrderID() string {
	return fmt.Sprintf("%s-%s", r.BookingID, r.Installment)
}

type ChargeResult struct {
	Status    ChargeStatus
	Reference string
}

// PaymentLedger moves money for a single installment. A returned error or a
// ChargeFailed result means nothing was charged.
type PaymentLedger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ParseOrderID splits an order id produced by ChargeRequest.OrderID.
func ParseOrderID(orderID string) (bookingID string, kind entity.InstallmentKind, ok bool) {
	i := strings.LastIndex(orderID, "-")
	if i <= 0 || i == len(orderID)-1 {
		return "", "", false
	}

	kind = entity.InstallmentKind(orderID[i+1:])
	if kind != entity.InstallmentAdvance && kind != entity.InstallmentFull {
		return "", "", false
	}
	return orderID[:i], kind, true
}

// MapTransactionStatus folds gateway transaction states into charge states.
func MapTransactionStatus(transactionStatus string) ChargeStatus {
	switch transactionStatus {
	case "settlement", "capture":
		return ChargePaid
	case "cancel", "deny", "expire", "failure":
		return ChargeFailed
	default:
		return ChargePending
	}
}
