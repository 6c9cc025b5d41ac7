package service

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
)

// SimplifiedLedger settles every charge immediately. It is used in
// development and tests; the outcome of the next charges can be scripted.
type SimplifiedLedger struct {
	mu      sync.Mutex
	scripts []simplifiedOutcome
	charges []ChargeRequest
}

type simplifiedOutcome struct {
	status ChargeStatus
	err    error
}

func NewSimplifiedLedger() *SimplifiedLedger {
	return &SimplifiedLedger{}
}

// Next queues the outcome of a future charge. Charges with nothing queued succeed.
func (l *SimplifiedLedger) Next(status ChargeStatus, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scripts = append(l.scripts, simplifiedOutcome{status: status, err: err})
}

// Charges returns every request the ledger has seen, in order.
func (l *SimplifiedLedger) Charges() []ChargeRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ChargeRequest(nil), l.charges...)
}

func (l *SimplifiedLedger) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	l.mu.Lock()
	l.charges = append(l.charges, req)
	outcome := simplifiedOutcome{status: ChargePaid}
	if len(l.scripts) > 0 {
		outcome = l.scripts[0]
		l.scripts = l.scripts[1:]
	}
	l.mu.Unlock()

	log.Printf("Simplified charge for order: %s, amount: %.2f -> %s", req.OrderID(), req.Amount, outcome.status)

	if outcome.err != nil {
		return nil, outcome.err
	}
	return &ChargeResult{
		Status:    outcome.status,
		Reference: "sim-" + uuid.New().String(),
	}, nil
}
