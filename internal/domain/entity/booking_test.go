package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentGates(t *testing.T) {
	tests := []struct {
		name     string
		booking  Booking
		advance  bool
		full     bool
		terminal bool
	}{
		{name: "just accepted", booking: Booking{Status: BookingQuoteAccepted}, advance: true},
		{name: "advance pending", booking: Booking{Status: BookingAdvancePending}, advance: true},
		{name: "confirmed", booking: Booking{Status: BookingConfirmed, AdvancePayment: Installment{Paid: true}}},
		{name: "completed", booking: Booking{Status: BookingCompleted, AdvancePayment: Installment{Paid: true}}, full: true, terminal: true},
		{name: "fully paid", booking: Booking{Status: BookingCompleted, AdvancePayment: Installment{Paid: true}, FullPayment: Installment{Paid: true}}, terminal: true},
		{name: "cancelled", booking: Booking{Status: BookingCancelled}, terminal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.advance, tt.booking.AdvanceAllowed())
			assert.Equal(t, tt.full, tt.booking.FullAllowed())
			assert.Equal(t, tt.advance, tt.booking.Allowed(InstallmentAdvance))
			assert.Equal(t, tt.full, tt.booking.Allowed(InstallmentFull))
			assert.Equal(t, tt.terminal, tt.booking.Terminal())
		})
	}
}

func TestInstallmentSelectsField(t *testing.T) {
	b := Booking{AdvancePayment: Installment{Amount: 450}, FullPayment: Installment{Amount: 1050}}

	assert.Equal(t, 450.0, b.Installment(InstallmentAdvance).Amount)
	b.Installment(InstallmentFull).Paid = true
	assert.True(t, b.FullPayment.Paid)
}
