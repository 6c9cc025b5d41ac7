package usecase

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/service"
	"guidebook/pkg/errors"
)

const untilAfterSession = 10 * 24 * time.Hour

func TestBookingHappyPath(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	f.setRate(t, 400)
	ctx := context.Background()
	b := f.booking(t, 3)

	receipt, err := f.bookings.PayAdvance(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 360})
	require.NoError(t, err)
	assert.Equal(t, entity.InstallmentAdvance, receipt.Installment)
	assert.Equal(t, 360.0, receipt.Amount)
	assert.Equal(t, string(service.ChargePaid), receipt.Status)
	assert.NotEmpty(t, receipt.Reference)
	require.NotNil(t, receipt.PaidAt)

	got, err := f.bookings.GetBookingByChatRoom(ctx, "trav-1", f.room.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingConfirmed, got.Status)
	assert.True(t, got.AdvancePayment.Paid)
	assert.False(t, got.FullAllowed())

	_, err = f.bookings.PayFull(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 840})
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	_, err = f.bookings.MarkServiceComplete(ctx, "trav-1", b.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState), "session has not happened yet")

	f.clock.Advance(untilAfterSession)
	completed, err := f.bookings.MarkServiceComplete(ctx, "trav-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingCompleted, completed.Status)
	assert.True(t, completed.FullAllowed())

	receipt, err = f.bookings.PayFull(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 840})
	require.NoError(t, err)
	assert.Equal(t, 840.0, receipt.Amount)

	_, err = f.bookings.PayFull(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 840})
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	final, err := f.bookings.GetBooking(ctx, "guide-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingCompleted, final.Status)
	assert.True(t, final.FullPayment.Paid)

	charges := f.ledger.Charges()
	require.Len(t, charges, 2)
	assert.Equal(t, b.ID+"-advance", charges[0].OrderID())
	assert.Equal(t, b.ID+"-full", charges[1].OrderID())

	assert.Equal(t, []string{
		entity.EventQuoteAccepted,
		entity.EventAdvancePaid,
		entity.EventServiceCompleted,
		entity.EventFullPaid,
	}, f.notices(t))
	assert.Equal(t, []string{
		entity.BookingEventCreated,
		entity.BookingEventAdvancePaid,
		entity.BookingEventServiceCompleted,
		entity.BookingEventFullPaid,
	}, f.events.types())
}

func TestPaymentRejectsWrongAmount(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)

	_, err := f.bookings.PayAdvance(context.Background(), "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 1000})
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Empty(t, f.ledger.Charges())

	receipt, err := f.bookings.PayAdvance(context.Background(), "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, 300.0, receipt.Amount)
}

func TestOnlyTravellerCanPay(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)

	_, err := f.bookings.PayAdvance(context.Background(), "guide-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Empty(t, f.ledger.Charges())
}

func TestLedgerFailureKeepsGateOpen(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	ctx := context.Background()
	input := BookingPaymentInput{BookingID: b.ID, Amount: 300}

	f.ledger.Next("", stderrors.New("connection reset"))
	_, err := f.bookings.PayAdvance(ctx, "trav-1", input)
	assert.True(t, errors.Is(err, errors.CodeTransportFailure))

	f.ledger.Next(service.ChargeFailed, nil)
	_, err = f.bookings.PayAdvance(ctx, "trav-1", input)
	assert.True(t, errors.Is(err, errors.CodeTransportFailure))

	f.ledger.Next("", context.DeadlineExceeded)
	_, err = f.bookings.PayAdvance(ctx, "trav-1", input)
	assert.True(t, errors.Is(err, errors.CodeTimeout))

	stored, err := f.store.Bookings().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingQuoteAccepted, stored.Status)
	assert.False(t, stored.AdvancePayment.Paid)
	assert.True(t, stored.AdvanceAllowed())

	_, err = f.bookings.PayAdvance(ctx, "trav-1", input)
	require.NoError(t, err)
	assert.Len(t, f.ledger.Charges(), 4)
}

func TestPendingAdvanceSettlesFromNotification(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	ctx := context.Background()

	f.ledger.Next(service.ChargePending, nil)
	receipt, err := f.bookings.PayAdvance(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, string(service.ChargePending), receipt.Status)
	assert.Nil(t, receipt.PaidAt)

	pending, err := f.store.Bookings().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingAdvancePending, pending.Status)
	assert.True(t, pending.AdvanceAllowed())

	orderID := service.ChargeRequest{BookingID: b.ID, Installment: entity.InstallmentAdvance}.OrderID()
	settled, err := f.bookings.SettlePayment(ctx, orderID, "settlement", "mt-123")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingConfirmed, settled.Status)
	assert.True(t, settled.AdvancePayment.Paid)
	assert.Equal(t, "mt-123", settled.AdvancePayment.Reference)

	again, err := f.bookings.SettlePayment(ctx, orderID, "settlement", "mt-123")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingConfirmed, again.Status)

	assert.Equal(t, []string{
		entity.EventQuoteAccepted,
		entity.EventAdvancePending,
		entity.EventAdvancePaid,
	}, f.notices(t))
}

func TestExpiredChargeReopensAdvance(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	ctx := context.Background()

	f.ledger.Next(service.ChargePending, nil)
	_, err := f.bookings.PayAdvance(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	require.NoError(t, err)

	reverted, err := f.bookings.SettlePayment(ctx, b.ID+"-advance", "expire", "")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingQuoteAccepted, reverted.Status)
	assert.False(t, reverted.AdvancePayment.Paid)

	_, err = f.bookings.SettlePayment(ctx, "not-an-order", "settlement", "")
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestCancelBooking(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	ctx := context.Background()

	_, err := f.bookings.CancelBooking(ctx, "trav-2", b.ID, "")
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	cancelled, err := f.bookings.CancelBooking(ctx, "guide-1", b.ID, "guide unavailable")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingCancelled, cancelled.Status)
	assert.Equal(t, "guide unavailable", cancelled.CancelReason)

	_, err = f.bookings.PayAdvance(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	_, err = f.bookings.CancelBooking(ctx, "trav-1", b.ID, "")
	assert.True(t, errors.Is(err, errors.CodeInvalidState))
	assert.Empty(t, f.ledger.Charges())
}

func TestOverrideServiceCompleteRequiresAdmin(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	ctx := context.Background()

	_, err := f.bookings.PayAdvance(ctx, "trav-1", BookingPaymentInput{BookingID: b.ID, Amount: 300})
	require.NoError(t, err)

	_, err = f.bookings.OverrideServiceComplete(ctx, "guide-1", b.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	completed, err := f.bookings.OverrideServiceComplete(ctx, "admin-1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingCompleted, completed.Status)
}

func TestMarkServiceCompleteRequiresAdvance(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	b := f.booking(t, 2)
	f.clock.Advance(untilAfterSession)

	_, err := f.bookings.MarkServiceComplete(context.Background(), "trav-1", b.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	_, err = f.bookings.MarkServiceComplete(context.Background(), "guide-1", b.ID)
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestGetBookingByChatRoomBeforeAccept(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	f.quote(t, 2)

	b, err := f.bookings.GetBookingByChatRoom(context.Background(), "guide-1", f.room.ID)
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = f.bookings.GetBookingByChatRoom(context.Background(), "trav-2", f.room.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}
