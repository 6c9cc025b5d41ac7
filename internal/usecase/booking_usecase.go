package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/internal/domain/service"
	"guidebook/internal/infrastructure/ratelimit"
	"guidebook/pkg/errors"
	"guidebook/pkg/logger"
	"guidebook/pkg/money"
)

type BookingUseCase struct {
	bookingRepo repository.BookingRepository
	userRepo    repository.UserRepository
	ledger      service.PaymentLedger
	chat        *ChatUseCase
	events      BookingEventPublisher
	cache       BookingCache
	rateLimiter *ratelimit.RateLimiter
	clock       clockwork.Clock
}

func NewBookingUseCase(
	bookingRepo repository.BookingRepository,
	userRepo repository.UserRepository,
	ledger service.PaymentLedger,
	chat *ChatUseCase,
	events BookingEventPublisher,
	cache BookingCache,
	rateLimiter *ratelimit.RateLimiter,
	clock clockwork.Clock,
) *BookingUseCase {
	if events == nil {
		events = noopPublisher{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	return &BookingUseCase{
		bookingRepo: bookingRepo,
		userRepo:    userRepo,
		ledger:      ledger,
		chat:        chat,
		events:      events,
		cache:       cache,
		rateLimiter: rateLimiter,
		clock:       clock,
	}
}

type BookingPaymentInput struct {
	BookingID string
	Amount    float64
}

// GetBookingByChatRoom returns the room's booking, or nil when no quote in
// the room has been accepted yet.
func (uc *BookingUseCase) GetBookingByChatRoom(ctx context.Context, userID, roomID string) (*entity.Booking, error) {
	if _, _, err := uc.chat.roomFor(ctx, userID, roomID); err != nil {
		return nil, err
	}

	if cached, ok := uc.cache.Get(ctx, roomID); ok {
		return cached, nil
	}

	booking, err := uc.bookingRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	uc.cache.Set(ctx, roomID, booking)
	return booking, nil
}

func (uc *BookingUseCase) GetBooking(ctx context.Context, userID, bookingID string) (*entity.Booking, error) {
	booking, err := uc.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.TravellerID != userID && booking.GuideID != userID {
		return nil, errors.Forbidden("User is not part of this booking", nil)
	}
	return booking, nil
}

func (uc *BookingUseCase) PayAdvance(ctx context.Context, travellerID string, input BookingPaymentInput) (*entity.Receipt, error) {
	return uc.pay(ctx, travellerID, input, entity.InstallmentAdvance)
}

func (uc *BookingUseCase) PayFull(ctx context.Context, travellerID string, input BookingPaymentInput) (*entity.Receipt, error) {
	return uc.pay(ctx, travellerID, input, entity.InstallmentFull)
}

// pay charges one installment. The gate is checked before the ledger is
// touched and again when the result is written.
func (uc *BookingUseCase) pay(ctx context.Context, travellerID string, input BookingPaymentInput, kind entity.InstallmentKind) (*entity.Receipt, error) {
	if input.BookingID == "" {
		return nil, errors.Validation("Booking id is required", nil)
	}

	booking, err := uc.bookingRepo.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.TravellerID != travellerID {
		return nil, errors.Validation("Only the traveller can pay for this booking", nil)
	}
	if !booking.Allowed(kind) {
		return nil, errors.InvalidState(closedGateMessage(booking, kind))
	}

	due := booking.Installment(kind).Amount
	if !money.Equal(input.Amount, due) {
		return nil, errors.Validation(fmt.Sprintf("Amount must be %.2f", due), nil)
	}

	if allowed, wait := uc.rateLimiter.Allow(travellerID, ratelimit.ActionPayment); !allowed {
		log.Printf("Payment Rate Limited: User %s must wait %v", travellerID, wait)
		return nil, errors.TooManyRequests("Too many payment attempts, please wait")
	}

	result, err := uc.ledger.Charge(ctx, service.ChargeRequest{
		BookingID:   booking.ID,
		Installment: kind,
		Amount:      due,
		PayerID:     travellerID,
	})
	if err != nil {
		logger.LogPaymentError(booking.ID, string(kind), err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Timeout("Payment timed out, please retry", err)
		}
		return nil, errors.TransportFailure("Payment could not be processed, please retry", err)
	}
	if result.Status == service.ChargeFailed {
		logger.LogPaymentError(booking.ID, string(kind), fmt.Errorf("charge declined"))
		return nil, errors.TransportFailure("Payment was declined, please retry", nil)
	}

	now := uc.clock.Now()
	updated, err := uc.bookingRepo.Update(ctx, booking.ID, func(b *entity.Booking) error {
		if !b.Allowed(kind) {
			return errors.InvalidState(closedGateMessage(b, kind))
		}
		applyCharge(b, kind, result, now)
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.Printf("Payment %s for booking %s settled at the ledger but not recorded: %v", result.Reference, booking.ID, err)
		return nil, err
	}

	event, notice, text := paymentOutcome(kind, result.Status)
	uc.afterChange(ctx, updated, travellerID, event, &entity.SystemNotice{Event: notice, BookingID: updated.ID, QuoteID: updated.QuoteID}, text)

	inst := updated.Installment(kind)
	return &entity.Receipt{
		BookingID:   updated.ID,
		Installment: kind,
		Amount:      inst.Amount,
		Reference:   result.Reference,
		Status:      string(result.Status),
		PaidAt:      inst.PaidAt,
	}, nil
}

// SettlePayment applies a ledger notification for an order that was left
// pending. Repeated notifications are harmless.
func (uc *BookingUseCase) SettlePayment(ctx context.Context, orderID, transactionStatus, reference string) (*entity.Booking, error) {
	bookingID, kind, ok := service.ParseOrderID(orderID)
	if !ok {
		return nil, errors.Validation("Unknown order id", nil)
	}
	status := service.MapTransactionStatus(transactionStatus)
	if status == service.ChargePending {
		return uc.bookingRepo.GetByID(ctx, bookingID)
	}

	now := uc.clock.Now()
	changed := false
	updated, err := uc.bookingRepo.Update(ctx, bookingID, func(b *entity.Booking) error {
		changed = false
		inst := b.Installment(kind)
		if inst.Paid || !b.Allowed(kind) {
			return nil
		}
		switch status {
		case service.ChargePaid:
			applyCharge(b, kind, &service.ChargeResult{Status: status, Reference: reference}, now)
			changed = true
		case service.ChargeFailed:
			if kind == entity.InstallmentAdvance && b.Status == entity.BookingAdvancePending {
				b.Status = entity.BookingQuoteAccepted
				inst.Reference = ""
				changed = true
			}
		}
		if changed {
			b.UpdatedAt = now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return updated, nil
	}

	if status == service.ChargePaid {
		event, notice, text := paymentOutcome(kind, status)
		uc.afterChange(ctx, updated, updated.TravellerID, event, &entity.SystemNotice{Event: notice, BookingID: updated.ID, QuoteID: updated.QuoteID}, text)
	} else {
		logger.LogPaymentError(updated.ID, string(kind), fmt.Errorf("settlement %s", transactionStatus))
		uc.cache.Invalidate(ctx, updated.RoomID)
	}
	return updated, nil
}

// MarkServiceComplete is the traveller confirming the session took place.
// It opens the full-payment gate.
func (uc *BookingUseCase) MarkServiceComplete(ctx context.Context, travellerID, bookingID string) (*entity.Booking, error) {
	booking, err := uc.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.TravellerID != travellerID {
		return nil, errors.Validation("Only the traveller can mark the service complete", nil)
	}
	return uc.complete(ctx, travellerID, bookingID, true)
}

// OverrideServiceComplete lets an operator close a booking whose traveller
// never confirmed. The session date is not checked.
func (uc *BookingUseCase) OverrideServiceComplete(ctx context.Context, operatorID, bookingID string) (*entity.Booking, error) {
	operator, err := uc.userRepo.GetByID(ctx, operatorID)
	if err != nil {
		return nil, err
	}
	if operator.Role != entity.UserRoleAdmin {
		return nil, errors.Forbidden("Admin access required", nil)
	}
	log.Printf("Operator %s overriding completion of booking %s", operatorID, bookingID)
	return uc.complete(ctx, operatorID, bookingID, false)
}

func (uc *BookingUseCase) complete(ctx context.Context, actorID, bookingID string, requireSessionStarted bool) (*entity.Booking, error) {
	now := uc.clock.Now()
	updated, err := uc.bookingRepo.Update(ctx, bookingID, func(b *entity.Booking) error {
		if b.Status != entity.BookingConfirmed || !b.AdvancePayment.Paid {
			return errors.InvalidState("Service can only be completed once the advance is paid")
		}
		if requireSessionStarted && now.Before(b.SessionDate) {
			return errors.InvalidState("The session has not started yet")
		}
		b.Status = entity.BookingCompleted
		b.CompletedAt = &now
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterChange(ctx, updated, actorID, entity.BookingEventServiceCompleted,
		&entity.SystemNotice{Event: entity.EventServiceCompleted, BookingID: updated.ID, QuoteID: updated.QuoteID},
		"Service marked complete")
	return updated, nil
}

// CancelBooking is open to either participant until the booking completes.
func (uc *BookingUseCase) CancelBooking(ctx context.Context, userID, bookingID, reason string) (*entity.Booking, error) {
	booking, err := uc.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.TravellerID != userID && booking.GuideID != userID {
		return nil, errors.Forbidden("User is not part of this booking", nil)
	}

	now := uc.clock.Now()
	updated, err := uc.bookingRepo.Update(ctx, bookingID, func(b *entity.Booking) error {
		if b.Terminal() {
			return errors.InvalidState(fmt.Sprintf("Booking is already %s", b.Status))
		}
		b.Status = entity.BookingCancelled
		b.CancelledAt = &now
		b.CancelReason = reason
		b.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterChange(ctx, updated, userID, entity.BookingEventCancelled,
		&entity.SystemNotice{Event: entity.EventBookingCancelled, BookingID: updated.ID, QuoteID: updated.QuoteID},
		"Booking cancelled")
	return updated, nil
}

func (uc *BookingUseCase) afterChange(ctx context.Context, b *entity.Booking, actorID, eventType string, notice *entity.SystemNotice, text string) {
	uc.cache.Invalidate(ctx, b.RoomID)

	if _, err := uc.chat.SendSystemMessage(ctx, b.RoomID, text, notice); err != nil {
		log.Printf("Failed to post %s notice to room %s: %v", notice.Event, b.RoomID, err)
	}

	event := entity.NewBookingEvent(eventType, b, actorID, uc.clock.Now())
	switch eventType {
	case entity.BookingEventAdvancePaid, entity.BookingEventAdvancePending:
		event.Amount = b.AdvancePayment.Amount
	case entity.BookingEventFullPaid, entity.BookingEventFullPending:
		event.Amount = b.FullPayment.Amount
	}
	if err := uc.events.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish %s for booking %s: %v", eventType, b.ID, err)
	}
}

// applyCharge records a ledger result on the installment. A pending advance
// moves the booking to ADVANCE_PENDING and leaves the gate open.
func applyCharge(b *entity.Booking, kind entity.InstallmentKind, result *service.ChargeResult, now time.Time) {
	inst := b.Installment(kind)
	inst.Reference = result.Reference

	if result.Status != service.ChargePaid {
		if kind == entity.InstallmentAdvance {
			b.Status = entity.BookingAdvancePending
		}
		return
	}

	inst.Paid = true
	inst.PaidAt = &now
	if kind == entity.InstallmentAdvance {
		b.Status = entity.BookingConfirmed
	}
}

func paymentOutcome(kind entity.InstallmentKind, status service.ChargeStatus) (event, notice, text string) {
	switch {
	case kind == entity.InstallmentFull && status == service.ChargePaid:
		return entity.BookingEventFullPaid, entity.EventFullPaid, "Full payment received"
	case kind == entity.InstallmentFull:
		return entity.BookingEventFullPending, entity.EventFullPending, "Full payment is being processed"
	case status == service.ChargePaid:
		return entity.BookingEventAdvancePaid, entity.EventAdvancePaid, "Advance payment received"
	default:
		return entity.BookingEventAdvancePending, entity.EventAdvancePending, "Advance payment is being processed"
	}
}

func closedGateMessage(b *entity.Booking, kind entity.InstallmentKind) string {
	inst := b.Installment(kind)
	switch {
	case inst.Paid:
		return fmt.Sprintf("The %s payment has already been made", kind)
	case b.Status == entity.BookingCancelled:
		return "Booking has been cancelled"
	case kind == entity.InstallmentFull && !b.AdvancePayment.Paid:
		return "The advance must be paid first"
	case kind == entity.InstallmentFull:
		return "Full payment opens once the service is marked complete"
	}
	return fmt.Sprintf("Booking does not accept the %s payment while %s", kind, b.Status)
}
