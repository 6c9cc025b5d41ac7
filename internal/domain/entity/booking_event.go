package entity

import "time"

const (
	BookingEventCreated          = "booking.created"
	BookingEventAdvancePaid      = "booking.advance_paid"
	BookingEventAdvancePending   = "booking.advance_pending"
	BookingEventServiceCompleted = "booking.service_completed"
	BookingEventFullPaid         = "booking.full_paid"
	BookingEventFullPending      = "booking.full_pending"
	BookingEventCancelled        = "booking.cancelled"
)

// BookingEvent is published after every committed booking change.
type BookingEvent struct {
	Type       string        `json:"type"`
	BookingID  string        `json:"booking_id"`
	QuoteID    string        `json:"quote_id"`
	RoomID     string        `json:"room_id"`
	ActorID    string        `json:"actor_id"`
	Status     BookingStatus `json:"status"`
	Amount     float64       `json:"amount,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b *Booking, actorID string, at time.Time) BookingEvent {
	return BookingEvent{
		Type:       eventType,
		BookingID:  b.ID,
		QuoteID:    b.QuoteID,
		RoomID:     b.RoomID,
		ActorID:    actorID,
		Status:     b.Status,
		OccurredAt: at,
	}
}
