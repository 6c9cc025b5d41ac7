package entity

import (
	"errors"
	"time"
)

type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusDeclined QuoteStatus = "declined"
	QuoteStatusExpired  QuoteStatus = "expired"
)

var (
	ErrQuoteNotPending = errors.New("quote is no longer pending")
	ErrQuoteExpired    = errors.New("quote has expired")
	ErrQuoteNotDue     = errors.New("quote has not reached its expiry")
)

type Location struct {
	Address string  `json:"address,omitempty" firestore:"address,omitempty"`
	City    string  `json:"city,omitempty" firestore:"city,omitempty"`
	State   string  `json:"state,omitempty" firestore:"state,omitempty"`
	Country string  `json:"country,omitempty" firestore:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty" firestore:"lat,omitempty"`
	Lon     float64 `json:"lon,omitempty" firestore:"lon,omitempty"`
}

// Place is a geocoding result used to prefill a quote location.
type Place struct {
	DisplayName string  `json:"display_name"`
	City        string  `json:"city,omitempty"`
	State       string  `json:"state,omitempty"`
	Country     string  `json:"country,omitempty"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
}

func (p Place) Location() *Location {
	return &Location{
		Address: p.DisplayName,
		City:    p.City,
		State:   p.State,
		Country: p.Country,
		Lat:     p.Lat,
		Lon:     p.Lon,
	}
}

// Quote terms (rate, hours, date, total) are fixed at creation.
type Quote struct {
	ID          string      `json:"id" firestore:"id"`
	RoomID      string      `json:"room_id" firestore:"roomId"`
	GuideID     string      `json:"guide_id" firestore:"guideId"`
	TravellerID string      `json:"traveller_id" firestore:"travellerId"`
	SessionDate time.Time   `json:"session_date" firestore:"sessionDate"`
	Hours       float64     `json:"hours" firestore:"hours"`
	HourlyRate  float64     `json:"hourly_rate" firestore:"hourlyRate"`
	TotalAmount float64     `json:"total_amount" firestore:"totalAmount"`
	Location    *Location   `json:"location,omitempty" firestore:"location,omitempty"`
	Notes       string      `json:"notes,omitempty" firestore:"notes,omitempty"`
	Status      QuoteStatus `json:"status" firestore:"status"`
	ExpiresAt   time.Time   `json:"expires_at" firestore:"expiresAt"`
	CreatedAt   time.Time   `json:"created_at" firestore:"createdAt"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty" firestore:"resolvedAt,omitempty"`
	ResolvedBy  string      `json:"resolved_by,omitempty" firestore:"resolvedBy,omitempty"`
	BookingID   string      `json:"booking_id,omitempty" firestore:"bookingId,omitempty"`
}

// EffectiveStatus is the display-only expiry check: a pending quote past its
// expiry reads as expired. It never changes the stored status.
func (q *Quote) EffectiveStatus(now time.Time) QuoteStatus {
	if q.Status == QuoteStatusPending && !now.Before(q.ExpiresAt) {
		return QuoteStatusExpired
	}
	return q.Status
}

// CheckResolvable is the authoritative guard for accept and decline.
func (q *Quote) CheckResolvable(now time.Time) error {
	if q.Status != QuoteStatusPending {
		return ErrQuoteNotPending
	}
	if !now.Before(q.ExpiresAt) {
		return ErrQuoteExpired
	}
	return nil
}

func (s QuoteStatus) Terminal() bool {
	return s == QuoteStatusAccepted || s == QuoteStatusDeclined || s == QuoteStatusExpired
}

func (q *Quote) Snapshot() *QuoteSnapshot {
	return &QuoteSnapshot{
		QuoteID:     q.ID,
		SessionDate: q.SessionDate,
		Hours:       q.Hours,
		HourlyRate:  q.HourlyRate,
		TotalAmount: q.TotalAmount,
		Location:    q.Location,
		Notes:       q.Notes,
		Status:      q.Status,
		ExpiresAt:   q.ExpiresAt,
		CreatedAt:   q.CreatedAt,
	}
}

// QuoteFromSnapshot rebuilds what a client knows about a quote from its message.
func QuoteFromSnapshot(m *Message) *Quote {
	s := m.QuoteSnapshot()
	if s == nil {
		return nil
	}
	return &Quote{
		ID:          s.QuoteID,
		RoomID:      m.RoomID,
		GuideID:     m.SenderID,
		SessionDate: s.SessionDate,
		Hours:       s.Hours,
		HourlyRate:  s.HourlyRate,
		TotalAmount: s.TotalAmount,
		Location:    s.Location,
		Notes:       s.Notes,
		Status:      s.Status,
		ExpiresAt:   s.ExpiresAt,
		CreatedAt:   s.CreatedAt,
	}
}

// QuoteTransition is a conditional status change applied atomically by the
// repository: it only lands if the stored status still equals From.
type QuoteTransition struct {
	QuoteID string
	From    QuoteStatus
	To      QuoteStatus
	At      time.Time
	By      string
	// Booking is created in the same write when To is accepted.
	Booking *Booking
}

// Apply lands t on q, or reports why the stored quote no longer allows it.
func (t QuoteTransition) Apply(q *Quote) error {
	if q.Status != t.From {
		return ErrQuoteNotPending
	}
	switch t.To {
	case QuoteStatusAccepted, QuoteStatusDeclined:
		if !t.At.Before(q.ExpiresAt) {
			return ErrQuoteExpired
		}
	case QuoteStatusExpired:
		if t.At.Before(q.ExpiresAt) {
			return ErrQuoteNotDue
		}
	}

	at := t.At
	q.Status = t.To
	q.ResolvedAt = &at
	q.ResolvedBy = t.By
	if t.Booking != nil {
		q.BookingID = t.Booking.ID
	}
	return nil
}
