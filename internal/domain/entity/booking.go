package entity

import "time"

type BookingStatus string

const (
	BookingQuoteAccepted  BookingStatus = "QUOTE_ACCEPTED"
	BookingAdvancePending BookingStatus = "ADVANCE_PENDING"
	BookingConfirmed      BookingStatus = "CONFIRMED"
	BookingCompleted      BookingStatus = "COMPLETED"
	BookingCancelled      BookingStatus = "CANCELLED"
)

type InstallmentKind string

const (
	InstallmentAdvance InstallmentKind = "advance"
	InstallmentFull    InstallmentKind = "full"
)

type Installment struct {
	Amount    float64    `json:"amount" firestore:"amount"`
	Paid      bool       `json:"paid" firestore:"paid"`
	DueDate   *time.Time `json:"due_date,omitempty" firestore:"dueDate,omitempty"`
	PaidAt    *time.Time `json:"paid_at,omitempty" firestore:"paidAt,omitempty"`
	Reference string     `json:"reference,omitempty" firestore:"reference,omitempty"`
}

// Booking exists only for an accepted quote. The 30/70 split is fixed at creation.
type Booking struct {
	ID             string        `json:"booking_id" firestore:"id"`
	QuoteID        string        `json:"quote_id" firestore:"quoteId"`
	RoomID         string        `json:"room_id" firestore:"roomId"`
	TravellerID    string        `json:"traveller_id" firestore:"travellerId"`
	GuideID        string        `json:"guide_id" firestore:"guideId"`
	SessionDate    time.Time     `json:"session_date" firestore:"sessionDate"`
	Hours          float64       `json:"hours" firestore:"hours"`
	TotalAmount    float64       `json:"total_amount" firestore:"totalAmount"`
	Status         BookingStatus `json:"status" firestore:"status"`
	AdvancePayment Installment   `json:"advance_payment" firestore:"advancePayment"`
	FullPayment    Installment   `json:"full_payment" firestore:"fullPayment"`
	CreatedAt      time.Time     `json:"created_at" firestore:"createdAt"`
	UpdatedAt      time.Time     `json:"updated_at" firestore:"updatedAt"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty" firestore:"completedAt,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty" firestore:"cancelledAt,omitempty"`
	CancelReason   string        `json:"cancel_reason,omitempty" firestore:"cancelReason,omitempty"`
}

func (b *Booking) AdvanceAllowed() bool {
	if b.AdvancePayment.Paid || b.Status == BookingCancelled {
		return false
	}
	switch b.Status {
	case BookingQuoteAccepted, BookingAdvancePending, BookingConfirmed:
		return true
	}
	return false
}

func (b *Booking) FullAllowed() bool {
	return b.AdvancePayment.Paid && !b.FullPayment.Paid && b.Status == BookingCompleted
}

// Terminal reports whether the booking can no longer be cancelled.
func (b *Booking) Terminal() bool {
	return b.Status == BookingCompleted || b.Status == BookingCancelled
}

func (b *Booking) Installment(kind InstallmentKind) *Installment {
	if kind == InstallmentFull {
		return &b.FullPayment
	}
	return &b.AdvancePayment
}

func (b *Booking) Allowed(kind InstallmentKind) bool {
	if kind == InstallmentFull {
		return b.FullAllowed()
	}
	return b.AdvanceAllowed()
}

// BookingUpdate is a conditional write: Apply runs against the freshly read
// booking inside the repository's transaction and may reject it.
type BookingUpdate func(b *Booking) error

type Receipt struct {
	BookingID   string          `json:"booking_id"`
	Installment InstallmentKind `json:"installment"`
	Amount      float64         `json:"amount"`
	Reference   string          `json:"reference"`
	Status      string          `json:"status"`
	PaidAt      *time.Time      `json:"paid_at,omitempty"`
}
