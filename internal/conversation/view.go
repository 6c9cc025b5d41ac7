package conversation

import (
	"time"

	"guidebook/internal/domain/entity"
)

type View struct {
	RoomID  string
	Self    entity.Participant
	Items   []Item
	Booking *entity.Booking
	// Payment is set only for the traveller, when a gate is open.
	Payment *PaymentPrompt
}

type Item struct {
	Message entity.Message
	Pending bool
	Quote   *QuoteCard
}

// QuoteCard is a quote message rendered with its latest known state.
type QuoteCard struct {
	Quote      entity.Quote
	Status     entity.QuoteStatus
	Remaining  time.Duration
	CanRespond bool
}

type PaymentPrompt struct {
	BookingID   string
	Installment entity.InstallmentKind
	Amount      float64
	DueDate     *time.Time
}

func (s *Surface) render() View {
	now := s.clock.Now()
	v := View{RoomID: s.room.ID, Self: s.self}

	for _, e := range s.log.Entries() {
		item := Item{Message: e.Message, Pending: e.Pending}
		if e.Message.Type == entity.MessageTypeQuote {
			item.Quote = s.card(e.Message, now)
		}
		v.Items = append(v.Items, item)
	}

	if s.booking != nil {
		b := *s.booking
		v.Booking = &b
		v.Payment = s.prompt(&b)
	}
	return v
}

func (s *Surface) card(m entity.Message, now time.Time) *QuoteCard {
	snap := m.QuoteSnapshot()
	if snap == nil {
		return nil
	}
	q, ok := s.quotes[snap.QuoteID]
	if !ok {
		q = entity.QuoteFromSnapshot(&m)
	}

	status := q.EffectiveStatus(now)
	c := &QuoteCard{Quote: *q, Status: status}
	if status == entity.QuoteStatusPending {
		c.Remaining = q.ExpiresAt.Sub(now)
		c.CanRespond = s.self.Role == entity.RoleTraveller && s.self.UserID != q.GuideID
	}
	return c
}

func (s *Surface) prompt(b *entity.Booking) *PaymentPrompt {
	if s.self.Role != entity.RoleTraveller {
		return nil
	}
	switch {
	case b.AdvanceAllowed():
		return &PaymentPrompt{
			BookingID:   b.ID,
			Installment: entity.InstallmentAdvance,
			Amount:      b.AdvancePayment.Amount,
			DueDate:     b.AdvancePayment.DueDate,
		}
	case b.FullAllowed():
		return &PaymentPrompt{
			BookingID:   b.ID,
			Installment: entity.InstallmentFull,
			Amount:      b.FullPayment.Amount,
		}
	}
	return nil
}
