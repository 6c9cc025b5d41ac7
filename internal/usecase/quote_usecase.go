package usecase

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/internal/infrastructure/ratelimit"
	"guidebook/pkg/errors"
	"guidebook/pkg/logger"
	"guidebook/pkg/money"
)

const expirySweepBatch = 100

// QuotePolicy holds the timing rules of the quote lifecycle.
type QuotePolicy struct {
	Validity        time.Duration
	AdvanceDueAfter time.Duration
	SweepInterval   time.Duration
}

func DefaultQuotePolicy() QuotePolicy {
	return QuotePolicy{
		Validity:        72 * time.Hour,
		AdvanceDueAfter: 72 * time.Hour,
		SweepInterval:   time.Minute,
	}
}

type QuoteUseCase struct {
	quoteRepo   repository.QuoteRepository
	chatRepo    repository.ChatRepository
	rates       ProfileRateSource
	chat        *ChatUseCase
	events      BookingEventPublisher
	rateLimiter *ratelimit.RateLimiter
	clock       clockwork.Clock
	policy      QuotePolicy
}

func NewQuoteUseCase(
	quoteRepo repository.QuoteRepository,
	chatRepo repository.ChatRepository,
	rates ProfileRateSource,
	chat *ChatUseCase,
	events BookingEventPublisher,
	rateLimiter *ratelimit.RateLimiter,
	clock clockwork.Clock,
	policy QuotePolicy,
) *QuoteUseCase {
	if events == nil {
		events = noopPublisher{}
	}
	return &QuoteUseCase{
		quoteRepo:   quoteRepo,
		chatRepo:    chatRepo,
		rates:       rates,
		chat:        chat,
		events:      events,
		rateLimiter: rateLimiter,
		clock:       clock,
		policy:      policy,
	}
}

type CreateQuoteInput struct {
	RoomID      string
	SessionDate string // YYYY-MM-DD
	SessionTime string // HH:MM, 24h
	Timezone    string // IANA name, defaults to UTC
	Hours       float64
	Location    *entity.Location
	Notes       string
}

// SessionStart resolves the date and time in the given timezone and returns it in UTC.
func (in CreateQuoteInput) SessionStart() (time.Time, error) {
	if strings.TrimSpace(in.SessionDate) == "" || strings.TrimSpace(in.SessionTime) == "" {
		return time.Time{}, fmt.Errorf("session date and time are required")
	}

	loc := time.UTC
	if in.Timezone != "" {
		l, err := time.LoadLocation(in.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("unknown timezone %q", in.Timezone)
		}
		loc = l
	}

	t, err := time.ParseInLocation("2006-01-02 15:04", in.SessionDate+" "+in.SessionTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("session date/time must be YYYY-MM-DD and HH:MM")
	}
	return t.UTC(), nil
}

// CreateQuote prices a session for the room's traveller and posts it into the room.
func (uc *QuoteUseCase) CreateQuote(ctx context.Context, guideID string, input CreateQuoteInput) (*entity.Quote, error) {
	room, err := uc.chatRepo.GetByID(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasRole(guideID, entity.RoleGuide) {
		return nil, errors.Validation("Only the guide in this room can send a quote", nil)
	}
	traveller, ok := room.ParticipantByRole(entity.RoleTraveller)
	if !ok {
		return nil, errors.Validation("Room has no traveller to quote", nil)
	}

	now := uc.clock.Now()
	sessionDate, err := input.SessionStart()
	if err != nil {
		return nil, errors.Validation(err.Error(), err)
	}
	if !sessionDate.After(now) {
		return nil, errors.Validation("Session must be in the future", nil)
	}
	if !money.IsHalfHourStep(input.Hours) {
		return nil, errors.Validation("Hours must be positive, in half-hour steps", nil)
	}

	rate, err := uc.rates.HourlyRate(ctx, guideID)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, errors.Validation("Set your hourly rate in your profile before sending quotes", nil)
	}

	if allowed, wait := uc.rateLimiter.Allow(guideID, ratelimit.ActionCreateQuote); !allowed {
		log.Printf("CreateQuote Rate Limited: User %s must wait %v", guideID, wait)
		return nil, errors.TooManyRequests("Too many quotes, please wait")
	}

	quote := &entity.Quote{
		ID:          uuid.New().String(),
		RoomID:      room.ID,
		GuideID:     guideID,
		TravellerID: traveller.UserID,
		SessionDate: sessionDate,
		Hours:       input.Hours,
		HourlyRate:  rate,
		TotalAmount: money.Total(rate, input.Hours),
		Location:    input.Location,
		Notes:       strings.TrimSpace(input.Notes),
		Status:      entity.QuoteStatusPending,
		ExpiresAt:   now.Add(uc.policy.Validity),
		CreatedAt:   now,
	}
	if err := uc.quoteRepo.Create(ctx, quote); err != nil {
		log.Printf("CreateQuote Error: Failed to store quote for room %s: %v", room.ID, err)
		return nil, err
	}

	if _, err := uc.chat.PostQuoteMessage(ctx, quote); err != nil {
		log.Printf("CreateQuote Error: Quote %s stored but not posted to room %s: %v", quote.ID, room.ID, err)
		uc.withdraw(ctx, quote)
		return nil, err
	}

	log.Printf("Quote %s created in room %s: %.1fh x %.2f = %.2f", quote.ID, room.ID, quote.Hours, quote.HourlyRate, quote.TotalAmount)
	return quote, nil
}

// withdraw declines a quote the traveller never saw, so it cannot be
// accepted through the API later.
func (uc *QuoteUseCase) withdraw(ctx context.Context, quote *entity.Quote) {
	_, err := uc.quoteRepo.Transition(context.WithoutCancel(ctx), entity.QuoteTransition{
		QuoteID: quote.ID,
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusDeclined,
		At:      quote.CreatedAt,
		By:      SystemSenderID,
	})
	if err != nil {
		log.Printf("CreateQuote Error: Quote %s left pending after failed post: %v", quote.ID, err)
		return
	}
	logger.LogQuoteTransition(quote.ID, string(entity.QuoteStatusPending), string(entity.QuoteStatusDeclined))
}

// AcceptQuote turns a pending quote into a booking. The status change and the
// booking are written together; a concurrent accept or decline loses with InvalidState.
func (uc *QuoteUseCase) AcceptQuote(ctx context.Context, travellerID, quoteID string) (*entity.Booking, error) {
	quote, err := uc.resolvable(ctx, travellerID, quoteID, "accept")
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	advance, balance := money.Split(quote.TotalAmount)
	due := now.Add(uc.policy.AdvanceDueAfter)

	booking := &entity.Booking{
		ID:          uuid.New().String(),
		QuoteID:     quote.ID,
		RoomID:      quote.RoomID,
		TravellerID: quote.TravellerID,
		GuideID:     quote.GuideID,
		SessionDate: quote.SessionDate,
		Hours:       quote.Hours,
		TotalAmount: quote.TotalAmount,
		Status:      entity.BookingQuoteAccepted,
		AdvancePayment: entity.Installment{
			Amount:  advance,
			DueDate: &due,
		},
		FullPayment: entity.Installment{
			Amount: balance,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = uc.quoteRepo.Transition(ctx, entity.QuoteTransition{
		QuoteID: quote.ID,
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusAccepted,
		At:      now,
		By:      travellerID,
		Booking: booking,
	})
	if err != nil {
		return nil, transitionError(err)
	}
	logger.LogQuoteTransition(quote.ID, string(entity.QuoteStatusPending), string(entity.QuoteStatusAccepted))

	uc.notify(ctx, quote.RoomID, "Quote accepted", &entity.SystemNotice{
		Event:     entity.EventQuoteAccepted,
		QuoteID:   quote.ID,
		BookingID: booking.ID,
	})
	if err := uc.events.Publish(ctx, entity.NewBookingEvent(entity.BookingEventCreated, booking, travellerID, now)); err != nil {
		log.Printf("Failed to publish %s for booking %s: %v", entity.BookingEventCreated, booking.ID, err)
	}

	return booking, nil
}

func (uc *QuoteUseCase) DeclineQuote(ctx context.Context, travellerID, quoteID string) (*entity.Quote, error) {
	quote, err := uc.resolvable(ctx, travellerID, quoteID, "decline")
	if err != nil {
		return nil, err
	}

	updated, err := uc.quoteRepo.Transition(ctx, entity.QuoteTransition{
		QuoteID: quote.ID,
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusDeclined,
		At:      uc.clock.Now(),
		By:      travellerID,
	})
	if err != nil {
		return nil, transitionError(err)
	}
	logger.LogQuoteTransition(quote.ID, string(entity.QuoteStatusPending), string(entity.QuoteStatusDeclined))

	uc.notify(ctx, quote.RoomID, "Quote declined", &entity.SystemNotice{
		Event:   entity.EventQuoteDeclined,
		QuoteID: quote.ID,
	})
	return updated, nil
}

// ExpiryCheck reports the status a quote should be shown with right now.
// It never writes.
func (uc *QuoteUseCase) ExpiryCheck(quote *entity.Quote) entity.QuoteStatus {
	return quote.EffectiveStatus(uc.clock.Now())
}

func (uc *QuoteUseCase) GetQuote(ctx context.Context, userID, quoteID string) (*entity.Quote, error) {
	quote, err := uc.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if _, _, err := uc.chat.roomFor(ctx, userID, quote.RoomID); err != nil {
		return nil, err
	}
	quote.Status = uc.ExpiryCheck(quote)
	return quote, nil
}

func (uc *QuoteUseCase) ListQuotes(ctx context.Context, userID, roomID string) ([]*entity.Quote, error) {
	if _, _, err := uc.chat.roomFor(ctx, userID, roomID); err != nil {
		return nil, err
	}
	quotes, err := uc.quoteRepo.ListByRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		q.Status = uc.ExpiryCheck(q)
	}
	return quotes, nil
}

// SweepExpired persists the expiry of pending quotes past their deadline and
// tells each room. It returns how many quotes it expired.
func (uc *QuoteUseCase) SweepExpired(ctx context.Context) (int, error) {
	now := uc.clock.Now()
	quotes, err := uc.quoteRepo.ListExpiredPending(ctx, now, expirySweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, q := range quotes {
		_, err := uc.quoteRepo.Transition(ctx, entity.QuoteTransition{
			QuoteID: q.ID,
			From:    entity.QuoteStatusPending,
			To:      entity.QuoteStatusExpired,
			At:      now,
			By:      SystemSenderID,
		})
		if err != nil {
			if stderrors.Is(err, entity.ErrQuoteNotPending) || stderrors.Is(err, entity.ErrQuoteNotDue) {
				continue
			}
			return expired, err
		}
		expired++
		logger.LogQuoteTransition(q.ID, string(entity.QuoteStatusPending), string(entity.QuoteStatusExpired))

		uc.notify(ctx, q.RoomID, "Quote expired", &entity.SystemNotice{
			Event:   entity.EventQuoteExpired,
			QuoteID: q.ID,
		})
	}
	return expired, nil
}

// StartExpiryJob runs SweepExpired on the policy interval until ctx is done.
func (uc *QuoteUseCase) StartExpiryJob(ctx context.Context) {
	ticker := uc.clock.NewTicker(uc.policy.SweepInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if n, err := uc.SweepExpired(ctx); err != nil {
					log.Printf("Quote expiry job error: %v", err)
				} else if n > 0 {
					log.Printf("Quote expiry job expired %d quotes", n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Printf("Quote expiry job started (checking every %v)", uc.policy.SweepInterval)
}

func (uc *QuoteUseCase) resolvable(ctx context.Context, travellerID, quoteID, action string) (*entity.Quote, error) {
	if quoteID == "" {
		return nil, errors.Validation("Quote id is required", nil)
	}
	quote, err := uc.quoteRepo.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	room, err := uc.chatRepo.GetByID(ctx, quote.RoomID)
	if err != nil {
		return nil, err
	}
	if !room.HasRole(travellerID, entity.RoleTraveller) {
		return nil, errors.Validation(fmt.Sprintf("Only the traveller in this room can %s a quote", action), nil)
	}
	if err := quote.CheckResolvable(uc.clock.Now()); err != nil {
		return nil, transitionError(err)
	}
	return quote, nil
}

func (uc *QuoteUseCase) notify(ctx context.Context, roomID, text string, notice *entity.SystemNotice) {
	if _, err := uc.chat.SendSystemMessage(ctx, roomID, text, notice); err != nil {
		log.Printf("Failed to post %s notice to room %s: %v", notice.Event, roomID, err)
	}
}

func transitionError(err error) error {
	switch {
	case stderrors.Is(err, entity.ErrQuoteNotPending):
		return errors.InvalidState("Quote has already been resolved")
	case stderrors.Is(err, entity.ErrQuoteExpired):
		return errors.InvalidState("Quote has expired")
	}
	return err
}
