package usecase

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

func TestCreateQuotePricesFromProfileRate(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())

	q := f.quote(t, 2)

	assert.Equal(t, 500.0, q.HourlyRate)
	assert.Equal(t, 1000.0, q.TotalAmount)
	assert.Equal(t, entity.QuoteStatusPending, q.Status)
	assert.Equal(t, "trav-1", q.TravellerID)
	assert.Equal(t, fixtureStart.Add(72*time.Hour), q.ExpiresAt)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), q.SessionDate)

	events := f.broadcaster.events(t)
	require.Len(t, events, 1)
	assert.Equal(t, entity.MessageTypeQuote, events[0].MessageType)
	assert.Equal(t, "guide-1", events[0].SenderID)
	require.NotNil(t, events[0].Metadata)
	require.NotNil(t, events[0].Metadata.Quote)
	assert.Equal(t, q.ID, events[0].Metadata.Quote.QuoteID)
	assert.Equal(t, 1000.0, events[0].Metadata.Quote.TotalAmount)
}

func TestCreateQuoteConvertsTimezoneToUTC(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())

	q, err := f.quotes.CreateQuote(context.Background(), "guide-1", CreateQuoteInput{
		RoomID:      f.room.ID,
		SessionDate: "2025-03-10",
		SessionTime: "09:00",
		Timezone:    "Asia/Jakarta",
		Hours:       1.5,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 2, 0, 0, 0, time.UTC), q.SessionDate)
	assert.Equal(t, 750.0, q.TotalAmount)
}

func TestCreateQuoteRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input CreateQuoteInput
	}{
		{"past session", CreateQuoteInput{SessionDate: "2025-02-28", SessionTime: "09:00", Hours: 2}},
		{"quarter hour", CreateQuoteInput{SessionDate: "2025-03-10", SessionTime: "09:00", Hours: 1.25}},
		{"zero hours", CreateQuoteInput{SessionDate: "2025-03-10", SessionTime: "09:00", Hours: 0}},
		{"bad date", CreateQuoteInput{SessionDate: "10/03/2025", SessionTime: "09:00", Hours: 2}},
		{"missing time", CreateQuoteInput{SessionDate: "2025-03-10", Hours: 2}},
		{"unknown timezone", CreateQuoteInput{SessionDate: "2025-03-10", SessionTime: "09:00", Timezone: "Mars/Olympus", Hours: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, DefaultQuotePolicy())
			tt.input.RoomID = f.room.ID

			_, err := f.quotes.CreateQuote(context.Background(), "guide-1", tt.input)
			assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
			assert.Empty(t, f.broadcaster.events(t))
		})
	}
}

func TestCreateQuoteRequiresConfiguredRate(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	f.setRate(t, 0)

	_, err := f.quotes.CreateQuote(context.Background(), "guide-1", CreateQuoteInput{
		RoomID:      f.room.ID,
		SessionDate: "2025-03-10",
		SessionTime: "09:00",
		Hours:       2,
	})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestCreateQuoteByTravellerIsRejected(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())

	_, err := f.quotes.CreateQuote(context.Background(), "trav-1", CreateQuoteInput{
		RoomID:      f.room.ID,
		SessionDate: "2025-03-10",
		SessionTime: "09:00",
		Hours:       2,
	})
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

// unpostableChats stores rooms but refuses every message.
type unpostableChats struct {
	repository.ChatRepository
}

func (unpostableChats) CreateMessage(ctx context.Context, message *entity.Message) error {
	return errors.Internal("Failed to create message", stderrors.New("firestore unavailable"))
}

func TestCreateQuoteWithdrawsQuoteThatWasNotPosted(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	ctx := context.Background()
	users := f.store.Users()
	chats := unpostableChats{f.store.Chats()}
	chat := NewChatUseCase(chats, users, stubUploader{}, f.broadcaster, f.limiter, f.clock)
	quotes := NewQuoteUseCase(f.store.Quotes(), chats, NewUserRateSource(users), chat, f.events, f.limiter, f.clock, DefaultQuotePolicy())

	_, err := quotes.CreateQuote(ctx, "guide-1", CreateQuoteInput{
		RoomID:      f.room.ID,
		SessionDate: "2025-03-10",
		SessionTime: "09:00",
		Hours:       2,
	})
	require.Error(t, err)

	stored, err := f.store.Quotes().ListByRoom(ctx, f.room.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, entity.QuoteStatusDeclined, stored[0].Status)
	assert.Equal(t, SystemSenderID, stored[0].ResolvedBy)

	_, err = f.quotes.AcceptQuote(ctx, "trav-1", stored[0].ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))
	assert.Empty(t, f.broadcaster.events(t))
}

func TestAcceptQuoteCreatesBookingWithSplit(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	f.setRate(t, 400)
	q := f.quote(t, 3)
	require.Equal(t, 1200.0, q.TotalAmount)

	b, err := f.quotes.AcceptQuote(context.Background(), "trav-1", q.ID)
	require.NoError(t, err)

	assert.Equal(t, entity.BookingQuoteAccepted, b.Status)
	assert.Equal(t, q.ID, b.QuoteID)
	assert.Equal(t, 1200.0, b.TotalAmount)
	assert.Equal(t, 360.0, b.AdvancePayment.Amount)
	assert.Equal(t, 840.0, b.FullPayment.Amount)
	assert.False(t, b.AdvancePayment.Paid)
	require.NotNil(t, b.AdvancePayment.DueDate)
	assert.Equal(t, fixtureStart.Add(72*time.Hour), *b.AdvancePayment.DueDate)

	stored, err := f.quotes.GetQuote(context.Background(), "trav-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusAccepted, stored.Status)
	assert.Equal(t, b.ID, stored.BookingID)

	assert.Equal(t, []string{entity.EventQuoteAccepted}, f.notices(t))
	assert.Equal(t, []string{entity.BookingEventCreated}, f.events.types())
}

func TestAcceptQuoteAfterExpiryIsInvalidState(t *testing.T) {
	f := newFixture(t, QuotePolicy{Validity: 0, AdvanceDueAfter: time.Hour, SweepInterval: time.Minute})
	q := f.quote(t, 2)

	_, err := f.quotes.AcceptQuote(context.Background(), "trav-1", q.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	b, err := f.bookings.GetBookingByChatRoom(context.Background(), "trav-1", f.room.ID)
	require.NoError(t, err)
	assert.Nil(t, b)
	assert.Empty(t, f.events.types())
}

func TestAcceptQuoteConcurrentlyHasOneWinner(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.quotes.AcceptQuote(context.Background(), "trav-1", q.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else if errors.Is(err, errors.CodeInvalidState) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, rejected)
	assert.Equal(t, []string{entity.BookingEventCreated}, f.events.types())
}

func TestDeclineThenAcceptIsInvalidState(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)

	declined, err := f.quotes.DeclineQuote(context.Background(), "trav-1", q.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusDeclined, declined.Status)
	assert.Equal(t, "trav-1", declined.ResolvedBy)

	_, err = f.quotes.AcceptQuote(context.Background(), "trav-1", q.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	_, err = f.quotes.DeclineQuote(context.Background(), "trav-1", q.ID)
	assert.True(t, errors.Is(err, errors.CodeInvalidState))

	assert.Equal(t, []string{entity.EventQuoteDeclined}, f.notices(t))
}

func TestGuideCannotResolveOwnQuote(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)

	_, err := f.quotes.AcceptQuote(context.Background(), "guide-1", q.ID)
	assert.True(t, errors.Is(err, errors.CodeValidation))

	_, err = f.quotes.DeclineQuote(context.Background(), "guide-1", q.ID)
	assert.True(t, errors.Is(err, errors.CodeValidation))
}

func TestOutsiderCannotReadQuote(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)

	_, err := f.quotes.GetQuote(context.Background(), "trav-2", q.ID)
	assert.True(t, errors.Is(err, errors.CodeForbidden))
}

func TestExpiryCheckIsDisplayOnlyUntilSwept(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)
	ctx := context.Background()

	f.clock.Advance(73 * time.Hour)

	listed, err := f.quotes.ListQuotes(ctx, "trav-1", f.room.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, entity.QuoteStatusExpired, listed[0].Status)

	stored, err := f.store.Quotes().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusPending, stored.Status)

	n, err := f.quotes.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = f.store.Quotes().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusExpired, stored.Status)
	assert.Equal(t, SystemSenderID, stored.ResolvedBy)
	assert.Equal(t, []string{entity.EventQuoteExpired}, f.notices(t))

	n, err = f.quotes.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepLeavesLiveQuotesAlone(t *testing.T) {
	f := newFixture(t, DefaultQuotePolicy())
	q := f.quote(t, 2)

	f.clock.Advance(time.Hour)
	n, err := f.quotes.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	stored, err := f.store.Quotes().GetByID(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusPending, stored.Status)
}

func TestExpiryJobSweepsOnTick(t *testing.T) {
	f := newFixture(t, QuotePolicy{Validity: time.Hour, AdvanceDueAfter: time.Hour, SweepInterval: time.Minute})
	q := f.quote(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.quotes.StartExpiryJob(ctx)
	f.clock.BlockUntil(1)

	f.clock.Advance(61 * time.Minute)

	assert.Eventually(t, func() bool {
		stored, err := f.store.Quotes().GetByID(context.Background(), q.ID)
		return err == nil && stored.Status == entity.QuoteStatusExpired
	}, time.Second, 10*time.Millisecond)
}
