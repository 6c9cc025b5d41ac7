package repository

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/domain/entity"
	"guidebook/pkg/errors"
)

func seedQuote(t *testing.T, store *MemoryStore, expiresAt time.Time) *entity.Quote {
	t.Helper()
	q := &entity.Quote{
		ID:          "q-1",
		RoomID:      "room-1",
		GuideID:     "guide-1",
		TravellerID: "trav-1",
		Hours:       2,
		HourlyRate:  500,
		TotalAmount: 1000,
		Status:      entity.QuoteStatusPending,
		ExpiresAt:   expiresAt,
		CreatedAt:   expiresAt.Add(-72 * time.Hour),
	}
	require.NoError(t, store.Quotes().Create(context.Background(), q))
	return q
}

func TestMemoryQuoteTransitionCreatesBooking(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now.Add(time.Hour))

	booking := &entity.Booking{ID: "b-1", QuoteID: "q-1", RoomID: "room-1", Status: entity.BookingQuoteAccepted}
	quote, err := store.Quotes().Transition(context.Background(), entity.QuoteTransition{
		QuoteID: "q-1",
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusAccepted,
		At:      now,
		By:      "trav-1",
		Booking: booking,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.QuoteStatusAccepted, quote.Status)
	assert.Equal(t, "b-1", quote.BookingID)

	stored, err := store.Bookings().GetByRoomID(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "q-1", stored.QuoteID)
}

func TestMemoryQuoteTransitionRejectsStaleStatus(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now.Add(time.Hour))

	accept := entity.QuoteTransition{QuoteID: "q-1", From: entity.QuoteStatusPending, To: entity.QuoteStatusAccepted, At: now}
	_, err := store.Quotes().Transition(context.Background(), accept)
	require.NoError(t, err)

	decline := entity.QuoteTransition{QuoteID: "q-1", From: entity.QuoteStatusPending, To: entity.QuoteStatusDeclined, At: now}
	_, err = store.Quotes().Transition(context.Background(), decline)
	assert.ErrorIs(t, err, entity.ErrQuoteNotPending)
}

func TestMemoryQuoteTransitionRejectsExpired(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now)

	_, err := store.Quotes().Transition(context.Background(), entity.QuoteTransition{
		QuoteID: "q-1",
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusAccepted,
		At:      now,
		Booking: &entity.Booking{ID: "b-1", RoomID: "room-1"},
	})
	assert.ErrorIs(t, err, entity.ErrQuoteExpired)

	_, err = store.Bookings().GetByRoomID(context.Background(), "room-1")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestMemoryQuoteConcurrentAcceptHasOneWinner(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now.Add(time.Hour))

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = store.Quotes().Transition(context.Background(), entity.QuoteTransition{
				QuoteID: "q-1",
				From:    entity.QuoteStatusPending,
				To:      entity.QuoteStatusAccepted,
				At:      now,
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, entity.ErrQuoteNotPending)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMemoryListExpiredPending(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now.Add(-time.Minute))

	fresh := &entity.Quote{ID: "q-2", RoomID: "room-1", Status: entity.QuoteStatusPending, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, store.Quotes().Create(context.Background(), fresh))

	expired, err := store.Quotes().ListExpiredPending(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "q-1", expired[0].ID)
}

func TestMemoryBookingUpdateAbortsOnError(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, store, now.Add(time.Hour))
	_, err := store.Quotes().Transition(context.Background(), entity.QuoteTransition{
		QuoteID: "q-1",
		From:    entity.QuoteStatusPending,
		To:      entity.QuoteStatusAccepted,
		At:      now,
		Booking: &entity.Booking{ID: "b-1", RoomID: "room-1", Status: entity.BookingQuoteAccepted},
	})
	require.NoError(t, err)

	boom := stderrors.New("boom")
	_, err = store.Bookings().Update(context.Background(), "b-1", func(b *entity.Booking) error {
		b.Status = entity.BookingConfirmed
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := store.Bookings().GetByID(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, entity.BookingQuoteAccepted, stored.Status)
}

func TestMemoryMessagesOldestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, text := range []string{"one", "two", "three"} {
		require.NoError(t, store.Chats().CreateMessage(ctx, &entity.Message{
			RoomID:    "room-1",
			SenderID:  "trav-1",
			Type:      entity.MessageTypeText,
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	messages, total, err := store.Chats().GetMessagesByRoom(ctx, "room-1", 2, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, messages, 2)
	assert.Equal(t, "two", messages[0].Text)
	assert.Equal(t, "three", messages[1].Text)
}
