package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	memrepo "guidebook/internal/adapter/repository"
	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/service"
	"guidebook/internal/infrastructure/ratelimit"
	ws "guidebook/internal/infrastructure/websocket"
)

var fixtureStart = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type recordingBroadcaster struct {
	mu     sync.Mutex
	frames []ws.Frame
}

func (b *recordingBroadcaster) SendToRoom(roomID string, message []byte, excludeUserID string) {
	var f ws.Frame
	if err := json.Unmarshal(message, &f); err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.frames = append(b.frames, f)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) SendToUser(userID string, message []byte) {}

func (b *recordingBroadcaster) events(t *testing.T) []entity.NewMessageEvent {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []entity.NewMessageEvent
	for _, f := range b.frames {
		if f.Type != ws.FrameTypeNewMessage {
			continue
		}
		var e entity.NewMessageEvent
		require.NoError(t, json.Unmarshal(f.Data, &e))
		out = append(out, e)
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.BookingEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event entity.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubUploader struct {
	attachments []entity.Attachment
	err         error
}

func (u stubUploader) Upload(ctx context.Context, userID string, files []service.MediaFile) ([]entity.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return u.attachments, u.err
}

type fixture struct {
	store       *memrepo.MemoryStore
	clock       clockwork.FakeClock
	ledger      *service.SimplifiedLedger
	broadcaster *recordingBroadcaster
	events      *recordingPublisher
	limiter     *ratelimit.RateLimiter
	chat        *ChatUseCase
	quotes      *QuoteUseCase
	bookings    *BookingUseCase
	room        *entity.ChatRoom
}

func newFixture(t *testing.T, policy QuotePolicy) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:       memrepo.NewMemoryStore(),
		clock:       clockwork.NewFakeClockAt(fixtureStart),
		ledger:      service.NewSimplifiedLedger(),
		broadcaster: &recordingBroadcaster{},
		events:      &recordingPublisher{},
	}
	f.limiter = ratelimit.NewRateLimiter(f.clock, 100, 100)
	f.limiter.SetLimit(ratelimit.ActionPayment, ratelimit.Limit{Every: rate.Inf, Burst: 1})

	users := f.store.Users()
	require.NoError(t, users.Create(ctx, &entity.User{ID: "trav-1", DisplayName: "Tara", Role: entity.UserRoleTraveller}))
	require.NoError(t, users.Create(ctx, &entity.User{ID: "trav-2", DisplayName: "Tomas", Role: entity.UserRoleTraveller}))
	require.NoError(t, users.Create(ctx, &entity.User{ID: "guide-1", DisplayName: "Gita", Role: entity.UserRoleGuide, HourlyRate: 500}))
	require.NoError(t, users.Create(ctx, &entity.User{ID: "admin-1", DisplayName: "Ops", Role: entity.UserRoleAdmin}))

	f.chat = NewChatUseCase(f.store.Chats(), users, stubUploader{}, f.broadcaster, f.limiter, f.clock)
	f.quotes = NewQuoteUseCase(f.store.Quotes(), f.store.Chats(), NewUserRateSource(users), f.chat, f.events, f.limiter, f.clock, policy)
	f.bookings = NewBookingUseCase(f.store.Bookings(), users, f.ledger, f.chat, f.events, nil, f.limiter, f.clock)

	room, err := f.chat.CreateRoom(ctx, "trav-1", CreateRoomInput{CounterpartID: "guide-1"})
	require.NoError(t, err)
	f.room = room
	return f
}

func (f *fixture) setRate(t *testing.T, rate float64) {
	t.Helper()
	ctx := context.Background()
	guide, err := f.store.Users().GetByID(ctx, "guide-1")
	require.NoError(t, err)
	guide.HourlyRate = rate
	require.NoError(t, f.store.Users().Update(ctx, guide))
}

// quote creates a pending quote for a session on 2025-03-10 at 09:00 UTC.
func (f *fixture) quote(t *testing.T, hours float64) *entity.Quote {
	t.Helper()
	q, err := f.quotes.CreateQuote(context.Background(), "guide-1", CreateQuoteInput{
		RoomID:      f.room.ID,
		SessionDate: "2025-03-10",
		SessionTime: "09:00",
		Hours:       hours,
	})
	require.NoError(t, err)
	return q
}

func (f *fixture) booking(t *testing.T, hours float64) *entity.Booking {
	t.Helper()
	q := f.quote(t, hours)
	b, err := f.quotes.AcceptQuote(context.Background(), "trav-1", q.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) notices(t *testing.T) []string {
	t.Helper()
	messages, _, err := f.chat.ListMessages(context.Background(), "trav-1", f.room.ID, 0, 0)
	require.NoError(t, err)

	var out []string
	for _, m := range messages {
		if n := m.Notice(); n != nil {
			out = append(out, n.Event)
		}
	}
	return out
}
