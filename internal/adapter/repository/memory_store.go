package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/repository"
	"guidebook/pkg/errors"
)

// MemoryStore keeps every collection in process. It backs tests and the
// development server when no Firebase project is configured. Records are
// copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]entity.User
	rooms    map[string]entity.ChatRoom
	messages map[string][]entity.Message
	quotes   map[string]entity.Quote
	bookings map[string]entity.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]entity.User),
		rooms:    make(map[string]entity.ChatRoom),
		messages: make(map[string][]entity.Message),
		quotes:   make(map[string]entity.Quote),
		bookings: make(map[string]entity.Booking),
	}
}

func (s *MemoryStore) Users() repository.UserRepository       { return memoryUsers{s} }
func (s *MemoryStore) Chats() repository.ChatRepository       { return memoryChats{s} }
func (s *MemoryStore) Quotes() repository.QuoteRepository     { return memoryQuotes{s} }
func (s *MemoryStore) Bookings() repository.BookingRepository { return memoryBookings{s} }

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) Create(_ context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	r.s.users[user.ID] = *user
	return nil
}

func (r memoryUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return &user, nil
}

func (r memoryUsers) Update(_ context.Context, user *entity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; !ok {
		return errors.NotFound("User", nil)
	}
	user.UpdatedAt = time.Now()
	r.s.users[user.ID] = *user
	return nil
}

type memoryChats struct{ s *MemoryStore }

func (r memoryChats) Create(_ context.Context, room *entity.ChatRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now
	room.ParticipantIDs = participantIDs(room.Participants)
	r.s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (r memoryChats) GetByID(_ context.Context, id string) (*entity.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, errors.NotFound("Room", nil)
	}
	out := copyRoom(&room)
	return &out, nil
}

func (r memoryChats) FindByParticipants(_ context.Context, travellerID, guideID string) (*entity.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, room := range r.s.rooms {
		if room.HasRole(travellerID, entity.RoleTraveller) && room.HasRole(guideID, entity.RoleGuide) {
			out := copyRoom(&room)
			return &out, nil
		}
	}
	return nil, errors.NotFound("Room", nil)
}

func (r memoryChats) ListByUserID(_ context.Context, userID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched []*entity.ChatRoom
	for _, room := range r.s.rooms {
		if _, ok := room.Participant(userID); ok {
			out := copyRoom(&room)
			matched = append(matched, &out)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastMessageAt.After(matched[j].LastMessageAt)
	})

	start, end := pageBounds(len(matched), limit, offset)
	return matched[start:end], int64(len(matched)), nil
}

func (r memoryChats) Update(_ context.Context, room *entity.ChatRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[room.ID]; !ok {
		return errors.NotFound("Room", nil)
	}
	room.UpdatedAt = time.Now()
	room.ParticipantIDs = participantIDs(room.Participants)
	r.s.rooms[room.ID] = copyRoom(room)
	return nil
}

func (r memoryChats) CreateMessage(_ context.Context, message *entity.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	r.s.messages[message.RoomID] = append(r.s.messages[message.RoomID], *message)
	return nil
}

func (r memoryChats) GetMessagesByRoom(_ context.Context, roomID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.messages[roomID]
	start, end := pageBounds(len(all), limit, offset)

	messages := make([]*entity.Message, 0, end-start)
	for i := start; i < end; i++ {
		m := all[i]
		messages = append(messages, &m)
	}
	return messages, int64(len(all)), nil
}

type memoryQuotes struct{ s *MemoryStore }

func (r memoryQuotes) Create(_ context.Context, quote *entity.Quote) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if quote.ID == "" {
		quote.ID = uuid.New().String()
	}
	if _, exists := r.s.quotes[quote.ID]; exists {
		return errors.Internal("Failed to create quote", nil)
	}
	r.s.quotes[quote.ID] = *quote
	return nil
}

func (r memoryQuotes) GetByID(_ context.Context, id string) (*entity.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	quote, ok := r.s.quotes[id]
	if !ok {
		return nil, errors.NotFound("Quote", nil)
	}
	return &quote, nil
}

func (r memoryQuotes) ListByRoom(_ context.Context, roomID string) ([]*entity.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var quotes []*entity.Quote
	for _, q := range r.s.quotes {
		if q.RoomID == roomID {
			q := q
			quotes = append(quotes, &q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].CreatedAt.Before(quotes[j].CreatedAt) })
	return quotes, nil
}

func (r memoryQuotes) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*entity.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var quotes []*entity.Quote
	for _, q := range r.s.quotes {
		if q.Status == entity.QuoteStatusPending && !now.Before(q.ExpiresAt) {
			q := q
			quotes = append(quotes, &q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].ExpiresAt.Before(quotes[j].ExpiresAt) })
	if limit > 0 && len(quotes) > limit {
		quotes = quotes[:limit]
	}
	return quotes, nil
}

func (r memoryQuotes) Transition(_ context.Context, t entity.QuoteTransition) (*entity.Quote, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	quote, ok := r.s.quotes[t.QuoteID]
	if !ok {
		return nil, errors.NotFound("Quote", nil)
	}
	if err := t.Apply(&quote); err != nil {
		return nil, err
	}
	if t.Booking != nil {
		if _, exists := r.s.bookings[t.Booking.ID]; exists {
			return nil, errors.Internal("Failed to update quote", nil)
		}
		r.s.bookings[t.Booking.ID] = *t.Booking
	}
	r.s.quotes[quote.ID] = quote
	return &quote, nil
}

type memoryBookings struct{ s *MemoryStore }

func (r memoryBookings) GetByID(_ context.Context, id string) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	booking, ok := r.s.bookings[id]
	if !ok {
		return nil, errors.NotFound("Booking", nil)
	}
	return &booking, nil
}

func (r memoryBookings) GetByRoomID(_ context.Context, roomID string) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *entity.Booking
	for _, b := range r.s.bookings {
		if b.RoomID != roomID {
			continue
		}
		if latest == nil || b.CreatedAt.After(latest.CreatedAt) {
			b := b
			latest = &b
		}
	}
	if latest == nil {
		return nil, errors.NotFound("Booking", nil)
	}
	return latest, nil
}

func (r memoryBookings) Update(_ context.Context, id string, apply entity.BookingUpdate) (*entity.Booking, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	booking, ok := r.s.bookings[id]
	if !ok {
		return nil, errors.NotFound("Booking", nil)
	}
	if err := apply(&booking); err != nil {
		return nil, err
	}
	r.s.bookings[id] = booking
	return &booking, nil
}

func copyRoom(room *entity.ChatRoom) entity.ChatRoom {
	out := *room
	out.Participants = append([]entity.Participant(nil), room.Participants...)
	out.ParticipantIDs = append([]string(nil), room.ParticipantIDs...)
	return out
}
