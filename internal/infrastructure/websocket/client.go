package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"guidebook/internal/domain/entity"
)

var (
	ErrConnectionClosed  = errors.New("websocket connection closed")
	ErrAlreadySubscribed = errors.New("room already subscribed")
)

// Connection is the process-wide real-time channel of one signed-in user.
// Rooms are subscribed explicitly; Close on logout tears everything down.
type Connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*RoomSubscription
	joins  map[string]chan error
	closed bool
	done   chan struct{}
}

// Connect dials url with token as bearer credentials and starts reading.
func Connect(ctx context.Context, url, token string) (*Connection, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Connection{
		conn:  conn,
		subs:  make(map[string]*RoomSubscription),
		joins: make(map[string]chan error),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection stops reading.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Subscribe joins roomID and returns its event stream. The server must
// accept the join before ctx expires.
func (c *Connection) Subscribe(ctx context.Context, roomID string) (*RoomSubscription, error) {
	ack := make(chan error, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	if _, exists := c.subs[roomID]; exists {
		c.mu.Unlock()
		return nil, ErrAlreadySubscribed
	}
	sub := newRoomSubscription(roomID, c)
	c.subs[roomID] = sub
	c.joins[roomID] = ack
	c.mu.Unlock()

	fail := func(err error) (*RoomSubscription, error) {
		c.mu.Lock()
		delete(c.joins, roomID)
		if c.subs[roomID] == sub {
			delete(c.subs, roomID)
			sub.shutdown()
		}
		c.mu.Unlock()
		return nil, err
	}

	if err := c.write(Frame{Type: FrameTypeJoinRoom, RoomID: roomID}); err != nil {
		return fail(err)
	}

	select {
	case err := <-ack:
		if err != nil {
			return fail(err)
		}
		return sub, nil
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-c.done:
		return fail(ErrConnectionClosed)
	}
}

func (c *Connection) unsubscribe(sub *RoomSubscription) error {
	c.mu.Lock()
	if c.subs[sub.RoomID] != sub {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, sub.RoomID)
	sub.shutdown()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil
	}
	return c.write(Frame{Type: FrameTypeLeaveRoom, RoomID: sub.RoomID})
}

// Close ends every subscription and the underlying socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for roomID, sub := range c.subs {
		delete(c.subs, roomID)
		sub.shutdown()
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Connection) write(frame Frame) error {
	raw, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return nil
}

func (c *Connection) readLoop() {
	defer func() {
		close(c.done)
		c.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket: read failed: %v", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("WebSocket: dropping malformed frame: %v", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Connection) dispatch(frame Frame) {
	switch frame.Type {
	case FrameTypeJoined, FrameTypeError:
		var result error
		if frame.Type == FrameTypeError {
			result = fmt.Errorf("join %s refused: %s", frame.RoomID, frame.Error)
		}
		c.mu.Lock()
		ack, ok := c.joins[frame.RoomID]
		delete(c.joins, frame.RoomID)
		c.mu.Unlock()
		if ok {
			ack <- result
		} else if frame.Type == FrameTypeError {
			log.Printf("WebSocket: server error: %s", frame.Error)
		}

	case FrameTypeNewMessage:
		var event entity.NewMessageEvent
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			log.Printf("WebSocket: dropping malformed new_message: %v", err)
			return
		}
		if event.RoomID == "" {
			event.RoomID = frame.RoomID
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[event.RoomID]; ok {
			sub.enqueue(event)
		}
	}
}

// RoomSubscription delivers new_message events for a single room. Events
// queue without bound until the reader drains them, so a slow reader never
// loses messages and never stalls the connection's other rooms.
type RoomSubscription struct {
	RoomID string
	conn   *Connection
	events chan entity.NewMessageEvent

	mu    sync.Mutex
	queue []entity.NewMessageEvent
	wake  chan struct{}
	quit  chan struct{}
	once  sync.Once
}

func newRoomSubscription(roomID string, conn *Connection) *RoomSubscription {
	s := &RoomSubscription{
		RoomID: roomID,
		conn:   conn,
		events: make(chan entity.NewMessageEvent),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *RoomSubscription) enqueue(event entity.NewMessageEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump owns events: it is the only sender and closes it on shutdown.
func (s *RoomSubscription) pump() {
	defer close(s.events)

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.queue = nil
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.quit:
				return
			}
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- next:
		case <-s.quit:
			return
		}
	}
}

func (s *RoomSubscription) shutdown() {
	s.once.Do(func() { close(s.quit) })
}

// Events is closed when the subscription or its connection closes.
func (s *RoomSubscription) Events() <-chan entity.NewMessageEvent {
	return s.events
}

func (s *RoomSubscription) Close() error {
	return s.conn.unsubscribe(s)
}
