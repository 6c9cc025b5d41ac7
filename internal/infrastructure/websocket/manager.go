package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// RoomAuthorizer decides whether a user may join a room's stream.
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, userID, roomID string) error
}

// Client represents a WebSocket connection client
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	// guarded by Manager.mutex
	rooms  map[string]bool
	closed bool
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		rooms:  make(map[string]bool),
	}
}

// Manager tracks live connections and which rooms each one has joined.
// A user may hold several connections at once.
type Manager struct {
	users      map[string]map[*Client]bool
	rooms      map[string]map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	authorizer RoomAuthorizer
	done       chan struct{}
	mutex      sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		users:      make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// SetAuthorizer installs the room access check used for join requests.
// Without one every join is refused.
func (m *Manager) SetAuthorizer(a RoomAuthorizer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.authorizer = a
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if client.closed {
					m.mutex.Unlock()
					continue
				}
				if m.users[client.UserID] == nil {
					m.users[client.UserID] = make(map[*Client]bool)
				}
				m.users[client.UserID][client] = true
				m.mutex.Unlock()
				log.Printf("Client registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)
				log.Printf("Client unregistered: %s", client.UserID)

			case <-ctx.Done():
				m.closeAll()
				close(m.done)
				return
			}
		}
	}()
}

// Attach registers client with the running loop. It reports false once the
// manager has stopped.
func (m *Manager) Attach(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.dropLocked(client)
}

func (m *Manager) dropLocked(client *Client) {
	if client.closed {
		return
	}
	client.closed = true
	if conns, ok := m.users[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(m.users, client.UserID)
		}
	}
	for roomID := range client.rooms {
		m.leaveLocked(client, roomID)
	}
	close(client.Send)
}

func (m *Manager) closeAll() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, conns := range m.users {
		for client := range conns {
			m.dropLocked(client)
		}
	}
}

func (m *Manager) joinRoom(client *Client, roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if client.closed {
		return
	}
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[*Client]bool)
	}
	m.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (m *Manager) leaveRoom(client *Client, roomID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.leaveLocked(client, roomID)
}

func (m *Manager) leaveLocked(client *Client, roomID string) {
	delete(client.rooms, roomID)
	if members, ok := m.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
}

// SendToUser delivers message to every connection of userID.
func (m *Manager) SendToUser(userID string, message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for client := range m.users[userID] {
		m.deliverLocked(client, message)
	}
}

// SendToRoom delivers message to every connection joined to roomID except
// those belonging to excludeUserID.
func (m *Manager) SendToRoom(roomID string, message []byte, excludeUserID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for client := range m.rooms[roomID] {
		if excludeUserID != "" && client.UserID == excludeUserID {
			continue
		}
		m.deliverLocked(client, message)
	}
}

// RoomMembers reports how many connections are joined to roomID.
func (m *Manager) RoomMembers(roomID string) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[roomID])
}

func (m *Manager) deliverLocked(client *Client, message []byte) {
	select {
	case client.Send <- message:
	default:
		log.Printf("WebSocket: Client %s send channel full, closing connection", client.UserID)
		m.dropLocked(client)
	}
}

// ReadPump reads frames from the connection until it fails, then unregisters.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		select {
		case m.Unregister <- c:
		case <-m.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		m.HandleClientMessage(c, message)
	}
}

// WritePump sends queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("error: %v", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
