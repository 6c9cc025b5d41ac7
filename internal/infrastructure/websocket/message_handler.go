package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"guidebook/internal/domain/entity"
)

// Frame types
const (
	FrameTypePing           = "ping"
	FrameTypePong           = "pong"
	FrameTypeJoinRoom       = "join_room"
	FrameTypeLeaveRoom      = "leave_room"
	FrameTypeJoined         = "joined"
	FrameTypeNewMessage     = "new_message"
	FrameTypeBookingUpdated = "booking_updated"
	FrameTypeError          = "error"
)

// Frame is the envelope of every message on the socket, in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewFrame encodes data into a frame ready to send.
func NewFrame(frameType, roomID string, data interface{}) ([]byte, error) {
	f := Frame{
		Type:      frameType,
		RoomID:    roomID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// HandleClientMessage processes incoming WebSocket messages
func (m *Manager) HandleClientMessage(client *Client, messageBytes []byte) {
	var frame Frame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		log.Printf("WebSocket: Failed to unmarshal message from client %s: %v", client.UserID, err)
		m.sendError(client, "", "Invalid message format")
		return
	}

	switch frame.Type {
	case FrameTypePing:
		m.sendFrame(client, Frame{Type: FrameTypePong})

	case FrameTypeJoinRoom:
		m.handleJoinRoom(client, frame.RoomID)

	case FrameTypeLeaveRoom:
		if frame.RoomID != "" {
			m.leaveRoom(client, frame.RoomID)
			log.Printf("WebSocket: Client %s left room %s", client.UserID, frame.RoomID)
		}

	default:
		log.Printf("WebSocket: Unknown message type '%s' from client %s", frame.Type, client.UserID)
		m.sendError(client, frame.RoomID, "Unknown message type")
	}
}

func (m *Manager) handleJoinRoom(client *Client, roomID string) {
	if roomID == "" {
		m.sendError(client, "", "Missing room_id")
		return
	}

	m.mutex.RLock()
	authorizer := m.authorizer
	m.mutex.RUnlock()

	if authorizer == nil {
		m.sendError(client, roomID, "Room access denied")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := authorizer.AuthorizeRoom(ctx, client.UserID, roomID); err != nil {
		log.Printf("WebSocket: Client %s refused room %s: %v", client.UserID, roomID, err)
		m.sendError(client, roomID, "Room access denied")
		return
	}

	m.joinRoom(client, roomID)
	m.sendFrame(client, Frame{Type: FrameTypeJoined, RoomID: roomID})
	log.Printf("WebSocket: Client %s joined room %s", client.UserID, roomID)
}

// RelayBookingEvent pushes a booking change to everyone watching its room.
func (m *Manager) RelayBookingEvent(ctx context.Context, event entity.BookingEvent) error {
	frame, err := NewFrame(FrameTypeBookingUpdated, event.RoomID, event)
	if err != nil {
		return err
	}
	m.SendToRoom(event.RoomID, frame, "")
	return nil
}

func (m *Manager) sendFrame(client *Client, frame Frame) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	messageBytes, err := json.Marshal(frame)
	if err != nil {
		log.Printf("WebSocket: Failed to marshal message for client %s: %v", client.UserID, err)
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if !client.closed {
		m.deliverLocked(client, messageBytes)
	}
}

func (m *Manager) sendError(client *Client, roomID, errorMsg string) {
	m.sendFrame(client, Frame{Type: FrameTypeError, RoomID: roomID, Error: errorMsg})
}
