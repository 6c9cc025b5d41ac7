package entity

import (
	"errors"
	"fmt"
	"time"
)

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeMedia  MessageType = "media"
	MessageTypeQuote  MessageType = "quote"
	MessageTypeSystem MessageType = "system"
)

type AttachmentType string

const (
	AttachmentImage AttachmentType = "image"
	AttachmentVideo AttachmentType = "video"
	AttachmentVoice AttachmentType = "voice"
	AttachmentFile  AttachmentType = "file"
)

// System notice events posted into a room when a quote or booking changes.
const (
	EventQuoteAccepted    = "quote_accepted"
	EventQuoteDeclined    = "quote_declined"
	EventQuoteExpired     = "quote_expired"
	EventAdvancePaid      = "advance_paid"
	EventAdvancePending   = "advance_pending"
	EventServiceCompleted = "service_completed"
	EventFullPaid         = "full_paid"
	EventFullPending      = "full_pending"
	EventBookingCancelled = "booking_cancelled"
)

type Attachment struct {
	Type     AttachmentType `json:"type" firestore:"type"`
	URL      string         `json:"url" firestore:"url"`
	FileName string         `json:"file_name" firestore:"fileName"`
	FileSize int64          `json:"file_size" firestore:"fileSize"`
	Duration float64        `json:"duration,omitempty" firestore:"duration,omitempty"` // seconds, voice/video only
}

// QuoteSnapshot is the quote as it looked when its message was posted.
type QuoteSnapshot struct {
	QuoteID     string      `json:"quote_id" firestore:"quoteId"`
	SessionDate time.Time   `json:"session_date" firestore:"sessionDate"`
	Hours       float64     `json:"hours" firestore:"hours"`
	HourlyRate  float64     `json:"hourly_rate" firestore:"hourlyRate"`
	TotalAmount float64     `json:"total_amount" firestore:"totalAmount"`
	Location    *Location   `json:"location,omitempty" firestore:"location,omitempty"`
	Notes       string      `json:"notes,omitempty" firestore:"notes,omitempty"`
	Status      QuoteStatus `json:"status" firestore:"status"`
	ExpiresAt   time.Time   `json:"expires_at" firestore:"expiresAt"`
	CreatedAt   time.Time   `json:"created_at" firestore:"createdAt"`
}

type SystemNotice struct {
	Event     string `json:"event" firestore:"event"`
	QuoteID   string `json:"quote_id,omitempty" firestore:"quoteId,omitempty"`
	BookingID string `json:"booking_id,omitempty" firestore:"bookingId,omitempty"`
}

type MessageMetadata struct {
	Quote  *QuoteSnapshot `json:"quote,omitempty" firestore:"quote,omitempty"`
	System *SystemNotice  `json:"system,omitempty" firestore:"system,omitempty"`
}

// Message is append-only. The only rewrite a message ever sees is the
// client-side swap of its temporary id for the server id.
type Message struct {
	ID           string           `json:"id" firestore:"id"`
	ClientTempID string           `json:"client_temp_id,omitempty" firestore:"clientTempId,omitempty"`
	RoomID       string           `json:"room_id" firestore:"roomId"`
	SenderID     string           `json:"sender_id" firestore:"senderId"`
	SenderRole   ParticipantRole  `json:"sender_role,omitempty" firestore:"senderRole,omitempty"`
	Type         MessageType      `json:"type" firestore:"type"`
	Text         string           `json:"text,omitempty" firestore:"text,omitempty"`
	Attachments  []Attachment     `json:"attachments,omitempty" firestore:"attachments,omitempty"`
	Metadata     *MessageMetadata `json:"metadata,omitempty" firestore:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"created_at" firestore:"createdAt"`
}

var (
	ErrEmptyMessage      = errors.New("message must have text or attachments")
	ErrMissingQuote      = errors.New("quote message requires a quote snapshot")
	ErrMissingNotice     = errors.New("system message requires a notice")
	ErrUnexpectedPayload = errors.New("message carries a payload its type does not allow")
)

// Validate checks that the payload matches the message variant.
func (m *Message) Validate() error {
	switch m.Type {
	case MessageTypeText:
		if m.Text == "" {
			return ErrEmptyMessage
		}
		if len(m.Attachments) > 0 || m.Metadata != nil {
			return ErrUnexpectedPayload
		}
	case MessageTypeMedia:
		if len(m.Attachments) == 0 {
			return ErrEmptyMessage
		}
		for _, a := range m.Attachments {
			if a.URL == "" {
				return fmt.Errorf("attachment %q has no url", a.FileName)
			}
		}
		if m.Metadata != nil {
			return ErrUnexpectedPayload
		}
	case MessageTypeQuote:
		if m.Metadata == nil || m.Metadata.Quote == nil {
			return ErrMissingQuote
		}
	case MessageTypeSystem:
		if m.Metadata == nil || m.Metadata.System == nil {
			return ErrMissingNotice
		}
	default:
		return fmt.Errorf("unknown message type %q", m.Type)
	}
	return nil
}

func (m *Message) QuoteSnapshot() *QuoteSnapshot {
	if m.Metadata == nil {
		return nil
	}
	return m.Metadata.Quote
}

func (m *Message) Notice() *SystemNotice {
	if m.Metadata == nil {
		return nil
	}
	return m.Metadata.System
}

// NewMessageEvent is the new_message payload delivered on the real-time channel.
type NewMessageEvent struct {
	RoomID       string           `json:"roomId"`
	MessageID    string           `json:"messageId"`
	ClientTempID string           `json:"clientTempId,omitempty"`
	SenderID     string           `json:"senderId"`
	SenderRole   ParticipantRole  `json:"senderRole,omitempty"`
	MessageType  MessageType      `json:"messageType"`
	Text         string           `json:"text,omitempty"`
	Attachments  []Attachment     `json:"attachments,omitempty"`
	Metadata     *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func NewMessageEventFrom(m *Message) NewMessageEvent {
	return NewMessageEvent{
		RoomID:       m.RoomID,
		MessageID:    m.ID,
		ClientTempID: m.ClientTempID,
		SenderID:     m.SenderID,
		SenderRole:   m.SenderRole,
		MessageType:  m.Type,
		Text:         m.Text,
		Attachments:  m.Attachments,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
	}
}

func (e NewMessageEvent) ToMessage() Message {
	return Message{
		ID:           e.MessageID,
		ClientTempID: e.ClientTempID,
		RoomID:       e.RoomID,
		SenderID:     e.SenderID,
		SenderRole:   e.SenderRole,
		Type:         e.MessageType,
		Text:         e.Text,
		Attachments:  e.Attachments,
		Metadata:     e.Metadata,
		CreatedAt:    e.CreatedAt,
	}
}
