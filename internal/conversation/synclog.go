package conversation

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"guidebook/internal/domain/entity"
)

const tempIDPrefix = "temp-"

type ReconcileResult int

const (
	// Duplicate means the server id was already in the log; nothing changed.
	Duplicate ReconcileResult = iota
	// Replaced means an optimistic entry was swapped in place for the server copy.
	Replaced
	// Appended means the message was new and went to the end of the log.
	Appended
)

func (r ReconcileResult) String() string {
	switch r {
	case Duplicate:
		return "duplicate"
	case Replaced:
		return "replaced"
	case Appended:
		return "appended"
	}
	return "unknown"
}

// Entry is one visible line of the log. Pending entries are optimistic and
// still carry their temporary id.
type Entry struct {
	Message entity.Message
	TempID  string
	Pending bool
}

// Log is the ordered, de-duplicated message log of one room. It keeps append
// order; the only in-place change is an optimistic entry being confirmed.
// A Log is not safe for concurrent use. The Surface owns it from its loop.
type Log struct {
	roomID      string
	matchWindow time.Duration
	entries     []*Entry
	serverIDs   map[string]struct{}
}

func NewLog(roomID string, matchWindow time.Duration) *Log {
	if matchWindow <= 0 {
		matchWindow = DefaultMatchWindow
	}
	return &Log{
		roomID:      roomID,
		matchWindow: matchWindow,
		serverIDs:   make(map[string]struct{}),
	}
}

func NewTempID() string {
	return tempIDPrefix + uuid.New().String()
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// AppendOptimistic adds a locally originated message before the server has
// seen it and returns its temporary id. The message keeps the caller's
// ClientTempID when one is set.
func (l *Log) AppendOptimistic(m entity.Message) string {
	tempID := m.ClientTempID
	if tempID == "" {
		tempID = NewTempID()
	}
	m.ID = tempID
	m.ClientTempID = tempID
	m.RoomID = l.roomID
	l.entries = append(l.entries, &Entry{Message: m, TempID: tempID, Pending: true})
	return tempID
}

// Reconcile merges a server-confirmed message into the log.
func (l *Log) Reconcile(m entity.Message) ReconcileResult {
	if _, ok := l.serverIDs[m.ID]; ok {
		return Duplicate
	}

	if e := l.candidate(m); e != nil {
		e.Message = m
		e.Pending = false
		l.serverIDs[m.ID] = struct{}{}
		return Replaced
	}

	l.entries = append(l.entries, &Entry{Message: m})
	l.serverIDs[m.ID] = struct{}{}
	return Appended
}

// candidate finds the optimistic entry a server message confirms. An echoed
// temp id is authoritative; without one the sender, type, text and a time
// window have to agree. Quote and system messages are server-authored and
// never confirm an optimistic entry.
func (l *Log) candidate(m entity.Message) *Entry {
	if m.Type == entity.MessageTypeQuote || m.Type == entity.MessageTypeSystem {
		return nil
	}
	if m.ClientTempID != "" {
		for _, e := range l.entries {
			if e.Pending && e.TempID == m.ClientTempID {
				return e
			}
		}
		return nil
	}

	for _, e := range l.entries {
		if !e.Pending || e.Message.SenderID != m.SenderID || e.Message.Type != m.Type || e.Message.Text != m.Text {
			continue
		}
		delta := m.CreatedAt.Sub(e.Message.CreatedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < l.matchWindow {
			return e
		}
	}
	return nil
}

// Expire removes an optimistic entry that was never confirmed. It reports
// false when the entry is gone or already confirmed.
func (l *Log) Expire(tempID string) bool {
	return l.remove(tempID)
}

// Discard drops an optimistic entry whose send failed outright.
func (l *Log) Discard(tempID string) bool {
	return l.remove(tempID)
}

func (l *Log) remove(tempID string) bool {
	for i, e := range l.entries {
		if e.Pending && e.TempID == tempID {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Log) Pending(tempID string) bool {
	for _, e := range l.entries {
		if e.Pending && e.TempID == tempID {
			return true
		}
	}
	return false
}

func (l *Log) Len() int {
	return len(l.entries)
}

func (l *Log) Messages() []entity.Message {
	out := make([]entity.Message, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Message
	}
	return out
}

func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}
