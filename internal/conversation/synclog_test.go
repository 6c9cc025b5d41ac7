package conversation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/domain/entity"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func text(sender, body string, at time.Time) entity.Message {
	return entity.Message{SenderID: sender, Type: entity.MessageTypeText, Text: body, CreatedAt: at}
}

func serverCopy(m entity.Message, id string, at time.Time) entity.Message {
	m.ID = id
	m.CreatedAt = at
	return m
}

func TestLogEchoReplacesOptimisticInPlace(t *testing.T) {
	log := NewLog("room-1", 0)
	log.Reconcile(serverCopy(text("guide-1", "hello", t0), "m-1", t0))
	tempID := log.AppendOptimistic(text("trav-1", "hi there", t0.Add(time.Second)))
	log.Reconcile(serverCopy(text("guide-1", "are you there?", t0), "m-2", t0.Add(2*time.Second)))

	echo := serverCopy(text("trav-1", "hi there", t0), "m-3", t0.Add(1500*time.Millisecond))
	echo.ClientTempID = tempID
	assert.Equal(t, Replaced, log.Reconcile(echo))

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "m-3", entries[1].Message.ID)
	assert.False(t, entries[1].Pending)
	assert.False(t, log.Pending(tempID))

	assert.Equal(t, Duplicate, log.Reconcile(echo), "a second delivery of the same id is dropped")
	assert.Equal(t, 3, log.Len())
}

func TestLogHeuristicMatchWithoutTempID(t *testing.T) {
	log := NewLog("room-1", 5*time.Second)
	log.AppendOptimistic(text("trav-1", "see you at 9", t0))

	other := serverCopy(text("guide-1", "see you at 9", t0), "m-1", t0.Add(time.Second))
	assert.Equal(t, Appended, log.Reconcile(other), "same text from the other participant is a new message")

	late := serverCopy(text("trav-1", "see you at 9", t0), "m-2", t0.Add(6*time.Second))
	assert.Equal(t, Appended, log.Reconcile(late), "outside the window nothing matches")

	echo := serverCopy(text("trav-1", "see you at 9", t0), "m-3", t0.Add(4*time.Second))
	assert.Equal(t, Replaced, log.Reconcile(echo))

	ids := []string{}
	for _, m := range log.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m-3", "m-1", "m-2"}, ids)
}

func TestLogUnknownTempIDIsAppended(t *testing.T) {
	log := NewLog("room-1", 0)
	tempID := log.AppendOptimistic(text("trav-1", "ping", t0))
	require.True(t, log.Expire(tempID))

	echo := serverCopy(text("trav-1", "ping", t0), "m-1", t0.Add(4*time.Second))
	echo.ClientTempID = tempID
	assert.Equal(t, Appended, log.Reconcile(echo), "a late echo still shows the message once")
	assert.Equal(t, 1, log.Len())
}

func TestLogIdenticalRapidMessagesMatchOneEach(t *testing.T) {
	log := NewLog("room-1", 0)
	first := log.AppendOptimistic(text("trav-1", "ok", t0))
	second := log.AppendOptimistic(text("trav-1", "ok", t0.Add(100*time.Millisecond)))

	e2 := serverCopy(text("trav-1", "ok", t0), "m-2", t0.Add(time.Second))
	e2.ClientTempID = second
	e1 := serverCopy(text("trav-1", "ok", t0), "m-1", t0.Add(time.Second))
	e1.ClientTempID = first

	assert.Equal(t, Replaced, log.Reconcile(e2))
	assert.Equal(t, Replaced, log.Reconcile(e1))
	msgs := log.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m-1", msgs[0].ID)
	assert.Equal(t, "m-2", msgs[1].ID)
}

func TestLogExpireAndDiscard(t *testing.T) {
	log := NewLog("room-1", 0)
	a := log.AppendOptimistic(text("trav-1", "a", t0))
	b := log.AppendOptimistic(text("trav-1", "b", t0))
	assert.True(t, IsTempID(a))

	assert.True(t, log.Discard(b))
	assert.False(t, log.Discard(b))

	echo := serverCopy(text("trav-1", "a", t0), "m-1", t0)
	echo.ClientTempID = a
	log.Reconcile(echo)
	assert.False(t, log.Expire(a), "confirmed entries never expire")
	assert.Equal(t, 1, log.Len())
}

func TestLogOptimisticCarriesRoomAndTempID(t *testing.T) {
	log := NewLog("room-9", 0)
	m := text("trav-1", "hello", t0)
	m.ClientTempID = "temp-fixed"
	tempID := log.AppendOptimistic(m)

	assert.Equal(t, "temp-fixed", tempID)
	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "room-9", entries[0].Message.RoomID)
	assert.Equal(t, "temp-fixed", entries[0].Message.ID)
	assert.True(t, entries[0].Pending)
}

func TestLogQuoteNeverConfirmsPendingMedia(t *testing.T) {
	log := NewLog("room-1", 5*time.Second)
	media := entity.Message{
		SenderID:    "guide-1",
		Type:        entity.MessageTypeMedia,
		Attachments: []entity.Attachment{{Type: entity.AttachmentImage, FileName: "pier.jpg"}},
		CreatedAt:   t0,
	}
	tempID := log.AppendOptimistic(media)

	quote := entity.Message{
		ID:        "m-1",
		SenderID:  "guide-1",
		Type:      entity.MessageTypeQuote,
		Metadata:  &entity.MessageMetadata{Quote: &entity.QuoteSnapshot{QuoteID: "q-1"}},
		CreatedAt: t0.Add(time.Second),
	}
	assert.Equal(t, Appended, log.Reconcile(quote))
	assert.True(t, log.Pending(tempID), "the media placeholder is still waiting for its own echo")

	echo := serverCopy(media, "m-2", t0.Add(2*time.Second))
	echo.Attachments = []entity.Attachment{{Type: entity.AttachmentImage, FileName: "pier.jpg", URL: "https://files.test/pier.jpg"}}
	assert.Equal(t, Replaced, log.Reconcile(echo))

	messages := log.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "m-2", messages[0].ID, "media keeps the position it was sent at")
	assert.Equal(t, "m-1", messages[1].ID)
}

func TestLogHeuristicRequiresSameType(t *testing.T) {
	log := NewLog("room-1", 5*time.Second)
	tempID := log.AppendOptimistic(entity.Message{SenderID: "guide-1", Type: entity.MessageTypeMedia, CreatedAt: t0})

	system := entity.Message{
		ID:        "m-1",
		SenderID:  "guide-1",
		Type:      entity.MessageTypeSystem,
		Metadata:  &entity.MessageMetadata{System: &entity.SystemNotice{Event: entity.EventQuoteDeclined}},
		CreatedAt: t0,
	}
	assert.Equal(t, Appended, log.Reconcile(system))
	assert.True(t, log.Pending(tempID))
}
