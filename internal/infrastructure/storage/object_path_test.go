package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/service"
)

func TestObjectPathGroupsByKindOwnerAndMonth(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	name := objectPath(service.UploadObject{
		ContentType: "audio/mpeg",
		OwnerID:     "guide-7",
		Kind:        entity.AttachmentVoice,
	}, at)

	assert.True(t, strings.HasPrefix(name, "attachments/voice/guide-7/2025/03/"), name)
	assert.True(t, strings.HasSuffix(name, ".mp3"), name)
}

func TestObjectPathSanitizesOwner(t *testing.T) {
	name := objectPath(service.UploadObject{OwnerID: "../../etc", ContentType: "text/plain"}, time.Now())
	assert.True(t, strings.HasPrefix(name, "attachments/file/etc/"), name)
	assert.NotContains(t, name, "..")

	name = objectPath(service.UploadObject{ContentType: "text/plain"}, time.Now())
	assert.True(t, strings.HasPrefix(name, "attachments/file/anonymous/"), name)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".png", extensionFor("image/png", "x.jpeg"))
	assert.Equal(t, ".gpx", extensionFor("application/x-unknown-thing", "route.GPX"))
	assert.Equal(t, ".bin", extensionFor("application/x-unknown-thing", "noext"))
	assert.Equal(t, ".bin", extensionFor("application/x-unknown-thing", "odd.t$r"))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `inline; filename=ticket.pdf`, contentDisposition("ticket.pdf"))
	assert.Equal(t, `inline; filename="my ticket.pdf"`, contentDisposition("C:\\Users\\me\\my ticket.pdf"))
	assert.Equal(t, "inline", contentDisposition(""))
}

func TestObjectNameFromURL(t *testing.T) {
	c := &CloudStorageClient{bucket: "guidebook-media"}

	name, err := objectNameFromURL(c.urlFor("attachments/image/a/2025/03/x.png"), c.urlFor(""))
	require.NoError(t, err)
	assert.Equal(t, "attachments/image/a/2025/03/x.png", name)

	_, err = objectNameFromURL("https://storage.googleapis.com/other-bucket/x.png", c.urlFor(""))
	assert.Error(t, err)
	_, err = objectNameFromURL(c.urlFor(""), c.urlFor(""))
	assert.Error(t, err)
}
