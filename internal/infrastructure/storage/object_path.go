package storage

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"guidebook/internal/domain/entity"
	"guidebook/internal/domain/service"
)

// objectPath lays attachments out as
// attachments/<kind>/<owner>/<yyyy>/<mm>/<uuid><ext> so that one owner's
// uploads can be listed or purged by prefix.
func objectPath(obj service.UploadObject, now time.Time) string {
	kind := obj.Kind
	if kind == "" {
		kind = entity.AttachmentFile
	}
	owner := safeSegment(obj.OwnerID)
	if owner == "" {
		owner = "anonymous"
	}
	now = now.UTC()
	name := uuid.New().String() + extensionFor(obj.ContentType, obj.FileName)
	return path.Join("attachments", string(kind), owner, now.Format("2006"), now.Format("01"), name)
}

// extensionFor prefers the extension registered for the sniffed type and
// falls back to the uploaded name's own suffix.
func extensionFor(contentType, fileName string) string {
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if ext := strings.ToLower(path.Ext(fileName)); ext != "" && safeSegment(ext[1:]) == ext[1:] {
		return ext
	}
	return ".bin"
}

// contentDisposition keeps the traveler's original file name on download.
func contentDisposition(fileName string) string {
	fileName = path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if fileName == "." || fileName == "/" {
		return "inline"
	}
	return mime.FormatMediaType("inline", map[string]string{"filename": fileName})
}

func safeSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func objectNameFromURL(fileURL, prefix string) (string, error) {
	if !strings.HasPrefix(fileURL, prefix) {
		return "", fmt.Errorf("file %s is not stored here", fileURL)
	}
	name := strings.TrimPrefix(fileURL, prefix)
	if name == "" || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid object path in %s", fileURL)
	}
	return name, nil
}
