package service

import (
	"context"
	"io"

	"guidebook/internal/domain/entity"
)

// UploadObject is one chat attachment on its way to storage.
type UploadObject struct {
	Content     io.Reader
	ContentType string
	// FileName is the sender's original name, offered back on download.
	FileName string
	OwnerID  string
	Kind     entity.AttachmentType
}

// FileUploadService stores attachment bytes and returns a URL the room's
// participants can fetch.
type FileUploadService interface {
	UploadFile(ctx context.Context, obj UploadObject) (string, error)
	DeleteFile(ctx context.Context, fileURL string) error
	Close() error
}
