package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"guidebook/internal/domain/entity"
)

const sniffLen = 3072

type MediaFile struct {
	FileName string
	Size     int64
	Duration float64
	Content  io.Reader
}

// MediaUploader turns local files into attachment descriptors with remote URLs.
type MediaUploader interface {
	Upload(ctx context.Context, userID string, files []MediaFile) ([]entity.Attachment, error)
}

type storageMediaUploader struct {
	files FileUploadService
}

func NewMediaUploader(files FileUploadService) MediaUploader {
	return &storageMediaUploader{files: files}
}

// Upload stores files as one batch: if any file fails, the ones already
// stored are deleted again so no attachment outlives its message.
func (u *storageMediaUploader) Upload(ctx context.Context, userID string, files []MediaFile) ([]entity.Attachment, error) {
	attachments := make([]entity.Attachment, 0, len(files))
	for _, f := range files {
		attachment, err := u.upload(ctx, userID, f)
		if err != nil {
			u.rollback(ctx, userID, attachments)
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	return attachments, nil
}

func (u *storageMediaUploader) upload(ctx context.Context, userID string, f MediaFile) (entity.Attachment, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f.Content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return entity.Attachment{}, fmt.Errorf("failed to read %s: %w", f.FileName, err)
	}
	head = head[:n]

	mime := mimetype.Detect(head)
	kind := ClassifyMIME(mime.String())

	url, err := u.files.UploadFile(ctx, UploadObject{
		Content:     io.MultiReader(bytes.NewReader(head), f.Content),
		ContentType: mime.String(),
		FileName:    f.FileName,
		OwnerID:     userID,
		Kind:        kind,
	})
	if err != nil {
		log.Printf("Failed to upload %s for user %s: %v", f.FileName, userID, err)
		return entity.Attachment{}, err
	}

	attachment := entity.Attachment{
		Type:     kind,
		URL:      url,
		FileName: f.FileName,
		FileSize: f.Size,
	}
	if kind == entity.AttachmentVoice || kind == entity.AttachmentVideo {
		attachment.Duration = f.Duration
	}
	return attachment, nil
}

// rollback runs even when ctx was what failed the batch.
func (u *storageMediaUploader) rollback(ctx context.Context, userID string, stored []entity.Attachment) {
	cleanup := context.WithoutCancel(ctx)
	for _, a := range stored {
		if err := u.files.DeleteFile(cleanup, a.URL); err != nil {
			log.Printf("Failed to remove orphaned upload %s for user %s: %v", a.URL, userID, err)
		}
	}
}

// ClassifyMIME maps a detected MIME type to an attachment kind.
func ClassifyMIME(mime string) entity.AttachmentType {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return entity.AttachmentImage
	case strings.HasPrefix(mime, "video/"):
		return entity.AttachmentVideo
	case strings.HasPrefix(mime, "audio/"):
		return entity.AttachmentVoice
	default:
		return entity.AttachmentFile
	}
}
