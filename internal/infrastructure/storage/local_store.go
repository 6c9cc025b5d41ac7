package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"guidebook/internal/domain/service"
)

// LocalFileStore writes uploads under a directory served at baseURL. The
// development server uses it when no bucket is configured.
type LocalFileStore struct {
	dir     string
	baseURL string
}

func NewLocalFileStore(dir, baseURL string) (*LocalFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %v", err)
	}
	return &LocalFileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalFileStore) UploadFile(ctx context.Context, obj service.UploadObject) (string, error) {
	rel := objectPath(obj, time.Now())

	full := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder: %v", err)
	}

	out, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, obj.Content); err != nil {
		os.Remove(full)
		return "", fmt.Errorf("failed to write file: %v", err)
	}
	return s.baseURL + "/" + rel, nil
}

func (s *LocalFileStore) DeleteFile(ctx context.Context, fileURL string) error {
	rel, err := objectNameFromURL(fileURL, s.baseURL+"/")
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(s.dir, filepath.FromSlash(rel)))
}

func (s *LocalFileStore) Close() error {
	return nil
}
