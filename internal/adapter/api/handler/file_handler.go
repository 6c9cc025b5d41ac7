package handler

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"guidebook/internal/domain/service"
	"guidebook/internal/usecase"
	"guidebook/pkg/errors"
	"guidebook/pkg/logger"
	"guidebook/pkg/response"
)

const (
	defaultMaxFileSize = 25 << 20
	maxFilesPerUpload  = 10
)

type FileHandler struct {
	chatUseCase *usecase.ChatUseCase
	maxFileSize int64
}

func NewFileHandler(chatUseCase *usecase.ChatUseCase, maxFileSize int64) *FileHandler {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &FileHandler{
		chatUseCase: chatUseCase,
		maxFileSize: maxFileSize,
	}
}

// UploadMedia accepts one or more "files" parts and returns the attachments
// to put on the next media message. An optional "duration" field per file
// (seconds, same order) is carried through for voice and video.
func (h *FileHandler) UploadMedia(c echo.Context) error {
	if err := c.Request().ParseMultipartForm(h.maxFileSize * maxFilesPerUpload); err != nil {
		return response.Error(c, errors.BadRequest("Invalid multipart form", err))
	}
	form := c.Request().MultipartForm
	headers := form.File["files"]
	if len(headers) == 0 {
		return response.Error(c, errors.Validation("At least one file is required", nil))
	}
	if len(headers) > maxFilesPerUpload {
		return response.Error(c, errors.Validation(fmt.Sprintf("At most %d files per upload", maxFilesPerUpload), nil))
	}
	durations := form.Value["duration"]

	files := make([]service.MediaFile, 0, len(headers))
	for i, fh := range headers {
		if fh.Size > h.maxFileSize {
			logger.Warn("File too large: %d bytes (max: %d)", fh.Size, h.maxFileSize)
			return response.Error(c, errors.Validation(fmt.Sprintf("%s exceeds the maximum size (%dMB)", fh.Filename, h.maxFileSize>>20), nil))
		}

		src, err := fh.Open()
		if err != nil {
			logger.Error("Error opening file: %v", err)
			return response.Error(c, errors.Internal("Unable to read file", err))
		}
		defer src.Close()

		files = append(files, service.MediaFile{
			FileName: fh.Filename,
			Size:     fh.Size,
			Duration: durationAt(durations, i),
			Content:  src,
		})
	}

	attachments, err := h.chatUseCase.UploadMedia(c.Request().Context(), getUserIDFromContext(c), files)
	if err != nil {
		return response.Error(c, err)
	}

	logger.Debug("Uploaded %d files for user %s", len(attachments), getUserIDFromContext(c))
	return response.Created(c, attachments)
}

func durationAt(values []string, i int) float64 {
	if i >= len(values) {
		return 0
	}
	d, err := strconv.ParseFloat(values[i], 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
