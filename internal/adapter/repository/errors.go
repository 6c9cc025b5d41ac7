package repository

import (
	stderrors "errors"

	"guidebook/internal/domain/entity"
	"guidebook/pkg/errors"
)

// wrapTxError passes domain rejections and AppErrors through untouched and
// reports everything else as an internal storage failure.
func wrapTxError(message string, err error) error {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr),
		stderrors.Is(err, entity.ErrQuoteNotPending),
		stderrors.Is(err, entity.ErrQuoteExpired),
		stderrors.Is(err, entity.ErrQuoteNotDue):
		return err
	}
	return errors.Internal(message, err)
}
