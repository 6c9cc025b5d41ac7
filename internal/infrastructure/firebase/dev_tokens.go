package firebase

import (
	"context"
	"errors"
	"strings"
)

const DevTokenPrefix = "dev:"

var ErrInvalidDevToken = errors.New("invalid development token")

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// DevTokenVerifier accepts "dev:<uid>" tokens and hands everything else to
// next. It is only installed when ENVIRONMENT=development.
type DevTokenVerifier struct {
	next TokenVerifier
}

func NewDevTokenVerifier(next TokenVerifier) *DevTokenVerifier {
	return &DevTokenVerifier{next: next}
}

func (v *DevTokenVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	if strings.HasPrefix(token, DevTokenPrefix) {
		uid := strings.TrimPrefix(token, DevTokenPrefix)
		if uid == "" {
			return "", ErrInvalidDevToken
		}
		return uid, nil
	}
	if v.next == nil {
		return "", ErrInvalidDevToken
	}
	return v.next.VerifyToken(ctx, token)
}

// DevToken builds a token DevTokenVerifier accepts.
func DevToken(uid string) string {
	return DevTokenPrefix + uid
}
