package messaging

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/campusnet/backend/internal/repositories"
)

// ErrInvalidCursor indicates a message cursor that was not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid message cursor")

// EncodeCursor returns the opaque form of the position after a message (createdAt, id).
func EncodeCursor(c repositories.MessageCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string yields nil.
func DecodeCursor(s string) (*repositories.MessageCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &repositories.MessageCursor{CreatedAt: createdAt, ID: id}, nil
}
