package feed

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/campusnet/backend/internal/repositories"
)

// ErrInvalidCursor indicates a cursor that was not produced by EncodeCursor.
var ErrInvalidCursor = errors.New("invalid feed cursor")

// EncodeCursor returns the opaque form of the position after post (createdAt, id).
func EncodeCursor(c repositories.FeedCursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string yields nil.
func DecodeCursor(s string) (*repositories.FeedCursor, error) {
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
	return &repositories.FeedCursor{CreatedAt: createdAt, ID: id}, nil
}
