package repositories

import (
	"context"
	"time"

	"github.com/campusnet/backend/internal/models"
)

// Quota bounds how many connection requests a user may send on a calendar day.
type Quota struct {
	Day   time.Time
	Limit int
}

// ConnectionRepository defines data access for connection requests and blocks.
type ConnectionRepository interface {
	// CreateRequest inserts the request and increments the requester's daily counter atomically.
	// It returns ErrConflict when a request exists in either direction and ErrQuotaExceeded when
	// the counter would pass quota.Limit.
	CreateRequest(ctx context.Context, request models.ConnectionRequest, quota Quota) error
	FindRequest(ctx context.Context, requestID string) (models.ConnectionRequest, error)
	// FindBetween returns the request sent by requesterID to recipientID.
	FindBetween(ctx context.Context, requesterID, recipientID string) (models.ConnectionRequest, error)
	// UpdateRequestStatus moves a request from one status to another. It returns ErrConflict when
	// the stored status no longer equals from.
	UpdateRequestStatus(ctx context.Context, requestID, from, to string, at time.Time) error
	ListAccepted(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
	DailyCount(ctx context.Context, userID string, day time.Time) (int, error)

	CreateBlock(ctx context.Context, block models.Block) error
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	BlockExists(ctx context.Context, blockerID, blockedID string) (bool, error)
	// ListBlockRelations returns every user that blocked userID or was blocked by userID.
	ListBlockRelations(ctx context.Context, userID string) ([]string, error)
}
