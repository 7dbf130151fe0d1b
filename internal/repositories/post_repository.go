package repositories

import (
	"context"
	"time"

	"github.com/campusnet/backend/internal/models"
)

// FeedCursor marks the last post of a previously returned feed page.
type FeedCursor struct {
	CreatedAt time.Time
	ID        string
}

// PostRepository exposes data access for posts and likes.
type PostRepository interface {
	CreatePost(ctx context.Context, post models.Post) error
	FindPost(ctx context.Context, postID string) (models.Post, error)
	DeletePost(ctx context.Context, postID string) error
	// ToggleLike flips the like keyed by models.LikeID and adjusts the post's likes count in one
	// transaction. It reports whether the post is liked afterwards and the resulting count.
	ToggleLike(ctx context.Context, userID, postID string, at time.Time) (bool, int, error)
	HasLiked(ctx context.Context, userID, postID string) (bool, error)
	// ListFeed returns posts by the given authors ordered by (created_at, id) descending,
	// starting after cursor when it is non-nil.
	ListFeed(ctx context.Context, authorIDs []string, cursor *FeedCursor, limit int) ([]models.Post, error)
}
