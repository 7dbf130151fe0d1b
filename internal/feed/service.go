// Package feed implements posts, like toggling and the paginated home feed.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
)

const (
	// MaxContentLength bounds post content in characters.
	MaxContentLength = 5000

	DefaultPageSize = 20
	MaxPageSize     = 50
)

var (
	ErrEmptyPost       = errors.New("post content is required")
	ErrPostTooLong     = fmt.Errorf("post content exceeds %d characters", MaxContentLength)
	ErrInvalidImageURL = errors.New("image url must be an absolute http(s) url")
	ErrForbidden       = errors.New("only the author can delete a post")
	ErrNotFound        = errors.New("post not found")
)

// Graph resolves the social graph around a user.
type Graph interface {
	ListConnections(ctx context.Context, userID string) ([]string, error)
	BlockRelations(ctx context.Context, userID string) ([]string, error)
}

// Checker rejects text containing banned words.
type Checker interface {
	Check(text string) error
}

// Notifier receives notifications produced by feed actions.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// Service implements post and feed operations.
type Service struct {
	Store     repositories.PostRepository
	Graph     Graph
	Moderator Checker
	Notifier  Notifier
	Publisher realtime.Publisher
	// PageSize overrides DefaultPageSize for requests that do not ask for a limit.
	PageSize int
	NowFunc  func() time.Time
}

// LikeResult is the state of a post after a like toggle.
type LikeResult struct {
	Liked      bool `json:"liked"`
	LikesCount int  `json:"likesCount"`
}

// Page is one page of the feed.
type Page struct {
	Posts      []models.Post `json:"posts"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func validImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// CreatePost publishes a new post by authorID. Content with banned words is rejected.
func (s Service) CreatePost(ctx context.Context, authorID, content, imageURL string) (models.Post, error) {
	content = strings.TrimSpace(content)
	imageURL = strings.TrimSpace(imageURL)
	if content == "" {
		return models.Post{}, ErrEmptyPost
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return models.Post{}, ErrPostTooLong
	}
	if imageURL != "" && !validImageURL(imageURL) {
		return models.Post{}, ErrInvalidImageURL
	}
	if s.Moderator != nil {
		if err := s.Moderator.Check(content); err != nil {
			return models.Post{}, err
		}
	}

	now := s.now()
	post := models.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		ImageURL:  imageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreatePost(ctx, post); err != nil {
		return models.Post{}, fmt.Errorf("create post: %w", err)
	}
	if s.Publisher != nil {
		s.Publisher.Publish(realtime.FeedTopic, realtime.Event{
			Type:    realtime.EventPost,
			Topic:   realtime.FeedTopic,
			Payload: post,
			At:      now,
		})
	}
	return post, nil
}

// DeletePost removes a post. Only its author may delete it.
func (s Service) DeletePost(ctx context.Context, userID, postID string) error {
	post, err := s.Store.FindPost(ctx, postID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load post: %w", err)
	}
	if post.AuthorID != userID {
		return ErrForbidden
	}
	if err := s.Store.DeletePost(ctx, postID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ToggleLike likes the post when userID has not liked it yet and unlikes it otherwise.
func (s Service) ToggleLike(ctx context.Context, userID, postID string) (LikeResult, error) {
	if !models.ValidID(postID) {
		return LikeResult{}, ErrNotFound
	}

	ctx, span := logging.StartSpan(ctx, "feed.toggle_like")
	defer span.End()

	liked, count, err := s.Store.ToggleLike(ctx, userID, postID, s.now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return LikeResult{}, ErrNotFound
		}
		span.Fail(err)
		return LikeResult{}, fmt.Errorf("toggle like: %w", err)
	}

	if liked && s.Notifier != nil {
		post, err := s.Store.FindPost(ctx, postID)
		if err == nil && post.AuthorID != userID {
			err = s.Notifier.Notify(ctx, models.Notification{
				RecipientID: post.AuthorID,
				Type:        models.NotificationPostLiked,
				ActorID:     userID,
				SubjectID:   postID,
			})
		}
		if err != nil {
			logging.FromContext(ctx).Warn("queue like notification", slog.String("postId", postID), slog.Any("error", err))
		}
	}
	return LikeResult{Liked: liked, LikesCount: count}, nil
}

// Feed returns posts written by userID or their connections, minus anyone in a block relation
// with userID, newest first.
func (s Service) Feed(ctx context.Context, userID, cursor string, limit int) (Page, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	switch {
	case limit <= 0 && s.PageSize > 0:
		limit = min(s.PageSize, MaxPageSize)
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}

	authors, err := s.audience(ctx, userID)
	if err != nil {
		return Page{}, err
	}

	posts, err := s.Store.ListFeed(ctx, authors, after, limit+1)
	if err != nil {
		return Page{}, fmt.Errorf("list feed: %w", err)
	}
	page := Page{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		last := page.Posts[limit-1]
		page.NextCursor = EncodeCursor(repositories.FeedCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Posts == nil {
		page.Posts = []models.Post{}
	}
	return page, nil
}

func (s Service) audience(ctx context.Context, userID string) ([]string, error) {
	if s.Graph == nil {
		return []string{userID}, nil
	}
	var connections, blocked []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		connections, err = s.Graph.ListConnections(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		blocked, err = s.Graph.BlockRelations(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve feed audience: %w", err)
	}

	excluded := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		excluded[id] = struct{}{}
	}
	authors := []string{userID}
	for _, id := range connections {
		if _, skip := excluded[id]; skip || id == userID {
			continue
		}
		authors = append(authors, id)
	}
	return authors, nil
}
