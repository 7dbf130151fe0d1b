package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/campusnet/backend/internal/db"
	"github.com/campusnet/backend/internal/models"
)

// PostgresPostRepository provides PostgreSQL-backed persistence for posts and likes.
type PostgresPostRepository struct {
	pool db.Pool
}

// NewPostgresPostRepository constructs a post repository backed by PostgreSQL.
func NewPostgresPostRepository(pool db.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{pool: pool}
}

// CreatePost stores a new post.
func (r *PostgresPostRepository) CreatePost(ctx context.Context, post models.Post) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO posts (id, author_id, content, image_url, likes_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, post.ID, post.AuthorID, post.Content, post.ImageURL, post.LikesCount, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		if mapped := classifyPgError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// FindPost loads a post by id.
func (r *PostgresPostRepository) FindPost(ctx context.Context, postID string) (models.Post, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Post{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var post models.Post
	err = conn.QueryRow(ctx, `
        SELECT id, author_id, content, image_url, likes_count, created_at, updated_at
        FROM posts
        WHERE id = $1
    `, postID).Scan(&post.ID, &post.AuthorID, &post.Content, &post.ImageURL, &post.LikesCount, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Post{}, ErrNotFound
		}
		return models.Post{}, fmt.Errorf("select post: %w", err)
	}
	return post, nil
}

// DeletePost removes a post together with its likes.
func (r *PostgresPostRepository) DeletePost(ctx context.Context, postID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ToggleLike flips the like record and the post's counter in a single transaction.
func (r *PostgresPostRepository) ToggleLike(ctx context.Context, userID, postID string, at time.Time) (bool, int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		liked bool
		count int
	)
	likeID := models.LikeID(userID, postID)
	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
            SELECT likes_count FROM posts WHERE id = $1 FOR UPDATE
        `, postID).Scan(&count); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock post: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE id = $1`, likeID)
		if err != nil {
			return fmt.Errorf("delete like: %w", err)
		}
		if tag.RowsAffected() > 0 {
			liked = false
			count--
		} else {
			if _, err := tx.Exec(ctx, `
                INSERT INTO likes (id, user_id, post_id, created_at)
                VALUES ($1, $2, $3, $4)
            `, likeID, userID, postID, at); err != nil {
				return fmt.Errorf("insert like: %w", err)
			}
			liked = true
			count++
		}
		if count < 0 {
			count = 0
		}

		if _, err := tx.Exec(ctx, `
            UPDATE posts SET likes_count = $2 WHERE id = $1
        `, postID, count); err != nil {
			return fmt.Errorf("update likes count: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, 0, err
		}
		return false, 0, fmt.Errorf("toggle like: %w", err)
	}
	return liked, count, nil
}

// HasLiked reports whether a like record exists for the pair.
func (r *PostgresPostRepository) HasLiked(ctx context.Context, userID, postID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM likes WHERE id = $1)
    `, models.LikeID(userID, postID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("select like: %w", err)
	}
	return exists, nil
}

// ListFeed returns one keyset page of posts by the given authors.
func (r *PostgresPostRepository) ListFeed(ctx context.Context, authorIDs []string, cursor *FeedCursor, limit int) ([]models.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var rows pgx.Rows
	if cursor == nil {
		rows, err = conn.Query(ctx, `
            SELECT id, author_id, content, image_url, likes_count, created_at, updated_at
            FROM posts
            WHERE author_id = ANY ($1)
            ORDER BY created_at DESC, id DESC
            LIMIT $2
        `, authorIDs, limit)
	} else {
		rows, err = conn.Query(ctx, `
            SELECT id, author_id, content, image_url, likes_count, created_at, updated_at
            FROM posts
            WHERE author_id = ANY ($1) AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC
            LIMIT $4
        `, authorIDs, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		if err := rows.Scan(&post.ID, &post.AuthorID, &post.Content, &post.ImageURL, &post.LikesCount, &post.CreatedAt, &post.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed: %w", err)
	}
	return posts, nil
}

var _ PostRepository = (*PostgresPostRepository)(nil)
