package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusnet/backend/internal/auth"
	"github.com/campusnet/backend/internal/db"
)

// PostgresSessionStore keeps refresh tokens in the sessions table.
type PostgresSessionStore struct {
	pool db.Pool
}

func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

func (s *PostgresSessionStore) withConn(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()
	return fn(conn)
}

// Save inserts the session, replacing the owner and expiry when the token is already known.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	return s.withConn(ctx, func(conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO sessions (refresh_token, user_id, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (refresh_token)
			DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at`,
			session.RefreshToken, session.UserID, session.ExpiresAt.UTC())
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}

func (s *PostgresSessionStore) Find(ctx context.Context, refreshToken string) (auth.Session, error) {
	var session auth.Session
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		err := conn.QueryRow(ctx,
			`SELECT refresh_token, user_id, expires_at FROM sessions WHERE refresh_token = $1`,
			refreshToken,
		).Scan(&session.RefreshToken, &session.UserID, &session.ExpiresAt)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return auth.ErrSessionNotFound
		case err != nil:
			return fmt.Errorf("find session: %w", err)
		}
		session.ExpiresAt = session.ExpiresAt.UTC()
		return nil
	})
	if err != nil {
		return auth.Session{}, err
	}
	return session, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	return s.withConn(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, refreshToken)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return auth.ErrSessionNotFound
		}
		return nil
	})
}

// PurgeExpired deletes every session whose expiry is before now.
func (s *PostgresSessionStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	err := s.withConn(ctx, func(conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now.UTC())
		if err != nil {
			return fmt.Errorf("purge sessions: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}
