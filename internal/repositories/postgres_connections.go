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

// PostgresConnectionRepository provides PostgreSQL-backed persistence for connection requests and blocks.
type PostgresConnectionRepository struct {
	pool db.Pool
}

// NewPostgresConnectionRepository constructs a connection repository backed by PostgreSQL.
func NewPostgresConnectionRepository(pool db.Pool) *PostgresConnectionRepository {
	return &PostgresConnectionRepository{pool: pool}
}

// CreateRequest inserts the request and bumps the requester's counter for quota.Day in one transaction.
func (r *PostgresConnectionRepository) CreateRequest(ctx context.Context, request models.ConnectionRequest, quota Quota) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var existing int
		if err := tx.QueryRow(ctx, `
            SELECT count(*)
            FROM connection_requests
            WHERE (requester_id = $1 AND recipient_id = $2)
               OR (requester_id = $2 AND recipient_id = $1)
        `, request.RequesterID, request.RecipientID).Scan(&existing); err != nil {
			return fmt.Errorf("check existing request: %w", err)
		}
		if existing > 0 {
			return ErrConflict
		}

		var count int
		if err := tx.QueryRow(ctx, `
            INSERT INTO request_counters (user_id, day, count)
            VALUES ($1, $2, 1)
            ON CONFLICT (user_id, day) DO UPDATE SET count = request_counters.count + 1
            RETURNING count
        `, request.RequesterID, quota.Day).Scan(&count); err != nil {
			return fmt.Errorf("increment request counter: %w", err)
		}
		if quota.Limit > 0 && count > quota.Limit {
			return ErrQuotaExceeded
		}

		if _, err := tx.Exec(ctx, `
            INSERT INTO connection_requests (id, requester_id, recipient_id, status, note, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)
        `, request.ID, request.RequesterID, request.RecipientID, request.Status, request.Note, request.CreatedAt, request.UpdatedAt); err != nil {
			if mapped := classifyPgError(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("insert connection request: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("create connection request: %w", err)
	}

	return nil
}

const connectionRequestColumns = `id, requester_id, recipient_id, status, note, created_at, updated_at`

func scanConnectionRequest(row pgx.Row) (models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	err := row.Scan(&req.ID, &req.RequesterID, &req.RecipientID, &req.Status, &req.Note, &req.CreatedAt, &req.UpdatedAt)
	return req, err
}

// FindRequest loads a request by id.
func (r *PostgresConnectionRepository) FindRequest(ctx context.Context, requestID string) (models.ConnectionRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	req, err := scanConnectionRequest(conn.QueryRow(ctx, `
        SELECT `+connectionRequestColumns+`
        FROM connection_requests
        WHERE id = $1
    `, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ConnectionRequest{}, ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("select connection request: %w", err)
	}
	return req, nil
}

// FindBetween loads the request sent by requesterID to recipientID.
func (r *PostgresConnectionRepository) FindBetween(ctx context.Context, requesterID, recipientID string) (models.ConnectionRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ConnectionRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	req, err := scanConnectionRequest(conn.QueryRow(ctx, `
        SELECT `+connectionRequestColumns+`
        FROM connection_requests
        WHERE requester_id = $1 AND recipient_id = $2
    `, requesterID, recipientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ConnectionRequest{}, ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("select connection request between users: %w", err)
	}
	return req, nil
}

// UpdateRequestStatus performs a compare-and-set on the request status.
func (r *PostgresConnectionRepository) UpdateRequestStatus(ctx context.Context, requestID, from, to string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE connection_requests
        SET status = $3, updated_at = $4
        WHERE id = $1 AND status = $2
    `, requestID, from, to, at)
	if err != nil {
		return fmt.Errorf("update connection request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM connection_requests WHERE id = $1)`, requestID).Scan(&exists); err != nil {
			return fmt.Errorf("check connection request: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	return nil
}

// ListAccepted returns accepted requests the user takes part in, newest first.
func (r *PostgresConnectionRepository) ListAccepted(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return r.list(ctx, `
        SELECT `+connectionRequestColumns+`
        FROM connection_requests
        WHERE status = 'accepted' AND (requester_id = $1 OR recipient_id = $1)
        ORDER BY updated_at DESC
    `, userID)
}

// ListIncoming returns pending requests addressed to the user, newest first.
func (r *PostgresConnectionRepository) ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	return r.list(ctx, `
        SELECT `+connectionRequestColumns+`
        FROM connection_requests
        WHERE status = 'pending' AND recipient_id = $1
        ORDER BY created_at DESC
    `, userID)
}

func (r *PostgresConnectionRepository) list(ctx context.Context, query string, userID string) ([]models.ConnectionRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query connection requests: %w", err)
	}
	defer rows.Close()

	var requests []models.ConnectionRequest
	for rows.Next() {
		req, err := scanConnectionRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connection requests: %w", err)
	}

	return requests, nil
}

// DailyCount returns how many requests the user sent on day.
func (r *PostgresConnectionRepository) DailyCount(ctx context.Context, userID string, day time.Time) (int, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int
	err = conn.QueryRow(ctx, `
        SELECT count FROM request_counters WHERE user_id = $1 AND day = $2
    `, userID, day).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("select request counter: %w", err)
	}
	return count, nil
}

// CreateBlock stores the block; an existing block is left untouched.
func (r *PostgresConnectionRepository) CreateBlock(ctx context.Context, block models.Block) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO blocks (id, blocker_id, blocked_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id) DO NOTHING
    `, models.BlockID(block.BlockerID, block.BlockedID), block.BlockerID, block.BlockedID, block.CreatedAt)
	if err != nil {
		if mapped := classifyPgError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block.
func (r *PostgresConnectionRepository) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM blocks WHERE id = $1`, models.BlockID(blockerID, blockedID))
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BlockExists reports whether blockerID blocked blockedID.
func (r *PostgresConnectionRepository) BlockExists(ctx context.Context, blockerID, blockedID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM blocks WHERE id = $1)
    `, models.BlockID(blockerID, blockedID)).Scan(&exists); err != nil {
		return false, fmt.Errorf("select block: %w", err)
	}
	return exists, nil
}

// ListBlockRelations returns users on either side of a block with userID.
func (r *PostgresConnectionRepository) ListBlockRelations(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT blocked_id FROM blocks WHERE blocker_id = $1
        UNION
        SELECT blocker_id FROM blocks WHERE blocked_id = $1
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query block relations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan block relation: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block relations: %w", err)
	}
	return ids, nil
}

var _ ConnectionRepository = (*PostgresConnectionRepository)(nil)
