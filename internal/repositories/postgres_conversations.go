package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/campusnet/backend/internal/db"
	"github.com/campusnet/backend/internal/models"
)

// PostgresConversationRepository provides PostgreSQL-backed persistence for conversations and messages.
type PostgresConversationRepository struct {
	pool db.Pool
}

// NewPostgresConversationRepository constructs a conversation repository backed by PostgreSQL.
func NewPostgresConversationRepository(pool db.Pool) *PostgresConversationRepository {
	return &PostgresConversationRepository{pool: pool}
}

const conversationColumns = `id, participants, last_message, typing, created_at, updated_at`

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var (
		conv        models.Conversation
		lastMessage []byte
		typing      []byte
	)
	if err := row.Scan(&conv.ID, &conv.Participants, &lastMessage, &typing, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return models.Conversation{}, err
	}
	if len(lastMessage) > 0 {
		var preview models.MessagePreview
		if err := json.Unmarshal(lastMessage, &preview); err != nil {
			return models.Conversation{}, fmt.Errorf("decode last message: %w", err)
		}
		conv.LastMessage = &preview
	}
	if len(typing) > 0 {
		if err := json.Unmarshal(typing, &conv.Typing); err != nil {
			return models.Conversation{}, fmt.Errorf("decode typing: %w", err)
		}
	}
	return conv, nil
}

// UpsertConversation inserts the conversation unless its id already exists and returns the stored row.
func (r *PostgresConversationRepository) UpsertConversation(ctx context.Context, conversation models.Conversation) (models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO conversations (id, participants, typing, created_at, updated_at)
        VALUES ($1, $2, '{}', $3, $4)
        ON CONFLICT (id) DO NOTHING
    `, conversation.ID, conversation.Participants, conversation.CreatedAt, conversation.UpdatedAt); err != nil {
		return models.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	stored, err := scanConversation(conn.QueryRow(ctx, `
        SELECT `+conversationColumns+` FROM conversations WHERE id = $1
    `, conversation.ID))
	if err != nil {
		return models.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return stored, nil
}

// FindConversation loads a conversation by id.
func (r *PostgresConversationRepository) FindConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Conversation{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	conv, err := scanConversation(conn.QueryRow(ctx, `
        SELECT `+conversationColumns+` FROM conversations WHERE id = $1
    `, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("select conversation: %w", err)
	}
	return conv, nil
}

// ListConversations returns the user's conversations, most recently updated first.
func (r *PostgresConversationRepository) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+conversationColumns+`
        FROM conversations
        WHERE $1 = ANY (participants)
        ORDER BY updated_at DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []models.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// AppendMessage inserts the message and updates the conversation preview in one transaction.
func (r *PostgresConversationRepository) AppendMessage(ctx context.Context, message models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	preview, err := json.Marshal(message.Preview())
	if err != nil {
		return fmt.Errorf("encode message preview: %w", err)
	}
	attachments := message.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	err = crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
            INSERT INTO messages (id, conversation_id, sender_id, content, type, attachments, read, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        `, message.ID, message.ConversationID, message.SenderID, message.Content, message.Type, attachments, message.Read, message.CreatedAt); err != nil {
			if mapped := classifyPgError(err); mapped != nil {
				return mapped
			}
			return fmt.Errorf("insert message: %w", err)
		}

		tag, err := tx.Exec(ctx, `
            UPDATE conversations
            SET last_message = $2, updated_at = $3
            WHERE id = $1
        `, message.ConversationID, preview, message.CreatedAt)
		if err != nil {
			return fmt.Errorf("update conversation preview: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns one newest-first keyset page of a conversation's messages.
func (r *PostgresConversationRepository) ListMessages(ctx context.Context, conversationID string, cursor *MessageCursor, limit int) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var rows pgx.Rows
	if cursor == nil {
		rows, err = conn.Query(ctx, `
            SELECT id, conversation_id, sender_id, content, type, attachments, read, created_at
            FROM messages
            WHERE conversation_id = $1
            ORDER BY created_at DESC, id DESC
            LIMIT $2
        `, conversationID, limit)
	} else {
		rows, err = conn.Query(ctx, `
            SELECT id, conversation_id, sender_id, content, type, attachments, read, created_at
            FROM messages
            WHERE conversation_id = $1 AND (created_at, id) < ($2, $3)
            ORDER BY created_at DESC, id DESC
            LIMIT $4
        `, conversationID, cursor.CreatedAt, cursor.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Type, &msg.Attachments, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkRead flags every unread message not sent by readerID as read.
func (r *PostgresConversationRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE messages
        SET read = true
        WHERE conversation_id = $1 AND sender_id <> $2 AND read = false
    `, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetTyping stores or clears the user's typing mark.
func (r *PostgresConversationRepository) SetTyping(ctx context.Context, conversationID, userID string, at *time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var (
		query = `UPDATE conversations SET typing = typing - $2::TEXT WHERE id = $1`
		args  = []any{conversationID, userID}
	)
	if at != nil {
		query = `UPDATE conversations SET typing = typing || jsonb_build_object($2::TEXT, $3::TEXT) WHERE id = $1`
		args = append(args, at.UTC().Format(time.RFC3339Nano))
	}

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update typing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ ConversationRepository = (*PostgresConversationRepository)(nil)
