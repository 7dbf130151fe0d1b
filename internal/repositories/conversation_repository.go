package repositories

import (
	"context"
	"time"

	"github.com/campusnet/backend/internal/models"
)

// MessageCursor marks the last message of a previously returned page.
type MessageCursor struct {
	CreatedAt time.Time
	ID        string
}

// ConversationRepository defines data access for conversations and their messages.
type ConversationRepository interface {
	// UpsertConversation creates the conversation when its id is unknown and returns the stored record.
	UpsertConversation(ctx context.Context, conversation models.Conversation) (models.Conversation, error)
	FindConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	// AppendMessage stores the message and copies it onto the conversation as its last message.
	AppendMessage(ctx context.Context, message models.Message) error
	// ListMessages returns up to limit messages ordered by (created_at, id) descending, starting
	// after cursor when it is non-nil.
	ListMessages(ctx context.Context, conversationID string, cursor *MessageCursor, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	// SetTyping records the time userID last typed; a nil time clears the mark.
	SetTyping(ctx context.Context, conversationID, userID string, at *time.Time) error
}
