// Package messaging manages two-party conversations, their messages and typing indicators.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
)

const (
	// DefaultTypingTTL is how long a typing mark stays visible after the last keystroke.
	DefaultTypingTTL = 3 * time.Second
	// MaxContentLength bounds message content in characters.
	MaxContentLength = 4000
	// MaxAttachments bounds the attachment URLs of a single message.
	MaxAttachments = 10

	defaultPageSize = 50
	maxPageSize     = 100
)

var (
	ErrMissingUser      = errors.New("both participants are required")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrBlocked          = errors.New("conversation blocked")
	ErrNotParticipant   = errors.New("not a participant of this conversation")
	ErrNotFound         = errors.New("conversation not found")
	ErrUnknownUser      = errors.New("user not found")
	ErrInvalidUser      = errors.New("user id contains reserved characters")
	ErrEmptyMessage     = errors.New("message content or attachments are required")
	ErrMessageTooLong   = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
	ErrInvalidType      = errors.New("unsupported message type")
	ErrTooManyFiles     = fmt.Errorf("a message carries at most %d attachments", MaxAttachments)
)

// BlockChecker reports whether either user blocked the other.
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

// UserLookup resolves user ids to accounts.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// ContentFilter masks banned words in message content.
type ContentFilter interface {
	FilterProfanity(text string) string
}

// Service implements the messaging operations on top of a ConversationRepository.
type Service struct {
	Store     repositories.ConversationRepository
	Users     UserLookup
	Blocks    BlockChecker
	Filter    ContentFilter
	Publisher realtime.Publisher
	TypingTTL time.Duration
	NowFunc   func() time.Time
}

// ConversationView is a conversation together with the participants currently typing.
type ConversationView struct {
	models.Conversation
	TypingUsers []string `json:"typingUsers"`
}

// SendInput describes a message to append.
type SendInput struct {
	Content     string
	Type        string
	Attachments []string
}

// TypingPayload is published on the conversation topic when a participant starts or stops typing.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Typing         bool   `json:"typing"`
}

// ReadPayload is published when a participant reads the counterpart's messages.
type ReadPayload struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	Count          int64  `json:"count"`
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (s Service) typingTTL() time.Duration {
	if s.TypingTTL > 0 {
		return s.TypingTTL
	}
	return DefaultTypingTTL
}

func (s Service) publish(topic, eventType string, payload any, at time.Time) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.Publish(topic, realtime.Event{Type: eventType, Topic: topic, Payload: payload, At: at})
}

func (s Service) checkBlocked(ctx context.Context, a, b string) error {
	if s.Blocks == nil {
		return nil
	}
	blocked, err := s.Blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return err
	}
	if blocked {
		return ErrBlocked
	}
	return nil
}

// GetOrCreateConversation returns the conversation between a and b, creating it on first use.
// The id is derived from the sorted pair so both users resolve the same record.
func (s Service) GetOrCreateConversation(ctx context.Context, a, b string) (models.Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return models.Conversation{}, ErrMissingUser
	}
	if !models.ValidID(a) || !models.ValidID(b) {
		return models.Conversation{}, ErrInvalidUser
	}
	if a == b {
		return models.Conversation{}, ErrSelfConversation
	}
	if err := s.requireUsers(ctx, a, b); err != nil {
		return models.Conversation{}, err
	}
	if err := s.checkBlocked(ctx, a, b); err != nil {
		return models.Conversation{}, err
	}

	participants := []string{a, b}
	sort.Strings(participants)
	now := s.now()
	conv, err := s.Store.UpsertConversation(ctx, models.Conversation{
		ID:           models.ConversationID(a, b),
		Participants: participants,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return models.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}
	return conv, nil
}

// requireUsers fails with ErrUnknownUser when Users is set and any id has no account.
func (s Service) requireUsers(ctx context.Context, ids ...string) error {
	if s.Users == nil {
		return nil
	}
	for _, id := range ids {
		if _, err := s.Users.FindByID(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrUnknownUser
			}
			return fmt.Errorf("load user %s: %w", id, err)
		}
	}
	return nil
}

// load returns the conversation after checking userID participates in it.
func (s Service) load(ctx context.Context, userID, conversationID string) (models.Conversation, error) {
	conv, err := s.Store.FindConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Conversation{}, ErrNotFound
		}
		return models.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.HasParticipant(userID) {
		return models.Conversation{}, ErrNotParticipant
	}
	return conv, nil
}

func counterpart(conv models.Conversation, userID string) string {
	for _, p := range conv.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

func validateInput(in SendInput) (SendInput, error) {
	in.Content = strings.TrimSpace(in.Content)
	attachments := make([]string, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		if a = strings.TrimSpace(a); a != "" {
			attachments = append(attachments, a)
		}
	}
	in.Attachments = attachments

	if in.Content == "" && len(in.Attachments) == 0 {
		return in, ErrEmptyMessage
	}
	if utf8.RuneCountInString(in.Content) > MaxContentLength {
		return in, ErrMessageTooLong
	}
	if len(in.Attachments) > MaxAttachments {
		return in, ErrTooManyFiles
	}
	switch in.Type {
	case "":
		in.Type = models.MessageTypeText
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile, models.MessageTypeLink:
	default:
		return in, ErrInvalidType
	}
	return in, nil
}

// SendMessage appends a message from senderID and publishes it on the conversation topic.
// Banned words in the content are masked.
func (s Service) SendMessage(ctx context.Context, senderID, conversationID string, in SendInput) (models.Message, error) {
	in, err := validateInput(in)
	if err != nil {
		return models.Message{}, err
	}

	ctx, span := logging.StartSpan(ctx, "messaging.send_message")
	defer span.End()

	conv, err := s.load(ctx, senderID, conversationID)
	if err != nil {
		span.Fail(err)
		return models.Message{}, err
	}
	if err := s.checkBlocked(ctx, senderID, counterpart(conv, senderID)); err != nil {
		return models.Message{}, err
	}

	content := in.Content
	if s.Filter != nil {
		content = s.Filter.FilterProfanity(content)
	}
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		Type:           in.Type,
		Attachments:    in.Attachments,
		CreatedAt:      s.now(),
	}
	if err := s.Store.AppendMessage(ctx, msg); err != nil {
		span.Fail(err)
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("append message: %w", err)
	}

	s.publish(realtime.ConversationTopic(conv.ID), realtime.EventMessage, msg, msg.CreatedAt)
	return msg, nil
}

// SetTyping marks or clears userID as typing in the conversation.
func (s Service) SetTyping(ctx context.Context, userID, conversationID string, typing bool) error {
	conv, err := s.load(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	now := s.now()
	var at *time.Time
	if typing {
		at = &now
	}
	if err := s.Store.SetTyping(ctx, conv.ID, userID, at); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set typing: %w", err)
	}
	s.publish(realtime.ConversationTopic(conv.ID), realtime.EventTyping, TypingPayload{
		ConversationID: conv.ID,
		UserID:         userID,
		Typing:         typing,
	}, now)
	return nil
}

// TypingUsers returns the participants whose typing mark is younger than the typing TTL at now.
func (s Service) TypingUsers(conv models.Conversation, now time.Time) []string {
	users := []string{}
	ttl := s.typingTTL()
	for _, p := range conv.Participants {
		at, ok := conv.Typing[p]
		if !ok {
			continue
		}
		if now.Sub(at) < ttl {
			users = append(users, p)
		}
	}
	return users
}

// ListConversations returns the user's conversations, most recently active first.
func (s Service) ListConversations(ctx context.Context, userID string) ([]ConversationView, error) {
	convs, err := s.Store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	now := s.now()
	views := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		views = append(views, ConversationView{Conversation: conv, TypingUsers: s.TypingUsers(conv, now)})
	}
	return views, nil
}

// MessagePage is one newest-first page of a conversation's messages.
type MessagePage struct {
	Messages   []models.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListMessages returns up to limit messages following cursor, newest first. NextCursor is set
// when the page is full.
func (s Service) ListMessages(ctx context.Context, userID, conversationID, cursor string, limit int) (MessagePage, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return MessagePage{}, err
	}
	if _, err := s.load(ctx, userID, conversationID); err != nil {
		return MessagePage{}, err
	}
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}
	msgs, err := s.Store.ListMessages(ctx, conversationID, after, limit)
	if err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	page := MessagePage{Messages: msgs}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	if len(msgs) == limit {
		last := msgs[len(msgs)-1]
		page.NextCursor = EncodeCursor(repositories.MessageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// MarkRead marks the counterpart's messages as read and returns how many changed.
func (s Service) MarkRead(ctx context.Context, userID, conversationID string) (int64, error) {
	if _, err := s.load(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	n, err := s.Store.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	if n > 0 {
		now := s.now()
		s.publish(realtime.ConversationTopic(conversationID), realtime.EventRead, ReadPayload{
			ConversationID: conversationID,
			ReaderID:       userID,
			Count:          n,
		}, now)
	}
	return n, nil
}

// CanSubscribe reports whether userID may follow the realtime topic of conversationID.
func (s Service) CanSubscribe(ctx context.Context, userID, conversationID string) (bool, error) {
	_, err := s.load(ctx, userID, conversationID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotParticipant):
		return false, nil
	}
	return false, err
}
