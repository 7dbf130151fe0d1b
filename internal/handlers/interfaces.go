package handlers

import (
	"context"

	"github.com/campusnet/backend/internal/feed"
	"github.com/campusnet/backend/internal/messaging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/moderation"
	"github.com/campusnet/backend/internal/network"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/showcase"
)

// UserStore captures the persistence operations required by the auth and profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// ConnectionService runs the connection request workflow and blocks.
type ConnectionService interface {
	SendRequest(ctx context.Context, requesterID, recipientID, note string) (models.ConnectionRequest, error)
	AcceptRequest(ctx context.Context, actorID, requestID string) (models.ConnectionRequest, error)
	IgnoreRequest(ctx context.Context, actorID, requestID string) (models.ConnectionRequest, error)
	Status(ctx context.Context, viewerID, otherID string) (network.Status, error)
	ListConnections(ctx context.Context, userID string) ([]string, error)
	ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error)
	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
}

// MessagingService manages conversations and messages.
type MessagingService interface {
	GetOrCreateConversation(ctx context.Context, a, b string) (models.Conversation, error)
	SendMessage(ctx context.Context, senderID, conversationID string, in messaging.SendInput) (models.Message, error)
	SetTyping(ctx context.Context, userID, conversationID string, typing bool) error
	ListConversations(ctx context.Context, userID string) ([]messaging.ConversationView, error)
	ListMessages(ctx context.Context, userID, conversationID, cursor string, limit int) (messaging.MessagePage, error)
	MarkRead(ctx context.Context, userID, conversationID string) (int64, error)
	CanSubscribe(ctx context.Context, userID, conversationID string) (bool, error)
}

// FeedService manages posts, likes and the home feed.
type FeedService interface {
	CreatePost(ctx context.Context, authorID, content, imageURL string) (models.Post, error)
	DeletePost(ctx context.Context, userID, postID string) error
	ToggleLike(ctx context.Context, userID, postID string) (feed.LikeResult, error)
	Feed(ctx context.Context, userID, cursor string, limit int) (feed.Page, error)
}

// ShowcaseService manages projects and learning resources.
type ShowcaseService interface {
	CreateProject(ctx context.Context, ownerID string, in showcase.ProjectInput) (models.Project, error)
	ListProjects(ctx context.Context, limit int) ([]models.Project, error)
	DeleteProject(ctx context.Context, userID, projectID string) error
	RequestToJoin(ctx context.Context, userID, projectID, message string) (models.JoinRequest, error)
	CreateResource(ctx context.Context, userID string, in showcase.ResourceInput) (models.Resource, error)
	ListResources(ctx context.Context, category string) ([]models.Resource, error)
	DeleteResource(ctx context.Context, userID, resourceID string) error
}

// NotificationService exposes a user's notifications.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

// ProfanityChecker reports and masks banned words.
type ProfanityChecker interface {
	ContainsProfanity(text string) moderation.Result
	FilterProfanity(text string) string
}

// Subscriber hands out realtime subscriptions.
type Subscriber interface {
	Subscribe(topic string) (<-chan realtime.Event, func())
}

// ConversationAuthorizer decides who may follow a conversation topic.
type ConversationAuthorizer interface {
	CanSubscribe(ctx context.Context, userID, conversationID string) (bool, error)
}

// Pinger checks a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
