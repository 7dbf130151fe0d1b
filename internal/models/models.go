package models

import (
	"sort"
	"strings"
	"time"
)

// User represents an account within the CampusNet platform.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Password    string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

const (
	RequestStatusPending  = "pending"
	RequestStatusAccepted = "accepted"
	RequestStatusIgnored  = "ignored"
)

// ConnectionRequest is the single directional record backing a connection between two users.
type ConnectionRequest struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requesterId"`
	RecipientID string    `json:"recipientId"`
	Status      string    `json:"status"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Counterpart returns the other side of the request relative to userID.
func (r ConnectionRequest) Counterpart(userID string) string {
	if r.RequesterID == userID {
		return r.RecipientID
	}
	return r.RequesterID
}

// Block records that BlockerID no longer wants contact from BlockedID.
type Block struct {
	BlockerID string    `json:"blockerId"`
	BlockedID string    `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

// idReserved lists the characters composite keys and document field paths cannot carry.
const idReserved = "_.$"

// ValidID reports whether id is non-empty and free of the characters used to build composite
// keys, so BlockID, ConversationID and LikeID stay unambiguous.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, idReserved)
}

// BlockID is the composite key of a block record.
func BlockID(blockerID, blockedID string) string {
	return blockerID + "_" + blockedID
}

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeFile  = "file"
	MessageTypeLink  = "link"
)

// Conversation is a two-party message thread.
type Conversation struct {
	ID           string               `json:"id"`
	Participants []string             `json:"participants"`
	LastMessage  *MessagePreview      `json:"lastMessage,omitempty"`
	Typing       map[string]time.Time `json:"-"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// MessagePreview is the denormalized copy of the latest message kept on a conversation.
type MessagePreview struct {
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single entry appended to a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	Type           string    `json:"type"`
	Attachments    []string  `json:"attachments"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Preview builds the denormalized form of the message.
func (m Message) Preview() MessagePreview {
	return MessagePreview{SenderID: m.SenderID, Content: m.Content, Type: m.Type, CreatedAt: m.CreatedAt}
}

// ConversationID derives the deterministic identifier for the conversation between two users.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// Post is an entry in the feed.
type Post struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	LikesCount int       `json:"likesCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Like is a per-user like record on a post.
type Like struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

// LikeID is the composite key that makes like toggling idempotent.
func LikeID(userID, postID string) string {
	return userID + "_" + postID
}

// Project is an entry in the project showcase.
type Project struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Tags        []string  `json:"tags"`
	RepoURL     string    `json:"repoUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	JoinStatusPending  = "pending"
	JoinStatusAccepted = "accepted"
	JoinStatusDeclined = "declined"
)

// JoinRequest asks a project owner to let a user join the project.
type JoinRequest struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	NotificationConnectionRequest  = "connection_request"
	NotificationConnectionAccepted = "connection_accepted"
	NotificationProjectJoinRequest = "project_join_request"
	NotificationPostLiked          = "post_liked"
)

// Notification informs a user about an action taken by another user.
type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	Type        string    `json:"type"`
	ActorID     string    `json:"actorId"`
	SubjectID   string    `json:"subjectId,omitempty"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Resource is an entry in the learning-resources catalog.
type Resource struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
