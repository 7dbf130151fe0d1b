package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campusnet/backend/internal/models"
)

type counterKey struct {
	userID string
	day    string
}

// MemoryStore is a mutex-guarded implementation of every repository interface. It backs the
// "memory" store backend for local development and the service tests.
type MemoryStore struct {
	mu sync.RWMutex

	users         map[string]models.User
	requests      map[string]models.ConnectionRequest
	counters      map[counterKey]int
	blocks        map[string]models.Block
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
	posts         map[string]models.Post
	likes         map[string]models.Like
	projects      map[string]models.Project
	joinRequests  map[string]models.JoinRequest
	notifications map[string]models.Notification
	resources     map[string]models.Resource
	terms         []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		requests:      make(map[string]models.ConnectionRequest),
		counters:      make(map[counterKey]int),
		blocks:        make(map[string]models.Block),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
		posts:         make(map[string]models.Post),
		likes:         make(map[string]models.Like),
		projects:      make(map[string]models.Project),
		joinRequests:  make(map[string]models.JoinRequest),
		notifications: make(map[string]models.Notification),
		resources:     make(map[string]models.Resource),
	}
}

func dayKey(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}

// Users

func (s *MemoryStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return user, nil
}

func (s *MemoryStore) Update(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range s.users {
		if id != user.ID && existing.Email == user.Email {
			return ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

// Connections

func (s *MemoryStore) requestBetween(a, b string) (models.ConnectionRequest, bool) {
	for _, req := range s.requests {
		if req.RequesterID == a && req.RecipientID == b {
			return req, true
		}
	}
	return models.ConnectionRequest{}, false
}

func (s *MemoryStore) CreateRequest(_ context.Context, request models.ConnectionRequest, quota Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requestBetween(request.RequesterID, request.RecipientID); ok {
		return ErrConflict
	}
	if _, ok := s.requestBetween(request.RecipientID, request.RequesterID); ok {
		return ErrConflict
	}

	key := counterKey{userID: request.RequesterID, day: dayKey(quota.Day)}
	if quota.Limit > 0 && s.counters[key]+1 > quota.Limit {
		return ErrQuotaExceeded
	}
	s.counters[key]++
	s.requests[request.ID] = request
	return nil
}

func (s *MemoryStore) FindRequest(_ context.Context, requestID string) (models.ConnectionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return models.ConnectionRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) FindBetween(_ context.Context, requesterID, recipientID string) (models.ConnectionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requestBetween(requesterID, recipientID)
	if !ok {
		return models.ConnectionRequest{}, ErrNotFound
	}
	return req, nil
}

func (s *MemoryStore) UpdateRequestStatus(_ context.Context, requestID, from, to string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return ErrNotFound
	}
	if req.Status != from {
		return ErrConflict
	}
	req.Status = to
	req.UpdatedAt = at
	s.requests[requestID] = req
	return nil
}

func (s *MemoryStore) ListAccepted(_ context.Context, userID string) ([]models.ConnectionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConnectionRequest
	for _, req := range s.requests {
		if req.Status == models.RequestStatusAccepted && (req.RequesterID == userID || req.RecipientID == userID) {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) ListIncoming(_ context.Context, userID string) ([]models.ConnectionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConnectionRequest
	for _, req := range s.requests {
		if req.Status == models.RequestStatusPending && req.RecipientID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DailyCount(_ context.Context, userID string, day time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[counterKey{userID: userID, day: dayKey(day)}], nil
}

func (s *MemoryStore) CreateBlock(_ context.Context, block models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := models.BlockID(block.BlockerID, block.BlockedID)
	if _, ok := s.blocks[id]; !ok {
		s.blocks[id] = block
	}
	return nil
}

func (s *MemoryStore) DeleteBlock(_ context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := models.BlockID(blockerID, blockedID)
	if _, ok := s.blocks[id]; !ok {
		return ErrNotFound
	}
	delete(s.blocks, id)
	return nil
}

func (s *MemoryStore) BlockExists(_ context.Context, blockerID, blockedID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[models.BlockID(blockerID, blockedID)]
	return ok, nil
}

func (s *MemoryStore) ListBlockRelations(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, b := range s.blocks {
		var other string
		switch userID {
		case b.BlockerID:
			other = b.BlockedID
		case b.BlockedID:
			other = b.BlockerID
		default:
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, other)
	}
	sort.Strings(out)
	return out, nil
}

// Conversations

func copyConversation(c models.Conversation) models.Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	if c.LastMessage != nil {
		preview := *c.LastMessage
		c.LastMessage = &preview
	}
	if c.Typing != nil {
		typing := make(map[string]time.Time, len(c.Typing))
		for k, v := range c.Typing {
			typing[k] = v
		}
		c.Typing = typing
	}
	return c
}

func (s *MemoryStore) UpsertConversation(_ context.Context, conversation models.Conversation) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[conversation.ID]; ok {
		return copyConversation(existing), nil
	}
	s.conversations[conversation.ID] = copyConversation(conversation)
	return copyConversation(conversation), nil
}

func (s *MemoryStore) FindConversation(_ context.Context, conversationID string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, copyConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, message models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[message.ConversationID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range s.messages[message.ConversationID] {
		if existing.ID == message.ID {
			return ErrConflict
		}
	}
	message.Attachments = append([]string(nil), message.Attachments...)
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	preview := message.Preview()
	conv.LastMessage = &preview
	conv.UpdatedAt = message.CreatedAt
	s.conversations[conv.ID] = conv
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string, cursor *MessageCursor, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, msg := range s.messages[conversationID] {
		if cursor != nil && !messageBefore(msg, cursor.CreatedAt, cursor.ID) {
			continue
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return messageBefore(out[j], out[i].CreatedAt, out[i].ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// messageBefore reports whether msg sorts after (createdAt, id) in newest-first order.
func messageBefore(msg models.Message, createdAt time.Time, id string) bool {
	if msg.CreatedAt.Equal(createdAt) {
		return msg.ID < id
	}
	return msg.CreatedAt.Before(createdAt)
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].Read {
			msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SetTyping(_ context.Context, conversationID, userID string, at *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if conv.Typing == nil {
		conv.Typing = make(map[string]time.Time)
	}
	if at == nil {
		delete(conv.Typing, userID)
	} else {
		conv.Typing[userID] = at.UTC()
	}
	s.conversations[conversationID] = conv
	return nil
}

// Posts

func (s *MemoryStore) CreatePost(_ context.Context, post models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; ok {
		return ErrConflict
	}
	s.posts[post.ID] = post
	return nil
}

func (s *MemoryStore) FindPost(_ context.Context, postID string) (models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[postID]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return post, nil
}

func (s *MemoryStore) DeletePost(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[postID]; !ok {
		return ErrNotFound
	}
	delete(s.posts, postID)
	for id, like := range s.likes {
		if like.PostID == postID {
			delete(s.likes, id)
		}
	}
	return nil
}

func (s *MemoryStore) ToggleLike(_ context.Context, userID, postID string, at time.Time) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[postID]
	if !ok {
		return false, 0, ErrNotFound
	}
	id := models.LikeID(userID, postID)
	liked := false
	if _, exists := s.likes[id]; exists {
		delete(s.likes, id)
		if post.LikesCount > 0 {
			post.LikesCount--
		}
	} else {
		s.likes[id] = models.Like{ID: id, UserID: userID, PostID: postID, CreatedAt: at}
		post.LikesCount++
		liked = true
	}
	s.posts[postID] = post
	return liked, post.LikesCount, nil
}

func (s *MemoryStore) HasLiked(_ context.Context, userID, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.likes[models.LikeID(userID, postID)]
	return ok, nil
}

func (s *MemoryStore) ListFeed(_ context.Context, authorIDs []string, cursor *FeedCursor, limit int) ([]models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	authors := make(map[string]struct{}, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = struct{}{}
	}
	var out []models.Post
	for _, post := range s.posts {
		if _, ok := authors[post.AuthorID]; !ok {
			continue
		}
		if cursor != nil && !postBefore(post, cursor.CreatedAt, cursor.ID) {
			continue
		}
		out = append(out, post)
	}
	sort.Slice(out, func(i, j int) bool { return postBefore(out[j], out[i].CreatedAt, out[i].ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// postBefore reports whether post sorts after (createdAt, id) in descending feed order.
func postBefore(post models.Post, createdAt time.Time, id string) bool {
	if post.CreatedAt.Equal(createdAt) {
		return post.ID < id
	}
	return post.CreatedAt.Before(createdAt)
}

// Showcase

func (s *MemoryStore) CreateProject(_ context.Context, project models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[project.ID]; ok {
		return ErrConflict
	}
	s.projects[project.ID] = project
	return nil
}

func (s *MemoryStore) FindProject(_ context.Context, projectID string) (models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	project, ok := s.projects[projectID]
	if !ok {
		return models.Project{}, ErrNotFound
	}
	return project, nil
}

func (s *MemoryStore) ListProjects(_ context.Context, limit int) ([]models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Project, 0, len(s.projects))
	for _, project := range s.projects {
		out = append(out, project)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteProject(_ context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		return ErrNotFound
	}
	delete(s.projects, projectID)
	for id, req := range s.joinRequests {
		if req.ProjectID == projectID {
			delete(s.joinRequests, id)
		}
	}
	return nil
}

func (s *MemoryStore) CreateJoinRequest(_ context.Context, request models.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[request.ProjectID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.joinRequests {
		if existing.ProjectID == request.ProjectID && existing.UserID == request.UserID {
			return ErrConflict
		}
	}
	s.joinRequests[request.ID] = request
	return nil
}

func (s *MemoryStore) CreateResource(_ context.Context, resource models.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[resource.ID]; ok {
		return ErrConflict
	}
	s.resources[resource.ID] = resource
	return nil
}

func (s *MemoryStore) FindResource(_ context.Context, resourceID string) (models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.resources[resourceID]
	if !ok {
		return models.Resource{}, ErrNotFound
	}
	return res, nil
}

func (s *MemoryStore) ListResources(_ context.Context, category string) ([]models.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Resource
	for _, res := range s.resources {
		if category == "" || res.Category == category {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title == out[j].Title {
			return out[i].ID < out[j].ID
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *MemoryStore) DeleteResource(_ context.Context, resourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[resourceID]; !ok {
		return ErrNotFound
	}
	delete(s.resources, resourceID)
	return nil
}

func (s *MemoryStore) CreateNotification(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return ErrConflict
	}
	s.notifications[n.ID] = n
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.RecipientID != userID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[notificationID]
	if !ok || n.RecipientID != userID {
		return ErrNotFound
	}
	n.Read = true
	s.notifications[notificationID] = n
	return nil
}

// SetTerms replaces the moderation terms returned by ListTerms.
func (s *MemoryStore) SetTerms(terms []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terms = append([]string(nil), terms...)
}

func (s *MemoryStore) ListTerms(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.terms...), nil
}

var (
	_ UserRepository           = (*MemoryStore)(nil)
	_ ConnectionRepository     = (*MemoryStore)(nil)
	_ ConversationRepository   = (*MemoryStore)(nil)
	_ PostRepository           = (*MemoryStore)(nil)
	_ ProjectRepository        = (*MemoryStore)(nil)
	_ ResourceRepository       = (*MemoryStore)(nil)
	_ NotificationRepository   = (*MemoryStore)(nil)
	_ ModerationTermRepository = (*MemoryStore)(nil)
)
