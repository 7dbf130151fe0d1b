// Package realtime fans out domain events to websocket subscribers.
package realtime

import (
	"strings"
	"sync"
	"time"
)

const (
	EventMessage      = "message"
	EventTyping       = "typing"
	EventPost         = "post"
	EventNotification = "notification"
	EventRead         = "read"
)

// FeedTopic carries newly created posts.
const FeedTopic = "feed"

// ConversationTopic names the topic for a conversation.
func ConversationTopic(conversationID string) string {
	return "conversation:" + conversationID
}

// UserTopic names the personal topic of a user.
func UserTopic(userID string) string {
	return "user:" + userID
}

// ParseTopic splits a topic into its kind and id. FeedTopic has an empty id.
func ParseTopic(topic string) (kind, id string, ok bool) {
	if topic == FeedTopic {
		return FeedTopic, "", true
	}
	kind, id, found := strings.Cut(topic, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch kind {
	case "conversation", "user":
		return kind, id, true
	}
	return "", "", false
}

// Event is a single notification pushed to subscribers.
type Event struct {
	Type    string    `json:"type"`
	Topic   string    `json:"topic"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Publisher publishes events to a topic.
type Publisher interface {
	Publish(topic string, event Event)
}

type subscriber struct {
	ch chan Event
}

// Hub is an in-process topic broker. Delivery to each subscriber preserves publish order; a
// subscriber whose buffer is full is dropped and its channel closed.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[*subscriber]struct{}
	buffer int
	closed bool
}

// NewHub returns a Hub whose subscriber channels hold up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{topics: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Publish delivers event to every subscriber of topic without blocking.
func (h *Hub) Publish(topic string, event Event) {
	event.Topic = topic
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- event:
		default:
			h.removeLocked(topic, sub)
		}
	}
}

// Subscribe registers a subscriber on topic. The returned cancel function is idempotent; the
// channel is closed once the subscription ends for any reason.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*subscriber]struct{})
	}
	h.topics[topic][sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.removeLocked(topic, sub)
	}
}

// Subscribers returns the number of live subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for topic, subs := range h.topics {
		for sub := range subs {
			h.removeLocked(topic, sub)
		}
	}
}

func (h *Hub) removeLocked(topic string, sub *subscriber) {
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

var _ Publisher = (*Hub)(nil)
