package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/realtime"
)

// RealtimeHandler streams hub events over websockets.
type RealtimeHandler struct {
	Hub           Subscriber
	Conversations ConversationAuthorizer
	Upgrader      *websocket.Upgrader
	PingInterval  time.Duration
}

// Stream handles GET /api/v1/realtime?topic=... . Without a topic the caller's own user topic is
// streamed.
func (h RealtimeHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	topic := r.URL.Query().Get("topic")
	if topic == "" {
		topic = realtime.UserTopic(userID)
	}
	kind, id, valid := realtime.ParseTopic(topic)
	if !valid {
		respondMessage(ctx, w, http.StatusBadRequest, "unknown topic")
		return
	}

	switch kind {
	case "user":
		if id != userID {
			respondMessage(ctx, w, http.StatusForbidden, "cannot subscribe to another user's topic")
			return
		}
	case "conversation":
		allowed, err := h.Conversations.CanSubscribe(ctx, userID, id)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		if !allowed {
			respondMessage(ctx, w, http.StatusForbidden, "not a participant of this conversation")
			return
		}
	}

	upgrader := h.Upgrader
	if upgrader == nil {
		upgrader = realtime.NewUpgrader(nil)
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.Hub.Subscribe(topic)
	defer cancel()

	logger.Info("realtime subscription opened", "topic", topic)
	err = realtime.Stream(ctx, conn, events, h.PingInterval)
	switch {
	case err == nil, errors.Is(err, realtime.ErrSubscriptionClosed):
		logger.Info("realtime subscription closed", "topic", topic, "reason", err)
	case websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure):
		logger.Info("realtime client disconnected", "topic", topic)
	default:
		logger.Warn("realtime stream ended", "topic", topic, "error", err)
	}
}
