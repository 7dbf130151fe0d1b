package handlers

import (
	"net/http"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/messaging"
)

// ConversationHandler exposes conversations, messages and typing status.
type ConversationHandler struct {
	Messaging MessagingService
}

// Collection handles GET and POST /api/v1/conversations.
func (h ConversationHandler) Collection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if r.Method == http.MethodGet {
		convs, err := h.Messaging.ListConversations(ctx, userID)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"conversations": convs})
		return
	}

	var req startConversationPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid conversation payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	conv, err := h.Messaging.GetOrCreateConversation(ctx, userID, req.ParticipantID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"conversation": conv})
}

// Messages handles GET and POST /api/v1/conversations/{id}/messages.
func (h ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	conversationID := r.PathValue("id")

	if r.Method == http.MethodGet {
		limit, err := queryLimit(r)
		if err != nil {
			respondMessage(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		page, err := h.Messaging.ListMessages(ctx, userID, conversationID, r.URL.Query().Get("cursor"), limit)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, page)
		return
	}

	var req sendMessagePayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid message payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := h.Messaging.SendMessage(ctx, userID, conversationID, messaging.SendInput{
		Content:     req.Content,
		Type:        req.Type,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"message": msg})
}

// Read handles POST /api/v1/conversations/{id}/read.
func (h ConversationHandler) Read(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	n, err := h.Messaging.MarkRead(ctx, userID, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"updated": n})
}

// Typing handles POST /api/v1/conversations/{id}/typing.
func (h ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req typingPayload
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.Messaging.SetTyping(ctx, userID, r.PathValue("id"), req.Typing); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type startConversationPayload struct {
	ParticipantID string `json:"participantId"`
}

type sendMessagePayload struct {
	Content     string   `json:"content"`
	Type        string   `json:"type"`
	Attachments []string `json:"attachments"`
}

type typingPayload struct {
	Typing bool `json:"typing"`
}
