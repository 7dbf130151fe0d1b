package handlers

import (
	"net/http"

	"github.com/campusnet/backend/internal/logging"
)

// ConnectionHandler exposes the connection request workflow and blocking.
type ConnectionHandler struct {
	Network ConnectionService
	Limiter RateLimiter
}

// Requests handles GET and POST /api/v1/connections/requests.
func (h ConnectionHandler) Requests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listIncoming(w, r)
	case http.MethodPost:
		h.send(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h ConnectionHandler) listIncoming(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	requests, err := h.Network.ListIncoming(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"requests": requests})
}

func (h ConnectionHandler) send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if throttled(w, r, h.Limiter, "connections", "too many requests") {
		return
	}

	var req sendRequestPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid connection request payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.Network.SendRequest(ctx, userID, req.RecipientID, req.Note)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	logger.Info("connection request sent", "requestId", created.ID, "recipientId", created.RecipientID)
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"request": created})
}

// Respond handles POST /api/v1/connections/requests/{id}/{action} where action is accept or ignore.
func (h ConnectionHandler) Respond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	requestID := r.PathValue("id")

	respond := h.Network.AcceptRequest
	switch r.PathValue("action") {
	case "accept":
	case "ignore":
		respond = h.Network.IgnoreRequest
	default:
		respondMessage(ctx, w, http.StatusNotFound, "unknown action")
		return
	}

	updated, err := respond(ctx, userID, requestID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"request": updated})
}

// List handles GET /api/v1/connections.
func (h ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	ids, err := h.Network.ListConnections(ctx, userID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"connections": ids})
}

// Status handles GET /api/v1/connections/status/{userId}.
func (h ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	otherID := r.PathValue("userId")
	status, err := h.Network.Status(ctx, userID, otherID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"userId": otherID, "status": status})
}

// Blocks handles POST and DELETE /api/v1/blocks/{userId}.
func (h ConnectionHandler) Blocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodPost, http.MethodDelete)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	target := r.PathValue("userId")

	var err error
	if r.Method == http.MethodPost {
		err = h.Network.Block(ctx, userID, target)
	} else {
		err = h.Network.Unblock(ctx, userID, target)
	}
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"userId": target, "blocked": r.Method == http.MethodPost})
}

type sendRequestPayload struct {
	RecipientID string `json:"recipientId"`
	Note        string `json:"note"`
}
