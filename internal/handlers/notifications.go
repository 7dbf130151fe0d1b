package handlers

import (
	"net/http"
	"strconv"
)

// NotificationHandler exposes the caller's notifications.
type NotificationHandler struct {
	Notifications NotificationService
}

// List handles GET /api/v1/notifications.
func (h NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondMessage(ctx, w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		unreadOnly = parsed
	}
	limit, err := queryLimit(r)
	if err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := h.Notifications.List(ctx, userID, unreadOnly, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"notifications": items})
}

// Read handles POST /api/v1/notifications/{id}/read.
func (h NotificationHandler) Read(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.Notifications.MarkRead(ctx, userID, r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
