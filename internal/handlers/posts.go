package handlers

import (
	"net/http"

	"github.com/campusnet/backend/internal/logging"
)

// PostHandler exposes posts, likes and the home feed.
type PostHandler struct {
	Feed FeedService
}

// Create handles POST /api/v1/posts.
func (h PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req createPostPayload
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid post payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	post, err := h.Feed.CreatePost(ctx, userID, req.Content, req.ImageURL)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"post": post})
}

// Delete handles DELETE /api/v1/posts/{id}.
func (h PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.Feed.DeletePost(ctx, userID, r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Like handles POST /api/v1/posts/{id}/like, toggling the caller's like.
func (h PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	result, err := h.Feed.ToggleLike(ctx, userID, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, result)
}

// Timeline handles GET /api/v1/feed.
func (h PostHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	limit, err := queryLimit(r)
	if err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.Feed.Feed(ctx, userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, page)
}

type createPostPayload struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}
