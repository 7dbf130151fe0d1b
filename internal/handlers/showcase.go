package handlers

import (
	"errors"
	"net/http"

	"github.com/campusnet/backend/internal/showcase"
)

// ShowcaseHandler exposes projects, join requests and learning resources.
type ShowcaseHandler struct {
	Showcase ShowcaseService
}

// Projects handles GET and POST /api/v1/projects.
func (h ShowcaseHandler) Projects(w http.ResponseWriter, r *http.Request) {
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
		limit, err := queryLimit(r)
		if err != nil {
			respondMessage(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		projects, err := h.Showcase.ListProjects(ctx, limit)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"projects": projects})
		return
	}

	var req projectPayload
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	project, err := h.Showcase.CreateProject(ctx, userID, showcase.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		RepoURL:     req.RepoURL,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"project": project})
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h ShowcaseHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.Showcase.DeleteProject(ctx, userID, r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Join handles POST /api/v1/projects/{id}/join.
func (h ShowcaseHandler) Join(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req joinPayload
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	joinRequest, err := h.Showcase.RequestToJoin(ctx, userID, r.PathValue("id"), req.Message)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"joinRequest": joinRequest})
}

// Resources handles GET and POST /api/v1/resources.
func (h ShowcaseHandler) Resources(w http.ResponseWriter, r *http.Request) {
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
		resources, err := h.Showcase.ListResources(ctx, r.URL.Query().Get("category"))
		if err != nil {
			respondError(ctx, w, err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"resources": resources})
		return
	}

	var req resourcePayload
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	resource, err := h.Showcase.CreateResource(ctx, userID, showcase.ResourceInput{
		Title:       req.Title,
		URL:         req.URL,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusCreated, map[string]any{"resource": resource})
}

// DeleteResource handles DELETE /api/v1/resources/{id}.
func (h ShowcaseHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.Showcase.DeleteResource(ctx, userID, r.PathValue("id")); err != nil {
		respondError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type projectPayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	RepoURL     string   `json:"repoUrl"`
}

type joinPayload struct {
	Message string `json:"message"`
}

type resourcePayload struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Category    string `json:"category"`
	Description string `json:"description"`
}
