package handlers

import (
	"net/http"
	"unicode/utf8"
)

const maxCheckLength = 10000

// ModerationHandler lets clients preview how text will be moderated.
type ModerationHandler struct {
	Filter ProfanityChecker
}

// Check handles POST /api/v1/moderation/check.
func (h ModerationHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	ctx := r.Context()

	var req checkPayload
	if err := decodeJSON(w, r, &req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Text) > maxCheckLength {
		respondMessage(ctx, w, http.StatusBadRequest, "text is too long")
		return
	}

	result := h.Filter.ContainsProfanity(req.Text)
	filtered := req.Text
	if result.HasProfanity {
		filtered = h.Filter.FilterProfanity(req.Text)
	}
	respondJSON(ctx, w, http.StatusOK, checkResponse{
		HasProfanity: result.HasProfanity,
		FoundWords:   result.FoundWords,
		Filtered:     filtered,
	})
}

type checkPayload struct {
	Text string `json:"text"`
}

type checkResponse struct {
	HasProfanity bool     `json:"hasProfanity"`
	FoundWords   []string `json:"foundWords"`
	Filtered     string   `json:"filtered"`
}
