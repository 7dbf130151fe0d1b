package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/campusnet/backend/internal/feed"
	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/messaging"
	"github.com/campusnet/backend/internal/moderation"
	"github.com/campusnet/backend/internal/network"
	"github.com/campusnet/backend/internal/notifications"
	"github.com/campusnet/backend/internal/repositories"
	"github.com/campusnet/backend/internal/showcase"
)

var errorStatuses = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{
		network.ErrMissingUser, network.ErrInvalidUser, network.ErrSelfRequest, network.ErrSelfBlock,
		messaging.ErrMissingUser, messaging.ErrInvalidUser, messaging.ErrSelfConversation, messaging.ErrEmptyMessage,
		messaging.ErrMessageTooLong, messaging.ErrInvalidType, messaging.ErrTooManyFiles, messaging.ErrInvalidCursor,
		feed.ErrEmptyPost, feed.ErrPostTooLong, feed.ErrInvalidImageURL, feed.ErrInvalidCursor,
		showcase.ErrTitleRequired, showcase.ErrTitleTooLong, showcase.ErrDescriptionLong,
		showcase.ErrTooManyTags, showcase.ErrInvalidURL, showcase.ErrOwnProject,
	}},
	{http.StatusForbidden, []error{
		network.ErrBlocked, network.ErrForbidden,
		messaging.ErrBlocked, messaging.ErrNotParticipant,
		feed.ErrForbidden, showcase.ErrForbidden,
	}},
	{http.StatusNotFound, []error{
		network.ErrNotFound, messaging.ErrNotFound, messaging.ErrUnknownUser, feed.ErrNotFound, showcase.ErrNotFound,
		notifications.ErrNotFound, repositories.ErrNotFound,
	}},
	{http.StatusConflict, []error{
		network.ErrRequestExists, network.ErrNotPending, showcase.ErrRequestExists,
		repositories.ErrConflict,
	}},
	{http.StatusTooManyRequests, []error{network.ErrDailyLimit}},
}

// statusFor maps a service error to its HTTP status. Unknown errors are backend failures.
func statusFor(err error) int {
	var profane *moderation.ProfanityError
	if errors.As(err, &profane) {
		return http.StatusUnprocessableEntity
	}
	for _, group := range errorStatuses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondError writes the error body for err. Backend failures are logged with the cause and
// answered with a generic message.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(ctx).Error("service call failed", "error", err)
		respondMessage(ctx, w, status, "internal server error")
		return
	}

	var profane *moderation.ProfanityError
	if errors.As(err, &profane) {
		respondJSON(ctx, w, status, map[string]any{"error": err.Error(), "words": profane.Words})
		return
	}
	respondMessage(ctx, w, status, err.Error())
}
