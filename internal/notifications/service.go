package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
)

// ErrNotFound is returned when the notification does not exist or belongs to someone else.
var ErrNotFound = errors.New("notification not found")

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Service exposes a user's notifications.
type Service struct {
	Store     repositories.NotificationRepository
	Publisher realtime.Publisher
}

// List returns the user's newest notifications, optionally only unread ones.
func (s Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	items, err := s.Store.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return items, nil
}

// MarkRead marks one of the user's notifications as read.
func (s Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.Store.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}
	if s.Publisher != nil {
		s.Publisher.Publish(realtime.UserTopic(userID), realtime.Event{
			Type:    realtime.EventRead,
			Payload: map[string]string{"notificationId": notificationID},
		})
	}
	return nil
}
