package repositories

import (
	"context"

	"github.com/campusnet/backend/internal/models"
)

// ProjectRepository exposes data access for showcased projects and join requests.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project models.Project) error
	FindProject(ctx context.Context, projectID string) (models.Project, error)
	ListProjects(ctx context.Context, limit int) ([]models.Project, error)
	DeleteProject(ctx context.Context, projectID string) error
	CreateJoinRequest(ctx context.Context, request models.JoinRequest) error
}

// ResourceRepository exposes data access for the learning-resources catalog.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource models.Resource) error
	FindResource(ctx context.Context, resourceID string) (models.Resource, error)
	ListResources(ctx context.Context, category string) ([]models.Resource, error)
	DeleteResource(ctx context.Context, resourceID string) error
}

// NotificationRepository exposes data access for user notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, notification models.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}

// ModerationTermRepository lists the banned words of the moderation policy table.
type ModerationTermRepository interface {
	ListTerms(ctx context.Context) ([]string, error)
}
