package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/campusnet/backend/internal/db"
	"github.com/campusnet/backend/internal/models"
)

// PostgresShowcaseRepository persists projects, join requests, resources, notifications and
// moderation terms in PostgreSQL.
type PostgresShowcaseRepository struct {
	pool db.Pool
}

// NewPostgresShowcaseRepository constructs a showcase repository backed by PostgreSQL.
func NewPostgresShowcaseRepository(pool db.Pool) *PostgresShowcaseRepository {
	return &PostgresShowcaseRepository{pool: pool}
}

func (r *PostgresShowcaseRepository) exec(ctx context.Context, action, query string, args ...any) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		if mapped := classifyPgError(err); mapped != nil {
			return 0, mapped
		}
		return 0, fmt.Errorf("%s: %w", action, err)
	}
	return tag.RowsAffected(), nil
}

// CreateProject stores a new project.
func (r *PostgresShowcaseRepository) CreateProject(ctx context.Context, project models.Project) error {
	tags := project.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.exec(ctx, "insert project", `
        INSERT INTO projects (id, owner_id, title, description, tags, repo_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, project.ID, project.OwnerID, project.Title, project.Description, tags, project.RepoURL, project.CreatedAt)
	return err
}

// FindProject loads a project by id.
func (r *PostgresShowcaseRepository) FindProject(ctx context.Context, projectID string) (models.Project, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Project{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var p models.Project
	err = conn.QueryRow(ctx, `
        SELECT id, owner_id, title, description, tags, repo_url, created_at
        FROM projects
        WHERE id = $1
    `, projectID).Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Tags, &p.RepoURL, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Project{}, ErrNotFound
		}
		return models.Project{}, fmt.Errorf("select project: %w", err)
	}
	return p, nil
}

// ListProjects returns the newest projects.
func (r *PostgresShowcaseRepository) ListProjects(ctx context.Context, limit int) ([]models.Project, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, owner_id, title, description, tags, repo_url, created_at
        FROM projects
        ORDER BY created_at DESC, id DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Tags, &p.RepoURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project and its join requests.
func (r *PostgresShowcaseRepository) DeleteProject(ctx context.Context, projectID string) error {
	n, err := r.exec(ctx, "delete project", `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateJoinRequest stores a join request; a second request for the same pair is a conflict.
func (r *PostgresShowcaseRepository) CreateJoinRequest(ctx context.Context, request models.JoinRequest) error {
	_, err := r.exec(ctx, "insert join request", `
        INSERT INTO join_requests (id, project_id, user_id, message, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, request.ID, request.ProjectID, request.UserID, request.Message, request.Status, request.CreatedAt)
	return err
}

// CreateResource stores a catalog entry.
func (r *PostgresShowcaseRepository) CreateResource(ctx context.Context, resource models.Resource) error {
	_, err := r.exec(ctx, "insert resource", `
        INSERT INTO resources (id, title, url, category, description, created_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, resource.ID, resource.Title, resource.URL, resource.Category, resource.Description, resource.CreatedBy, resource.CreatedAt)
	return err
}

// FindResource loads a catalog entry by id.
func (r *PostgresShowcaseRepository) FindResource(ctx context.Context, resourceID string) (models.Resource, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Resource{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var res models.Resource
	err = conn.QueryRow(ctx, `
        SELECT id, title, url, category, description, created_by, created_at
        FROM resources
        WHERE id = $1
    `, resourceID).Scan(&res.ID, &res.Title, &res.URL, &res.Category, &res.Description, &res.CreatedBy, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Resource{}, ErrNotFound
		}
		return models.Resource{}, fmt.Errorf("select resource: %w", err)
	}
	return res, nil
}

// ListResources returns the catalog ordered by title, optionally filtered by category.
func (r *PostgresShowcaseRepository) ListResources(ctx context.Context, category string) ([]models.Resource, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, title, url, category, description, created_by, created_at
        FROM resources
        WHERE $1 = '' OR category = $1
        ORDER BY title, id
    `, category)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		var res models.Resource
		if err := rows.Scan(&res.ID, &res.Title, &res.URL, &res.Category, &res.Description, &res.CreatedBy, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}

// DeleteResource removes a catalog entry.
func (r *PostgresShowcaseRepository) DeleteResource(ctx context.Context, resourceID string) error {
	n, err := r.exec(ctx, "delete resource", `DELETE FROM resources WHERE id = $1`, resourceID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateNotification stores a notification.
func (r *PostgresShowcaseRepository) CreateNotification(ctx context.Context, n models.Notification) error {
	_, err := r.exec(ctx, "insert notification", `
        INSERT INTO notifications (id, recipient_id, type, actor_id, subject_id, read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, n.ID, n.RecipientID, n.Type, n.ActorID, n.SubjectID, n.Read, n.CreatedAt)
	return err
}

// ListNotifications returns the user's newest notifications.
func (r *PostgresShowcaseRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, recipient_id, type, actor_id, subject_id, read, created_at
        FROM notifications
        WHERE recipient_id = $1 AND (NOT $2 OR read = false)
        ORDER BY created_at DESC, id DESC
        LIMIT $3
    `, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.ActorID, &n.SubjectID, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead marks one of the user's notifications as read.
func (r *PostgresShowcaseRepository) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	n, err := r.exec(ctx, "mark notification read", `
        UPDATE notifications SET read = true WHERE id = $1 AND recipient_id = $2
    `, notificationID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTerms returns the configured moderation terms.
func (r *PostgresShowcaseRepository) ListTerms(ctx context.Context) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT term FROM moderation_terms ORDER BY term`)
	if err != nil {
		return nil, fmt.Errorf("query moderation terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scan moderation term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation terms: %w", err)
	}
	return terms, nil
}

var (
	_ ProjectRepository        = (*PostgresShowcaseRepository)(nil)
	_ ResourceRepository       = (*PostgresShowcaseRepository)(nil)
	_ NotificationRepository   = (*PostgresShowcaseRepository)(nil)
	_ ModerationTermRepository = (*PostgresShowcaseRepository)(nil)
)
