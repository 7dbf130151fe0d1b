// Package showcase covers the project showcase with its join requests and the learning-resources
// catalog.
package showcase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/repositories"
)

const (
	MaxTitleLength       = 120
	MaxDescriptionLength = 2000
	MaxTags              = 10
	DefaultCategory      = "general"

	defaultProjectPage = 20
	maxProjectPage     = 100
)

var (
	ErrTitleRequired   = errors.New("title is required")
	ErrTitleTooLong    = fmt.Errorf("title exceeds %d characters", MaxTitleLength)
	ErrDescriptionLong = fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	ErrTooManyTags     = fmt.Errorf("a project carries at most %d tags", MaxTags)
	ErrInvalidURL      = errors.New("url must be an absolute http(s) url")
	ErrOwnProject      = errors.New("owners cannot request to join their own project")
	ErrRequestExists   = errors.New("join request already exists")
	ErrForbidden       = errors.New("only the owner can delete this entry")
	ErrNotFound        = errors.New("not found")
)

// Checker rejects text containing banned words.
type Checker interface {
	Check(text string) error
}

// Notifier receives notifications produced by showcase actions.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// Service implements project and resource operations.
type Service struct {
	Projects  repositories.ProjectRepository
	Resources repositories.ResourceRepository
	Moderator Checker
	Notifier  Notifier
	NowFunc   func() time.Time
}

// ProjectInput describes a project to create.
type ProjectInput struct {
	Title       string
	Description string
	Tags        []string
	RepoURL     string
}

// ResourceInput describes a learning resource to add to the catalog.
type ResourceInput struct {
	Title       string
	URL         string
	Category    string
	Description string
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func absoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateTitle(title, description string) error {
	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return ErrDescriptionLong
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (s Service) check(texts ...string) error {
	if s.Moderator == nil {
		return nil
	}
	return s.Moderator.Check(strings.Join(texts, "\n"))
}

// CreateProject adds a project owned by ownerID to the showcase.
func (s Service) CreateProject(ctx context.Context, ownerID string, in ProjectInput) (models.Project, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	repoURL := strings.TrimSpace(in.RepoURL)
	if err := validateTitle(title, description); err != nil {
		return models.Project{}, err
	}
	tags := normalizeTags(in.Tags)
	if len(tags) > MaxTags {
		return models.Project{}, ErrTooManyTags
	}
	if repoURL != "" && !absoluteHTTPURL(repoURL) {
		return models.Project{}, ErrInvalidURL
	}
	if err := s.check(title, description); err != nil {
		return models.Project{}, err
	}

	project := models.Project{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Tags:        tags,
		RepoURL:     repoURL,
		CreatedAt:   s.now(),
	}
	if err := s.Projects.CreateProject(ctx, project); err != nil {
		return models.Project{}, fmt.Errorf("create project: %w", err)
	}
	return project, nil
}

// ListProjects returns the newest projects.
func (s Service) ListProjects(ctx context.Context, limit int) ([]models.Project, error) {
	switch {
	case limit <= 0:
		limit = defaultProjectPage
	case limit > maxProjectPage:
		limit = maxProjectPage
	}
	projects, err := s.Projects.ListProjects(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (s Service) findProject(ctx context.Context, projectID string) (models.Project, error) {
	project, err := s.Projects.FindProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Project{}, ErrNotFound
		}
		return models.Project{}, fmt.Errorf("load project: %w", err)
	}
	return project, nil
}

// DeleteProject removes a project. Only its owner may delete it.
func (s Service) DeleteProject(ctx context.Context, userID, projectID string) error {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != userID {
		return ErrForbidden
	}
	if err := s.Projects.DeleteProject(ctx, projectID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// RequestToJoin records a pending join request and notifies the project owner. The notification is
// queued after the request is stored and is not rolled back with it.
func (s Service) RequestToJoin(ctx context.Context, userID, projectID, message string) (models.JoinRequest, error) {
	project, err := s.findProject(ctx, projectID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if project.OwnerID == userID {
		return models.JoinRequest{}, ErrOwnProject
	}
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > MaxDescriptionLength {
		return models.JoinRequest{}, ErrDescriptionLong
	}

	req := models.JoinRequest{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		UserID:    userID,
		Message:   message,
		Status:    models.JoinStatusPending,
		CreatedAt: s.now(),
	}
	if err := s.Projects.CreateJoinRequest(ctx, req); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.JoinRequest{}, ErrRequestExists
		case errors.Is(err, repositories.ErrNotFound):
			return models.JoinRequest{}, ErrNotFound
		}
		return models.JoinRequest{}, fmt.Errorf("create join request: %w", err)
	}

	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, models.Notification{
			RecipientID: project.OwnerID,
			Type:        models.NotificationProjectJoinRequest,
			ActorID:     userID,
			SubjectID:   projectID,
		}); err != nil {
			logging.FromContext(ctx).Warn("queue join request notification",
				slog.String("projectId", projectID),
				slog.Any("error", err),
			)
		}
	}
	return req, nil
}

// CreateResource adds a learning resource to the catalog.
func (s Service) CreateResource(ctx context.Context, userID string, in ResourceInput) (models.Resource, error) {
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	link := strings.TrimSpace(in.URL)
	if err := validateTitle(title, description); err != nil {
		return models.Resource{}, err
	}
	if !absoluteHTTPURL(link) {
		return models.Resource{}, ErrInvalidURL
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = DefaultCategory
	}

	res := models.Resource{
		ID:          uuid.NewString(),
		Title:       title,
		URL:         link,
		Category:    category,
		Description: description,
		CreatedBy:   userID,
		CreatedAt:   s.now(),
	}
	if err := s.Resources.CreateResource(ctx, res); err != nil {
		return models.Resource{}, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// ListResources returns the catalog, optionally narrowed to one category.
func (s Service) ListResources(ctx context.Context, category string) ([]models.Resource, error) {
	resources, err := s.Resources.ListResources(ctx, strings.ToLower(strings.TrimSpace(category)))
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	if resources == nil {
		resources = []models.Resource{}
	}
	return resources, nil
}

// DeleteResource removes a resource. Only the user who added it may delete it.
func (s Service) DeleteResource(ctx context.Context, userID, resourceID string) error {
	res, err := s.Resources.FindResource(ctx, resourceID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load resource: %w", err)
	}
	if res.CreatedBy != userID {
		return ErrForbidden
	}
	if err := s.Resources.DeleteResource(ctx, resourceID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete resource: %w", err)
	}
	return nil
}
