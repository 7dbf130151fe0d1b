// Package network implements the connection graph: directional connection requests with a
// daily quota, accept/ignore transitions, blocks, and relationship status resolution.
package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/repositories"
)

// DefaultDailyLimit is the number of requests a user may send per UTC calendar day.
const DefaultDailyLimit = 20

// Status classifies the relationship between a viewer and another user.
type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusReceived  Status = "received"
	StatusConnected Status = "connected"
)

// Notifier receives notifications produced by the workflow.
type Notifier interface {
	Notify(ctx context.Context, notification models.Notification) error
}

// UserLookup resolves user ids to accounts.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service runs the connection request workflow against a ConnectionRepository. When Users is
// set, requests and blocks naming an unknown account fail with ErrNotFound.
type Service struct {
	Store      repositories.ConnectionRepository
	Users      UserLookup
	Notifier   Notifier
	DailyLimit int
	NowFunc    func() time.Time
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (s Service) dailyLimit() int {
	if s.DailyLimit > 0 {
		return s.DailyLimit
	}
	return DefaultDailyLimit
}

// calendarDay truncates t to midnight UTC.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validatePair(a, b string) (string, string, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return "", "", ErrMissingUser
	}
	if !models.ValidID(a) || !models.ValidID(b) {
		return "", "", ErrInvalidUser
	}
	return a, b, nil
}

func (s Service) requireUser(ctx context.Context, id string) error {
	if s.Users == nil {
		return nil
	}
	if _, err := s.Users.FindByID(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load user %s: %w", id, err)
	}
	return nil
}

// SendRequest creates a pending request from requesterID to recipientID.
func (s Service) SendRequest(ctx context.Context, requesterID, recipientID, note string) (models.ConnectionRequest, error) {
	requesterID, recipientID, err := validatePair(requesterID, recipientID)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	if requesterID == recipientID {
		return models.ConnectionRequest{}, ErrSelfRequest
	}

	ctx, span := logging.StartSpan(ctx, "network.send_request")
	defer span.End()

	if err := s.requireUser(ctx, recipientID); err != nil {
		return models.ConnectionRequest{}, err
	}

	blocked, err := s.IsBlocked(ctx, requesterID, recipientID)
	if err != nil {
		span.Fail(err)
		return models.ConnectionRequest{}, err
	}
	if blocked {
		return models.ConnectionRequest{}, ErrBlocked
	}

	outgoing, incoming, err := s.lookupPair(ctx, requesterID, recipientID)
	if err != nil {
		span.Fail(err)
		return models.ConnectionRequest{}, err
	}
	if outgoing != nil || incoming != nil {
		return models.ConnectionRequest{}, ErrRequestExists
	}

	now := s.now()
	quota := repositories.Quota{Day: calendarDay(now), Limit: s.dailyLimit()}
	sent, err := s.Store.DailyCount(ctx, requesterID, quota.Day)
	if err != nil {
		span.Fail(err)
		return models.ConnectionRequest{}, fmt.Errorf("read daily request count: %w", err)
	}
	if sent >= quota.Limit {
		return models.ConnectionRequest{}, ErrDailyLimit
	}

	req := models.ConnectionRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		RecipientID: recipientID,
		Status:      models.RequestStatusPending,
		Note:        strings.TrimSpace(note),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateRequest(ctx, req, quota); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.ConnectionRequest{}, ErrRequestExists
		case errors.Is(err, repositories.ErrQuotaExceeded):
			return models.ConnectionRequest{}, ErrDailyLimit
		case errors.Is(err, repositories.ErrNotFound):
			return models.ConnectionRequest{}, ErrNotFound
		}
		span.Fail(err)
		return models.ConnectionRequest{}, fmt.Errorf("create connection request: %w", err)
	}

	s.notify(ctx, models.Notification{
		RecipientID: recipientID,
		Type:        models.NotificationConnectionRequest,
		ActorID:     requesterID,
		SubjectID:   req.ID,
	})
	return req, nil
}

// AcceptRequest marks a pending request as accepted. Only the recipient may accept.
func (s Service) AcceptRequest(ctx context.Context, actorID, requestID string) (models.ConnectionRequest, error) {
	req, err := s.respond(ctx, actorID, requestID, models.RequestStatusAccepted)
	if err != nil {
		return models.ConnectionRequest{}, err
	}
	s.notify(ctx, models.Notification{
		RecipientID: req.RequesterID,
		Type:        models.NotificationConnectionAccepted,
		ActorID:     actorID,
		SubjectID:   req.ID,
	})
	return req, nil
}

// IgnoreRequest marks a pending request as ignored. Only the recipient may ignore.
func (s Service) IgnoreRequest(ctx context.Context, actorID, requestID string) (models.ConnectionRequest, error) {
	return s.respond(ctx, actorID, requestID, models.RequestStatusIgnored)
}

func (s Service) respond(ctx context.Context, actorID, requestID, status string) (models.ConnectionRequest, error) {
	req, err := s.Store.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.ConnectionRequest{}, ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("load connection request: %w", err)
	}
	if req.RecipientID != actorID {
		return models.ConnectionRequest{}, ErrForbidden
	}
	if req.Status != models.RequestStatusPending {
		return models.ConnectionRequest{}, ErrNotPending
	}

	now := s.now()
	if err := s.Store.UpdateRequestStatus(ctx, req.ID, models.RequestStatusPending, status, now); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.ConnectionRequest{}, ErrNotPending
		case errors.Is(err, repositories.ErrNotFound):
			return models.ConnectionRequest{}, ErrNotFound
		}
		return models.ConnectionRequest{}, fmt.Errorf("update connection request: %w", err)
	}
	req.Status = status
	req.UpdatedAt = now
	return req, nil
}

// Status resolves how viewerID relates to otherID.
func (s Service) Status(ctx context.Context, viewerID, otherID string) (Status, error) {
	viewerID, otherID, err := validatePair(viewerID, otherID)
	if err != nil {
		return "", err
	}
	if viewerID == otherID {
		return StatusNone, nil
	}

	outgoing, incoming, err := s.lookupPair(ctx, viewerID, otherID)
	if err != nil {
		return "", err
	}
	return resolveStatus(outgoing, incoming), nil
}

func resolveStatus(outgoing, incoming *models.ConnectionRequest) Status {
	for _, req := range []*models.ConnectionRequest{outgoing, incoming} {
		if req != nil && req.Status == models.RequestStatusAccepted {
			return StatusConnected
		}
	}
	if outgoing != nil && outgoing.Status == models.RequestStatusPending {
		return StatusPending
	}
	if incoming != nil && incoming.Status == models.RequestStatusPending {
		return StatusReceived
	}
	return StatusNone
}

// lookupPair fetches the a→b and b→a requests concurrently. Missing requests are nil.
func (s Service) lookupPair(ctx context.Context, a, b string) (*models.ConnectionRequest, *models.ConnectionRequest, error) {
	var outgoing, incoming *models.ConnectionRequest
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		req, err := s.findBetween(gctx, a, b)
		outgoing = req
		return err
	})
	g.Go(func() error {
		req, err := s.findBetween(gctx, b, a)
		incoming = req
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return outgoing, incoming, nil
}

func (s Service) findBetween(ctx context.Context, requesterID, recipientID string) (*models.ConnectionRequest, error) {
	req, err := s.Store.FindBetween(ctx, requesterID, recipientID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup connection request: %w", err)
	}
	return &req, nil
}

// ListConnections returns the ids of users connected to userID.
func (s Service) ListConnections(ctx context.Context, userID string) ([]string, error) {
	accepted, err := s.Store.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	ids := make([]string, 0, len(accepted))
	for _, req := range accepted {
		ids = append(ids, req.Counterpart(userID))
	}
	return ids, nil
}

// ListIncoming returns pending requests addressed to userID.
func (s Service) ListIncoming(ctx context.Context, userID string) ([]models.ConnectionRequest, error) {
	reqs, err := s.Store.ListIncoming(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	if reqs == nil {
		reqs = []models.ConnectionRequest{}
	}
	return reqs, nil
}

// Block records that blockerID blocks blockedID. Blocking twice is a no-op.
func (s Service) Block(ctx context.Context, blockerID, blockedID string) error {
	blockerID, blockedID, err := validatePair(blockerID, blockedID)
	if err != nil {
		return err
	}
	if blockerID == blockedID {
		return ErrSelfBlock
	}
	if err := s.requireUser(ctx, blockedID); err != nil {
		return err
	}
	if err := s.Store.CreateBlock(ctx, models.Block{BlockerID: blockerID, BlockedID: blockedID, CreatedAt: s.now()}); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("create block: %w", err)
	}
	logging.FromContext(ctx).Info("user blocked", slog.String("blockerId", blockerID), slog.String("blockedId", blockedID))
	return nil
}

// Unblock removes a block created by blockerID.
func (s Service) Unblock(ctx context.Context, blockerID, blockedID string) error {
	blockerID, blockedID, err := validatePair(blockerID, blockedID)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteBlock(ctx, blockerID, blockedID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete block: %w", err)
	}
	return nil
}

// IsBlocked reports whether either user blocked the other.
func (s Service) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var forward, backward bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		backward, err = s.Store.BlockExists(gctx, b, a)
		return err
	})
	g.Go(func() error {
		var err error
		forward, err = s.Store.BlockExists(gctx, a, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return forward || backward, nil
}

// BlockRelations returns every user on the other side of a block with userID.
func (s Service) BlockRelations(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.Store.ListBlockRelations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list block relations: %w", err)
	}
	return ids, nil
}

func (s Service) notify(ctx context.Context, n models.Notification) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, n); err != nil {
		logging.FromContext(ctx).Warn("queue notification",
			slog.String("type", n.Type),
			slog.String("recipientId", n.RecipientID),
			slog.Any("error", err),
		)
	}
}
