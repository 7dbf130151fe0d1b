// Package notifications persists user notifications and pushes them to the recipient's realtime
// topic from a background worker pool.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campusnet/backend/internal/models"
	"github.com/campusnet/backend/internal/realtime"
)

// ErrDispatcherClosed is returned by Notify after Shutdown.
var ErrDispatcherClosed = errors.New("notification dispatcher closed")

const storeTimeout = 5 * time.Second

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, notification models.Notification) error
}

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
}

// Dispatcher queues notifications and stores then publishes them asynchronously.
type Dispatcher struct {
	store     Store
	publisher realtime.Publisher
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan models.Notification
	wg     sync.WaitGroup

	NowFunc func() time.Time
}

// NewDispatcher starts cfg.Workers workers draining a queue of cfg.QueueSize notifications.
func NewDispatcher(store Store, publisher realtime.Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		store:     store,
		publisher: publisher,
		logger:    logger,
		jobs:      make(chan models.Notification, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Notify assigns an id and timestamp to n and queues it. It blocks while the queue is full.
func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	if n.RecipientID == "" {
		return errors.New("notification recipient is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.jobs <- n:
		return nil
	}
}

// Shutdown stops accepting notifications and waits for queued ones to be delivered.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.jobs {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.Error("store notification",
			slog.String("notificationId", n.ID),
			slog.String("recipientId", n.RecipientID),
			slog.String("type", n.Type),
			slog.Any("error", err),
		)
		return
	}

	if d.publisher != nil {
		d.publisher.Publish(realtime.UserTopic(n.RecipientID), realtime.Event{
			Type:    realtime.EventNotification,
			Payload: n,
			At:      n.CreatedAt,
		})
	}
}

func (d *Dispatcher) now() time.Time {
	if d.NowFunc != nil {
		return d.NowFunc().UTC()
	}
	return time.Now().UTC()
}
