package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campusnet/backend/internal/logging"
)

// ErrEmptyPolicy is returned when a source yields no usable terms.
var ErrEmptyPolicy = errors.New("moderation policy has no terms")

// Moderator serves the active Filter and swaps it when the policy source changes.
type Moderator struct {
	source PolicySource
	active atomic.Pointer[Filter]
}

// NewModerator returns a Moderator that starts with the built-in policy until Reload succeeds.
func NewModerator(source PolicySource) *Moderator {
	if source == nil {
		source = StaticSource(DefaultTerms)
	}
	m := &Moderator{source: source}
	m.active.Store(MustFilter(DefaultTerms))
	return m
}

// Filter returns the active filter.
func (m *Moderator) Filter() *Filter {
	return m.active.Load()
}

func (m *Moderator) ContainsProfanity(text string) Result {
	return m.Filter().ContainsProfanity(text)
}

func (m *Moderator) FilterProfanity(text string) string {
	return m.Filter().FilterProfanity(text)
}

func (m *Moderator) Check(text string) error {
	return m.Filter().Check(text)
}

// Reload rebuilds the filter from the source. On failure the previous filter stays active.
func (m *Moderator) Reload(ctx context.Context) error {
	terms, err := m.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("load %s policy: %w", m.source.Name(), err)
	}
	filter, err := NewFilter(terms)
	if err != nil {
		return fmt.Errorf("build %s policy: %w", m.source.Name(), err)
	}
	if filter.Len() == 0 {
		return fmt.Errorf("load %s policy: %w", m.source.Name(), ErrEmptyPolicy)
	}
	m.active.Store(filter)
	return nil
}

// Run reloads the policy every interval until ctx is cancelled.
func (m *Moderator) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logger := logging.FromContext(ctx).With(slog.String("policy_source", m.source.Name()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Reload(ctx); err != nil {
				logger.Warn("moderation policy refresh failed", slog.Any("error", err))
				continue
			}
			logger.Debug("moderation policy refreshed", slog.Int("terms", m.Filter().Len()))
		}
	}
}
