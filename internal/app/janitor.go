package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/campusnet/backend/internal/logging"
)

const sessionPurgeInterval = time.Hour

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// purgeSessions drops expired refresh tokens every interval until ctx ends.
func purgeSessions(ctx context.Context, sessions sessionPurger, interval time.Duration) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("session purge failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				logger.Info("purged expired sessions", slog.Int64("count", n))
			}
		}
	}
}
