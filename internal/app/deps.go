package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campusnet/backend/internal/auth"
	"github.com/campusnet/backend/internal/config"
	"github.com/campusnet/backend/internal/db"
	"github.com/campusnet/backend/internal/feed"
	"github.com/campusnet/backend/internal/handlers"
	"github.com/campusnet/backend/internal/messaging"
	"github.com/campusnet/backend/internal/middleware"
	"github.com/campusnet/backend/internal/moderation"
	"github.com/campusnet/backend/internal/network"
	"github.com/campusnet/backend/internal/notifications"
	"github.com/campusnet/backend/internal/realtime"
	"github.com/campusnet/backend/internal/repositories"
	"github.com/campusnet/backend/internal/showcase"
	"github.com/campusnet/backend/internal/storage"
)

const (
	hubBuffer       = 32
	profileCacheTTL = 30 * time.Second
)

// stores groups the persistence backends selected by configuration.
type stores struct {
	users         repositories.UserRepository
	connections   repositories.ConnectionRepository
	conversations repositories.ConversationRepository
	posts         repositories.PostRepository
	projects      repositories.ProjectRepository
	resources     repositories.ResourceRepository
	notifications repositories.NotificationRepository
	terms         repositories.ModerationTermRepository
	sessions      auth.SessionStore
	database      handlers.Pinger
}

// runtime holds everything serve needs beyond the HTTP routes.
type runtime struct {
	deps       handlers.Dependencies
	sessions   *auth.Manager
	moderator  *moderation.Moderator
	dispatcher *notifications.Dispatcher
	hub        *realtime.Hub
	closers    []func(context.Context) error
}

// Close releases resources in reverse order of acquisition.
func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (rt *runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt = &runtime{}
	defer func() {
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = rt.Close(closeCtx)
			rt = nil
		}
	}()

	st, err := openStores(ctx, cfg, rt)
	if err != nil {
		return rt, err
	}

	source, err := policySource(ctx, cfg.Moderation, st.terms)
	if err != nil {
		return rt, err
	}
	rt.moderator = moderation.NewModerator(source)
	if err := rt.moderator.Reload(ctx); err != nil {
		logger.Warn("moderation policy unavailable, using built-in terms", "source", source.Name(), "error", err)
	}

	rt.hub = realtime.NewHub(hubBuffer)
	rt.closers = append(rt.closers, func(context.Context) error {
		rt.hub.Close()
		return nil
	})

	rt.dispatcher = notifications.NewDispatcher(st.notifications, rt.hub, notifications.DispatcherConfig{
		QueueSize: cfg.NotificationQueueSize,
		Workers:   cfg.NotificationWorkers,
	}, logger)
	rt.closers = append(rt.closers, rt.dispatcher.Shutdown)

	sessions := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, st.sessions)
	rt.sessions = sessions

	connections := network.Service{
		Store:      st.connections,
		Users:      st.users,
		Notifier:   rt.dispatcher,
		DailyLimit: cfg.DailyRequestLimit,
	}

	rt.deps = handlers.Dependencies{
		Database:          st.database,
		Users:             st.users,
		Sessions:          sessions,
		Tokens:            sessions,
		AuthLimiter:       newLimiter(cfg.AuthRateLimit),
		ConnectionLimiter: newLimiter(cfg.ConnectionRateLimit),
		Network:           connections,
		Messaging: messaging.Service{
			Store:     st.conversations,
			Users:     st.users,
			Blocks:    connections,
			Filter:    rt.moderator,
			Publisher: rt.hub,
			TypingTTL: cfg.TypingTTL,
		},
		Feed: feed.Service{
			Store:     st.posts,
			Graph:     connections,
			Moderator: rt.moderator,
			Notifier:  rt.dispatcher,
			Publisher: rt.hub,
			PageSize:  cfg.FeedPageSize,
		},
		Showcase: showcase.Service{
			Projects:  st.projects,
			Resources: st.resources,
			Moderator: rt.moderator,
			Notifier:  rt.dispatcher,
		},
		Notifications: notifications.Service{Store: st.notifications, Publisher: rt.hub},
		Moderation:    rt.moderator,
		Hub:           rt.hub,
		Upgrader:      realtime.NewUpgrader(nil),
	}
	return rt, nil
}

func openStores(ctx context.Context, cfg config.Config, rt *runtime) (stores, error) {
	var st stores

	switch cfg.StoreBackend {
	case config.BackendMemory:
		mem := repositories.NewMemoryStore()
		st = stores{
			users:         mem,
			connections:   mem,
			conversations: mem,
			posts:         mem,
			projects:      mem,
			resources:     mem,
			notifications: mem,
			terms:         mem,
			sessions:      auth.NewInMemorySessionStore(),
		}
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, err
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		showcaseRepo := repositories.NewPostgresShowcaseRepository(pool)
		st = stores{
			users:         repositories.NewCachingUserRepository(repositories.NewPostgresUserRepository(pool), profileCacheTTL),
			connections:   repositories.NewPostgresConnectionRepository(pool),
			conversations: repositories.NewPostgresConversationRepository(pool),
			posts:         repositories.NewPostgresPostRepository(pool),
			projects:      showcaseRepo,
			resources:     showcaseRepo,
			notifications: showcaseRepo,
			terms:         showcaseRepo,
			sessions:      repositories.NewPostgresSessionStore(pool),
			database:      pool,
		}
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	if cfg.MessagingBackend == config.BackendMongo {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return stores{}, err
		}
		rt.closers = append(rt.closers, client.Disconnect)
		repo := repositories.NewMongoConversationRepository(client.Database(cfg.MongoDatabase))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		st.conversations = repo
	}
	return st, nil
}

func policySource(ctx context.Context, cfg config.ModerationConfig, terms repositories.ModerationTermRepository) (moderation.PolicySource, error) {
	switch cfg.Source {
	case config.PolicyFile:
		return moderation.FileSource{Path: cfg.FilePath}, nil
	case config.PolicyTable:
		return moderation.TableSource{Terms: terms}, nil
	case config.PolicyS3:
		objects, err := openObjectStore(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		return moderation.ObjectSource{Store: objects, Key: cfg.ObjectStore.Key}, nil
	default:
		return moderation.StaticSource(moderation.DefaultTerms), nil
	}
}

func openObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (*storage.S3Storage, error) {
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return storage.NewS3Storage(client, cfg)
}

// newLimiter returns nil when limiting is disabled so handlers skip the check entirely.
func newLimiter(cfg config.RateLimitConfig) handlers.RateLimiter {
	if cfg.Requests <= 0 {
		return nil
	}
	return middleware.NewKeyedRateLimiter(cfg.Requests, cfg.Window, cfg.Burst, cfg.TTL)
}
