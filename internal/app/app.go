package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/campusnet/backend/internal/config"
	"github.com/campusnet/backend/internal/handlers"
	"github.com/campusnet/backend/internal/httpserver"
	"github.com/campusnet/backend/internal/logging"
	"github.com/campusnet/backend/internal/middleware"
)

// Run bootstraps the CampusNet backend application.
func Run(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand assembles the campusnet command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "campusnet",
		Short:         "CampusNet backend service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newModerationCommand(),
	)
	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or list SQL migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			return runMigrations(cmd.Context(), command, cmd.OutOrStdout())
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <name>",
		Short: "Apply a seed file such as dev",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
}

func newModerationCommand() *cobra.Command {
	moderationCmd := &cobra.Command{
		Use:   "moderation",
		Short: "Manage the banned-word policy",
	}
	moderationCmd.AddCommand(&cobra.Command{
		Use:   "publish <policy.yaml>",
		Short: "Validate a policy file and upload it to the configured object store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return publishPolicy(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	})
	return moderationCmd
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
		defer cancel()
		if err := rt.Close(closeCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, rt.deps)
	srv := httpserver.New(cfg.AppPort, middleware.RequestLogger(logger)(mux))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		purgeSessions(gctx, rt.sessions, sessionPurgeInterval)
		return nil
	})
	if cfg.Moderation.Source != config.PolicyBuiltin {
		g.Go(func() error {
			rt.moderator.Run(gctx, cfg.Moderation.RefreshInterval)
			return nil
		})
	}

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"store", cfg.StoreBackend,
		"messaging", cfg.MessagingBackend,
		"moderation", cfg.Moderation.Source,
	)
	err = g.Wait()
	logger.Info("http server stopped")
	return err
}

func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}
