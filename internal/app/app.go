package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/motioncourse/web/internal/config"
	"github.com/motioncourse/web/internal/db"
	"github.com/motioncourse/web/internal/handlers"
	"github.com/motioncourse/web/internal/httpserver"
	"github.com/motioncourse/web/internal/logging"
	"github.com/motioncourse/web/internal/middleware"
	"github.com/motioncourse/web/internal/repositories"
)

// Run bootstraps the MotionCourse web application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or sessions")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "sessions":
		return runSessions(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     logging.ParseLevel(level),
	}))
}

// newHandler assembles the middleware chain around the routes.
func newHandler(logger *slog.Logger, c components) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, c.deps)
	return middleware.RequestLogger(logger, "/healthz")(c.sessions.Middleware(mux))
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	c, cleanup, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(cleanupCtx); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	srv := httpserver.New(cfg.AppPort, newHandler(logger, c), httpserver.Options{})

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"api", cfg.API.BaseURL,
		"sessionBackend", cfg.Session.Backend,
		"dedupeRefresh", cfg.API.DedupeRefresh,
	)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// runSessions maintains the PostgreSQL session table. "purge" drops expired rows.
func runSessions(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "purge" {
		return errors.New("expected sessions command: purge")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Session.Backend != config.SessionBackendPostgres {
		return fmt.Errorf("session backend %q keeps its own expiry, nothing to purge", cfg.Session.Backend)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	removed, err := repositories.NewPostgresSessionStore(pool, cfg.Session.TTL).PurgeExpired(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("purged %d expired sessions\n", removed)
	return nil
}
