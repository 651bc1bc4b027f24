package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/motioncourse/web/internal/apiclient"
	"github.com/motioncourse/web/internal/config"
	"github.com/motioncourse/web/internal/credentials"
	"github.com/motioncourse/web/internal/db"
	"github.com/motioncourse/web/internal/handlers"
	"github.com/motioncourse/web/internal/lessons"
	"github.com/motioncourse/web/internal/middleware"
	"github.com/motioncourse/web/internal/repositories"
	"github.com/motioncourse/web/internal/session"
	"github.com/motioncourse/web/internal/storage"
	"github.com/motioncourse/web/internal/videos"
)

const sessionPurgeInterval = time.Hour

type cleanupFunc func(ctx context.Context) error

// components is everything serve needs besides the mux itself.
type components struct {
	deps     handlers.Dependencies
	sessions *session.Manager
}

// sessionBackend is a session.Store that may also report its health.
type sessionBackend struct {
	store   session.Store
	pinger  handlers.Pinger
	cleanup cleanupFunc
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config, logger *slog.Logger) (components, cleanupFunc, error) {
	backend, err := openSessionBackend(ctx, cfg, logger)
	if err != nil {
		return components{}, nil, err
	}
	cleanups := []cleanupFunc{backend.cleanup}
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			if cleanups[i] == nil {
				continue
			}
			if err := cleanups[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if cfg.Session.Secret == "" {
		logger.Warn("no session secret configured, browser sessions will not survive a restart")
	}
	hashKey, blockKey, err := session.DeriveKeys(cfg.Session.Secret)
	if err != nil {
		_ = cleanup(ctx)
		return components{}, nil, err
	}

	jar := credentials.NewCookies(credentials.Options{
		Prefix:     cfg.Cookies.Prefix,
		Secure:     cfg.Cookies.Secure,
		SameSite:   cfg.Cookies.SameSite,
		AccessTTL:  cfg.Cookies.AccessTTL,
		RefreshTTL: cfg.Cookies.RefreshTTL,
	})
	manager := session.NewManager(jar, backend.store, session.ManagerOptions{
		HashKey:  hashKey,
		BlockKey: blockKey,
		Secure:   cfg.Cookies.Secure,
	})

	transport, err := apiclient.NewTransport(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		_ = cleanup(ctx)
		return components{}, nil, err
	}
	client := apiclient.New(apiclient.Reauth(transport, apiclient.ReauthOptions{
		DedupeRefresh: cfg.API.DedupeRefresh,
	}))

	var assets videos.AssetStorage
	if cfg.ObjectStore.Bucket != "" {
		stager, err := storage.NewS3Stager(ctx, cfg.ObjectStore)
		if err != nil {
			_ = cleanup(ctx)
			return components{}, nil, fmt.Errorf("configure upload staging: %w", err)
		}
		assets = stager
		logger.Info("mentor uploads staged in object storage", "bucket", cfg.ObjectStore.Bucket)
	}

	pages, err := handlers.NewPages()
	if err != nil {
		_ = cleanup(ctx)
		return components{}, nil, err
	}

	deps := handlers.Dependencies{
		Auth:      client,
		Profiles:  client,
		Videos:    client,
		Catalog:   lessons.NewCatalog(client, cfg.CatalogCacheTTL),
		Publisher: videos.NewPublisher(client, assets),
		Limiter:   middleware.NewLoginRateLimiter(cfg.LoginRateLimit),
		Pages:     pages,
	}
	if backend.pinger != nil {
		deps.Health = backend.pinger
	}

	return components{deps: deps, sessions: manager}, cleanup, nil
}

func openSessionBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (sessionBackend, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client, err := repositories.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return sessionBackend{}, err
		}
		store := repositories.NewRedisSessionStore(client, cfg.Session.TTL)
		return sessionBackend{
			store:   store,
			pinger:  store,
			cleanup: func(context.Context) error { return client.Close() },
		}, nil

	case config.SessionBackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return sessionBackend{}, err
		}
		store := repositories.NewPostgresSessionStore(pool, cfg.Session.TTL)
		stop := startPurgeLoop(store, sessionPurgeInterval, logger)
		return sessionBackend{
			store:  store,
			pinger: store,
			cleanup: func(context.Context) error {
				stop()
				pool.Close()
				return nil
			},
		}, nil

	default:
		return sessionBackend{store: session.NewMemoryStore(cfg.Session.TTL)}, nil
	}
}

type purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// startPurgeLoop removes expired session rows every interval until stop is called.
func startPurgeLoop(p purger, interval time.Duration, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := p.PurgeExpired(ctx)
				if err != nil {
					logger.Warn("purge expired sessions", "error", err)
					continue
				}
				if removed > 0 {
					logger.Info("purged expired sessions", "removed", removed)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
