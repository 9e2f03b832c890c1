// Package wire assembles a farm data store and its collaborators from a
// resolved config.Config.
package wire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"farmledger/internal/blob"
	"farmledger/internal/config"
	"farmledger/internal/farm"
	"farmledger/internal/infra/auth"
	"farmledger/internal/infra/persistence/memory"
	"farmledger/internal/infra/persistence/postgres"
	"farmledger/internal/infra/persistence/sqlite"
	"farmledger/internal/infra/weather"
	"farmledger/internal/logger"
	"farmledger/pkg/domain"
)

const serviceName = "farmledger"

// App holds everything a command needs. Close releases it in reverse order.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Store    *farm.Store
	Weather  *weather.Client
	Backups  blob.Store
	Registry *prometheus.Registry
	// Tokens is nil unless FARMLEDGER_JWT_SECRET is set.
	Tokens *auth.TokenProvider

	closers []func() error
}

// Option adjusts how Build assembles the App.
type Option func(*settings)

type settings struct {
	logger   *zap.Logger
	clock    func() time.Time
	remote   domain.RemoteStore
	sessions domain.SessionProvider
}

// WithLogger uses l instead of building one from the config.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.clock = now }
}

// WithRemote uses r regardless of the configured remote driver.
func WithRemote(r domain.RemoteStore) Option {
	return func(s *settings) { s.remote = r }
}

// WithSessions uses p regardless of the configured token settings.
func WithSessions(p domain.SessionProvider) Option {
	return func(s *settings) { s.sessions = p }
}

// Build opens the cache, remote, backup sink and session provider described by
// cfg and hands them to a new farm.Store. The store is not started.
func Build(ctx context.Context, cfg config.Config, opts ...Option) (_ *App, err error) {
	var set settings
	for _, opt := range opts {
		opt(&set)
	}
	app := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Logger = set.logger
	if app.Logger == nil {
		l, lerr := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
		if lerr != nil {
			return nil, fmt.Errorf("build logger: %w", lerr)
		}
		app.Logger = l
		app.closers = append(app.closers, func() error {
			_ = l.Sync()
			return nil
		})
	}

	cache, err := OpenCache(cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, cache.Close)

	remote := set.remote
	if remote == nil {
		r, closeRemote, rerr := OpenRemote(ctx, cfg)
		if rerr != nil {
			return nil, rerr
		}
		if closeRemote != nil {
			app.closers = append(app.closers, closeRemote)
		}
		remote = r
	}

	app.Backups, err = blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.BlobDriver),
		FSRoot: cfg.BlobFSRoot,
		S3: blob.S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3PathStyle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open backup sink: %w", err)
	}

	sessions := set.sessions
	if sessions == nil && cfg.JWTSecret != "" {
		app.Tokens, err = auth.NewTokenProvider(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		if cfg.AccessToken != "" {
			if _, err = app.Tokens.SignIn(ctx, cfg.AccessToken); err != nil {
				return nil, fmt.Errorf("sign in: %w", err)
			}
		}
		sessions = app.Tokens
	} else if sessions == nil && cfg.AccessToken != "" {
		return nil, errors.New("access token set without a jwt secret")
	}

	metrics, err := farm.NewMetrics(app.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	app.Store, err = farm.Open(farm.Options{
		Cache:           cache,
		Remote:          remote,
		Sessions:        sessions,
		Backups:         app.Backups,
		Logger:          app.Logger,
		Metrics:         metrics,
		RemoteTimeout:   cfg.RemoteTimeout,
		BackupURLExpiry: cfg.BackupURLExpiry,
		Clock:           set.clock,
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Store.Close)

	app.Weather = weather.New(weather.Options{
		BaseURL:   cfg.WeatherBaseURL,
		RainCache: weather.NewRainCache(cfg.RainCacheSize, cfg.RainCacheTTL),
		Logger:    app.Logger,
	})
	return app, nil
}

// OpenCache returns the local cache selected by cfg.CacheDriver.
func OpenCache(cfg config.Config) (domain.LocalCache, error) {
	switch cfg.CacheDriver {
	case config.CacheMemory:
		return memory.NewCache(), nil
	case config.CacheSQLite, "":
		store, err := sqlite.NewStore(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open local cache: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %s", cfg.CacheDriver)
	}
}

// OpenRemote returns the remote store selected by cfg.RemoteDriver and a close
// function when the driver holds resources. RemoteNone yields a nil store.
func OpenRemote(ctx context.Context, cfg config.Config) (domain.RemoteStore, func() error, error) {
	switch cfg.RemoteDriver {
	case config.RemoteNone, "":
		return nil, nil, nil
	case config.RemoteMemory:
		return memory.NewRemote(), nil, nil
	case config.RemotePostgres:
		store, err := postgres.NewStore(ctx, cfg.RemoteDSN, postgres.WithTimeout(cfg.RemoteTimeout))
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote driver %s", cfg.RemoteDriver)
	}
}

// Close waits for queued remote work and releases every resource.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
