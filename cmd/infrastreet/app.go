package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"infrastreet/marketplace/internal/config"
	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/repository"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/location"
	"infrastreet/marketplace/internal/session"
)

// appContext holds what every command shares: the backend client and the session.
type appContext struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *backend.Client
	sessions *session.Manager

	closers   []func() error
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*appContext, error) {
	a := &appContext{
		cfg:    cfg,
		logger: logger,
		client: backend.NewClient(backend.Config{
			APIURL:        cfg.Backend.URL,
			Timeout:       cfg.Backend.Timeout,
			UploadTimeout: cfg.Backend.UploadTimeout,
		}, logger),
	}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	bus, err := a.openBroadcaster(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sessions = session.NewManager(store, bus, logger)
	if err := a.sessions.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStore uses Postgres when DATABASE_URL is set and a local SQLite file otherwise.
func (a *appContext) openStore(ctx context.Context) (session.Store, error) {
	if a.cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store := repository.NewPostgresStore(pool, deviceID())
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Debug("Using postgres session store")
		return store, nil
	}

	store, err := repository.NewSQLiteStore(a.cfg.SessionDBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	a.logger.Debug("Using sqlite session store", zap.String("path", a.cfg.SessionDBPath))
	return store, nil
}

// openBroadcaster returns nil when REDIS_URL is unset; the manager then broadcasts in-process.
func (a *appContext) openBroadcaster(ctx context.Context) (session.Broadcaster, error) {
	if a.cfg.RedisURL == "" {
		return nil, nil
	}
	bus, err := session.NewRedisBroadcaster(ctx, a.cfg.RedisURL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, bus.Close)
	return bus, nil
}

func (a *appContext) Close() {
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.logger.Warn("Failed to release resource", zap.Error(err))
			}
		}
	})
}

// locationFrom returns the coordinate given with --lat/--lng, or a provider that reports
// ErrUnavailable when neither flag was set. The flags only make sense as a pair.
func locationFrom(cmd *cobra.Command) (location.Provider, error) {
	flags := cmd.Flags()
	latSet, lngSet := flags.Changed("lat"), flags.Changed("lng")
	switch {
	case !latSet && !lngSet:
		return location.NewStatic(nil), nil
	case latSet != lngSet:
		return nil, errors.New("--lat and --lng must be given together")
	}
	loc := model.Location{Lat: latFlag, Lng: lngFlag}
	if err := location.Validate(loc); err != nil {
		return nil, err
	}
	return location.NewStatic(&loc), nil
}

func deviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "local"
	}
	return host
}

func requireSignedIn() (session.State, error) {
	st := app.sessions.Current()
	if !st.SignedIn() {
		return st, fmt.Errorf("%w: run 'infrastreet signup' first", session.ErrNotSignedIn)
	}
	return st, nil
}
