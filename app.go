package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"game-companion/db"
	"game-companion/model"
	"game-companion/persist"
	"game-companion/remote"
	"game-companion/utils"
)

// app holds the long-lived pieces every command shares
type app struct {
	config     *utils.Config
	configPath string
	logger     *utils.Logger
	db         *db.DB
	remote     *remote.Store
	sync       *persist.Synchronizer
	metrics    *http.Server
}

func openApp(flags *rootFlags) (*app, error) {
	configPath := flags.configPath
	if configPath == "" {
		var err error
		configPath, err = utils.EnsureDefaultConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}
	config, err := utils.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := utils.NewLogger(utils.GetLogPath(config.Data.Dir), flags.debug || config.Data.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting Game Companion v%s, config %s", version, configPath)

	database, err := db.New(config.Data.DBPath)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database initialized: %s", config.Data.DBPath)

	a := &app{config: config, configPath: configPath, logger: logger, db: database}

	// a nil *remote.Store must not end up inside the interface
	var store persist.RemoteStore
	if config.Remote.Enabled {
		rs, err := remote.New(config.Remote.DSN, config.Remote.UserID)
		if err != nil {
			logger.Warn("Remote store unavailable, running local only: %v", err)
		} else {
			a.remote = rs
			store = rs
			logger.Info("Remote store connected for user %s", config.Remote.UserID)
		}
	}

	a.sync = persist.New(store, database, logger, persist.Options{
		Debounce:          config.Sync.Debounce(),
		RemoteConcurrency: config.Sync.RemoteConcurrency,
		Registerer:        prometheus.DefaultRegisterer,
	})

	if config.Metrics.Listen != "" {
		a.serveMetrics(config.Metrics.Listen)
	}
	return a, nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	a.metrics = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	utils.SafeGo(a.logger, "metrics server", func() {
		a.logger.Info("Serving metrics on %s", addr)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server stopped: %v", err)
		}
	})
}

// load reads the stored history through the synchronizer
func (a *app) load(ctx context.Context) (model.Collection, error) {
	c, source, err := a.sync.Load(ctx, model.NewCollection(time.Now()))
	if err != nil {
		return c, err
	}
	a.logger.Debug("History loaded from %s", source)
	return c, nil
}

// Close flushes pending saves and releases every resource
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.sync.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush pending saves: %v", err)
	}
	a.sync.Close()

	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to stop metrics server: %v", err)
		}
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Warn("Failed to close remote store: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close database: %v", err)
	}
	a.logger.Info("Application stopped")
	a.logger.Close()
}
