package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/config"
	"github.com/noot-app/petfood-nutrition-server/internal/dataset"
	"github.com/noot-app/petfood-nutrition-server/internal/query"
	"github.com/noot-app/petfood-nutrition-server/internal/session"
	"github.com/noot-app/petfood-nutrition-server/internal/store"
	"github.com/noot-app/petfood-nutrition-server/internal/validation"
)

// Runtime holds the long-lived components shared by the MCP and REST servers.
type Runtime struct {
	Config   *config.Config
	Dataset  *dataset.Manager
	Catalog  query.QueryEngine
	Health   *query.HealthCache
	Store    *store.SQLiteStore
	Analyzer *analysis.Analyzer
	Sessions *session.Manager

	log *slog.Logger
}

// Initializer handles common server initialization logic
type Initializer struct {
	config      *config.Config
	log         *slog.Logger
	dataManager *dataset.Manager
}

// NewInitializer creates a new server initializer
func NewInitializer(cfg *config.Config, logger *slog.Logger) *Initializer {
	return &Initializer{
		config:      cfg,
		log:         logger,
		dataManager: dataset.NewManager(cfg, logger),
	}
}

// Initialize ensures the catalog export, opens the catalog and the local
// store, loads the nutrient bounds and builds the pipeline.
func (i *Initializer) Initialize(ctx context.Context) (*Runtime, error) {
	start := time.Now()
	i.log.Info("Initializing server...")

	if i.config.IsDevelopment() {
		i.log.Warn("🚧 DEVELOPMENT MODE ENABLED 🚧",
			"environment", i.config.Environment,
			"note", "Detailed error messages will be returned to clients")
	}

	if err := i.dataManager.EnsureDataset(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dataset: %w", err)
	}

	engine, err := query.NewQueryEngine(i.config.DatasetPath, i.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create query engine: %w", err)
	}
	if err := engine.TestConnection(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to test connection: %w", err)
	}

	bounds := validation.DefaultBounds()
	if i.config.BoundsPath != "" {
		if bounds, err = validation.LoadBounds(i.config.BoundsPath); err != nil {
			engine.Close()
			return nil, fmt.Errorf("failed to load bounds: %w", err)
		}
		i.log.Info("Loaded nutrient bounds", "path", i.config.BoundsPath)
	}

	st, err := store.Open(i.config.SQLitePath, i.log)
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	analyzer := analysis.New(validation.New(bounds))
	rt := &Runtime{
		Config:   i.config,
		Dataset:  i.dataManager,
		Catalog:  engine,
		Health:   query.NewHealthCache(engine, i.log),
		Store:    st,
		Analyzer: analyzer,
		Sessions: session.NewManager(st, engine, analyzer, i.config.SessionTTL, config.Component(i.log, "session")),
		log:      i.log,
	}

	i.log.Info("Server initialized successfully", "duration", time.Since(start))
	return rt, nil
}

// StartBackground starts the catalog refresh loop and the session sweeper.
// Both stop when ctx is done.
func (rt *Runtime) StartBackground(ctx context.Context) {
	if rt.Config.RefreshIntervalHours > 0 && !rt.Config.DisableRemoteCheck {
		go rt.refreshLoop(ctx, rt.Config.RefreshInterval())
	}
	go rt.Sessions.Run(ctx, SessionSweepInterval)
}

func (rt *Runtime) refreshLoop(ctx context.Context, interval time.Duration) {
	rt.log.Info("Starting refresh loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rt.log.Info("Refresh loop stopping due to context cancellation")
			return
		case <-ticker.C:
			rt.log.Info("Refresh tick: checking catalog export")
			if err := rt.Dataset.EnsureDataset(ctx); err != nil {
				rt.log.Error("Refresh failed", "error", err)
			} else {
				rt.log.Info("Refresh completed successfully")
			}
		}
	}
}

// Close releases the catalog and the store.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Catalog != nil {
		errs = append(errs, rt.Catalog.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	return errors.Join(errs...)
}
