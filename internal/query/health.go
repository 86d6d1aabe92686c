package query

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// HealthCacheDuration is how long a catalog health result is reused.
const HealthCacheDuration = 10 * time.Second

// HealthCache rate limits catalog health checks. Health endpoints are
// unauthenticated, so every request must not hit DuckDB.
type HealthCache struct {
	engine QueryEngine
	ttl    time.Duration
	log    *slog.Logger

	mu        sync.RWMutex
	lastCheck time.Time
	lastError error
}

// NewHealthCache wraps engine with a HealthCacheDuration cache
func NewHealthCache(engine QueryEngine, logger *slog.Logger) *HealthCache {
	return &HealthCache{engine: engine, ttl: HealthCacheDuration, log: logger}
}

// Check returns the cached result or runs a fresh HealthCheck
func (h *HealthCache) Check(ctx context.Context) error {
	h.mu.RLock()
	if time.Since(h.lastCheck) < h.ttl {
		err := h.lastError
		h.mu.RUnlock()
		h.log.Debug("Health check: using cached result", "cached_error", err != nil)
		return err
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()

	// another goroutine may have refreshed while we waited
	if time.Since(h.lastCheck) < h.ttl {
		return h.lastError
	}

	h.log.Debug("Health check: performing catalog check")
	err := h.engine.HealthCheck(ctx)
	h.lastCheck = time.Now()
	h.lastError = err
	return err
}
