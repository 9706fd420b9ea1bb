// Package sweeper auto-resolves threats that were never actioned.
package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Store is the persistence surface the sweeper needs.
type Store interface {
	ResolveStaleThreats(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper resolves threats left in status new past a staleness window.
type Sweeper struct {
	store      Store
	staleAfter time.Duration
	logger     *slog.Logger
}

func New(store Store, staleAfter time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &Sweeper{
		store:      store,
		staleAfter: staleAfter,
		logger:     logger.With("component", "sweeper"),
	}
}

// Run resolves stale threats once. Errors are logged, not returned; the
// sweep fires from the scheduler and must never take it down.
func (s *Sweeper) Run(ctx context.Context) int {
	cutoff := time.Now().Add(-s.staleAfter)
	resolved, err := s.store.ResolveStaleThreats(ctx, cutoff)
	if err != nil {
		s.logger.Error("auto-resolve sweep failed", "error", err)
		return 0
	}
	if resolved > 0 {
		s.logger.Info("auto-resolved stale threats", "count", resolved, "stale_after", s.staleAfter)
	} else {
		s.logger.Info("no stale threats to resolve")
	}
	return resolved
}
