package bridge

import (
	"context"
	"time"

	"github.com/softkr/zed-claude-acp/internal/logging"
)

// minSweepInterval floors the reaper cadence regardless of how short the
// TTL is configured.
const minSweepInterval = 30 * time.Second

// IdleSessionReaper evicts sessions idle past the TTL. A session with an
// in-flight query is never evicted; liveness of in-flight work takes
// precedence over memory reclamation.
type IdleSessionReaper struct {
	registry *Registry
	buffer   *TextBufferer
	ttl      time.Duration
	logger   logging.Logger
	now      func() time.Time
}

// NewIdleSessionReaper creates a reaper over the registry. The buffer is
// flushed for a session before its removal so no pending text is lost.
func NewIdleSessionReaper(registry *Registry, buffer *TextBufferer, ttl time.Duration, logger logging.Logger) *IdleSessionReaper {
	return &IdleSessionReaper{
		registry: registry,
		buffer:   buffer,
		ttl:      ttl,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

// Interval derives the sweep cadence from the TTL.
func (r *IdleSessionReaper) Interval() time.Duration {
	interval := r.ttl / 6
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return interval
}

// Run sweeps on the derived interval until ctx is cancelled.
func (r *IdleSessionReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes every session idle strictly longer than the TTL with no
// active query.
func (r *IdleSessionReaper) Sweep() {
	cutoff := r.now().Add(-r.ttl)
	for _, session := range r.registry.Snapshot() {
		if session.HasActiveQuery() {
			continue
		}
		if !session.LastActive().Before(cutoff) {
			continue
		}
		r.buffer.Flush(session.ID)
		r.registry.Remove(session.ID)
		r.logger.Info("reaped idle session %s (idle since %s)", session.ID, session.LastActive().Format(time.RFC3339))
	}
}
