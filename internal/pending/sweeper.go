package pending

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper purges stale registry entries on a fixed interval.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	maxAge   time.Duration
	log      *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewSweeper(registry *Registry, interval, maxAge time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		maxAge:   maxAge,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if purged := s.registry.Sweep(s.maxAge); purged > 0 {
					s.log.Warn("purged stale pending calls", "purged", purged, "max_age", s.maxAge.String())
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}
