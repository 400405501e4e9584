package memory

import (
	"log/slog"
	"time"
)

// DefaultSweepInterval is the period between background cleanup runs.
const DefaultSweepInterval = time.Minute

// Sweeper runs XsrfCache.Cleanup on a fixed interval. Runs never overlap:
// the next tick waits for the previous Cleanup to return.
type Sweeper struct {
	cache    *XsrfCache
	interval time.Duration
	done     chan struct{}
	stopped  chan struct{}
}

// NewSweeper creates a sweeper for cache. A non-positive interval falls back
// to DefaultSweepInterval.
func NewSweeper(cache *XsrfCache, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		cache:    cache,
		interval: interval,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *Sweeper) Start() {
	go s.run()
	slog.Info("XSRF token cleanup started", "interval", s.interval)
}

// Stop terminates the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	close(s.done)
	<-s.stopped
	slog.Info("XSRF token cleanup stopped")
}

func (s *Sweeper) run() {
	defer close(s.stopped)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cache.Cleanup()
		case <-s.done:
			return
		}
	}
}
