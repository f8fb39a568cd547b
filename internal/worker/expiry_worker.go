package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiryChecker clears an expired session and reports whether it did.
type ExpiryChecker interface {
	CheckExpiry(ctx context.Context) bool
}

// ExpiryWatcher periodically re-evaluates the stored token so an expired
// session is cleared without waiting for the next navigation.
type ExpiryWatcher struct {
	checker  ExpiryChecker
	interval time.Duration
	log      *zap.Logger
}

// NewExpiryWatcher builds a watcher. A non-positive interval disables it.
func NewExpiryWatcher(checker ExpiryChecker, interval time.Duration, logger *zap.Logger) *ExpiryWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExpiryWatcher{checker: checker, interval: interval, log: logger}
}

// Run blocks until ctx is done.
func (w *ExpiryWatcher) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.log.Info("expiry watcher disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.checker.CheckExpiry(ctx) {
				w.log.Info("session expired; cleared")
			}
		}
	}
}
