package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingChecker struct {
	calls atomic.Int32
}

func (c *countingChecker) CheckExpiry(context.Context) bool {
	return c.calls.Add(1) == 1
}

func TestExpiryWatcher_TicksUntilCancelled(t *testing.T) {
	checker := &countingChecker{}
	w := NewExpiryWatcher(checker, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return checker.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestExpiryWatcher_Disabled(t *testing.T) {
	checker := &countingChecker{}
	w := NewExpiryWatcher(checker, 0, nil)

	w.Run(context.Background())
	assert.Zero(t, checker.calls.Load())
}
