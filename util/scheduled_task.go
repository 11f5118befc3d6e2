package util

import (
	"sync"
	"time"
)

// ScheduledTask runs fn once after a delay unless cancelled first.
type ScheduledTask struct {
	mu        sync.Mutex
	timer     *time.Timer
	fired     bool
	cancelled bool
}

func Schedule(delay time.Duration, fn func()) *ScheduledTask {
	t := &ScheduledTask{}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.cancelled {
			t.mu.Unlock()
			return
		}
		t.fired = true
		t.mu.Unlock()
		fn()
	})
	return t
}

// Cancel prevents fn from running. It returns false if fn already started.
func (t *ScheduledTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired {
		return false
	}
	t.cancelled = true
	t.timer.Stop()
	return true
}

func (t *ScheduledTask) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}
