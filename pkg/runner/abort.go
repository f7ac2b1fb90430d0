package runner

import (
	"sync"
	"time"
)

const defaultAbortCooldown = 10 * time.Second

// AbortFlag is the process-wide halt signal checked at every turn
// checkpoint. It auto-clears after a fixed cooldown so a one-off operator
// abort does not wedge future runs.
type AbortFlag struct {
	mu       sync.Mutex
	aborted  bool
	timer    *time.Timer
	cooldown time.Duration
}

// NewAbortFlag creates a cleared flag with the standard 10s cooldown.
func NewAbortFlag() *AbortFlag {
	return &AbortFlag{cooldown: defaultAbortCooldown}
}

// NewAbortFlagWithCooldown overrides the auto-clear delay. Test hook.
func NewAbortFlagWithCooldown(d time.Duration) *AbortFlag {
	return &AbortFlag{cooldown: d}
}

// Trigger sets the flag and schedules the auto-clear.
func (f *AbortFlag) Trigger() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cooldown, f.Clear)
}

// Clear resets the flag.
func (f *AbortFlag) Clear() {
	f.mu.Lock()
	f.aborted = false
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.mu.Unlock()
}

// Aborted reports whether the flag is set.
func (f *AbortFlag) Aborted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aborted
}
