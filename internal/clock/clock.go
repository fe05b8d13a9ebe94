// Package clock abstracts time so the bounded waits in the control loop can
// be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time and blocking sleeps
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock. Now carries Go's monotonic reading, so elapsed-time
// arithmetic is immune to NTP steps.
type Real struct{}

// Now returns time.Now()
func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Fake is a manually advanced clock. Sleep advances it instead of blocking.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	onStep func(now time.Time)
}

// NewFake returns a Fake clock starting at start
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the fake time by d
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	hook, now := f.onStep, f.now
	f.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// Advance moves the fake time forward without counting it as slept
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set jumps the fake time to t, which may be in the past
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Slept returns the total time spent in Sleep
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// OnSleep registers a hook that runs after every Sleep. Tests use it to
// change the world (a sensor flipping, a clock syncing) mid-wait.
func (f *Fake) OnSleep(hook func(now time.Time)) {
	f.mu.Lock()
	f.onStep = hook
	f.mu.Unlock()
}
