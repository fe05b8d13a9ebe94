package clock

import (
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	c.Sleep(150 * time.Millisecond)
	c.Advance(time.Second)

	if got := c.Now().Sub(start); got != 1150*time.Millisecond {
		t.Errorf("elapsed = %v, want 1.15s", got)
	}
	if c.Slept() != 150*time.Millisecond {
		t.Errorf("Slept() = %v, want 150ms", c.Slept())
	}
}

func TestFake_OnSleepHook(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	calls := 0
	c.OnSleep(func(time.Time) { calls++ })

	c.Sleep(time.Millisecond)
	c.Sleep(time.Millisecond)

	if calls != 2 {
		t.Errorf("hook called %d times, want 2", calls)
	}
}
