package importer

import (
	"context"
	"time"
)

// Default pacing for destination requests.
const (
	DefaultRequestsPerPeriod = 5
	DefaultPause             = time.Second
	DefaultCooldown          = 60 * time.Second
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Throttle is a coarse periodic cooldown: after every Every submission
// attempts it pauses for Pause. Cooldown is the wait before retrying a
// rate-limited submission. It is not safe for concurrent use.
type Throttle struct {
	Every    int
	Pause    time.Duration
	Cooldown time.Duration
	Sleep    SleepFunc

	attempts int
}

// NewThrottle creates a Throttle that sleeps on the wall clock.
func NewThrottle(every int, pause, cooldown time.Duration) *Throttle {
	return &Throttle{Every: every, Pause: pause, Cooldown: cooldown, Sleep: Sleep}
}

// Before is called ahead of every submission attempt.
func (t *Throttle) Before(ctx context.Context) error {
	if t.Every > 0 && t.attempts > 0 && t.attempts%t.Every == 0 {
		if err := t.sleep(ctx, t.Pause); err != nil {
			return err
		}
	}
	t.attempts++
	return nil
}

// Backoff waits out a rate-limit response.
func (t *Throttle) Backoff(ctx context.Context) error {
	return t.sleep(ctx, t.Cooldown)
}

// Attempts returns the number of submissions made so far.
func (t *Throttle) Attempts() int { return t.attempts }

func (t *Throttle) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if t.Sleep == nil {
		return Sleep(ctx, d)
	}
	return t.Sleep(ctx, d)
}

// Sleep waits for d, returning early with ctx.Err() if ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
