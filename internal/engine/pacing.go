package engine

import (
	"context"
	"time"
)

// Sleeper waits between emitted batches. Implementations must return
// ctx.Err() promptly once ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacing weights relative to the base delay, following the rhythm of a
// task: short hops between bookkeeping updates, full delays around the
// slow analyzing and completion steps.
const (
	paceStart    = 1.0
	paceMove     = 0.5
	paceAnalyze  = 1.0
	paceExecute  = 0.5
	paceProgress = 0.3
	paceTerminal = 1.0
)

func scale(d time.Duration, weight float64) time.Duration {
	return time.Duration(float64(d) * weight)
}
