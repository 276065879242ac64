package solver

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle wraps step so the search loop waits on lim after each callback.
// Visual consumers use it to cap the snapshot rate; the delay happens at the
// iteration boundary, never inside an iteration.
func Throttle(ctx context.Context, lim *rate.Limiter, step StepFunc) StepFunc {
	if lim == nil || step == nil {
		return step
	}
	return func(s Snapshot) bool {
		if step(s) {
			return true
		}
		// a cancelled ctx is picked up by the next checkpoint
		_ = lim.Wait(ctx)
		return false
	}
}

// Chain calls every non-nil step in order and requests a stop if any of them
// does. It returns nil when every step is nil.
func Chain(steps ...StepFunc) StepFunc {
	var set []StepFunc
	for _, f := range steps {
		if f != nil {
			set = append(set, f)
		}
	}
	if len(set) == 0 {
		return nil
	}
	return func(s Snapshot) bool {
		stop := false
		for _, f := range set {
			if f(s) {
				stop = true
			}
		}
		return stop
	}
}
