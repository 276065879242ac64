// Package solver holds what the ACO and GA engines share: the run-control
// state machine, iteration snapshots, statistics and the observer contract.
package solver

import (
	"context"
	"errors"
	"sync"
)

// State of a solver run: Idle -> Running -> {Paused <-> Running} -> {Completed | Stopped}.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Completed
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning is returned by Run on an instance whose loop is active.
var ErrAlreadyRunning = errors.New("solver already running")

// Control is the run state of one solver instance. All methods are safe
// to call from goroutines other than the one running the search loop.
// The zero value is ready to use.
type Control struct {
	mu     sync.Mutex
	state  State
	stop   bool
	paused bool
	wake   chan struct{}
}

// Begin moves the control into Running. A stop requested while idle is
// kept, so the run ends at its first iteration boundary.
func (c *Control) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Running, Paused:
		return ErrAlreadyRunning
	case Completed, Stopped:
		c.stop = false
	}
	c.state = Running
	c.paused = false
	return nil
}

// Stop requests termination at the next iteration boundary. Idempotent.
func (c *Control) Stop() {
	c.mu.Lock()
	c.stop = true
	c.broadcast()
	c.mu.Unlock()
}

// Pause blocks the loop before its next iteration. Only affects a running solver.
func (c *Control) Pause() {
	c.mu.Lock()
	if c.state == Running {
		c.paused = true
		c.state = Paused
	}
	c.mu.Unlock()
}

// Resume releases a paused loop.
func (c *Control) Resume() {
	c.mu.Lock()
	if c.state == Paused {
		c.paused = false
		c.state = Running
		c.broadcast()
	}
	c.mu.Unlock()
}

// State reports the current state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StopRequested reports whether Stop was called for the current run.
func (c *Control) StopRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop
}

// Checkpoint is called at every iteration boundary. It blocks while the run
// is paused and returns false once a stop was requested or ctx is done.
func (c *Control) Checkpoint(ctx context.Context) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		c.mu.Lock()
		if c.stop {
			c.mu.Unlock()
			return false
		}
		if !c.paused {
			c.mu.Unlock()
			return true
		}
		ch := c.waitCh()
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return false
		}
	}
}

// Finish ends the run and returns Completed or Stopped.
func (c *Control) Finish() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	if c.stop {
		c.state = Stopped
	} else {
		c.state = Completed
	}
	return c.state
}

// Drive runs up to max iterations. Before each one it honors pause and stop;
// after each one it hands a snapshot to step. iterate returns true to end the
// loop early (e.g. stagnation). Cancelling ctx counts as a stop. It returns
// the number of completed iterations and the final state.
func (c *Control) Drive(ctx context.Context, max int, iterate func(k int) bool, snapshot func(k int) Snapshot, step StepFunc) (int, State) {
	done := 0
	for k := 0; k < max; k++ {
		if !c.Checkpoint(ctx) {
			break
		}
		last := iterate(k)
		done = k + 1
		if step != nil && step(snapshot(k)) {
			c.Stop()
		}
		if last {
			break
		}
	}
	if ctx.Err() != nil {
		c.Stop()
	}
	return done, c.Finish()
}

// waitCh must be called with mu held.
func (c *Control) waitCh() chan struct{} {
	if c.wake == nil {
		c.wake = make(chan struct{})
	}
	return c.wake
}

// broadcast must be called with mu held.
func (c *Control) broadcast() {
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
}
