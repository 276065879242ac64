package solver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestControlLifecycle(t *testing.T) {
	var c Control
	require.Equal(t, Idle, c.State())
	require.NoError(t, c.Begin())
	require.ErrorIs(t, c.Begin(), ErrAlreadyRunning)

	c.Pause()
	require.Equal(t, Paused, c.State())
	require.ErrorIs(t, c.Begin(), ErrAlreadyRunning)
	c.Resume()
	require.Equal(t, Running, c.State())

	require.Equal(t, Completed, c.Finish())
	// rerun clears the previous stop flag
	c.Stop()
	require.NoError(t, c.Begin())
	require.False(t, c.StopRequested())
	require.Equal(t, Completed, c.Finish())
}

func TestPauseResumeOutsideRunAreNoOps(t *testing.T) {
	var c Control
	c.Pause()
	require.Equal(t, Idle, c.State())
	c.Resume()
	require.Equal(t, Idle, c.State())
}

func TestStopWhileIdleEndsNextRunImmediately(t *testing.T) {
	var c Control
	c.Stop()
	require.NoError(t, c.Begin())
	n, st := c.Drive(context.Background(), 10, func(int) bool { return false }, nil, nil)
	require.Zero(t, n)
	require.Equal(t, Stopped, st)
}

func TestDriveRunsAllIterations(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	var seen []int
	n, st := c.Drive(context.Background(), 5,
		func(int) bool { return false },
		func(k int) Snapshot { return Snapshot{Iteration: k} },
		func(s Snapshot) bool { seen = append(seen, s.Iteration); return false })
	require.Equal(t, 5, n)
	require.Equal(t, Completed, st)
	require.Equal(t, []int{0, 1, 2, 3, 4}, seen)
}

func TestDriveStopFromCallback(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	n, st := c.Drive(context.Background(), 100,
		func(int) bool { return false },
		func(k int) Snapshot { return Snapshot{Iteration: k} },
		func(s Snapshot) bool { return s.Iteration == 2 })
	require.Equal(t, 3, n)
	require.Equal(t, Stopped, st)
}

func TestDriveEarlyExitCompletes(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	n, st := c.Drive(context.Background(), 100, func(k int) bool { return k == 6 }, nil, nil)
	require.Equal(t, 7, n)
	require.Equal(t, Completed, st)
}

func TestDriveStopFromAnotherGoroutine(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	ran := make(chan int, 1000)
	go func() {
		<-ran
		c.Stop()
	}()
	n, st := c.Drive(context.Background(), 1_000_000, func(k int) bool {
		ran <- k
		time.Sleep(time.Millisecond)
		return false
	}, nil, nil)
	require.Equal(t, Stopped, st)
	require.Less(t, n, 1_000_000)
}

func TestDrivePauseBlocksUntilResume(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	iters := make(chan int, 100)
	paused := make(chan struct{})
	result := make(chan int, 1)
	go func() {
		n, _ := c.Drive(context.Background(), 10,
			func(k int) bool { iters <- k; return false },
			func(k int) Snapshot { return Snapshot{Iteration: k} },
			func(s Snapshot) bool {
				if s.Iteration == 1 {
					c.Pause()
					close(paused)
				}
				return false
			})
		result <- n
	}()

	<-paused
	time.Sleep(30 * time.Millisecond)
	require.Len(t, iters, 2)
	require.Equal(t, Paused, c.State())

	c.Resume()
	select {
	case n := <-result:
		require.Equal(t, 10, n)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not resume")
	}
	require.Equal(t, Completed, c.State())
}

func TestDriveStopWhilePaused(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	c.Pause()
	done := make(chan State, 1)
	go func() {
		_, st := c.Drive(context.Background(), 10, func(int) bool { return false }, nil, nil)
		done <- st
	}()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
	select {
	case st := <-done:
		require.Equal(t, Stopped, st)
	case <-time.After(5 * time.Second):
		t.Fatal("paused run ignored stop")
	}
}

func TestDriveContextCancel(t *testing.T) {
	var c Control
	require.NoError(t, c.Begin())
	ctx, cancel := context.WithCancel(context.Background())
	n, st := c.Drive(ctx, 100, func(k int) bool {
		if k == 3 {
			cancel()
		}
		return false
	}, nil, nil)
	require.Equal(t, 4, n)
	require.Equal(t, Stopped, st)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.Equal(t, 2.0, s.Min)
	require.Equal(t, 9.0, s.Max)
	require.InDelta(t, 5.0, s.Mean, 1e-12)
	require.InDelta(t, 2.138, s.StdDev, 1e-3)

	one := Summarize([]float64{3})
	require.Equal(t, Summary{Min: 3, Mean: 3, Max: 3}, one)
	require.Equal(t, Summary{}, Summarize(nil))
}

func TestMatrixRange(t *testing.T) {
	lo, mean, hi := MatrixRange([][]float64{{1, 2}, {3, 6}})
	require.Equal(t, 1.0, lo)
	require.Equal(t, 3.0, mean)
	require.Equal(t, 6.0, hi)
}

func TestHistoryBestCosts(t *testing.T) {
	h := History{{GlobalBestCost: 5}, {GlobalBestCost: 4}}
	require.Equal(t, []float64{5, 4}, h.BestCosts())
}

func TestThrottleAndChain(t *testing.T) {
	calls := 0
	count := func(Snapshot) bool { calls++; return false }
	require.Nil(t, Throttle(context.Background(), nil, nil))

	lim := rate.NewLimiter(rate.Inf, 1)
	step := Chain(Throttle(context.Background(), lim, count), nil, func(s Snapshot) bool { return s.Iteration > 0 })
	require.False(t, step(Snapshot{Iteration: 0}))
	require.True(t, step(Snapshot{Iteration: 1}))
	require.Equal(t, 2, calls)
}
