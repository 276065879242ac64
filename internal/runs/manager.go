// Package runs launches solver runs in the background and relays their
// progress to the store, the event broker, metrics and completion webhooks.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cvrpsim/internal/aco"
	"cvrpsim/internal/config"
	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/ga"
	"cvrpsim/internal/metrics"
	"cvrpsim/internal/solver"
	"cvrpsim/internal/store"
	"cvrpsim/internal/webhooks"
)

// Event types published for a run.
const (
	EventStep      = "run.step"
	EventPaused    = "run.paused"
	EventResumed   = "run.resumed"
	EventCompleted = "run.completed"
	EventStopped   = "run.stopped"
	EventFailed    = "run.failed"
)

var (
	// ErrUnknownAlgorithm is returned for algorithms other than aco and ga.
	ErrUnknownAlgorithm = fmt.Errorf("%w: unknown algorithm", cvrp.ErrConfig)
	// ErrNotActive is returned when controlling a run that already finished.
	ErrNotActive = errors.New("run is not active")
)

// Event is one message for run subscribers.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Broadcaster fans events out to the subscribers of a run.
type Broadcaster interface {
	Publish(runID string, evt Event)
}

// Request starts a run. A nil algorithm config selects the defaults.
type Request struct {
	ProblemID      string      `json:"problemId" validate:"required"`
	Algorithm      string      `json:"algorithm" validate:"required,oneof=aco ga"`
	ACO            *aco.Config `json:"aco,omitempty"`
	GA             *ga.Config  `json:"ga,omitempty"`
	CallbackURL    string      `json:"callbackUrl,omitempty" validate:"omitempty,url"`
	CallbackSecret string      `json:"callbackSecret,omitempty"`
}

// Manager owns the active runs of the process.
type Manager struct {
	Store    store.Store
	Events   Broadcaster
	Webhooks *webhooks.Publisher
	Defaults config.Solvers
	// SnapshotRPS caps run.step events per run; zero means no cap.
	SnapshotRPS float64

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

type activeRun struct {
	run    store.Run
	solver solver.Solver
	cancel context.CancelFunc
}

func NewManager(s store.Store, events Broadcaster, defaults config.Solvers, snapshotRPS float64) *Manager {
	return &Manager{
		Store:       s,
		Events:      events,
		Webhooks:    webhooks.NewPublisher(s),
		Defaults:    defaults,
		SnapshotRPS: snapshotRPS,
		active:      map[string]*activeRun{},
	}
}

// Start loads the problem, builds the solver and runs it on its own goroutine.
// The returned record has status running.
func (m *Manager) Start(ctx context.Context, tenantID string, req Request) (store.Run, error) {
	prob, err := m.Store.GetProblem(ctx, tenantID, req.ProblemID)
	if err != nil {
		return store.Run{}, err
	}
	p, err := cvrp.FromRecord(prob.Record)
	if err != nil {
		return store.Run{}, err
	}
	s, cfg, err := m.build(p, req)
	if err != nil {
		return store.Run{}, err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return store.Run{}, err
	}
	run, err := m.Store.CreateRun(ctx, store.Run{
		TenantID:       tenantID,
		ProblemID:      prob.ID,
		Algorithm:      req.Algorithm,
		Config:         cfgJSON,
		Status:         store.RunRunning,
		CallbackURL:    req.CallbackURL,
		CallbackSecret: req.CallbackSecret,
	})
	if err != nil {
		return store.Run{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.active == nil {
		m.active = map[string]*activeRun{}
	}
	m.active[run.ID] = &activeRun{run: run, solver: s, cancel: cancel}
	m.mu.Unlock()

	metrics.ActiveRuns.WithLabelValues(run.Algorithm).Inc()
	log.Printf("run %s: %s started on problem %s (%d customers)", run.ID, run.Algorithm, prob.ID, p.NumCustomers())
	m.wg.Add(1)
	go m.execute(runCtx, run, s)
	return run, nil
}

func (m *Manager) build(p *cvrp.Problem, req Request) (solver.Solver, any, error) {
	switch req.Algorithm {
	case aco.Name:
		cfg := m.Defaults.ACO
		if req.ACO != nil {
			cfg = *req.ACO
		}
		s, err := aco.New(p, cfg)
		return s, cfg, err
	case ga.Name:
		cfg := m.Defaults.GA
		if req.GA != nil {
			cfg = *req.GA
		}
		s, err := ga.New(p, cfg)
		return s, cfg, err
	default:
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownAlgorithm, req.Algorithm)
	}
}

func (m *Manager) execute(ctx context.Context, run store.Run, s solver.Solver) {
	defer m.wg.Done()
	defer metrics.ActiveRuns.WithLabelValues(run.Algorithm).Dec()

	var lim *rate.Limiter
	if m.SnapshotRPS > 0 {
		lim = rate.NewLimiter(rate.Limit(m.SnapshotRPS), 1)
	}
	rec := &progress{m: m, run: run, lastBest: -1}
	done := func(best cvrp.Solution, cost float64) {
		if m.Webhooks == nil {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.Webhooks.RunCompleted(wctx, run, best, cost); err != nil {
			log.Printf("run %s: enqueue completion webhook: %v", run.ID, err)
		}
	}

	res, err := s.Run(ctx, solver.Throttle(ctx, lim, rec.step), done)
	m.finish(run, res, err)
}

// finish records the outcome and publishes the final event.
func (m *Manager) finish(run store.Run, res solver.Result, runErr error) {
	m.mu.Lock()
	if a := m.active[run.ID]; a != nil {
		a.cancel()
		delete(m.active, run.ID)
	}
	m.mu.Unlock()

	upd := store.RunUpdate{ID: run.ID, Iterations: res.Iterations, Finished: true}
	evt := Event{Data: map[string]any{"runId": run.ID, "iterations": res.Iterations, "elapsedMs": res.Elapsed.Milliseconds()}}
	switch {
	case runErr != nil:
		upd.Status, upd.Error = store.RunFailed, runErr.Error()
		evt.Type = EventFailed
		evt.Data["error"] = runErr.Error()
	case res.Outcome == solver.Completed:
		upd.Status = store.RunCompleted
		evt.Type = EventCompleted
	default:
		upd.Status = store.RunStopped
		evt.Type = EventStopped
	}
	if res.Solution != nil {
		cost := res.Cost
		upd.BestCost, upd.BestSolution = &cost, res.Solution
		evt.Data["bestCost"] = res.Cost
		evt.Data["bestSolution"] = res.Solution
		metrics.BestCost.WithLabelValues(run.Algorithm).Set(res.Cost)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Store.UpdateRun(ctx, upd); err != nil {
		log.Printf("run %s: record outcome: %v", run.ID, err)
	}
	metrics.Runs.WithLabelValues(run.Algorithm, upd.Status).Inc()
	log.Printf("run %s: %s after %d iterations (best %.2f, %s)", run.ID, upd.Status, res.Iterations, res.Cost, res.Elapsed.Round(time.Millisecond))
	m.publish(run.ID, evt)
}

// progress relays snapshots of one run.
type progress struct {
	m        *Manager
	run      store.Run
	lastBest float64
}

// persistEvery bounds store writes while the best cost is unchanged.
const persistEvery = 10

func (p *progress) step(snap solver.Snapshot) bool {
	metrics.Iterations.WithLabelValues(p.run.Algorithm).Inc()
	metrics.IterationDuration.WithLabelValues(p.run.Algorithm).Observe(snap.Stats.Elapsed.Seconds())

	improved := p.lastBest < 0 || snap.BestCost < p.lastBest
	if improved || (snap.Iteration+1)%persistEvery == 0 {
		upd := store.RunUpdate{ID: p.run.ID, Iterations: snap.Iteration + 1}
		if improved {
			cost := snap.BestCost
			upd.BestCost, upd.BestSolution = &cost, snap.BestSolution
			p.lastBest = cost
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := p.m.Store.UpdateRun(ctx, upd); err != nil {
			log.Printf("run %s: record progress: %v", p.run.ID, err)
		}
		cancel()
	}

	p.m.publish(p.run.ID, Event{Type: EventStep, Data: map[string]any{
		"runId":         p.run.ID,
		"algorithm":     snap.Algorithm,
		"iteration":     snap.Iteration,
		"maxIterations": snap.MaxIterations,
		"progress":      snap.Progress,
		"cost":          snap.Cost,
		"solution":      snap.Solution,
		"bestCost":      snap.BestCost,
		"bestSolution":  snap.BestSolution,
		"stats":         snap.Stats,
	}})
	return false
}

func (m *Manager) publish(runID string, evt Event) {
	if m.Events != nil {
		m.Events.Publish(runID, evt)
	}
}

func (m *Manager) lookup(ctx context.Context, tenantID, id string) (*activeRun, error) {
	m.mu.Lock()
	a := m.active[id]
	m.mu.Unlock()
	if a != nil && a.run.TenantID == tenantID {
		return a, nil
	}
	if _, err := m.Store.GetRun(ctx, tenantID, id); err != nil {
		return nil, err
	}
	return nil, ErrNotActive
}

// Stop ends the run at its next iteration boundary.
func (m *Manager) Stop(ctx context.Context, tenantID, id string) error {
	a, err := m.lookup(ctx, tenantID, id)
	if err != nil {
		return err
	}
	a.solver.Stop()
	return nil
}

// Pause holds the run before its next iteration.
func (m *Manager) Pause(ctx context.Context, tenantID, id string) error {
	a, err := m.lookup(ctx, tenantID, id)
	if err != nil {
		return err
	}
	a.solver.Pause()
	if a.solver.State() == solver.Paused {
		_ = m.Store.UpdateRun(ctx, store.RunUpdate{ID: id, Status: store.RunPaused})
		m.publish(id, Event{Type: EventPaused, Data: map[string]any{"runId": id}})
	}
	return nil
}

// Resume continues a paused run.
func (m *Manager) Resume(ctx context.Context, tenantID, id string) error {
	a, err := m.lookup(ctx, tenantID, id)
	if err != nil {
		return err
	}
	wasPaused := a.solver.State() == solver.Paused
	a.solver.Resume()
	if wasPaused {
		_ = m.Store.UpdateRun(ctx, store.RunUpdate{ID: id, Status: store.RunRunning})
		m.publish(id, Event{Type: EventResumed, Data: map[string]any{"runId": id}})
	}
	return nil
}

// Active reports the number of runs that have not finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Wait blocks until every started run has finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Shutdown stops every active run and waits for them, or for ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, a := range m.active {
		a.solver.Stop()
	}
	m.mu.Unlock()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
