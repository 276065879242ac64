// Package aco implements an ant colony solver for the CVRP with optional
// MIN-MAX trail bounds, elitist reinforcement and 2-opt route improvement.
package aco

import (
	"context"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/opt"
	"cvrpsim/internal/solver"
)

// Name identifies the algorithm in snapshots and run records.
const Name = "aco"

// Solver owns one colony. Run may be called again after a run finishes;
// every run starts from fresh trails and a reseeded random source.
type Solver struct {
	cfg     Config
	problem *cvrp.Problem
	ctl     solver.Control

	rng       *rand.Rand
	pheromone [][]float64
	heuristic [][]float64
	minTau    float64
	maxTau    float64

	best         cvrp.Solution
	bestCost     float64
	iterBest     cvrp.Solution
	iterBestCost float64
	history      solver.History

	// scratch buffers reused by construct
	candidates []int
	weights    []float64
}

var _ solver.Solver = (*Solver)(nil)

// New returns a colony for p. The problem must be ready (distances computed)
// and is only read by the solver.
func New(p *cvrp.Problem, cfg Config) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Solver{
		cfg:       cfg,
		problem:   p,
		heuristic: heuristicMatrix(p),
	}, nil
}

// Config returns the configuration the solver was built with.
func (s *Solver) Config() Config { return s.cfg }

func (s *Solver) Stop()               { s.ctl.Stop() }
func (s *Solver) Pause()              { s.ctl.Pause() }
func (s *Solver) Resume()             { s.ctl.Resume() }
func (s *Solver) State() solver.State { return s.ctl.State() }

// Run executes up to MaxIterations iterations. step, if non-nil, observes
// every iteration; done is called with the best solution only when the run
// completes without being stopped. Cancelling ctx stops the run.
func (s *Solver) Run(ctx context.Context, step solver.StepFunc, done solver.CompleteFunc) (solver.Result, error) {
	if err := s.problem.Validate(); err != nil {
		return solver.Result{}, err
	}
	if err := s.ctl.Begin(); err != nil {
		return solver.Result{}, err
	}
	start := time.Now()
	s.reset()

	n, outcome := s.ctl.Drive(ctx, s.cfg.MaxIterations, s.iterate, s.snapshot, step)

	res := solver.Result{
		Iterations: n,
		Outcome:    outcome,
		Elapsed:    time.Since(start),
		History:    append(solver.History(nil), s.history...),
	}
	if s.best != nil {
		res.Solution = s.best.Clone()
		res.Cost = s.bestCost
	}
	if outcome == solver.Completed && done != nil {
		done(res.Solution, res.Cost)
	}
	return res, nil
}

func (s *Solver) reset() {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))
	s.best, s.bestCost = nil, math.Inf(1)
	s.iterBest, s.iterBestCost = nil, math.Inf(1)
	s.history = nil

	tau0 := s.cfg.InitialPheromone
	if s.cfg.MinMax {
		s.maxTau = tau0
		if c := s.problem.SolutionCost(opt.Savings(s.problem)); c > 0 {
			s.maxTau = 1 / (s.cfg.Rho * c)
		}
		s.minTau = s.maxTau * s.cfg.MinMaxRatio
		tau0 = s.maxTau
	}
	size := s.problem.Size()
	s.pheromone = make([][]float64, size)
	for i := range s.pheromone {
		s.pheromone[i] = make([]float64, size)
		for j := range s.pheromone[i] {
			s.pheromone[i][j] = tau0
		}
	}
}

func (s *Solver) iterate(k int) bool {
	t0 := time.Now()
	sols := make([]cvrp.Solution, s.cfg.NumAnts)
	costs := make([]float64, s.cfg.NumAnts)
	for a := range sols {
		sol := s.construct()
		if s.cfg.LocalSearch {
			sol = opt.ImproveSolution(s.problem, sol)
		}
		sols[a] = sol
		costs[a] = s.problem.SolutionCost(sol)
	}

	ib := floats.MinIdx(costs)
	s.iterBest, s.iterBestCost = sols[ib], costs[ib]
	if costs[ib] < s.bestCost {
		s.best, s.bestCost = sols[ib].Clone(), costs[ib]
	}

	s.updatePheromone(sols, costs)

	st := solver.Stats(k, costs, s.bestCost)
	st.PheromoneMin, st.PheromoneAvg, st.PheromoneMax = solver.MatrixRange(s.pheromone)
	st.Elapsed = time.Since(t0)
	s.history = append(s.history, st)
	return false
}

func (s *Solver) snapshot(k int) solver.Snapshot {
	return solver.Snapshot{
		Algorithm:     Name,
		Iteration:     k,
		MaxIterations: s.cfg.MaxIterations,
		Progress:      float64(k+1) / float64(s.cfg.MaxIterations),
		Solution:      s.iterBest.Clone(),
		Cost:          s.iterBestCost,
		BestSolution:  s.best.Clone(),
		BestCost:      s.bestCost,
		Stats:         s.history[len(s.history)-1],
		History:       append(solver.History(nil), s.history...),
		Pheromone:     solver.CopyMatrix(s.pheromone),
	}
}

// heuristicMatrix is 1/d, with 0 on the diagonal and for coincident nodes.
func heuristicMatrix(p *cvrp.Problem) [][]float64 {
	size := p.Size()
	eta := make([][]float64, size)
	for i := range eta {
		eta[i] = make([]float64, size)
		for j := range eta[i] {
			if d := p.Distance(i, j); i != j && d > 0 {
				eta[i][j] = 1 / d
			}
		}
	}
	return eta
}
