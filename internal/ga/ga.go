// Package ga implements a permutation genetic algorithm for the CVRP.
// Chromosomes are orderings of the customers; they are decoded into routes
// by cheapest insertion under the capacity limit.
package ga

import (
	"context"
	"math"
	"math/rand"
	"time"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/opt"
	"cvrpsim/internal/solver"
)

// Name identifies the algorithm in snapshots and run records.
const Name = "ga"

// Solver owns one population.
type Solver struct {
	cfg     Config
	problem *cvrp.Problem
	ctl     solver.Control

	selectFn selectFunc
	crossFn  crossoverFunc
	mutateFn mutateFunc

	rng        *rand.Rand
	population [][]int
	fitness    []float64
	costs      []float64
	solutions  []cvrp.Solution
	genBest    int

	best       cvrp.Solution
	bestCost   float64
	stagnation int
	history    solver.History
}

var _ solver.Solver = (*Solver)(nil)

// New returns a GA for p. Operators are resolved here once.
func New(p *cvrp.Problem, cfg Config) (*Solver, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Solver{
		cfg:      cfg,
		problem:  p,
		selectFn: selectors[cfg.Selection],
		crossFn:  crossovers[cfg.Crossover],
		mutateFn: mutators[cfg.Mutation],
	}, nil
}

// Config returns the configuration the solver was built with.
func (s *Solver) Config() Config { return s.cfg }

func (s *Solver) Stop()               { s.ctl.Stop() }
func (s *Solver) Pause()              { s.ctl.Pause() }
func (s *Solver) Resume()             { s.ctl.Resume() }
func (s *Solver) State() solver.State { return s.ctl.State() }

// Run evolves up to MaxGenerations generations, fewer when early stopping
// triggers. Callback semantics match the ACO solver: done fires only when
// the run was not stopped.
func (s *Solver) Run(ctx context.Context, step solver.StepFunc, done solver.CompleteFunc) (solver.Result, error) {
	if err := s.problem.Validate(); err != nil {
		return solver.Result{}, err
	}
	if err := s.ctl.Begin(); err != nil {
		return solver.Result{}, err
	}
	start := time.Now()
	s.reset()

	n, outcome := s.ctl.Drive(ctx, s.cfg.MaxGenerations, s.generation, s.snapshot, step)

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
	s.stagnation = 0
	s.history = nil

	n := s.problem.NumCustomers()
	s.population = make([][]int, s.cfg.PopulationSize)
	for i := range s.population {
		c := s.rng.Perm(n)
		for k := range c {
			c[k]++
		}
		s.population[i] = c
	}
}

// generation evaluates the current population (breeding it first from the
// previous one after generation 0) and reports whether stagnation ended the run.
func (s *Solver) generation(k int) bool {
	t0 := time.Now()
	if k > 0 {
		s.breed()
	}
	s.evaluate()

	s.genBest = 0
	for i, c := range s.costs {
		if c < s.costs[s.genBest] {
			s.genBest = i
		}
	}
	if s.costs[s.genBest] < s.bestCost {
		s.best = s.solutions[s.genBest].Clone()
		s.bestCost = s.costs[s.genBest]
		s.stagnation = 0
	} else {
		s.stagnation++
	}

	st := solver.Stats(k, s.costs, s.bestCost)
	st.Diversity = diversity(s.population)
	st.Elapsed = time.Since(t0)
	s.history = append(s.history, st)

	return s.cfg.EarlyStopping > 0 && s.stagnation >= s.cfg.EarlyStopping
}

func (s *Solver) evaluate() {
	size := len(s.population)
	s.fitness = make([]float64, size)
	s.costs = make([]float64, size)
	s.solutions = make([]cvrp.Solution, size)
	for i, c := range s.population {
		sol := Decode(s.problem, c)
		if s.cfg.LocalSearch {
			sol = opt.ImproveSolution(s.problem, sol)
			s.population[i] = opt.Flatten(sol)
		}
		s.solutions[i] = sol
		s.costs[i] = s.problem.SolutionCost(sol)
		s.fitness[i] = s.costs[i] + Penalty(s.problem, sol, s.cfg.CapacityPenalty, s.cfg.RoutePenalty)
	}
}

// breed replaces the population: elites are carried over unchanged and the
// rest is filled with repaired offspring.
func (s *Solver) breed() {
	size := s.cfg.PopulationSize
	n := s.problem.NumCustomers()
	next := make([][]int, 0, size)
	for _, i := range argsort(s.fitness)[:s.cfg.Elitism] {
		next = append(next, clone(s.population[i]))
	}
	for len(next) < size {
		a := s.population[s.selectFn(s.rng, s.fitness, s.cfg.TournamentSize)]
		b := s.population[s.selectFn(s.rng, s.fitness, s.cfg.TournamentSize)]
		var c1, c2 []int
		if s.rng.Float64() < s.cfg.CrossoverRate {
			c1, c2 = s.crossFn(s.rng, a, b)
		} else {
			c1, c2 = clone(a), clone(b)
		}
		if s.rng.Float64() < s.cfg.MutationRate {
			s.mutateFn(s.rng, c1)
		}
		if s.rng.Float64() < s.cfg.MutationRate {
			s.mutateFn(s.rng, c2)
		}
		repair(c1, n)
		repair(c2, n)
		next = append(next, c1)
		if len(next) < size {
			next = append(next, c2)
		}
	}
	s.population = next
}

func (s *Solver) snapshot(k int) solver.Snapshot {
	pop := make([][]int, len(s.population))
	for i, c := range s.population {
		pop[i] = clone(c)
	}
	return solver.Snapshot{
		Algorithm:     Name,
		Iteration:     k,
		MaxIterations: s.cfg.MaxGenerations,
		Progress:      float64(k+1) / float64(s.cfg.MaxGenerations),
		Solution:      s.solutions[s.genBest].Clone(),
		Cost:          s.costs[s.genBest],
		BestSolution:  s.best.Clone(),
		BestCost:      s.bestCost,
		Stats:         s.history[len(s.history)-1],
		History:       append(solver.History(nil), s.history...),
		Population:    pop,
		Fitness:       append([]float64(nil), s.fitness...),
	}
}

// Decode turns a chromosome into routes by cheapest insertion and passes
// the result through the route feasibility check.
func Decode(p *cvrp.Problem, chromosome []int) cvrp.Solution {
	return opt.Feasible(p, opt.CheapestInsertion(p, chromosome))
}

// Penalty charges capPenalty per unit of demand over capacity and
// routePenalty per route beyond max(1, n/3).
func Penalty(p *cvrp.Problem, sol cvrp.Solution, capPenalty, routePenalty float64) float64 {
	pen := 0.0
	for _, r := range sol {
		if over := float64(p.RouteDemand(r)) - p.Capacity; over > 0 {
			pen += capPenalty * over
		}
	}
	bound := max(1, p.NumCustomers()/3)
	if extra := len(sol) - bound; extra > 0 {
		pen += routePenalty * float64(extra)
	}
	return pen
}

// diversity is the mean pairwise Hamming distance in percent of chromosome length.
func diversity(pop [][]int) float64 {
	if len(pop) < 2 || len(pop[0]) == 0 {
		return 0
	}
	total, pairs := 0, 0
	for i := 0; i < len(pop); i++ {
		for j := i + 1; j < len(pop); j++ {
			for k := range pop[i] {
				if pop[i][k] != pop[j][k] {
					total++
				}
			}
			pairs++
		}
	}
	return 100 * float64(total) / float64(pairs*len(pop[0]))
}
