package solver

import (
	"context"
	"time"

	"cvrpsim/internal/cvrp"
)

// IterationStats summarizes one iteration (ACO) or generation (GA).
type IterationStats struct {
	Iteration      int           `json:"iteration"`
	BestCost       float64       `json:"bestCost"`
	AvgCost        float64       `json:"avgCost"`
	WorstCost      float64       `json:"worstCost"`
	StdDev         float64       `json:"stdDev"`
	GlobalBestCost float64       `json:"globalBestCost"`
	Elapsed        time.Duration `json:"elapsedNs"`

	PheromoneMin float64 `json:"pheromoneMin,omitempty"`
	PheromoneAvg float64 `json:"pheromoneAvg,omitempty"`
	PheromoneMax float64 `json:"pheromoneMax,omitempty"`

	// Diversity is the mean pairwise Hamming distance in percent of chromosome length.
	Diversity float64 `json:"diversity,omitempty"`
}

// History is the per-iteration record of a run.
type History []IterationStats

// BestCosts returns the global best cost after each iteration.
func (h History) BestCosts() []float64 {
	out := make([]float64, len(h))
	for i, s := range h {
		out[i] = s.GlobalBestCost
	}
	return out
}

// Snapshot is handed to the step callback after an iteration completes.
// It is a copy; observers may keep it.
type Snapshot struct {
	Algorithm     string  `json:"algorithm"`
	Iteration     int     `json:"iteration"`
	MaxIterations int     `json:"maxIterations"`
	Progress      float64 `json:"progress"`

	Solution     cvrp.Solution `json:"solution"`
	Cost         float64       `json:"cost"`
	BestSolution cvrp.Solution `json:"bestSolution"`
	BestCost     float64       `json:"bestCost"`

	Stats   IterationStats `json:"stats"`
	History History        `json:"history"`

	// ACO only.
	Pheromone [][]float64 `json:"pheromone,omitempty"`

	// GA only.
	Population [][]int  `json:"population,omitempty"`
	Fitness    []float64 `json:"fitness,omitempty"`
}

// StepFunc observes a finished iteration. Returning true requests a stop.
type StepFunc func(Snapshot) bool

// CompleteFunc receives the best solution when a run completes normally.
type CompleteFunc func(best cvrp.Solution, cost float64)

// Result is returned by Run.
type Result struct {
	Solution   cvrp.Solution `json:"solution"`
	Cost       float64       `json:"cost"`
	Iterations int           `json:"iterations"`
	Outcome    State         `json:"outcome"`
	Elapsed    time.Duration `json:"elapsedNs"`
	History    History       `json:"history"`
}

// Solver is the control surface shared by the ACO and GA engines.
type Solver interface {
	Run(ctx context.Context, step StepFunc, done CompleteFunc) (Result, error)
	Stop()
	Pause()
	Resume()
	State() State
}

// CopyMatrix returns a deep copy of m.
func CopyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
