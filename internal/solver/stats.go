package solver

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary of a cost sample.
type Summary struct {
	Min, Mean, Max, StdDev float64
}

// Summarize computes min, mean, max and sample standard deviation of xs.
// The standard deviation of fewer than two values is 0.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	s := Summary{Min: floats.Min(xs), Max: floats.Max(xs)}
	if len(xs) < 2 {
		s.Mean = xs[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	return s
}

// MatrixRange returns min, mean and max over all entries of m.
func MatrixRange(m [][]float64) (lo, mean, hi float64) {
	n := 0
	sum := 0.0
	for _, row := range m {
		if len(row) == 0 {
			continue
		}
		rlo, rhi := floats.Min(row), floats.Max(row)
		if n == 0 || rlo < lo {
			lo = rlo
		}
		if n == 0 || rhi > hi {
			hi = rhi
		}
		sum += floats.Sum(row)
		n += len(row)
	}
	if n == 0 {
		return 0, 0, 0
	}
	return lo, sum / float64(n), hi
}

// Stats fills the cost fields of an IterationStats from the costs of one iteration.
func Stats(iteration int, costs []float64, globalBest float64) IterationStats {
	s := Summarize(costs)
	return IterationStats{
		Iteration:      iteration,
		BestCost:       s.Min,
		AvgCost:        s.Mean,
		WorstCost:      s.Max,
		StdDev:         s.StdDev,
		GlobalBestCost: globalBest,
	}
}
