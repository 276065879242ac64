package main

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli"
	"gonum.org/v1/gonum/stat"

	"cvrpsim/internal/aco"
	"cvrpsim/internal/config"
	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/ga"
	"cvrpsim/internal/solver"
)

var compareCommand = cli.Command{
	Name:      "compare",
	Usage:     "run both algorithms repeatedly and print cost statistics",
	ArgsUsage: "<problem file>",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "runs", Value: 5, Usage: "runs per algorithm"},
		cli.IntFlag{Name: "workers", Value: runtime.NumCPU(), Usage: "concurrent runs"},
		cli.StringFlag{Name: "config", Usage: "YAML file with a solvers section"},
		cli.Int64Flag{Name: "seed", Usage: "base seed; run i uses seed+i"},
	},
	Action: func(c *cli.Context) error {
		p, err := loadProblem(c)
		if err != nil {
			return err
		}
		solvers, err := loadSolvers(c)
		if err != nil {
			return err
		}
		if c.Int("runs") < 1 {
			return fmt.Errorf("%w: runs must be >= 1", cvrp.ErrConfig)
		}
		rows := make([]comparison, 0, 2)
		for _, algo := range []string{aco.Name, ga.Name} {
			row, err := compare(context.Background(), p, algo, solvers, c.Int("runs"), c.Int("workers"))
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		printComparison(c.App.Writer, rows)
		return nil
	},
}

type comparison struct {
	Algorithm string
	Runs      int
	Cost      solver.Summary
	AvgTime   time.Duration
	Feasible  int
}

// compare solves independent clones of p runs times with at most workers
// runs in flight. A non-zero seed gives run i the seed seed+i.
func compare(ctx context.Context, p *cvrp.Problem, algo string, cfg config.Solvers, runs, workers int) (comparison, error) {
	costs := make([]float64, runs)
	secs := make([]float64, runs)
	valid := make([]bool, runs)

	wp := pool.New().WithErrors().WithMaxGoroutines(max(1, workers))
	for i := 0; i < runs; i++ {
		i := i
		run := cfg
		if run.ACO.Seed != 0 {
			run.ACO.Seed += int64(i)
		}
		if run.GA.Seed != 0 {
			run.GA.Seed += int64(i)
		}
		wp.Go(func() error {
			clone := p.Clone()
			s, err := newSolver(algo, clone, run)
			if err != nil {
				return err
			}
			res, err := s.Run(ctx, nil, nil)
			if err != nil {
				return err
			}
			costs[i] = res.Cost
			secs[i] = res.Elapsed.Seconds()
			valid[i] = clone.IsSolutionValid(res.Solution)
			return nil
		})
	}
	if err := wp.Wait(); err != nil {
		return comparison{}, fmt.Errorf("%s: %w", algo, err)
	}

	out := comparison{
		Algorithm: algo,
		Runs:      runs,
		Cost:      solver.Summarize(costs),
		AvgTime:   time.Duration(stat.Mean(secs, nil) * float64(time.Second)),
	}
	for _, ok := range valid {
		if ok {
			out.Feasible++
		}
	}
	return out, nil
}

func printComparison(w io.Writer, rows []comparison) {
	fmt.Fprintf(w, "%-6s %5s %12s %12s %12s %10s %12s\n", "algo", "runs", "avg cost", "min cost", "std", "feasible", "avg time")
	for _, r := range rows {
		fmt.Fprintf(w, "%-6s %5d %12.2f %12.2f %12.2f %10d %12s\n",
			r.Algorithm, r.Runs, r.Cost.Mean, r.Cost.Min, r.Cost.StdDev, r.Feasible, r.AvgTime.Round(time.Microsecond))
	}
}

func printResult(w io.Writer, p *cvrp.Problem, res solver.Result) {
	fmt.Fprintf(w, "outcome:    %s\n", res.Outcome)
	fmt.Fprintf(w, "iterations: %d\n", res.Iterations)
	fmt.Fprintf(w, "elapsed:    %s\n", res.Elapsed.Round(time.Microsecond))
	if res.Solution == nil {
		fmt.Fprintln(w, "no solution")
		return
	}
	fmt.Fprintf(w, "best cost:  %.2f\n", res.Cost)
	fmt.Fprintf(w, "valid:      %t\n", p.IsSolutionValid(res.Solution))
	for i, r := range res.Solution {
		fmt.Fprintf(w, "route %d (load %d): %v\n", i+1, p.RouteDemand(r), []int(r))
	}
}
