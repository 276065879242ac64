package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli"

	"cvrpsim/internal/aco"
	"cvrpsim/internal/auth"
	"cvrpsim/internal/config"
	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/ga"
	"cvrpsim/internal/opt"
	"cvrpsim/internal/solver"
)

var generateCommand = cli.Command{
	Name:  "generate",
	Usage: "write a random problem",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "n", Value: 50, Usage: "number of customers"},
		cli.Float64Flag{Name: "capacity", Value: 100, Usage: "vehicle capacity"},
		cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
		cli.StringFlag{Name: "o", Usage: "output file (.json, .yaml); stdout when empty"},
	},
	Action: func(c *cli.Context) error {
		if c.Int("n") < 1 || c.Float64("capacity") <= 0 {
			return fmt.Errorf("%w: n must be >= 1 and capacity > 0", cvrp.ErrConfig)
		}
		p := cvrp.New(c.Float64("capacity"))
		p.LoadRandom(c.Int("n"), c.Float64("capacity"), c.Int64("seed"))
		if out := c.String("o"); out != "" {
			return p.SaveToFile(out)
		}
		rec, err := p.Record()
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var solveCommand = cli.Command{
	Name:      "solve",
	Usage:     "solve a problem file and print the best routes",
	ArgsUsage: "<problem file>",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "algo", Value: aco.Name, Usage: "aco or ga"},
		cli.StringFlag{Name: "config", Usage: "YAML file with a solvers section"},
		cli.Int64Flag{Name: "seed", Usage: "override the configured seed"},
		cli.IntFlag{Name: "every", Usage: "print progress every N iterations (0 disables)"},
		cli.Float64Flag{Name: "target", Usage: "stop once the best cost reaches this value (0 disables)"},
		cli.BoolFlag{Name: "polish", Usage: "run 2-opt and relocate on the final routes"},
		cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
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
		s, err := newSolver(c.String("algo"), p, solvers)
		if err != nil {
			return err
		}
		if err := p.CheckInfeasible(); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "warning: %v; each is served on its own route\n", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		w := c.App.Writer
		var report, target solver.StepFunc
		if every := c.Int("every"); every > 0 {
			report = func(snap solver.Snapshot) bool {
				if (snap.Iteration+1)%every == 0 {
					fmt.Fprintf(w, "iter %d/%d cost %.2f best %.2f\n",
						snap.Iteration+1, snap.MaxIterations, snap.Cost, snap.BestCost)
				}
				return false
			}
		}
		if goal := c.Float64("target"); goal > 0 {
			target = func(snap solver.Snapshot) bool { return snap.BestCost <= goal }
		}
		res, err := s.Run(ctx, solver.Chain(report, target), nil)
		if err != nil {
			return err
		}
		if c.Bool("polish") && res.Solution != nil {
			res.Solution = opt.ImproveSolutionDeep(p, res.Solution)
			res.Cost = p.SolutionCost(res.Solution)
		}
		if c.Bool("json") {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		printResult(w, p, res)
		return nil
	},
}

var tokenCommand = cli.Command{
	Name:  "token",
	Usage: "mint an HS256 bearer token for the API",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "tenant", Value: "t_demo"},
		cli.StringFlag{Name: "role", Value: "operator", Usage: "admin, operator or viewer"},
		cli.StringFlag{Name: "secret", EnvVar: "AUTH_HMAC_SECRET"},
		cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
	},
	Action: func(c *cli.Context) error {
		if c.String("secret") == "" {
			return errors.New("token: -secret or AUTH_HMAC_SECRET is required")
		}
		v := auth.NewVerifier(auth.ModeHMAC, c.String("secret"))
		tok, err := v.Sign(auth.Principal{Tenant: c.String("tenant"), Role: c.String("role")}, c.Duration("ttl"))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, tok)
		return nil
	},
}

func loadProblem(c *cli.Context) (*cvrp.Problem, error) {
	if c.NArg() != 1 {
		return nil, fmt.Errorf("%s: expected one problem file", c.Command.Name)
	}
	p := cvrp.New(0)
	if err := p.LoadFromFile(c.Args().First()); err != nil {
		return nil, err
	}
	return p, nil
}

func loadSolvers(c *cli.Context) (config.Solvers, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Solvers{}, err
	}
	if c.IsSet("seed") {
		cfg.Solvers.ACO.Seed = c.Int64("seed")
		cfg.Solvers.GA.Seed = c.Int64("seed")
	}
	return cfg.Solvers, nil
}

func newSolver(algo string, p *cvrp.Problem, cfg config.Solvers) (solver.Solver, error) {
	switch algo {
	case aco.Name:
		return aco.New(p, cfg.ACO)
	case ga.Name:
		return ga.New(p, cfg.GA)
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", cvrp.ErrConfig, algo)
	}
}
