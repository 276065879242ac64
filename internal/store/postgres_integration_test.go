//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"cvrpsim/internal/cvrp"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}

	rec := cvrp.Record{Capacity: 10, Customers: []cvrp.Customer{{ID: 1, X: 1, Demand: 3}}}
	prob, err := p.CreateProblem(t.Context(), "t_demo", rec)
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	got, err := p.GetProblem(t.Context(), "t_demo", prob.ID)
	if err != nil || len(got.Record.Customers) != 1 {
		t.Fatalf("GetProblem: %v %+v", err, got)
	}

	run, err := p.CreateRun(t.Context(), Run{TenantID: "t_demo", ProblemID: prob.ID, Algorithm: "aco"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	cost := 2.0
	if err := p.UpdateRun(t.Context(), RunUpdate{ID: run.ID, Status: RunCompleted, Iterations: 4, BestCost: &cost, BestSolution: cvrp.Solution{{1}}, Finished: true}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	run, err = p.GetRun(t.Context(), "t_demo", run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunCompleted || run.BestCost == nil || *run.BestCost != 2 || run.FinishedAt == nil {
		t.Fatalf("unexpected run %+v", run)
	}
	if _, err := p.ListRuns(t.Context(), "t_demo", "", 1); err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
}
