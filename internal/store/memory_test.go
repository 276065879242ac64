package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"cvrpsim/internal/cvrp"
)

func TestMemoryProblemsAreTenantScoped(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := cvrp.Record{Capacity: 10, Customers: []cvrp.Customer{{ID: 1, X: 1, Y: 1, Demand: 2}}}
	p, err := m.CreateProblem(ctx, "t1", rec)
	if err != nil {
		t.Fatalf("CreateProblem: %v", err)
	}
	rec.Customers[0].Demand = 99
	got, err := m.GetProblem(ctx, "t1", p.ID)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if got.Record.Customers[0].Demand != 2 {
		t.Fatalf("stored record aliases caller slice")
	}
	if _, err := m.GetProblem(ctx, "t2", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant: want ErrNotFound, got %v", err)
	}
}

func TestMemoryRunLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	r, err := m.CreateRun(ctx, Run{TenantID: "t1", ProblemID: "p1", Algorithm: "ga"})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if r.ID == "" || r.Status != RunRunning || r.CreatedAt.IsZero() {
		t.Fatalf("unexpected new run %+v", r)
	}

	cost := 42.5
	sol := cvrp.Solution{{1, 2}}
	if err := m.UpdateRun(ctx, RunUpdate{ID: r.ID, Iterations: 3, BestCost: &cost, BestSolution: sol}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	sol[0][0] = 7
	// a lower iteration count never moves the record backwards
	if err := m.UpdateRun(ctx, RunUpdate{ID: r.ID, Status: RunStopped, Iterations: 1, Finished: true}); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, _ := m.GetRun(ctx, "t1", r.ID)
	if got.Status != RunStopped || got.Iterations != 3 || got.FinishedAt == nil || !got.Terminal() {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.BestCost == nil || *got.BestCost != 42.5 || got.BestSolution[0][0] != 1 {
		t.Fatalf("best not kept: %+v", got)
	}

	if err := m.UpdateRun(ctx, RunUpdate{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := m.GetRun(ctx, "t2", r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other tenant: want ErrNotFound, got %v", err)
	}
}

func TestMemoryListRunsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		r, _ := m.CreateRun(ctx, Run{TenantID: "t1", ProblemID: "p", Algorithm: "aco"})
		ids = append(ids, r.ID)
	}
	_ = m.UpdateRun(ctx, RunUpdate{ID: ids[1], Status: RunCompleted})
	_, _ = m.CreateRun(ctx, Run{TenantID: "t2", ProblemID: "p", Algorithm: "aco"})

	all, _ := m.ListRuns(ctx, "t1", "", 0)
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("unexpected order: %+v", all)
	}
	done, _ := m.ListRuns(ctx, "t1", RunCompleted, 10)
	if len(done) != 1 || done[0].ID != ids[1] {
		t.Fatalf("status filter: %+v", done)
	}
	one, _ := m.ListRuns(ctx, "t1", "", 1)
	if len(one) != 1 {
		t.Fatalf("limit ignored: %d", len(one))
	}
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, _ := m.EnqueueWebhook(ctx, "t1", "run1", "run.completed", "http://example", "s", []byte(`{}`))

	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].RunID != "run1" {
		t.Fatalf("expected one due delivery, got %+v", due)
	}
	later := time.Now().Add(time.Hour)
	_ = m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3)
	if due, _ := m.FetchDueWebhookDeliveries(ctx, 10); len(due) != 0 {
		t.Fatalf("retry scheduled in the future must not be due")
	}
	if st, attempts, _ := m.DeliveryStatus(id); st != "retry" || attempts != 1 {
		t.Fatalf("want retry/1, got %s/%d", st, attempts)
	}
	_ = m.FailWebhookDelivery(ctx, id, "gave up", 500, 3)
	if st, attempts, _ := m.DeliveryStatus(id); st != "failed" || attempts != 2 {
		t.Fatalf("want failed/2, got %s/%d", st, attempts)
	}
	if dl := m.DeadLetters(); len(dl) != 1 || dl[0]["runId"] != "run1" {
		t.Fatalf("unexpected dlq %+v", dl)
	}
}
