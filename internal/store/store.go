package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cvrpsim/internal/cvrp"
)

// Store is the persistence interface used by the API server and the run manager.
type Store interface {
	// Problems
	CreateProblem(ctx context.Context, tenantID string, rec cvrp.Record) (Problem, error)
	GetProblem(ctx context.Context, tenantID, id string) (Problem, error)

	// Runs
	CreateRun(ctx context.Context, run Run) (Run, error)
	GetRun(ctx context.Context, tenantID, id string) (Run, error)
	ListRuns(ctx context.Context, tenantID, status string, limit int) ([]Run, error)
	UpdateRun(ctx context.Context, upd RunUpdate) error

	// Webhook delivery queue
	EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Problem is an uploaded or generated instance.
type Problem struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	Record    cvrp.Record `json:"problem"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Run status values; the solver states plus "failed".
const (
	RunRunning   = "running"
	RunPaused    = "paused"
	RunCompleted = "completed"
	RunStopped   = "stopped"
	RunFailed    = "failed"
)

// Run is the persisted record of one solver run.
type Run struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	ProblemID      string          `json:"problemId"`
	Algorithm      string          `json:"algorithm"`
	Config         json.RawMessage `json:"config,omitempty"`
	Status         string          `json:"status"`
	Iterations     int             `json:"iterations"`
	BestCost       *float64        `json:"bestCost,omitempty"`
	BestSolution   cvrp.Solution   `json:"bestSolution,omitempty"`
	Error          string          `json:"error,omitempty"`
	CallbackURL    string          `json:"callbackUrl,omitempty"`
	CallbackSecret string          `json:"-"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
}

// Terminal reports whether the run can no longer change.
func (r Run) Terminal() bool {
	return r.Status == RunCompleted || r.Status == RunStopped || r.Status == RunFailed
}

// RunUpdate carries a progress or outcome change. Nil fields are left as is.
type RunUpdate struct {
	ID           string
	Status       string
	Iterations   int
	BestCost     *float64
	BestSolution cvrp.Solution
	Error        string
	Finished     bool
}

// apply folds u into r. A finished run keeps its final status.
func (u RunUpdate) apply(r *Run, now time.Time) {
	if u.Status != "" && !r.Terminal() {
		r.Status = u.Status
	}
	if u.Iterations > r.Iterations {
		r.Iterations = u.Iterations
	}
	if u.BestCost != nil {
		c := *u.BestCost
		r.BestCost = &c
		r.BestSolution = u.BestSolution.Clone()
	}
	if u.Error != "" {
		r.Error = u.Error
	}
	if u.Finished && r.FinishedAt == nil {
		t := now
		r.FinishedAt = &t
	}
	r.UpdatedAt = now
}
