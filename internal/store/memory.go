package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cvrpsim/internal/cvrp"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	problems map[string]Problem // id -> problem
	runs     map[string]*Run    // id -> run
	runsTen  map[string][]string
	// Webhooks queue state
	deliveries map[string]*memDelivery
	order      []string // delivery ids in enqueue order
	dlq        []map[string]any
}

func NewMemory() *Memory {
	return &Memory{
		problems:   map[string]Problem{},
		runs:       map[string]*Run{},
		runsTen:    map[string][]string{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling state
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) CreateProblem(ctx context.Context, tenantID string, rec cvrp.Record) (Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := Problem{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Record:    copyRecord(rec),
		CreatedAt: time.Now().UTC(),
	}
	m.problems[p.ID] = p
	return p, nil
}

func (m *Memory) GetProblem(ctx context.Context, tenantID, id string) (Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok || p.TenantID != tenantID {
		return Problem{}, ErrNotFound
	}
	p.Record = copyRecord(p.Record)
	return p, nil
}

func (m *Memory) CreateRun(ctx context.Context, run Run) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	run.CreatedAt, run.UpdatedAt = now, now
	if run.Status == "" {
		run.Status = RunRunning
	}
	r := run
	m.runs[r.ID] = &r
	m.runsTen[r.TenantID] = append(m.runsTen[r.TenantID], r.ID)
	return copyRun(r), nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return Run{}, ErrNotFound
	}
	return copyRun(*r), nil
}

// ListRuns returns the tenant's runs, newest first.
func (m *Memory) ListRuns(ctx context.Context, tenantID, status string, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ids := m.runsTen[tenantID]
	out := []Run{}
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.runs[ids[i]]
		if r == nil || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, copyRun(*r))
	}
	return out, nil
}

func (m *Memory) UpdateRun(ctx context.Context, upd RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[upd.ID]
	if !ok {
		return ErrNotFound
	}
	upd.apply(r, time.Now().UTC())
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, RunID: runID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt:   time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	due := []*memDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
			due = append(due, d)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	out := []WebhookDelivery{}
	for _, d := range due {
		out = append(out, d.WebhookDelivery)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = "retry"
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(1 * time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.Status = "failed"
	d.LastError = lastError
	m.dlq = append(m.dlq, map[string]any{"id": id, "runId": d.RunID, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

// DeliveryStatus reports the queue status and attempt count of a delivery.
func (m *Memory) DeliveryStatus(id string) (status string, attempts int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return "", 0, false
	}
	return d.Status, d.Attempts, true
}

// DeadLetters returns the failed deliveries in failure order.
func (m *Memory) DeadLetters() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.dlq...)
}

func copyRecord(rec cvrp.Record) cvrp.Record {
	rec.Customers = append([]cvrp.Customer(nil), rec.Customers...)
	return rec
}

func copyRun(r Run) Run {
	if r.BestCost != nil {
		c := *r.BestCost
		r.BestCost = &c
	}
	r.BestSolution = r.BestSolution.Clone()
	r.Config = append(json.RawMessage(nil), r.Config...)
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		r.FinishedAt = &t
	}
	return r
}
