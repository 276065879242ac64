package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/store"
)

// EventRunCompleted is the only event delivered to callback URLs.
const EventRunCompleted = "run.completed"

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// RunCompleted queues the completion notice of run for its callback URL.
// Runs without a callback URL are skipped.
func (p *Publisher) RunCompleted(ctx context.Context, run store.Run, best cvrp.Solution, cost float64) (string, error) {
	if run.CallbackURL == "" {
		return "", nil
	}
	payload := map[string]any{
		"id":           fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":         EventRunCompleted,
		"tenantId":     run.TenantID,
		"ts":           time.Now().UTC().Format(time.RFC3339),
		"runId":        run.ID,
		"algorithm":    run.Algorithm,
		"bestCost":     cost,
		"bestSolution": best,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return p.Store.EnqueueWebhook(ctx, run.TenantID, run.ID, EventRunCompleted, run.CallbackURL, run.CallbackSecret, body)
}
