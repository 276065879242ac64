package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/runs"
	"cvrpsim/internal/store"
)

// ProblemsHandler handles POST /v1/problems. The body is a problem record in
// JSON, or YAML when Content-Type says so.
func (s *Server) ProblemsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/problems" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r, true)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Read body failed", err.Error(), r.URL.Path)
		return
	}
	rec, err := cvrp.ParseRecord(body, bodyFormat(r))
	if err != nil {
		writeError(w, r, "Invalid problem", err)
		return
	}
	prob, err := s.Store.CreateProblem(r.Context(), p.Tenant, rec)
	if err != nil {
		writeError(w, r, "Create problem failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, problemView(prob))
}

func bodyFormat(r *http.Request) string {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.Contains(mt, "yaml") {
		return "yaml"
	}
	return "json"
}

// RandomProblemHandler handles POST /v1/problems/random {n, capacity, seed}.
func (s *Server) RandomProblemHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r, true)
	if !ok {
		return
	}
	var req randomProblemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, "Invalid JSON", err)
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, r, "Invalid random problem request", err)
		return
	}
	gen := cvrp.New(req.Capacity)
	gen.LoadRandom(req.N, req.Capacity, req.Seed)
	rec, err := gen.Record()
	if err != nil {
		writeError(w, r, "Generate problem failed", err)
		return
	}
	prob, err := s.Store.CreateProblem(r.Context(), p.Tenant, rec)
	if err != nil {
		writeError(w, r, "Create problem failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, problemView(prob))
}

// ProblemByIDHandler handles GET /v1/problems/{id}.
func (s *Server) ProblemByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/problems/"), "/")
	if id == "random" {
		s.RandomProblemHandler(w, r)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r, false)
	if !ok {
		return
	}
	prob, err := s.Store.GetProblem(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Problem not found", err)
		return
	}
	writeJSON(w, http.StatusOK, problemView(prob))
}

func problemView(p store.Problem) map[string]any {
	return map[string]any{
		"id":           p.ID,
		"createdAt":    p.CreatedAt,
		"numCustomers": len(p.Record.Customers),
		"problem":      p.Record,
	}
}

// RunsHandler handles POST/GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		p, ok := s.principal(w, r, true)
		if !ok {
			return
		}
		// algorithm sections are decoded over the defaults, so partial configs work
		acoCfg, gaCfg := s.Config.Solvers.ACO, s.Config.Solvers.GA
		req := runs.Request{ACO: &acoCfg, GA: &gaCfg}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, "Invalid JSON", err)
			return
		}
		if err := validateRequest(req); err != nil {
			writeError(w, r, "Invalid run request", err)
			return
		}
		run, err := s.Runs.Start(r.Context(), p.Tenant, req)
		if err != nil {
			writeError(w, r, "Start run failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, run)
	case http.MethodGet:
		p, ok := s.principal(w, r, false)
		if !ok {
			return
		}
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		items, err := s.Store.ListRuns(r.Context(), p.Tenant, r.URL.Query().Get("status"), limit)
		if err != nil {
			writeError(w, r, "List runs failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RunByIDHandler handles GET /v1/runs/{id}, POST /v1/runs/{id}/{stop|pause|resume},
// GET /v1/runs/{id}/events/stream and GET /v1/runs/{id}/ws
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	id := parts[0]
	if rest == r.URL.Path || id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	action := strings.Join(parts[1:], "/")
	switch action {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := s.principal(w, r, false)
		if !ok {
			return
		}
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if err != nil {
			writeError(w, r, "Run not found", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case "stop", "pause", "resume":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p, ok := s.principal(w, r, true)
		if !ok {
			return
		}
		if err := s.control(r.Context(), p.Tenant, id, action); err != nil {
			writeError(w, r, "Run "+action+" failed", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "action": action})
	case "events/stream":
		s.runEventsSSE(w, r, id)
	case "ws":
		s.RunWSHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) control(ctx context.Context, tenant, id, action string) error {
	switch action {
	case "stop":
		return s.Runs.Stop(ctx, tenant, id)
	case "pause":
		return s.Runs.Pause(ctx, tenant, id)
	case "resume":
		return s.Runs.Resume(ctx, tenant, id)
	}
	return fmt.Errorf("unknown action %q", action)
}

// terminalEvent reports whether evt ends a run stream.
func terminalEvent(evt SSEEvent) bool {
	return evt.Type == runs.EventCompleted || evt.Type == runs.EventStopped || evt.Type == runs.EventFailed
}

// finalEvent describes an already finished run to a late subscriber.
func finalEvent(run store.Run) SSEEvent {
	data := map[string]any{"runId": run.ID, "iterations": run.Iterations}
	if run.BestCost != nil {
		data["bestCost"] = *run.BestCost
		data["bestSolution"] = run.BestSolution
	}
	if run.Error != "" {
		data["error"] = run.Error
	}
	return SSEEvent{Type: "run." + run.Status, Data: data}
}

func (s *Server) runEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p, ok := s.principal(w, r, false)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before reading the record so no final event slips between
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeSSE := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}
	heartbeat := func() {
		writeSSE(SSEEvent{Type: "heartbeat", Data: map[string]any{"runId": id, "ts": time.Now().UTC().Format(time.RFC3339)}})
	}
	heartbeat()
	if run.Terminal() {
		writeSSE(finalEvent(run))
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(evt)
			if terminalEvent(evt) {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// SolverConfigHandler returns the default algorithm configurations
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"aco": s.Config.Solvers.ACO, "ga": s.Config.Solvers.GA})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB and Redis connectivity when configured
	type pinger interface{ Ping(ctx context.Context) error }
	for _, dep := range []any{s.Store, s.Broker} {
		pg, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := pg.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "activeRuns": s.Runs.Active()})
}
