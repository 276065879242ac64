package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cvrpsim/internal/cvrp"
	"cvrpsim/internal/runs"
	"cvrpsim/internal/solver"
	"cvrpsim/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError maps domain errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, title string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cvrp.ErrFormat), errors.Is(err, cvrp.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cvrp.ErrNotReady), errors.Is(err, solver.ErrAlreadyRunning), errors.Is(err, runs.ErrNotActive):
		status = http.StatusConflict
	}
	writeProblem(w, status, title, err.Error(), r.URL.Path)
}

const maxBody = 8 << 20

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", cvrp.ErrFormat, err)
	}
	return nil
}
