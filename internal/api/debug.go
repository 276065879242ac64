package api

import (
	"net/http"
	"time"

	"cvrpsim/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	p, ok := s.principal(w, r, false)
	if !ok {
		return
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	cfg := s.Config.Server
	writeJSON(w, http.StatusOK, map[string]any{
		"build":      buildinfo.Info(),
		"time":       time.Now().UTC().Format(time.RFC3339),
		"activeRuns": s.Runs.Active(),
		"config": map[string]any{
			"addr":               cfg.Addr,
			"authMode":           cfg.AuthMode,
			"webhookMaxAttempts": cfg.WebhookMaxAttempts,
			"snapshotRps":        cfg.SnapshotRPS,
			"hasDatabaseUrl":     cfg.DatabaseURL != "",
			"hasRedisUrl":        cfg.RedisURL != "",
		},
	})
}
