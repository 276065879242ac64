// Package api implements the HTTP handlers of the CVRP run service.
package api

import (
	"net/http"
	"strings"
)

type Principal struct {
	Tenant string
	Role   string // admin, operator, viewer
}

// getPrincipal extracts tenant and role from a bearer token or headers.
// - If Authorization: Bearer is present, uses the configured verifier (dev/hmac/jwks).
// - Else falls back to headers in dev mode.
// ok is false when the request carries no acceptable identity.
func (s *Server) getPrincipal(r *http.Request) (Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			return Principal{}, false
		}
		return Principal{Tenant: pr.Tenant, Role: pr.Role}, true
	}
	if s.Auth != nil && s.Auth.Mode != "dev" {
		return Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role}, true
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanWrite reports whether the principal may create or control runs.
func (p Principal) CanWrite() bool { return p.IsAdmin() || p.Role == "operator" }

// principal resolves the caller or writes a 401. write additionally demands CanWrite.
func (s *Server) principal(w http.ResponseWriter, r *http.Request, write bool) (Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", r.URL.Path)
		return Principal{}, false
	}
	if write && !p.CanWrite() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "operator or admin required", r.URL.Path)
		return Principal{}, false
	}
	return p, true
}
