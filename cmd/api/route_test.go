package main

import "testing"

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/runs":                   "/v1/runs",
		"/v1/runs/abc/events/stream": "/v1/runs/{id}/events/stream",
		"/v1/problems/random":        "/v1/problems/random",
		"/v1/problems/0b5c":          "/v1/problems/{id}",
		"/healthz":                   "/healthz",
	}
	for in, want := range cases {
		if got := routeLabel(in); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
