package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cvrpsim/internal/auth"
	"cvrpsim/internal/config"
	"cvrpsim/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Default())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Runs.Shutdown(ctx)
	})
	return s
}

func do(t *testing.T, h http.HandlerFunc, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func createRandomProblem(t *testing.T, s *Server, n int) string {
	t.Helper()
	rr := do(t, s.ProblemByIDHandler, http.MethodPost, "/v1/problems/random", `{"n":`+itoa(n)+`,"capacity":60,"seed":3}`, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("random problem: %d %s", rr.Code, rr.Body.String())
	}
	var out struct {
		ID           string `json:"id"`
		NumCustomers int    `json:"numCustomers"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if out.ID == "" || out.NumCustomers != n {
		t.Fatalf("unexpected problem %s", rr.Body.String())
	}
	return out.ID
}

func itoa(n int) string { b, _ := json.Marshal(n); return string(b) }

func startRun(t *testing.T, s *Server, body string) store.Run {
	t.Helper()
	rr := do(t, s.RunsHandler, http.MethodPost, "/v1/runs", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create run: %d %s", rr.Code, rr.Body.String())
	}
	var run store.Run
	if err := json.Unmarshal(rr.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return run
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestProblemsCreateGet(t *testing.T) {
	s := newTestServer(t)
	body := `{"capacity":10,"depot":{"x":0,"y":0},"customers":[{"id":1,"x":3,"y":4,"demand":2}]}`
	rr := do(t, s.ProblemsHandler, http.MethodPost, "/v1/problems", body, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &created)

	rr = do(t, s.ProblemByIDHandler, http.MethodGet, "/v1/problems/"+created.ID, "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"capacity":10`) {
		t.Fatalf("get: %d %s", rr.Code, rr.Body.String())
	}
	// other tenants do not see it
	rr = do(t, s.ProblemByIDHandler, http.MethodGet, "/v1/problems/"+created.ID, "", map[string]string{"X-Tenant-Id": "t_other"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("other tenant: %d", rr.Code)
	}

	yamlBody := "capacity: 5\ndepot: {x: 0, y: 0}\ncustomers:\n  - {id: 1, x: 1, y: 1, demand: 1}\n"
	rr = do(t, s.ProblemsHandler, http.MethodPost, "/v1/problems", yamlBody, map[string]string{"Content-Type": "application/yaml"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("yaml create: %d %s", rr.Code, rr.Body.String())
	}
}

func TestProblemsRejectBadInput(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"missing depot":   `{"capacity":10,"customers":[]}`,
		"negative demand": `{"capacity":10,"depot":{"x":0,"y":0},"customers":[{"id":1,"x":1,"y":1,"demand":-1}]}`,
		"not json":        `capacity`,
	}
	for name, body := range cases {
		rr := do(t, s.ProblemsHandler, http.MethodPost, "/v1/problems", body, nil)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", name, rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
			t.Fatalf("%s: content type %q", name, ct)
		}
	}
	rr := do(t, s.ProblemByIDHandler, http.MethodPost, "/v1/problems/random", `{"n":0,"capacity":10}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("random n=0: want 400, got %d", rr.Code)
	}
	rr = do(t, s.ProblemsHandler, http.MethodPost, "/v1/problems", `{}`, map[string]string{"X-Role": "viewer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer create: want 403, got %d", rr.Code)
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	pid := createRandomProblem(t, s, 8)
	run := startRun(t, s, `{"problemId":"`+pid+`","algorithm":"aco","aco":{"numAnts":4,"maxIterations":5,"seed":1}}`)
	if run.Status != store.RunRunning {
		t.Fatalf("want running, got %s", run.Status)
	}
	s.Runs.Wait()

	rr := do(t, s.RunByIDHandler, http.MethodGet, "/v1/runs/"+run.ID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get run: %d", rr.Code)
	}
	var got store.Run
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Status != store.RunCompleted || got.Iterations != 5 || got.BestCost == nil || len(got.BestSolution) == 0 {
		t.Fatalf("unexpected run %s", rr.Body.String())
	}
	// partial config was layered over the defaults
	var cfg map[string]any
	_ = json.Unmarshal(got.Config, &cfg)
	if cfg["numAnts"] != 4.0 || cfg["beta"] != 2.0 {
		t.Fatalf("unexpected config %v", cfg)
	}

	rr = do(t, s.RunsHandler, http.MethodGet, "/v1/runs?status=completed", "", nil)
	var list struct {
		Items []store.Run `json:"items"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &list)
	if rr.Code != 200 || len(list.Items) != 1 {
		t.Fatalf("list runs: %d %s", rr.Code, rr.Body.String())
	}

	rr = do(t, s.RunByIDHandler, http.MethodPost, "/v1/runs/"+run.ID+"/stop", "", nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("stop finished run: want 409, got %d", rr.Code)
	}
}

func TestRunCreateErrors(t *testing.T) {
	s := newTestServer(t)
	pid := createRandomProblem(t, s, 4)
	cases := []struct {
		name string
		body string
		hdr  map[string]string
		want int
	}{
		{"unknown algorithm", `{"problemId":"` + pid + `","algorithm":"sa"}`, nil, 400},
		{"unknown field", `{"problemId":"` + pid + `","algorithm":"ga","bogus":1}`, nil, 400},
		{"bad config", `{"problemId":"` + pid + `","algorithm":"ga","ga":{"populationSize":0}}`, nil, 400},
		{"bad callback", `{"problemId":"` + pid + `","algorithm":"ga","callbackUrl":"not a url"}`, nil, 400},
		{"missing problem", `{"problemId":"nope","algorithm":"aco"}`, nil, 404},
		{"viewer", `{"problemId":"` + pid + `","algorithm":"aco"}`, map[string]string{"X-Role": "viewer"}, 403},
	}
	for _, tc := range cases {
		rr := do(t, s.RunsHandler, http.MethodPost, "/v1/runs", tc.body, tc.hdr)
		if rr.Code != tc.want {
			t.Fatalf("%s: want %d, got %d %s", tc.name, tc.want, rr.Code, rr.Body.String())
		}
	}
	rr := do(t, s.RunByIDHandler, http.MethodGet, "/v1/runs/nope", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rr.Code)
	}
}

func TestSolverConfig(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.SolverConfigHandler, http.MethodGet, "/v1/solver/config", "", nil)
	var out map[string]map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &out)
	if rr.Code != 200 || out["aco"]["numAnts"] != 10.0 || out["ga"]["selection"] != "tournament" {
		t.Fatalf("solver config: %d %s", rr.Code, rr.Body.String())
	}
}

func TestBearerTokensInHMACMode(t *testing.T) {
	cfg := config.Default()
	cfg.Server.AuthMode, cfg.Server.AuthHMACSecret = "hmac", "k"
	s, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	rr := do(t, s.RunsHandler, http.MethodGet, "/v1/runs", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: want 401, got %d", rr.Code)
	}
	tok, err := s.Auth.Sign(auth.Principal{Tenant: "t1", Role: "viewer"}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rr = do(t, s.RunsHandler, http.MethodGet, "/v1/runs", "", map[string]string{"Authorization": "Bearer " + tok})
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: want 200, got %d", rr.Code)
	}
	rr = do(t, s.RunsHandler, http.MethodGet, "/v1/runs", "", map[string]string{"Authorization": "Bearer junk"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: want 401, got %d", rr.Code)
	}
}

// sseRecorder is a minimal ResponseWriter that implements http.Flusher
// and captures writes for SSE tests.
type sseRecorder struct {
	mu   sync.Mutex
	hdr  http.Header
	buf  bytes.Buffer
	code int
}

func (r *sseRecorder) Header() http.Header {
	if r.hdr == nil {
		r.hdr = http.Header{}
	}
	return r.hdr
}
func (r *sseRecorder) WriteHeader(c int) { r.code = c }
func (r *sseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}
func (r *sseRecorder) Flush() {}
func (r *sseRecorder) contains(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Contains(r.buf.Bytes(), []byte(s))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

const longGA = `"algorithm":"ga","ga":{"populationSize":4,"elitism":1,"maxGenerations":10000000,"seed":1}`

func TestRunEventsSSE(t *testing.T) {
	s := newTestServer(t)
	pid := createRandomProblem(t, s, 6)
	run := startRun(t, s, `{"problemId":"`+pid+`",`+longGA+`}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req = req.WithContext(ctx)
	rec := &sseRecorder{}
	done := make(chan struct{})
	go func() {
		s.RunByIDHandler(rec, req)
		close(done)
	}()

	waitFor(t, "run.step event", func() bool { return rec.contains("event: run.step") })

	rr := do(t, s.RunByIDHandler, http.MethodPost, "/v1/runs/"+run.ID+"/stop", "", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("stop: %d %s", rr.Code, rr.Body.String())
	}
	// the stream ends by itself after the final event
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after the run stopped")
	}
	if !rec.contains("event: run.stopped") {
		t.Fatalf("missing run.stopped event: %s", rec.buf.String())
	}

	// late subscribers get the final state right away
	late := &sseRecorder{}
	s.RunByIDHandler(late, httptest.NewRequest(http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil))
	if !late.contains("event: run.stopped") {
		t.Fatalf("late subscriber: %s", late.buf.String())
	}
}

func TestRunWebSocketControl(t *testing.T) {
	s := newTestServer(t)
	pid := createRandomProblem(t, s, 6)
	run := startRun(t, s, `{"problemId":"`+pid+`",`+longGA+`}`)

	srv := httptest.NewServer(http.HandlerFunc(s.RunByIDHandler))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + run.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != "connection_ack" {
		t.Fatalf("ack: %+v %v", ack, err)
	}
	sawStep, stopped := false, false
	for !stopped {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		switch msg.Type {
		case "run.step":
			if !sawStep {
				sawStep = true
				if err := conn.WriteJSON(wsMessage{Type: "stop"}); err != nil {
					t.Fatalf("write stop: %v", err)
				}
			}
		case "run.stopped":
			stopped = true
		case "error":
			t.Fatalf("server error: %v", msg.Data)
		}
	}
	s.Runs.Wait()
	got, _ := s.Store.GetRun(context.Background(), "t_demo", run.ID)
	if got.Status != store.RunStopped {
		t.Fatalf("want stopped, got %s", got.Status)
	}
}

func TestDebugRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	rr := do(t, s.DebugJSON, http.MethodGet, "/debug/info", "", map[string]string{"X-Role": "viewer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer: want 403, got %d", rr.Code)
	}
	rr = do(t, s.DebugJSON, http.MethodGet, "/debug/info", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"build"`) {
		t.Fatalf("admin: %d %s", rr.Code, rr.Body.String())
	}
}
