// Package main runs a demo WebSocket client that solves a random problem
// and prints the run events.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func post(base, path string, body any, out any) {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("%s: %s", path, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatal(err)
		}
	}
}

func main() {
	algo := flag.String("algo", "aco", "aco or ga")
	n := flag.Int("n", 30, "number of customers")
	pauseAfter := flag.Int("pause", 0, "pause after this many steps, resume 1s later (0 disables)")
	flag.Parse()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var prob struct {
		ID string `json:"id"`
	}
	post(base, "/v1/problems/random", map[string]any{"n": *n, "capacity": 100, "seed": 1}, &prob)
	var run struct {
		ID string `json:"id"`
	}
	post(base, "/v1/runs", map[string]any{"problemId": prob.ID, "algorithm": *algo}, &run)
	log.Printf("Run ID: %s", run.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + run.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	steps := 0
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		switch m.Type {
		case "run.step":
			var s struct {
				Iteration int     `json:"iteration"`
				Cost      float64 `json:"cost"`
				BestCost  float64 `json:"bestCost"`
			}
			_ = json.Unmarshal(m.Data, &s)
			log.Printf("WS <- step %d cost=%.2f best=%.2f", s.Iteration, s.Cost, s.BestCost)
			steps++
			if steps == *pauseAfter {
				_ = c.WriteJSON(wsMessage{Type: "pause"})
				time.AfterFunc(time.Second, func() { _ = c.WriteJSON(wsMessage{Type: "resume"}) })
			}
		default:
			log.Printf("WS <- %s: %s", m.Type, string(m.Data))
		}
	}
}
