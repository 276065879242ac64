package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket stream of run events. The server sends {"type","data"} frames;
// clients may send {"type":"stop"|"pause"|"resume"|"ping"}.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// RunWSHandler handles GET /v1/runs/{id}/ws
func (s *Server) RunWSHandler(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := s.principal(w, r, false)
	if !ok {
		return
	}
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	if err := write(wsMessage{Type: "connection_ack", Data: map[string]any{"runId": id, "status": run.Status}}); err != nil {
		return
	}
	// re-read after subscribing; the run may have finished in between
	if run, err = s.Store.GetRun(r.Context(), p.Tenant, id); err == nil && run.Terminal() {
		evt := finalEvent(run)
		_ = write(wsMessage{Type: evt.Type, Data: evt.Data})
		return
	}

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	// Read loop: control messages from the client
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			switch msg.Type {
			case "ping":
				_ = write(wsMessage{Type: "pong"})
			case "stop", "pause", "resume":
				if !p.CanWrite() {
					_ = write(wsMessage{Type: "error", Data: map[string]any{"message": "forbidden"}})
					continue
				}
				if err := s.control(r.Context(), p.Tenant, id, msg.Type); err != nil {
					_ = write(wsMessage{Type: "error", Data: map[string]any{"message": err.Error()}})
				}
			default:
				// ignore
			}
		}
	}()

	keepalive := time.NewTicker(20 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := write(wsMessage{Type: evt.Type, Data: evt.Data}); err != nil {
				return
			}
			if terminalEvent(evt) {
				wmu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, evt.Type), time.Now().Add(time.Second))
				wmu.Unlock()
				return
			}
		case <-keepalive.C:
			wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
