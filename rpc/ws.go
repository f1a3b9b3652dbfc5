package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"ndxgov/core/events"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 256
)

// Hub fans committed logs out to websocket subscribers. Slow subscribers
// miss events rather than blocking the chain.
type Hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan EventResult
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan EventResult)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	log, ok := evt.(events.Log)
	if !ok || log.Event == nil {
		return
	}
	out := eventFromLog(log)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- out:
		default:
		}
	}
}

// Subscribe registers a listener. The cancel func must be called to release it.
func (h *Hub) Subscribe() (<-chan EventResult, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan EventResult, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
}

// Close ends every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	var types map[string]bool
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			types[strings.TrimSpace(t)] = true
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, types); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, types map[string]bool) error {
	updates, cancel := s.hub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if types != nil && !types[evt.Type] {
				continue
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt EventResult) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
