package live

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/JoelGonzalez08/TerraWeb/internal/store"
)

// Hub fans measurement events out to connected dashboard clients. Slow
// clients are dropped rather than allowed to back-pressure the ingest path.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan store.Measurement]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan store.Measurement]struct{})}
}

func (h *Hub) Subscribe() chan store.Measurement {
	ch := make(chan store.Measurement, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan store.Measurement) {
	h.mu.Lock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *Hub) Broadcast(m store.Measurement) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.clients {
		select {
		case ch <- m:
		default:
			// Client buffer full; skip this event for that client.
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades an authenticated request and streams measurement events
// as JSON until the client goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}
		ch := h.Subscribe()
		defer func() {
			h.Unsubscribe(ch)
			_ = conn.Close()
		}()

		// Drain the read side so close frames are processed.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				if err := conn.WriteJSON(m); err != nil {
					return
				}
			}
		}
	}
}
