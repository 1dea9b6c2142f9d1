package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medicare-hms/offline-agent/internal/notify"
)

// sseEvent is one named server-sent event.
type sseEvent struct {
	name string
	data []byte
}

// Hub fans notifications and window commands out to connected clients over
// server-sent events. It implements notify.Displayer and notify.Windows:
// displaying a notification broadcasts it, a click broadcasts a navigate
// command that open pages act on (focus or open the target URL).
type Hub struct {
	mu   sync.Mutex
	subs map[chan sseEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan sseEvent]struct{})}
}

func (h *Hub) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan sseEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// broadcast delivers an event to every subscriber. Slow subscribers drop
// events rather than block the sender.
func (h *Hub) broadcast(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- sseEvent{name: name, data: data}:
		default:
		}
	}
	return nil
}

// Display broadcasts a notification to connected clients.
func (h *Hub) Display(_ context.Context, n notify.Notification) error {
	return h.broadcast("notification", n)
}

// Close broadcasts a close command for a displayed notification.
func (h *Hub) Close(_ context.Context, id uuid.UUID) error {
	return h.broadcast("notification-close", map[string]string{"id": id.String()})
}

// OpenOrFocus broadcasts a navigate command; a connected page focuses itself
// and navigates, or the client opens a new window at the URL.
func (h *Hub) OpenOrFocus(_ context.Context, url string) error {
	return h.broadcast("navigate", map[string]string{"url": url})
}

// Stream is the echo handler for the SSE endpoint.
func (h *Hub) Stream(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
