package services

import (
	"context"
	"sync"
)

// PartyEventHub manages SSE client connections and event broadcasting. It is
// how clients watch the open-party list and leaders watch their inbox without
// polling.
type PartyEventHub struct {
	clients map[string]chan PartyEvent
	mu      sync.RWMutex
}

func NewPartyEventHub() *PartyEventHub {
	return &PartyEventHub{
		clients: make(map[string]chan PartyEvent),
	}
}

// Subscribe registers a new client and returns a channel for receiving events
func (h *PartyEventHub) Subscribe(clientID string) <-chan PartyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Buffered channel so one slow client cannot stall the hub
	ch := make(chan PartyEvent, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client from the hub
func (h *PartyEventHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts an event to all connected clients
func (h *PartyEventHub) Publish(event PartyEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		// Non-blocking send - drop event if client buffer is full
		select {
		case ch <- event:
		default:
		}
	}
}

// ClientCount returns the number of connected clients
func (h *PartyEventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// --- Consumer adapter ---

func (h *PartyEventHub) Name() string { return "sse" }

// Deliver implements Consumer. Broadcasting into in-process buffers cannot
// meaningfully fail; slow clients simply miss events.
func (h *PartyEventHub) Deliver(ctx context.Context, ev PartyEvent) error {
	h.Publish(ev)
	return nil
}
