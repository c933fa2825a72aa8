package gateway

import (
	"context"
	"sync"
)

// Hub tracks live connections so shutdown can cancel them and wait for their
// disconnects to be reported.
type Hub struct {
	mu      sync.Mutex
	Clients map[*Client]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

func NewHub() *Hub {
	return &Hub{
		Clients: make(map[*Client]context.CancelFunc),
	}
}

// Register returns the context the client should be served with. Once CloseAll has
// started no client is accepted and ok is false.
func (h *Hub) Register(ctx context.Context, c *Client) (context.Context, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ctx, cancel := context.WithCancel(ctx)
	h.Clients[c] = cancel
	h.wg.Add(1)
	return ctx, true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	cancel, ok := h.Clients[c]
	delete(h.Clients, c)
	h.mu.Unlock()
	if ok {
		cancel()
		h.wg.Done()
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Clients)
}

// CloseAll cancels every connection and waits until each has unregistered.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	h.closed = true
	for _, cancel := range h.Clients {
		cancel()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
