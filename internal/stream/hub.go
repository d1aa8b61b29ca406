// Package stream fans persisted logs out to live dashboard connections.
package stream

import (
	"sync"

	"github.com/logwell/logwell/internal/domain"
)

// Handler receives logs emitted for a project. It runs on the emitting
// goroutine and must not block.
type Handler func(domain.Log)

// Hub manages subscriptions by project ID.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]Handler
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]Handler)}
}

// Subscription is the handle a connection keeps to leave the hub.
type Subscription struct {
	hub       *Hub
	projectID string
	id        uint64
	once      sync.Once
}

// Subscribe registers handler for logs of projectID.
func (h *Hub) Subscribe(projectID string, handler Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	handlers, ok := h.subs[projectID]
	if !ok {
		handlers = make(map[uint64]Handler)
		h.subs[projectID] = handlers
	}
	handlers[id] = handler
	return &Subscription{hub: h, projectID: projectID, id: id}
}

// Unsubscribe removes the handler. Only the first call has an effect.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		handlers, ok := h.subs[s.projectID]
		if !ok {
			return
		}
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(h.subs, s.projectID)
		}
	})
}

// Emit delivers entry to every subscriber of entry.ProjectID.
func (h *Hub) Emit(entry domain.Log) {
	h.mu.RLock()
	handlers := make([]Handler, 0, len(h.subs[entry.ProjectID]))
	for _, handler := range h.subs[entry.ProjectID] {
		handlers = append(handlers, handler)
	}
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(entry)
	}
}

// ListenerCount reports active subscriptions for projectID.
func (h *Hub) ListenerCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[projectID])
}
