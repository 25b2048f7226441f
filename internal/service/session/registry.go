package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lunajournal/luna/backend/internal/metrics"
)

var ErrSessionNotFound = errors.New("session not found")

// Entry is a live coordinator tracked by the registry.
type Entry struct {
	Coordinator *Coordinator
	Origin      string
	CreatedAt   time.Time
}

// Registry keeps live coordinators in memory. Nothing is persisted; ending a
// session drops it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Entry)}
}

// Add tracks c until it ends. origin labels how the client connected ("text" or "voice").
func (r *Registry) Add(c *Coordinator, origin string) Entry {
	entry := Entry{Coordinator: c, Origin: origin, CreatedAt: time.Now().UTC()}

	r.mu.Lock()
	r.sessions[c.ID()] = entry
	r.mu.Unlock()
	metrics.ActiveSessions.Inc()

	go func() {
		<-c.Done()
		r.forget(c.ID())
	}()
	return entry
}

// Get retrieves a live coordinator by identifier.
func (r *Registry) Get(_ context.Context, id string) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.Coordinator, nil
}

// Remove ends the session and drops it.
func (r *Registry) Remove(_ context.Context, id string) error {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.Coordinator.End()
	r.forget(id)
	return nil
}

// List returns live entries, oldest first.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.sessions))
	for _, entry := range r.sessions {
		out = append(out, entry)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close ends every live session.
func (r *Registry) Close() {
	for _, entry := range r.List() {
		entry.Coordinator.End()
		r.forget(entry.Coordinator.ID())
	}
}

func (r *Registry) forget(id string) {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		metrics.ActiveSessions.Dec()
	}
}
