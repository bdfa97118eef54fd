// Package status provides a small Running/Stopped flag for background
// services that can be toggled at runtime through control proposals.
package status

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ServiceStatus is the state of a background service.
type ServiceStatus int

const (
	// Stopped is the zero value; services start out stopped.
	Stopped ServiceStatus = iota
	// Running marks a service that should do work.
	Running
)

// String returns the lower case state name.
func (s ServiceStatus) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// MarshalText implements encoding.TextMarshaler.
func (s ServiceStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status guards a ServiceStatus. The zero value is Stopped and ready to use.
type Status struct {
	mu    sync.RWMutex
	state ServiceStatus
}

// New creates a Status in the given state.
func New(initial ServiceStatus) *Status {
	return &Status{state: initial}
}

// Get returns the current state.
func (s *Status) Get() ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the current state and returns the previous one.
func (s *Status) Set(state ServiceStatus) ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = state
	return prev
}

// IsRunning reports whether the state is Running.
func (s *Status) IsRunning() bool { return s.Get() == Running }

// Start sets the state to Running.
func (s *Status) Start() { s.Set(Running) }

// Stop sets the state to Stopped.
func (s *Status) Stop() { s.Set(Stopped) }

// String returns the current state name.
func (s *Status) String() string { return s.Get().String() }

// Poll calls fn on every tick of interval while the status is Running. Ticks
// observed while Stopped are skipped. Poll blocks until ctx is done and
// returns ctx.Err().
func (s *Status) Poll(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.IsRunning() {
				fn(ctx)
			}
		}
	}
}

// Registry holds the named statuses a process exposes to its control plane.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*Status
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Status)}
}

// Register returns the status for name, creating it in the initial state if
// it does not exist yet.
func (r *Registry) Register(name string, initial ServiceStatus) *Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.services[name]; ok {
		return s
	}

	s := New(initial)
	r.services[name] = s

	return s
}

// Lookup returns the status registered under name.
func (r *Registry) Lookup(name string) (*Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[name]
	return s, ok
}

// Names returns the registered service names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for n := range r.services {
		names = append(names, n)
	}
	sort.Strings(names)

	return names
}

// Snapshot returns the current state of every registered service.
func (r *Registry) Snapshot() map[string]ServiceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]ServiceStatus, len(r.services))
	for n, s := range r.services {
		out[n] = s.Get()
	}

	return out
}
