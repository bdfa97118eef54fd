package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentcore/core"
)

type object struct {
	data []byte
	meta core.ObjectMeta
}

// InMemory is an in-process core.ObjectStore useful for tests, examples and
// single-process deployments. Objects live in a map guarded by an RWMutex.
// Data is copied on put and get so callers cannot mutate stored buffers.
//
// It does not enforce retention limits or size quotas.
type InMemory struct {
	mu      sync.RWMutex
	objects map[core.Path]object
	now     func() time.Time
}

// NewInMemory returns an empty in-memory object store.
func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[core.Path]object), now: time.Now}
}

// Get returns a copy of the object at location or ErrNotFound.
func (s *InMemory) Get(ctx context.Context, location core.Path) ([]byte, core.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.ObjectMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[location]
	if !ok {
		return nil, core.ObjectMeta{}, notFound(location)
	}

	return slices.Clone(obj.data), obj.meta, nil
}

// Put stores (or overwrites) the object at location. Every write bumps the
// object's version.
func (s *InMemory) Put(ctx context.Context, location core.Path, data []byte) (core.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return core.ObjectMeta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := core.ObjectMeta{
		Location:     location,
		Size:         len(data),
		LastModified: s.now(),
		Version:      s.objects[location].meta.Version + 1,
	}

	s.objects[location] = object{data: slices.Clone(data), meta: meta}

	return meta, nil
}

// Delete removes the object at location or returns ErrNotFound.
func (s *InMemory) Delete(ctx context.Context, location core.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[location]; !ok {
		return notFound(location)
	}

	delete(s.objects, location)

	return nil
}

// List returns the metadata of all objects below prefix in location order.
func (s *InMemory) List(ctx context.Context, prefix core.Path) ([]core.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	want := prefix.String() + core.PathDelimiter

	metas := []core.ObjectMeta{}
	for _, loc := range slices.Sorted(maps.Keys(s.objects)) {
		if strings.HasPrefix(loc.String(), want) {
			metas = append(metas, s.objects[loc].meta)
		}
	}

	return metas, nil
}

// Len returns the number of stored objects.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.objects)
}

var _ core.ObjectStore = (*InMemory)(nil)
