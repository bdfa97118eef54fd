package core

import (
	"context"
	"time"
)

// ObjectMeta describes a stored object.
type ObjectMeta struct {
	Location     Path      `json:"location"`
	Size         int       `json:"size"`
	LastModified time.Time `json:"last_modified"`
	Version      uint64    `json:"version"`
}

// ObjectStore persists opaque blobs keyed by Path. Implementations must be
// safe for concurrent use. Contexts never expose the store directly; they
// prefix every location with their own path.
type ObjectStore interface {
	Get(ctx context.Context, location Path) ([]byte, ObjectMeta, error)
	Put(ctx context.Context, location Path, data []byte) (ObjectMeta, error)
	Delete(ctx context.Context, location Path) error
	List(ctx context.Context, prefix Path) ([]ObjectMeta, error)
}
