// Package store contains implementations of core.ObjectStore.
//
// The ObjectStore interface lives in the core package to avoid dependency
// cycles. Units never call a store directly: BaseCtx prefixes every location
// with the context's path, so each tool and agent owns its own namespace.
package store
