package core

import (
	"fmt"
	"sync"
)

// ModelLimiter bounds the number of model completions of one agent
// invocation. Sub-agents started through AgentRun get their own limiter.
type ModelLimiter struct {
	mu    sync.Mutex
	limit int
	used  int
}

// NewModelLimiter returns a limiter allowing limit calls; 0 means unlimited.
func NewModelLimiter(limit int) *ModelLimiter {
	return &ModelLimiter{limit: limit}
}

// Increment records a call and fails with ErrModelCallLimit once the limit is
// exceeded.
func (ml *ModelLimiter) Increment() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limit > 0 && ml.used >= ml.limit {
		return fmt.Errorf("%w: %d", ErrModelCallLimit, ml.limit)
	}

	ml.used++

	return nil
}

// Count returns the number of recorded calls.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.used
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.limit == 0 {
		return -1
	}

	return ml.limit - ml.used
}
