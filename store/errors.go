package store

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentcore/core"
)

// ErrNotFound is returned when no object exists at the requested location.
var ErrNotFound = errors.New("object not found")

func notFound(location core.Path) error {
	return fmt.Errorf("%w: %q", ErrNotFound, location)
}
