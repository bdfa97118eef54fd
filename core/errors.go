package core

import "errors"

var (
	// ErrInvalidPath is returned for malformed namespace segments.
	ErrInvalidPath = errors.New("invalid path")

	// ErrDuplicateName is returned when a unit name is registered twice.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrMissingDependency is returned when an agent depends on a tool that
	// has not been registered yet.
	ErrMissingDependency = errors.New("missing dependency")

	// ErrDefaultAgentNotFound is returned by Build when the default agent was
	// never registered.
	ErrDefaultAgentNotFound = errors.New("default agent not found")

	// ErrNameNotAllowed is returned when a context is requested for a name
	// that is not part of the allow-list.
	ErrNameNotAllowed = errors.New("name not allowed")

	// ErrToolNotFound is returned when a tool is not registered or not exported.
	ErrToolNotFound = errors.New("tool not found")

	// ErrAgentNotFound is returned when an agent is not registered or not exported.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrInvalidUser is returned when a user label is not a valid path segment.
	ErrInvalidUser = errors.New("invalid user")

	// ErrCancelled is returned when a context's cancellation signal fired.
	ErrCancelled = errors.New("cancelled")

	// ErrNotImplemented is returned by placeholder collaborators (model, keys)
	// that were not configured.
	ErrNotImplemented = errors.New("not implemented")

	// ErrModelCallLimit is returned once an agent invocation used up its
	// model call budget.
	ErrModelCallLimit = errors.New("model call limit exceeded")
)
