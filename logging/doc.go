// Package logging provides a minimal logging interface and adapters for agentcore.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the engine, contexts and boundaries use. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping an existing *slog.Logger
//   - EngineLogger with component attributes and tool/agent/model helpers
//   - NoOpLogger for silent operation
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	b := engine.NewBuilder().WithLogger(logger)
package logging
