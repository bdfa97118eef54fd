// Package agentcore provides a high-level façade over the engine builder.
// Most applications interact with this package by:
//  1. Describing tools, agents and collaborators in Options
//  2. Calling New to validate and freeze them into an engine.Engine
//  3. Invoking agents and tools through the engine (or the server and mcp
//     boundaries built on top of it)
//
// All defaults are safe for local development and testing: an anonymous
// identity, an in-memory object store and model and key clients that fail
// with core.ErrNotImplemented. Production deployments typically supply a
// provider model (see NewModel), a seeded key client (see NewKeys) and a
// structured logger.
package agentcore

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/keys"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/model/anthropic"
	"github.com/hupe1980/agentcore/model/openai"
)

// Options configures the engine assembled by New.
type Options struct {
	// ID is the engine identity. Defaults to the anonymous principal.
	ID   core.Principal
	Name string

	// Context is the parent of the engine's cancellation signal.
	Context context.Context

	// Collaborators; nil keeps the builder default.
	Model  core.Model
	Store  core.ObjectStore
	Keys   core.KeysClient
	Logger logging.Logger

	Callbacks []engine.Callback

	// MaxModelCalls bounds model completions per agent invocation. Zero
	// means unlimited.
	MaxModelCalls int
	// MaxConcurrentInvocations bounds simultaneous top-level invocations.
	// Zero means unlimited.
	MaxConcurrentInvocations int

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	Tools  []core.Tool
	Agents []core.Agent

	// ExportTools and ExportAgents name the units reachable from outside
	// the engine. The default agent is always exported.
	ExportTools  []string
	ExportAgents []string

	// DefaultAgent defaults to the first entry of Agents.
	DefaultAgent string
}

// New builds an engine from the given options. Tools are registered before
// agents so that agent tool dependencies can be checked.
func New(optFns ...func(o *Options)) (*engine.Engine, error) {
	opts := Options{
		ID:      core.AnonymousPrincipal,
		Name:    engine.DefaultName,
		Context: context.Background(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	b := engine.NewBuilder().
		WithID(opts.ID).
		WithName(opts.Name).
		WithContext(opts.Context).
		WithLogger(opts.Logger).
		WithCallbacks(opts.Callbacks...).
		WithMaxModelCalls(opts.MaxModelCalls).
		WithMaxConcurrentInvocations(opts.MaxConcurrentInvocations)

	if opts.Model != nil {
		b.WithModel(opts.Model)
	}
	if opts.Store != nil {
		b.WithStore(opts.Store)
	}
	if opts.Keys != nil {
		b.WithKeys(opts.Keys)
	}
	if opts.TracerProvider != nil {
		b.WithTracerProvider(opts.TracerProvider)
	}
	if opts.MeterProvider != nil {
		b.WithMeterProvider(opts.MeterProvider)
	}

	if err := b.RegisterTools(opts.Tools...); err != nil {
		return nil, err
	}
	if err := b.RegisterAgents(opts.Agents...); err != nil {
		return nil, err
	}

	b.ExportTools(opts.ExportTools...).ExportAgents(opts.ExportAgents...)

	defaultAgent := opts.DefaultAgent
	if defaultAgent == "" && len(opts.Agents) > 0 {
		defaultAgent = opts.Agents[0].Name()
	}

	return b.Build(defaultAgent)
}

// WithConfig applies the engine section of cfg: name, identity, default
// agent and limits. Empty values leave the current option untouched.
func WithConfig(cfg config.EngineConfig) func(o *Options) {
	return func(o *Options) {
		if cfg.Name != "" {
			o.Name = cfg.Name
		}
		if cfg.ID != "" {
			o.ID = cfg.EnginePrincipal()
		}
		if cfg.DefaultAgent != "" {
			o.DefaultAgent = cfg.DefaultAgent
		}
		o.MaxModelCalls = cfg.MaxModelCalls
		o.MaxConcurrentInvocations = cfg.MaxConcurrentInvocations
	}
}

// ErrUnknownProvider is returned by NewModel for an unsupported llm.provider.
var ErrUnknownProvider = errors.New("unknown llm provider")

// NewModel creates the model selected by cfg.Provider. The provider "none"
// (or an empty one) yields model.NotImplemented.
func NewModel(cfg config.LLMConfig) (core.Model, error) {
	switch cfg.Provider {
	case "", "none":
		return model.NotImplemented{}, nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// NewKeys creates a local key client from the configured seed. Without a
// seed it returns keys.NotImplemented.
func NewKeys(cfg config.KeysConfig) (core.KeysClient, error) {
	if cfg.Seed == "" {
		return keys.NotImplemented{}, nil
	}

	seed, err := cfg.SeedBytes()
	if err != nil {
		return nil, err
	}

	return keys.NewLocal(seed)
}
