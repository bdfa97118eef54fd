package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/keys"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/store"
)

// DefaultName is the engine name used when none is configured. It doubles as
// the user label of initialisation contexts.
const DefaultName = "AgentCore Engine"

// ErrBuilderConsumed is returned when a builder is used after a successful
// Build. The engine owns the registries from then on.
var ErrBuilderConsumed = errors.New("builder already built an engine")

// Builder collects units and collaborators and produces an immutable Engine.
// A Builder is not safe for concurrent use.
type Builder struct {
	id     core.Principal
	name   string
	parent context.Context

	model  core.Model
	store  core.ObjectStore
	keys   core.KeysClient
	logger logging.Logger

	callbacks *CallbackManager

	tools        *core.ToolSet
	agents       *core.AgentSet
	exportTools  map[string]struct{}
	exportAgents map[string]struct{}

	maxModelCalls int
	maxConcurrent int64

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	built bool
}

// NewBuilder returns a builder with the anonymous identity, DefaultName and
// placeholder collaborators: a model and key client that fail with
// core.ErrNotImplemented and an in-memory object store.
func NewBuilder() *Builder {
	return &Builder{
		id:           core.AnonymousPrincipal,
		name:         DefaultName,
		parent:       context.Background(),
		model:        model.NotImplemented{},
		store:        store.NewInMemory(),
		keys:         keys.NotImplemented{},
		logger:       logging.NoOpLogger{},
		callbacks:    NewCallbackManager(),
		tools:        core.NewToolSet(),
		agents:       core.NewAgentSet(),
		exportTools:  map[string]struct{}{},
		exportAgents: map[string]struct{}{},
	}
}

// WithID sets the engine identity.
func (b *Builder) WithID(id core.Principal) *Builder {
	b.id = id
	return b
}

// WithName sets the engine name.
func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithContext sets the parent of the engine's root cancellation signal.
func (b *Builder) WithContext(ctx context.Context) *Builder {
	if ctx != nil {
		b.parent = ctx
	}
	return b
}

// WithKeys sets the key client.
func (b *Builder) WithKeys(k core.KeysClient) *Builder {
	b.keys = k
	return b
}

// WithModel sets the model handle passed to agents.
func (b *Builder) WithModel(m core.Model) *Builder {
	b.model = m
	return b
}

// WithStore sets the object store.
func (b *Builder) WithStore(s core.ObjectStore) *Builder {
	b.store = s
	return b
}

// WithLogger sets the logger shared by the engine and all contexts.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	b.logger = l
	return b
}

// WithCallbacks registers lifecycle callbacks.
func (b *Builder) WithCallbacks(cbs ...Callback) *Builder {
	for _, cb := range cbs {
		b.callbacks.RegisterCallback(cb)
	}
	return b
}

// WithMaxModelCalls bounds model completions per agent invocation.
func (b *Builder) WithMaxModelCalls(n int) *Builder {
	b.maxModelCalls = n
	return b
}

// WithMaxConcurrentInvocations bounds concurrent AgentRun and ToolCall
// invocations. Zero means unlimited.
func (b *Builder) WithMaxConcurrentInvocations(n int) *Builder {
	b.maxConcurrent = int64(n)
	return b
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func (b *Builder) WithMeterProvider(mp metric.MeterProvider) *Builder {
	b.meterProvider = mp
	return b
}

// RegisterTool adds a tool. It fails with core.ErrDuplicateName if the name is taken.
func (b *Builder) RegisterTool(t core.Tool) error {
	if b.built {
		return ErrBuilderConsumed
	}
	return b.tools.Add(t)
}

// RegisterTools adds all tools or none of them.
func (b *Builder) RegisterTools(ts ...core.Tool) error {
	if b.built {
		return ErrBuilderConsumed
	}

	seen := make(map[string]struct{}, len(ts))
	for _, t := range ts {
		name := b.tools.Key(t.Name())
		if _, dup := seen[name]; dup || b.tools.Contains(name) {
			return fmt.Errorf("%w: %q already exists", core.ErrDuplicateName, name)
		}
		seen[name] = struct{}{}
	}

	for _, t := range ts {
		if err := b.tools.Add(t); err != nil {
			return err
		}
	}

	return nil
}

// RegisterAgent adds an agent. Every tool the agent depends on must already be
// registered, so tools have to be registered before the agents using them.
func (b *Builder) RegisterAgent(a core.Agent) error {
	if b.built {
		return ErrBuilderConsumed
	}
	if err := b.checkDependencies(a); err != nil {
		return err
	}
	return b.agents.Add(a)
}

// RegisterAgents adds all agents or none of them.
func (b *Builder) RegisterAgents(as ...core.Agent) error {
	if b.built {
		return ErrBuilderConsumed
	}

	seen := make(map[string]struct{}, len(as))
	for _, a := range as {
		name := b.agents.Key(a.Name())
		if _, dup := seen[name]; dup || b.agents.Contains(name) {
			return fmt.Errorf("%w: %q already exists", core.ErrDuplicateName, name)
		}
		seen[name] = struct{}{}

		if err := b.checkDependencies(a); err != nil {
			return err
		}
	}

	for _, a := range as {
		if err := b.agents.Add(a); err != nil {
			return err
		}
	}

	return nil
}

func (b *Builder) checkDependencies(a core.Agent) error {
	for _, dep := range a.ToolDependencies() {
		if !b.tools.Contains(dep) {
			return fmt.Errorf("%w: agent %q depends on unknown tool %q", core.ErrMissingDependency, a.Name(), dep)
		}
	}
	return nil
}

// ExportTools makes tools callable from outside the engine.
func (b *Builder) ExportTools(names ...string) *Builder {
	for _, n := range names {
		b.exportTools[b.tools.Key(n)] = struct{}{}
	}
	return b
}

// ExportAgents makes agents runnable from outside the engine.
func (b *Builder) ExportAgents(names ...string) *Builder {
	for _, n := range names {
		b.exportAgents[b.agents.Key(n)] = struct{}{}
	}
	return b
}

// Build freezes the registries and returns the engine. The default agent is
// always exported. Tool initializers run before agent initializers, each in a
// context scoped to its unit with the engine identity as caller and the engine
// name as user. Initialisation contexts stay alive until the engine is
// cancelled. On any failure the root signal is cancelled and no engine is
// returned. After a successful Build the builder rejects further
// registrations and builds with ErrBuilderConsumed.
func (b *Builder) Build(defaultAgent string) (*Engine, error) {
	if b.built {
		return nil, ErrBuilderConsumed
	}

	defaultAgent = b.agents.Key(defaultAgent)
	if !b.agents.Contains(defaultAgent) {
		return nil, fmt.Errorf("%w: %q", core.ErrDefaultAgentNotFound, defaultAgent)
	}

	b.exportAgents[defaultAgent] = struct{}{}

	paths := make([]core.Path, 0, 1+b.tools.Len()+b.agents.Len())
	paths = append(paths, core.RootPath)
	for _, n := range b.tools.Names() {
		paths = append(paths, core.ToolPath(n))
	}
	for _, n := range b.agents.Names() {
		paths = append(paths, core.AgentPath(n))
	}

	root := core.NewBaseCtx(b.parent, b.id, core.NewPathSet(paths...), func(o *core.BaseOptions) {
		o.User = b.name
		o.Keys = b.keys
		o.Store = b.store
		o.Logger = b.logger
	})

	actx := core.NewAgentCtx(root, b.model, b.tools, b.agents, func(o *core.AgentOptions) {
		o.MaxModelCalls = b.maxModelCalls
	})

	if err := b.initUnits(actx); err != nil {
		root.Cancel()
		return nil, err
	}

	tp := b.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	mp := b.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	b.built = true

	e := newEngine(engineConfig{
		id:            b.id,
		name:          b.name,
		defaultAgent:  defaultAgent,
		ctx:           actx,
		exportTools:   b.exportTools,
		exportAgents:  b.exportAgents,
		callbacks:     b.callbacks,
		logger:        b.logger,
		maxConcurrent: b.maxConcurrent,
		instruments:   newInstruments(tp, mp),
	})

	b.logger.Info("engine.build.success",
		"engine_id", b.id.String(),
		"name", b.name,
		"default_agent", defaultAgent,
		"tools", b.tools.Len(),
		"agents", b.agents.Len(),
	)

	return e, nil
}

func (b *Builder) initUnits(actx *core.AgentCtx) error {
	for _, name := range b.tools.Names() {
		t, _ := b.tools.Get(name)

		init, ok := t.(core.ToolInitializer)
		if !ok {
			continue
		}

		c, err := actx.ChildBaseWith(name, b.id, b.name)
		if err != nil {
			return err
		}

		if err := init.Init(c); err != nil {
			return fmt.Errorf("init tool %q: %w", name, err)
		}
	}

	for _, name := range b.agents.Names() {
		a, _ := b.agents.Get(name)

		init, ok := a.(core.AgentInitializer)
		if !ok {
			continue
		}

		c, err := actx.ChildWith(name, b.id, b.name)
		if err != nil {
			return err
		}

		if err := init.Init(c); err != nil {
			return fmt.Errorf("init agent %q: %w", name, err)
		}
	}

	return nil
}
