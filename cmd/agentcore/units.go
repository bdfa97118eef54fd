package main

import (
	"context"
	"time"

	"github.com/hupe1980/agentcore"
	"github.com/hupe1980/agentcore/agent"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/engine"
	"github.com/hupe1980/agentcore/logging"
	"github.com/hupe1980/agentcore/store"
	"github.com/hupe1980/agentcore/tool"
)

const assistantAgent = "assistant"

// ClockArgs are the arguments of the clock tool.
type ClockArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Berlin. Defaults to UTC"`
}

func clock(_ *core.BaseCtx, args ClockArgs) (any, error) {
	loc := time.UTC
	if args.Timezone != "" {
		l, err := time.LoadLocation(args.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	now := time.Now().In(loc)

	return map[string]any{
		"time":     now.Format(time.RFC3339),
		"timezone": loc.String(),
		"unix_ms":  now.UnixMilli(),
	}, nil
}

// units returns the tools and agents served by the command line engine.
func units() ([]core.Tool, []core.Agent) {
	memo := tool.NewMemoTool()
	clk := tool.NewTypedTool("clock", "Returns the current time, optionally in a given time zone.", clock)

	assistant := agent.NewModelAgent(assistantAgent, func(o *agent.ModelAgentOptions) {
		o.Description = "General purpose assistant with a note book and a clock."
		o.Instruction = agent.NewInstructionFromText("You are {{.agent}}, a helpful AI assistant. " +
			"Use the memo tool to remember and recall notes for the user and the clock tool for anything time related.")
		o.Tools = []string{memo.Name(), clk.Name()}
	})

	return []core.Tool{memo, clk}, []core.Agent{assistant}
}

// buildEngine assembles the engine described by cfg.
func buildEngine(ctx context.Context, cfg config.Config, logger logging.Logger, keys core.KeysClient, callbacks ...engine.Callback) (*engine.Engine, error) {
	m, err := agentcore.NewModel(cfg.LLM)
	if err != nil {
		return nil, err
	}

	tools, agents := units()

	return agentcore.New(func(o *agentcore.Options) {
		o.Context = ctx
		o.Model = m
		o.Store = store.NewInMemory()
		o.Keys = keys
		o.Logger = logger
		o.Callbacks = callbacks
		o.Tools = tools
		o.Agents = agents
		o.ExportTools = []string{"memo", "clock"}
		o.ExportAgents = []string{assistantAgent}
	}, agentcore.WithConfig(cfg.Engine))
}
