package agentcore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore"
	"github.com/hupe1980/agentcore/config"
	"github.com/hupe1980/agentcore/core"
	"github.com/hupe1980/agentcore/internal/testutil"
	"github.com/hupe1980/agentcore/keys"
	"github.com/hupe1980/agentcore/model"
	"github.com/hupe1980/agentcore/model/anthropic"
	"github.com/hupe1980/agentcore/model/openai"
)

func TestNew(t *testing.T) {
	eng, err := agentcore.New(func(o *agentcore.Options) {
		o.Tools = []core.Tool{testutil.NewEchoTool()}
		o.Agents = []core.Agent{
			testutil.NewParrotAgent("parrot"),
			testutil.NewEchoingAgent("shouter", "echo"),
		}
		o.ExportTools = []string{"echo"}
		o.ExportAgents = []string{"shouter"}
	})
	require.NoError(t, err)
	defer eng.Cancel()

	t.Run("first agent is the default", func(t *testing.T) {
		assert.Equal(t, "parrot", eng.DefaultAgent())

		out, err := eng.AgentRun(context.Background(), "", "hello", nil, core.AnonymousPrincipal, "")
		require.NoError(t, err)
		assert.Equal(t, "hello", out.Content)
	})

	t.Run("exported units are reachable", func(t *testing.T) {
		out, err := eng.AgentRun(context.Background(), "shouter", "hi", nil, core.AnonymousPrincipal, "")
		require.NoError(t, err)
		assert.Equal(t, "hi", out.Content)

		res, err := eng.ToolCall(context.Background(), "echo", `{"text":"x"}`, core.AnonymousPrincipal, "")
		require.NoError(t, err)
		assert.Equal(t, "x", res.Output)
	})

	t.Run("defaults", func(t *testing.T) {
		info := eng.Information(false)
		assert.Equal(t, "AgentCore Engine", info.Name)
		assert.True(t, info.ID.IsAnonymous())
	})
}

func TestNewErrors(t *testing.T) {
	t.Run("no agents", func(t *testing.T) {
		_, err := agentcore.New()
		assert.ErrorIs(t, err, core.ErrDefaultAgentNotFound)
	})

	t.Run("missing tool dependency", func(t *testing.T) {
		_, err := agentcore.New(func(o *agentcore.Options) {
			o.Agents = []core.Agent{testutil.NewEchoingAgent("shouter", "echo")}
		})
		assert.ErrorIs(t, err, core.ErrMissingDependency)
	})

	t.Run("duplicate tools", func(t *testing.T) {
		_, err := agentcore.New(func(o *agentcore.Options) {
			o.Tools = []core.Tool{testutil.NewEchoTool(), testutil.NewEchoTool()}
			o.Agents = []core.Agent{testutil.NewParrotAgent("parrot")}
		})
		assert.ErrorIs(t, err, core.ErrDuplicateName)
	})
}

func TestWithConfig(t *testing.T) {
	id := core.PrincipalFromBytes([]byte{1, 2, 3})

	cfg := config.Default().Engine
	cfg.Name = "Configured"
	cfg.ID = id.String()
	cfg.DefaultAgent = "second"

	eng, err := agentcore.New(
		func(o *agentcore.Options) {
			o.Agents = []core.Agent{testutil.NewParrotAgent("first"), testutil.NewParrotAgent("second")}
		},
		agentcore.WithConfig(cfg),
	)
	require.NoError(t, err)
	defer eng.Cancel()

	info := eng.Information(false)
	assert.Equal(t, "Configured", info.Name)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "second", info.DefaultAgent)
}

func TestNewModel(t *testing.T) {
	temp := 0.2

	tests := []struct {
		provider string
		want     any
	}{
		{"", model.NotImplemented{}},
		{"none", model.NotImplemented{}},
		{"openai", &openai.Model{}},
		{"anthropic", &anthropic.Model{}},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			m, err := agentcore.NewModel(config.LLMConfig{
				Provider:    tt.provider,
				Model:       "some-model",
				APIKey:      "test",
				Temperature: &temp,
			})
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := agentcore.NewModel(config.LLMConfig{Provider: "gemini"})
		assert.ErrorIs(t, err, agentcore.ErrUnknownProvider)
	})
}

func TestNewKeys(t *testing.T) {
	k, err := agentcore.NewKeys(config.KeysConfig{})
	require.NoError(t, err)
	assert.IsType(t, keys.NotImplemented{}, k)

	k, err = agentcore.NewKeys(config.KeysConfig{Seed: strings.Repeat("ab", 32)})
	require.NoError(t, err)
	assert.IsType(t, &keys.Local{}, k)

	_, err = agentcore.NewKeys(config.KeysConfig{Seed: "abcd"})
	assert.Error(t, err)
}
