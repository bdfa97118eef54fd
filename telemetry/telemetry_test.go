package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDisabled(t *testing.T) {
	before := TracerProvider()

	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.Equal(t, before, TracerProvider(), "disabled telemetry keeps the global provider")
	assert.NoError(t, shutdown(context.Background()))
}

func TestMeter(t *testing.T) {
	m := Meter("agentcore/test")
	require.NotNil(t, m)

	c, err := m.Int64Counter("test.counter")
	require.NoError(t, err)
	c.Add(context.Background(), 1)

	assert.NotNil(t, MeterProvider())
}
