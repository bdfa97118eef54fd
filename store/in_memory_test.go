package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcore/core"
)

func TestInMemoryGetIsolation(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	data := []byte("hello")
	_, err := s.Put(ctx, "T:echo/a1", data)
	require.NoError(t, err)

	data[0] = 'H'

	out, _, err := s.Get(ctx, "T:echo/a1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out), "input mutation must not leak")

	out[0] = 'x'

	out2, _, err := s.Get(ctx, "T:echo/a1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out2), "output mutation must not leak")
}

func TestInMemoryVersionsAndMeta(t *testing.T) {
	s := NewInMemory()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	m1, err := s.Put(ctx, "A:x/k", []byte("1"))
	require.NoError(t, err)
	m2, err := s.Put(ctx, "A:x/k", []byte("22"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), m1.Version)
	assert.Equal(t, uint64(2), m2.Version)
	assert.Equal(t, 2, m2.Size)
	assert.Equal(t, fixed, m2.LastModified)
}

func TestInMemoryListAndDelete(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	for _, loc := range []core.Path{"T:echo/b", "T:echo/a", "T:echoes/c", "A:x/d"} {
		_, err := s.Put(ctx, loc, []byte(loc))
		require.NoError(t, err)
	}

	metas, err := s.List(ctx, "T:echo")
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, core.Path("T:echo/a"), metas[0].Location)
	assert.Equal(t, core.Path("T:echo/b"), metas[1].Location)

	require.NoError(t, s.Delete(ctx, "T:echo/a"))
	assert.ErrorIs(t, s.Delete(ctx, "T:echo/a"), ErrNotFound)

	_, _, err = s.Get(ctx, "T:echo/a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 3, s.Len())

	empty, err := s.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryHonoursCancellation(t *testing.T) {
	s := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryConcurrentPuts(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Put(ctx, core.Path(fmt.Sprintf("k/%d", i%5)), []byte{byte(i)})
		}()
	}
	wg.Wait()

	metas, err := s.List(ctx, "k")
	require.NoError(t, err)
	require.Len(t, metas, 5)

	var total uint64
	for _, m := range metas {
		total += m.Version
	}
	assert.Equal(t, uint64(50), total)
}
