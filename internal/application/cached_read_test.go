package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingFetch(calls *atomic.Int32) FetchFunc[int] {
	return func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}
}

func TestCachedReadRefetchesOnlyOnNewGeneration(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	var calls atomic.Int32
	read := NewCachedRead(bus, countingFetch(&calls))

	value, err := read.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, value)

	value, err = read.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, value)
	assert.False(t, read.Stale())

	bus.Publish()
	assert.True(t, read.Stale())

	value, err = read.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	assert.Equal(t, domain.Generation(1), read.Seen())
}

func TestCachedReadKeepsValueOnFetchError(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	var fail atomic.Bool
	read := NewCachedRead(bus, func(context.Context) (string, error) {
		if fail.Load() {
			return "", errors.New("rpc unavailable")
		}
		return "harvest-42", nil
	})

	_, err := read.Get(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	bus.Publish()
	_, err = read.Get(context.Background())
	assert.ErrorContains(t, err, "rpc unavailable")
	assert.ErrorContains(t, read.LastError(), "rpc unavailable")
	assert.True(t, read.Stale())

	fail.Store(false)
	value, err := read.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "harvest-42", value)
	assert.NoError(t, read.LastError())
}

func TestCachedReadMountRefetchesInBackground(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	var calls atomic.Int32
	read := NewCachedRead(bus, countingFetch(&calls))
	_, err := read.Get(context.Background())
	require.NoError(t, err)

	unmount := read.Mount(context.Background())
	bus.Publish()

	require.Eventually(t, func() bool {
		return read.Seen() == 1 && !read.Stale()
	}, time.Second, time.Millisecond)

	unmount()
	unmount()
	before := calls.Load()
	bus.Publish()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before, calls.Load())
}
