package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLedgerMarksEachKeyOnce(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(0, nil)
	key := domain.TerminalKey{Attempt: "a1", Hash: "0xabc"}

	first, err := ledger.MarkProcessed(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := ledger.MarkProcessed(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, again)

	other, err := ledger.MarkProcessed(context.Background(), domain.TerminalKey{Attempt: "a2", Hash: "0xabc"})
	require.NoError(t, err)
	assert.True(t, other)

	processed, err := ledger.Processed(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestLedgerConcurrentMarkHasSingleWinner(t *testing.T) {
	t.Parallel()

	ledger := NewLedger(0, nil)
	key := domain.TerminalKey{Attempt: "a1", Hash: "0xabc"}

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := ledger.MarkProcessed(context.Background(), key)
			if err == nil && first {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestLedgerForgetsKeysAfterRetention(t *testing.T) {
	t.Parallel()

	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ledger := NewLedger(time.Hour, clock)
	key := domain.TerminalKey{Attempt: "a1", Hash: "0xabc"}

	_, err := ledger.MarkProcessed(context.Background(), key)
	require.NoError(t, err)

	clock.advance(59 * time.Minute)
	processed, err := ledger.Processed(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, processed)

	clock.advance(time.Minute)
	processed, err = ledger.Processed(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Zero(t, ledger.Len())
}

func TestLedgerHonorsCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLedger(0, nil).MarkProcessed(ctx, domain.TerminalKey{Hash: "0xabc"})
	assert.ErrorIs(t, err, context.Canceled)
}
