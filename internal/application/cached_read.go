package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bnema/walletsync/internal/domain"
)

type FetchFunc[T any] func(ctx context.Context) (T, error)

// CachedRead caches one ledger read and re-fetches it whenever the refresh generation moves.
type CachedRead[T any] struct {
	bus    *RefreshBus
	fetch  FetchFunc[T]
	logger *slog.Logger

	mu       sync.Mutex
	value    T
	hasValue bool
	seen     domain.Generation
	lastErr  error
}

func NewCachedRead[T any](bus *RefreshBus, fetch FetchFunc[T], opts ...Option) *CachedRead[T] {
	cfg := newSettings(opts)

	return &CachedRead[T]{
		bus:    bus,
		fetch:  fetch,
		logger: cfg.logger,
	}
}

// Get returns the cached value while it is current, otherwise fetches again.
func (c *CachedRead[T]) Get(ctx context.Context) (T, error) {
	current := c.bus.Generation()

	c.mu.Lock()
	if c.hasValue && c.seen >= current {
		value := c.value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	return c.refresh(ctx, current)
}

// Stale reports whether a publish happened since the cached value was fetched.
func (c *CachedRead[T]) Stale() bool {
	current := c.bus.Generation()

	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.hasValue || c.seen < current
}

// Seen returns the generation the cached value was fetched at.
func (c *CachedRead[T]) Seen() domain.Generation {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.seen
}

func (c *CachedRead[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

// Mount re-issues the read in the background on every new generation until ctx ends or the
// returned unmount func is called. Bursts of publishes coalesce into one fetch.
func (c *CachedRead[T]) Mount(ctx context.Context) (unmount func()) {
	ctx, cancel := context.WithCancel(ctx)
	wake := make(chan struct{}, 1)

	sub := c.bus.Subscribe(func(trigger domain.RefreshTrigger) {
		c.mu.Lock()
		stale := trigger.NewerThan(c.seen)
		c.mu.Unlock()
		if !stale {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				if _, err := c.refresh(ctx, c.bus.Generation()); err != nil && ctx.Err() == nil {
					c.logger.Warn("cached read refresh failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			cancel()
			wg.Wait()
		})
	}
}

func (c *CachedRead[T]) refresh(ctx context.Context, generation domain.Generation) (T, error) {
	value, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		var zero T
		return zero, err
	}
	c.lastErr = nil
	if generation >= c.seen {
		c.value = value
		c.hasValue = true
		c.seen = generation
	}

	return value, nil
}
