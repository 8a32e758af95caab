package application

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

// RefreshBus broadcasts "ledger state may have changed" generations to read caches.
//
// Subscribers are never invoked concurrently. A publish issued from inside a subscriber, or
// from another goroutine while a dispatch is running, is queued and delivered by the running
// dispatch once the current generation reached every subscriber.
type RefreshBus struct {
	clock     ports.Clock
	scheduler ports.Scheduler
	logger    *slog.Logger
	metrics   ports.Metrics

	mu          sync.Mutex
	generation  domain.Generation
	subscribers []*Subscription
	queue       []domain.RefreshTrigger
	dispatching bool
	pending     map[*delayedPublish]struct{}
	closed      bool
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus    *RefreshBus
	fn     func(domain.RefreshTrigger)
	active atomic.Bool
	once   sync.Once
}

// Unsubscribe detaches the subscriber. It is idempotent and safe to call from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.bus.remove(s)
	})
}

func NewRefreshBus(clock ports.Clock, scheduler ports.Scheduler, opts ...Option) *RefreshBus {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	if scheduler == nil {
		scheduler = ports.SystemScheduler{}
	}
	cfg := newSettings(opts)

	return &RefreshBus{
		clock:     clock,
		scheduler: scheduler,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		pending:   map[*delayedPublish]struct{}{},
	}
}

func (b *RefreshBus) Generation() domain.Generation {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.generation
}

func (b *RefreshBus) Subscribe(fn func(domain.RefreshTrigger)) *Subscription {
	sub := &Subscription{bus: b, fn: fn}
	sub.active.Store(true)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	return sub
}

// Publish bumps the generation and notifies every subscriber.
func (b *RefreshBus) Publish() domain.Generation {
	return b.PublishFrom(domain.RefreshSourceManual)
}

func (b *RefreshBus) PublishFrom(source domain.RefreshSource) domain.Generation {
	now := b.clock.Now()
	return b.publish(source, now, now)
}

// PublishWithDelay schedules one publish after d. Overlapping delays each produce their own bump.
func (b *RefreshBus) PublishWithDelay(d time.Duration) ports.Timer {
	if d < 0 {
		d = 0
	}
	scheduledAt := b.clock.Now()
	entry := &delayedPublish{bus: b}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return entry
	}
	b.pending[entry] = struct{}{}
	b.mu.Unlock()

	timer := b.scheduler.AfterFunc(d, func() {
		if !b.release(entry) {
			return
		}
		b.publish(domain.RefreshSourceDelayed, scheduledAt, scheduledAt.Add(d))
	})

	b.mu.Lock()
	entry.timer = timer
	b.mu.Unlock()

	return entry
}

// Close stops pending delayed publishes. Later publishes are no-ops.
func (b *RefreshBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	timers := make([]ports.Timer, 0, len(b.pending))
	for entry := range b.pending {
		if entry.timer != nil {
			timers = append(timers, entry.timer)
		}
	}
	b.pending = map[*delayedPublish]struct{}{}
	b.queue = nil
	b.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
}

// PendingDelayed reports how many delayed publishes have not fired yet.
func (b *RefreshBus) PendingDelayed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.pending)
}

func (b *RefreshBus) publish(source domain.RefreshSource, scheduledAt, fireAt time.Time) domain.Generation {
	b.mu.Lock()
	if b.closed {
		generation := b.generation
		b.mu.Unlock()
		return generation
	}
	b.generation++
	trigger := domain.RefreshTrigger{
		Generation:  b.generation,
		Source:      source,
		ScheduledAt: scheduledAt,
		FireAt:      fireAt,
	}
	b.queue = append(b.queue, trigger)
	owner := !b.dispatching
	b.dispatching = true
	b.mu.Unlock()

	b.metrics.RefreshPublished(source)
	if owner {
		b.drain()
	}

	return trigger.Generation
}

func (b *RefreshBus) drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.dispatching = false
			b.mu.Unlock()
			return
		}
		trigger := b.queue[0]
		b.queue = b.queue[1:]
		subscribers := append([]*Subscription(nil), b.subscribers...)
		b.mu.Unlock()

		b.logger.Debug("refresh published", "generation", uint64(trigger.Generation), "source", string(trigger.Source))
		for _, sub := range subscribers {
			if !sub.active.Load() {
				continue
			}
			b.deliver(sub, trigger)
		}
	}
}

func (b *RefreshBus) deliver(sub *Subscription, trigger domain.RefreshTrigger) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("refresh subscriber panicked", "generation", uint64(trigger.Generation), "panic", r)
		}
	}()

	sub.fn(trigger)
}

func (b *RefreshBus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == target {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

func (b *RefreshBus) release(entry *delayedPublish) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.pending[entry]; !ok {
		return false
	}
	delete(b.pending, entry)

	return !b.closed
}

type delayedPublish struct {
	bus   *RefreshBus
	timer ports.Timer
}

func (d *delayedPublish) Stop() bool {
	if !d.bus.release(d) {
		return false
	}

	d.bus.mu.Lock()
	timer := d.timer
	d.bus.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}

	return true
}
