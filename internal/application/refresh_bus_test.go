package application

import (
	"sync"
	"testing"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshBusPublishNotifiesEverySubscriberInOrder(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	first := &generationRecorder{}
	second := &generationRecorder{}
	bus.Subscribe(first.record)
	bus.Subscribe(second.record)

	for i := 0; i < 3; i++ {
		bus.Publish()
	}

	assert.Equal(t, []domain.Generation{1, 2, 3}, first.generations())
	assert.Equal(t, []domain.Generation{1, 2, 3}, second.generations())
	assert.Equal(t, domain.Generation(3), bus.Generation())
}

func TestRefreshBusGenerationsStrictlyIncreaseAcrossGoroutines(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(nil, nil)
	recorder := &generationRecorder{}
	bus.Subscribe(recorder.record)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish()
		}()
	}
	wg.Wait()

	got := recorder.generations()
	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
}

func TestRefreshBusUnsubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	recorder := &generationRecorder{}
	sub := bus.Subscribe(recorder.record)

	bus.Publish()
	sub.Unsubscribe()
	sub.Unsubscribe()
	bus.Publish()

	assert.Equal(t, []domain.Generation{1}, recorder.generations())
}

func TestRefreshBusSkipsSubscriberRemovedMidDispatch(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	later := &generationRecorder{}
	var laterSub *Subscription
	bus.Subscribe(func(domain.RefreshTrigger) {
		laterSub.Unsubscribe()
	})
	laterSub = bus.Subscribe(later.record)

	bus.Publish()

	assert.Empty(t, later.generations())
}

func TestRefreshBusQueuesReentrantPublish(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	first := &generationRecorder{}
	second := &generationRecorder{}
	bus.Subscribe(func(trigger domain.RefreshTrigger) {
		first.record(trigger)
		if trigger.Generation == 1 {
			assert.Equal(t, domain.Generation(2), bus.Publish())
		}
	})
	bus.Subscribe(second.record)

	bus.Publish()

	assert.Equal(t, []domain.Generation{1, 2}, first.generations())
	assert.Equal(t, []domain.Generation{1, 2}, second.generations())
}

func TestRefreshBusRecoversPanickingSubscriber(t *testing.T) {
	t.Parallel()

	bus := NewRefreshBus(newFakeClock(), nil)
	recorder := &generationRecorder{}
	bus.Subscribe(func(domain.RefreshTrigger) {
		panic("boom")
	})
	bus.Subscribe(recorder.record)

	assert.NotPanics(t, func() { bus.Publish() })
	assert.Equal(t, []domain.Generation{1}, recorder.generations())
}

func TestRefreshBusPublishWithDelay(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	scheduler := newManualScheduler(clock)
	bus := NewRefreshBus(clock, scheduler)
	recorder := &generationRecorder{}
	bus.Subscribe(recorder.record)

	bus.PublishWithDelay(2 * time.Second)
	scheduler.Advance(time.Second)
	bus.PublishWithDelay(2 * time.Second)
	assert.Empty(t, recorder.generations())
	assert.Equal(t, 2, bus.PendingDelayed())

	scheduler.Advance(time.Second)
	assert.Equal(t, []domain.Generation{1}, recorder.generations())

	scheduler.Advance(time.Second)
	assert.Equal(t, []domain.Generation{1, 2}, recorder.generations())
	assert.Zero(t, bus.PendingDelayed())

	recorder.mu.Lock()
	trigger := recorder.triggers[0]
	recorder.mu.Unlock()
	assert.Equal(t, domain.RefreshSourceDelayed, trigger.Source)
	assert.Equal(t, baseTime, trigger.ScheduledAt)
	assert.Equal(t, baseTime.Add(2*time.Second), trigger.FireAt)
}

func TestRefreshBusDelayedTimerStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	scheduler := newManualScheduler(clock)
	bus := NewRefreshBus(clock, scheduler)

	timer := bus.PublishWithDelay(time.Second)
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	scheduler.Advance(time.Minute)
	assert.Equal(t, domain.Generation(0), bus.Generation())
}

func TestRefreshBusCloseStopsPendingAndLaterPublishes(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	scheduler := newManualScheduler(clock)
	bus := NewRefreshBus(clock, scheduler)
	recorder := &generationRecorder{}
	bus.Subscribe(recorder.record)

	bus.Publish()
	bus.PublishWithDelay(time.Second)
	bus.Close()
	bus.Close()

	assert.Zero(t, scheduler.Pending())
	scheduler.Advance(time.Minute)
	assert.Equal(t, domain.Generation(1), bus.Publish())
	assert.False(t, bus.PublishWithDelay(time.Second).Stop())
	assert.Equal(t, []domain.Generation{1}, recorder.generations())
}
