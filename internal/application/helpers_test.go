package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: baseTime}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// manualScheduler fires timers only when the test advances virtual time.
type manualScheduler struct {
	clock *fakeClock

	mu     sync.Mutex
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	scheduler *manualScheduler
	at        time.Time
	seq       int
	fn        func()
	done      bool
}

func newManualScheduler(clock *fakeClock) *manualScheduler {
	return &manualScheduler{clock: clock}
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) ports.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	timer := &manualTimer{scheduler: s, at: s.clock.Now().Add(d), seq: s.seq, fn: fn}
	s.timers = append(s.timers, timer)
	return timer
}

func (t *manualTimer) Stop() bool {
	t.scheduler.mu.Lock()
	defer t.scheduler.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves the clock forward, firing due timers in deadline order.
func (s *manualScheduler) Advance(d time.Duration) {
	target := s.clock.Now().Add(d)
	for {
		s.mu.Lock()
		due := make([]*manualTimer, 0)
		for _, timer := range s.timers {
			if !timer.done && !timer.at.After(target) {
				due = append(due, timer)
			}
		}
		if len(due) == 0 {
			s.mu.Unlock()
			s.clock.set(target)
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].seq < due[j].seq
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		next.done = true
		s.mu.Unlock()

		s.clock.set(next.at)
		next.fn()
	}
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := 0
	for _, timer := range s.timers {
		if !timer.done {
			pending++
		}
	}
	return pending
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []domain.Operation
	failed    []error
}

func (n *recordingNotifier) OperationConfirmed(op domain.Operation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, op)
}

func (n *recordingNotifier) OperationFailed(_ domain.Operation, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, err)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.failed)
}

type staticIdentity struct {
	identity domain.WalletIdentity
}

func (s staticIdentity) Identity() (domain.WalletIdentity, bool) {
	return s.identity, s.identity.Connected()
}

type generationRecorder struct {
	mu       sync.Mutex
	triggers []domain.RefreshTrigger
}

func (r *generationRecorder) record(trigger domain.RefreshTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trigger)
}

func (r *generationRecorder) generations() []domain.Generation {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Generation, 0, len(r.triggers))
	for _, trigger := range r.triggers {
		out = append(out, trigger.Generation)
	}
	return out
}

func submitHash(hash domain.RequestHash) SubmitFunc {
	return func(context.Context) (domain.RequestHash, error) {
		return hash, nil
	}
}

func testSession(topic domain.Topic, expiry time.Time, accounts ...string) domain.Session {
	return domain.Session{
		Topic:      topic,
		Peer:       domain.PeerMetadata{Name: "Farm Wallet", URL: "https://wallet.example"},
		Namespaces: map[string]domain.Namespace{"eip155": {Chains: []string{"eip155:137"}, Accounts: accounts}},
		Expiry:     expiry,
	}
}
