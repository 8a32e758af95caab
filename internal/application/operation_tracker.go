package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SubmitFunc hands a write to the ledger client and returns the hash it was broadcast under.
type SubmitFunc func(ctx context.Context) (domain.RequestHash, error)

// OperationTracker turns a possibly repeated transition stream into exactly one terminal outcome per attempt.
type OperationTracker struct {
	bus              *RefreshBus
	ledger           ports.TerminalLedger
	clock            ports.Clock
	logger           *slog.Logger
	metrics          ports.Metrics
	tracer           trace.Tracer
	notifier         ports.OperationNotifier
	identity         ports.IdentitySource
	rebroadcastDelay time.Duration
	settledRetention time.Duration
	newAttempt       func() domain.AttemptID

	mu      sync.Mutex
	live    map[domain.RequestHash]*trackedOperation
	settled map[domain.RequestHash]settledAttempt
	closed  bool
}

type trackedOperation struct {
	op     domain.Operation
	handle *OperationHandle
}

type settledAttempt struct {
	attempt domain.AttemptID
	at      time.Time
}

func NewOperationTracker(bus *RefreshBus, ledger ports.TerminalLedger, clock ports.Clock, opts ...Option) *OperationTracker {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	cfg := newSettings(opts)

	return &OperationTracker{
		bus:              bus,
		ledger:           ledger,
		clock:            clock,
		logger:           cfg.logger,
		metrics:          cfg.metrics,
		tracer:           cfg.tracer,
		notifier:         cfg.notifier,
		identity:         cfg.identity,
		rebroadcastDelay: cfg.rebroadcastDelay,
		settledRetention: cfg.settledRetention,
		newAttempt: func() domain.AttemptID {
			return domain.AttemptID(uuid.NewString())
		},
		live:    map[domain.RequestHash]*trackedOperation{},
		settled: map[domain.RequestHash]settledAttempt{},
	}
}

// BeginOperation runs submit and starts tracking the returned hash. Nothing is tracked when
// submission fails or yields no hash.
func (t *OperationTracker) BeginOperation(ctx context.Context, submit SubmitFunc) (*OperationHandle, error) {
	if t.isClosed() {
		return nil, domain.ErrCoordinatorClosed
	}
	if t.identity != nil {
		if identity, ok := t.identity.Identity(); !ok || !identity.Connected() {
			return nil, domain.ErrWalletNotConnected
		}
	}

	ctx, span := t.tracer.Start(ctx, "operation.begin")
	defer span.End()

	hash, err := submit(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("submit operation: %w", err)
	}
	if strings.TrimSpace(string(hash)) == "" {
		span.SetStatus(codes.Error, domain.ErrEmptyRequestHash.Error())
		return nil, domain.ErrEmptyRequestHash
	}

	now := t.clock.Now()
	op := domain.Operation{
		Attempt:     t.newAttempt(),
		Hash:        hash,
		State:       domain.OperationSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	span.SetAttributes(
		attribute.String("operation.attempt", string(op.Attempt)),
		attribute.String("operation.hash", string(hash)),
	)
	handle := newOperationHandle(op)

	t.mu.Lock()
	previous := t.live[hash]
	t.live[hash] = &trackedOperation{op: op, handle: handle}
	delete(t.settled, hash)
	t.mu.Unlock()

	if previous != nil {
		t.logger.Warn("hash resubmitted while previous attempt pending", "hash", string(hash), "previous_attempt", string(previous.op.Attempt))
		previous.handle.resolve(domain.OperationOutcome{Operation: previous.op, Err: domain.ErrAttemptSuperseded})
	}

	t.metrics.OperationSubmitted()
	t.logger.Debug("operation submitted", "hash", string(hash), "attempt", string(op.Attempt))

	return handle, nil
}

// ObserveTransition feeds one external state signal for a hash. It reports whether the
// transition changed tracked state. Terminal side effects run at most once per attempt.
func (t *OperationTracker) ObserveTransition(ctx context.Context, transition domain.Transition) (bool, error) {
	if strings.TrimSpace(string(transition.Hash)) == "" {
		return false, domain.ErrEmptyRequestHash
	}
	if transition.State == domain.OperationIdle {
		t.logger.Debug("ignoring idle transition for submitted hash", "hash", string(transition.Hash))
		return false, nil
	}
	now := t.clock.Now()

	t.mu.Lock()
	entry, ok := t.live[transition.Hash]
	if !ok {
		if settled, done := t.settled[transition.Hash]; done {
			t.mu.Unlock()
			if transition.State.IsTerminal() {
				return false, t.suppressDuplicate(ctx, domain.TerminalKey{Attempt: settled.attempt, Hash: transition.Hash})
			}
			t.logger.Debug("ignoring regression after terminal state", "hash", string(transition.Hash), "state", transition.State.String())
			return false, nil
		}
		entry = t.adoptLocked(transition.Hash, now)
	}

	if !transition.State.IsTerminal() {
		changed := entry.op.State != transition.State
		entry.op.State = transition.State
		entry.op.UpdatedAt = now
		op := entry.op
		t.mu.Unlock()
		if entry.handle != nil {
			entry.handle.setState(op.State)
		}
		return changed, nil
	}
	op := entry.op
	t.mu.Unlock()

	key := domain.TerminalKey{Attempt: op.Attempt, Hash: op.Hash}
	first, err := t.ledger.MarkProcessed(ctx, key)
	if err != nil {
		return false, fmt.Errorf("mark terminal processed %s: %w", key, err)
	}
	if !first {
		t.mu.Lock()
		if current, ok := t.live[op.Hash]; ok && current == entry {
			delete(t.live, op.Hash)
			t.settled[op.Hash] = settledAttempt{attempt: op.Attempt, at: now}
		}
		t.mu.Unlock()
		t.metrics.DuplicateTerminalSuppressed()
		t.logger.Debug("duplicate terminal transition suppressed", "key", key.String())
		return false, nil
	}
	if adopted := adoptedKey(op.Hash); key != adopted {
		if _, err := t.ledger.MarkProcessed(ctx, adopted); err != nil {
			t.logger.Warn("mark adopted terminal key", "key", adopted.String(), "error", err)
		}
	}

	t.mu.Lock()
	if current, ok := t.live[op.Hash]; ok && current == entry {
		delete(t.live, op.Hash)
		t.settled[op.Hash] = settledAttempt{attempt: op.Attempt, at: now}
	}
	t.pruneSettledLocked(now)
	t.mu.Unlock()

	op.State = transition.State
	op.UpdatedAt = now
	t.metrics.OperationTerminal(op.State, now.Sub(op.SubmittedAt))

	outcome := domain.OperationOutcome{Operation: op}
	switch op.State {
	case domain.OperationConfirmed:
		t.logger.Info("operation confirmed", "hash", string(op.Hash), "attempt", string(op.Attempt))
		if t.notifier != nil {
			t.notifier.OperationConfirmed(op)
		}
		if t.bus != nil {
			t.bus.PublishFrom(domain.RefreshSourceOperation)
			if t.rebroadcastDelay > 0 {
				t.bus.PublishWithDelay(t.rebroadcastDelay)
			}
		}
	case domain.OperationFailed:
		outcome.Err = domain.ErrOperationFailed
		if transition.Reason != nil {
			outcome.Err = fmt.Errorf("%w: %w", domain.ErrOperationFailed, transition.Reason)
		}
		t.logger.Warn("operation failed", "hash", string(op.Hash), "attempt", string(op.Attempt), "error", outcome.Err)
		if t.notifier != nil {
			t.notifier.OperationFailed(op, outcome.Err)
		}
	}

	if entry.handle != nil {
		entry.handle.resolve(outcome)
	}

	return true, nil
}

// IsPending reports whether the hash is Submitted or Confirming. Unknown hashes are not pending.
func (t *OperationTracker) IsPending(hash domain.RequestHash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.live[hash]
	return ok && entry.op.State.IsPending()
}

// Lookup returns the tracked operation for a hash that has not reached a terminal state yet.
func (t *OperationTracker) Lookup(hash domain.RequestHash) (domain.Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.live[hash]
	if !ok {
		return domain.Operation{}, false
	}
	return entry.op, true
}

func (t *OperationTracker) Pending() []domain.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Operation, 0, len(t.live))
	for _, entry := range t.live {
		out = append(out, entry.op)
	}
	return out
}

func (t *OperationTracker) close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
}

func (t *OperationTracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.closed
}

func (t *OperationTracker) suppressDuplicate(ctx context.Context, key domain.TerminalKey) error {
	first, err := t.ledger.MarkProcessed(ctx, key)
	if err != nil {
		return fmt.Errorf("mark terminal processed %s: %w", key, err)
	}
	if first {
		// The ledger forgot the key before the tracker did; the side effects already ran here.
		t.logger.Warn("terminal ledger lost settled attempt", "key", key.String())
	}
	t.metrics.DuplicateTerminalSuppressed()

	return nil
}

// adoptedKey is the hash-scoped ledger key. Every settled attempt marks it, so a terminal for a
// hash this tracker no longer remembers is suppressed while the ledger still holds the key. A
// process that adopts a hash before its submitter settles it still fires once of its own.
func adoptedKey(hash domain.RequestHash) domain.TerminalKey {
	return domain.TerminalKey{Attempt: domain.AttemptID("external:" + string(hash)), Hash: hash}
}

// adoptLocked starts tracking a hash this tracker did not submit or has already forgotten.
func (t *OperationTracker) adoptLocked(hash domain.RequestHash, now time.Time) *trackedOperation {
	entry := &trackedOperation{op: domain.Operation{
		Attempt:     adoptedKey(hash).Attempt,
		Hash:        hash,
		State:       domain.OperationSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}}
	t.live[hash] = entry
	t.logger.Debug("tracking transition for unknown hash", "hash", string(hash))

	return entry
}

func (t *OperationTracker) pruneSettledLocked(now time.Time) {
	for hash, settled := range t.settled {
		if now.Sub(settled.at) > t.settledRetention {
			delete(t.settled, hash)
		}
	}
}

// OperationHandle follows one attempt until its terminal outcome.
type OperationHandle struct {
	done chan struct{}

	mu      sync.Mutex
	op      domain.Operation
	outcome domain.OperationOutcome
	settled bool
}

func newOperationHandle(op domain.Operation) *OperationHandle {
	return &OperationHandle{op: op, done: make(chan struct{})}
}

func (h *OperationHandle) Attempt() domain.AttemptID {
	return h.op.Attempt
}

func (h *OperationHandle) Hash() domain.RequestHash {
	return h.op.Hash
}

func (h *OperationHandle) State() domain.OperationState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.op.State
}

// Done is closed once the attempt reached a terminal outcome.
func (h *OperationHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the terminal outcome and returns its error, if any.
func (h *OperationHandle) Wait(ctx context.Context) (domain.Operation, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.outcome.Operation, h.outcome.Err
	case <-ctx.Done():
		return h.snapshot(), ctx.Err()
	}
}

func (h *OperationHandle) snapshot() domain.Operation {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.op
}

func (h *OperationHandle) setState(state domain.OperationState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.settled {
		h.op.State = state
	}
}

func (h *OperationHandle) resolve(outcome domain.OperationOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.settled {
		return
	}
	h.settled = true
	h.op = outcome.Operation
	h.outcome = outcome
	close(h.done)
}
