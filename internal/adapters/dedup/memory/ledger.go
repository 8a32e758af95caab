package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

// Ledger is an in-process TerminalLedger. Keys older than the retention window are forgotten;
// a zero retention keeps every key for the life of the process.
type Ledger struct {
	clock     ports.Clock
	retention time.Duration

	mu   sync.Mutex
	seen map[domain.TerminalKey]time.Time
}

var _ ports.TerminalLedger = (*Ledger)(nil)

func NewLedger(retention time.Duration, clock ports.Clock) *Ledger {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Ledger{
		clock:     clock,
		retention: retention,
		seen:      map[domain.TerminalKey]time.Time{},
	}
}

func (l *Ledger) MarkProcessed(ctx context.Context, key domain.TerminalKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	if _, ok := l.seen[key]; ok {
		return false, nil
	}
	l.seen[key] = now

	return true, nil
}

func (l *Ledger) Processed(ctx context.Context, key domain.TerminalKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)
	_, ok := l.seen[key]

	return ok, nil
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}

func (l *Ledger) pruneLocked(now time.Time) {
	if l.retention <= 0 {
		return
	}
	for key, at := range l.seen {
		if now.Sub(at) >= l.retention {
			delete(l.seen, key)
		}
	}
}
