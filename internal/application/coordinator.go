package application

import (
	"errors"
	"sync"

	"github.com/bnema/walletsync/internal/ports"
)

// CoordinatorDeps are the external collaborators a Coordinator is built on.
type CoordinatorDeps struct {
	Transport ports.WalletTransport
	Modal     ports.WalletModal
	Ledger    ports.TerminalLedger
	Clock     ports.Clock
	Scheduler ports.Scheduler
}

// Coordinator owns the process-wide coordination components. Build one per process and Close it on shutdown.
type Coordinator struct {
	Sessions   *SessionStore
	Refresh    *RefreshBus
	Operations *OperationTracker
	Connection *ConnectionFacade
	Pairing    *PairingHelper

	mu      sync.Mutex
	closers []func() error
	closed  bool
}

// NewCoordinator wires the components. The operation tracker is gated on the connection
// facade's identity unless opts install another identity source.
func NewCoordinator(deps CoordinatorDeps, opts ...Option) *Coordinator {
	sessions := NewSessionStore(deps.Transport, deps.Clock, opts...)
	refresh := NewRefreshBus(deps.Clock, deps.Scheduler, opts...)
	connection := NewConnectionFacade(sessions, deps.Transport, deps.Modal, opts...)

	trackerOpts := append([]Option{WithIdentitySource(connection)}, opts...)
	operations := NewOperationTracker(refresh, deps.Ledger, deps.Clock, trackerOpts...)

	return &Coordinator{
		Sessions:   sessions,
		Refresh:    refresh,
		Operations: operations,
		Connection: connection,
		Pairing:    NewPairingHelper(deps.Transport, opts...),
	}
}

// OnClose registers teardown that runs during Close, in reverse registration order.
func (c *Coordinator) OnClose(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closers = append(c.closers, fn)
}

func (c *Coordinator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

// Close stops pending refresh timers, drops the pairing URI, refuses new operations and runs
// the registered teardown. It is safe to call more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	c.Operations.close()
	c.Refresh.Close()
	c.Pairing.Clear()

	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = errors.Join(err, closers[i]())
	}

	return err
}
