package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

// ConnectionView is the read model UI code renders connection state from.
type ConnectionView struct {
	Session    domain.Session
	HasSession bool
	DirectLink bool
	Identity   domain.WalletIdentity
}

func (v ConnectionView) Connected() bool {
	return v.Identity.Connected()
}

// ConnectionFacade combines the session store with connect and disconnect actions.
type ConnectionFacade struct {
	store     *SessionStore
	transport ports.WalletTransport
	modal     ports.WalletModal
	logger    *slog.Logger

	mu     sync.RWMutex
	direct domain.WalletIdentity
}

var _ ports.IdentitySource = (*ConnectionFacade)(nil)

func NewConnectionFacade(store *SessionStore, transport ports.WalletTransport, modal ports.WalletModal, opts ...Option) *ConnectionFacade {
	cfg := newSettings(opts)

	return &ConnectionFacade{
		store:     store,
		transport: transport,
		modal:     modal,
		logger:    cfg.logger,
	}
}

// View prefers the active session's identity and falls back to the direct-link wallet.
func (f *ConnectionFacade) View() ConnectionView {
	view := ConnectionView{}
	if session, ok := f.store.Active(); ok {
		view.Session = session
		view.HasSession = true
		if identity, ok := session.Identity(); ok {
			view.Identity = identity
			return view
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.direct.Connected() {
		view.DirectLink = true
		view.Identity = f.direct
	}

	return view
}

func (f *ConnectionFacade) Identity() (domain.WalletIdentity, bool) {
	view := f.View()
	return view.Identity, view.Connected()
}

// DirectLink returns the wallet connected through the direct-link modal, if any.
func (f *ConnectionFacade) DirectLink() (domain.WalletIdentity, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.direct, f.direct.Connected()
}

// ConnectViaDirectLink opens the wallet modal. A user cancellation is not an error.
func (f *ConnectionFacade) ConnectViaDirectLink(ctx context.Context) error {
	if f.modal == nil {
		return fmt.Errorf("connect via direct link: no wallet modal configured")
	}

	identity, err := f.modal.Open(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUserCancelled) {
			f.logger.Info("direct link cancelled by user")
			return nil
		}
		return fmt.Errorf("open wallet modal: %w", err)
	}
	if !identity.Connected() {
		return fmt.Errorf("open wallet modal: %w", domain.ErrWalletNotConnected)
	}

	f.mu.Lock()
	f.direct = identity
	f.mu.Unlock()

	f.logger.Info("direct link connected", "identity", identity.String())
	return nil
}

// ConnectViaPairingURI pairs with a URI scanned or pasted by the user. Transport errors are returned as is.
func (f *ConnectionFacade) ConnectViaPairingURI(ctx context.Context, uri string) error {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return domain.ErrEmptyPairingURI
	}

	return f.transport.Pair(ctx, uri)
}

// DisconnectAll disconnects every known session and drops the direct-link wallet.
// Sessions whose disconnect failed stay in the store so the user can retry.
func (f *ConnectionFacade) DisconnectAll(ctx context.Context) (DisconnectReport, error) {
	f.mu.Lock()
	f.direct = domain.WalletIdentity{}
	f.mu.Unlock()

	sessions := f.store.ListSessions()
	if len(sessions) == 0 {
		return DisconnectReport{}, nil
	}

	topics := make([]domain.Topic, 0, len(sessions))
	for _, session := range sessions {
		topics = append(topics, session.Topic)
	}

	report := f.store.disconnect.run(ctx, "all", topics)
	f.store.removeAfterDisconnect(report)
	for _, failed := range report.Failed() {
		f.logger.Warn("disconnect session failed", "topic", string(failed.Topic), "error", failed.Err)
	}

	return report, report.Err()
}
