package ports

import (
	"context"

	"github.com/bnema/walletsync/internal/domain"
)

// WalletTransport is the outward surface of the wallet-connection transport.
type WalletTransport interface {
	RequestPairingURI(ctx context.Context) (string, error)
	Pair(ctx context.Context, uri string) error
	Disconnect(ctx context.Context, topic domain.Topic) error
}

// WalletModal opens the direct-link wallet picker. It returns domain.ErrUserCancelled when the user backs out.
type WalletModal interface {
	Open(ctx context.Context) (domain.WalletIdentity, error)
}

// SessionEventSource yields transport session events with a sequence greater than since.
type SessionEventSource interface {
	Events(ctx context.Context, since int64) ([]domain.SessionEvent, error)
}
