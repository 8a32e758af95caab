package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PairingHelper requests pairing URIs for QR display and holds the latest one.
type PairingHelper struct {
	transport ports.WalletTransport
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	uri      string
	inFlight bool
	epoch    uint64
}

func NewPairingHelper(transport ports.WalletTransport, opts ...Option) *PairingHelper {
	cfg := newSettings(opts)

	return &PairingHelper{
		transport: transport,
		logger:    cfg.logger,
		tracer:    cfg.tracer,
	}
}

// Generate asks the transport for a fresh pairing URI. Only one request may be outstanding;
// a result that resolves after Clear is discarded with domain.ErrPairingCleared.
func (p *PairingHelper) Generate(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return "", domain.ErrPairingInFlight
	}
	p.inFlight = true
	epoch := p.epoch
	p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "pairing.generate")
	defer span.End()

	uri, err := p.transport.RequestPairingURI(ctx)
	if err == nil && strings.TrimSpace(uri) == "" {
		err = domain.ErrEmptyPairingURI
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if epoch != p.epoch {
		p.logger.Debug("discarding pairing uri resolved after clear")
		span.SetStatus(codes.Error, "cleared")
		return "", domain.ErrPairingCleared
	}
	if err != nil {
		p.uri = ""
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("request pairing uri: %w", err)
	}

	p.uri = uri
	return uri, nil
}

// URI returns the held pairing URI, if any.
func (p *PairingHelper) URI() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.uri, p.uri != ""
}

func (p *PairingHelper) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inFlight
}

// Clear drops the held URI and invalidates any outstanding request.
func (p *PairingHelper) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.uri = ""
	p.epoch++
}
