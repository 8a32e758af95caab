package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/adapters/dedup/memory"
	"github.com/bnema/walletsync/internal/application"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

const defaultPairingURI = "wc:scenario@2?relay-protocol=irn&symKey=00"

var defaultStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Entry is the log line for one executed step.
type Entry struct {
	At     time.Duration `json:"at"`
	Action string        `json:"action"`
	Detail string        `json:"detail,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Result is the end state of a replay.
type Result struct {
	Name       string   `json:"name"`
	Generation uint64   `json:"generation"`
	Confirmed  int      `json:"confirmed"`
	Failed     int      `json:"failed"`
	Pending    []string `json:"pending"`
	Sessions   []string `json:"sessions"`
	Active     string   `json:"active,omitempty"`
	Entries    []Entry  `json:"entries"`
	Mismatches []string `json:"mismatches,omitempty"`
}

func (r Result) Passed() bool {
	return len(r.Mismatches) == 0
}

// Runner replays scenarios against a fresh coordinator on virtual time.
type Runner struct {
	logger  *slog.Logger
	metrics ports.Metrics
}

func NewRunner(logger *slog.Logger, metrics ports.Metrics) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Runner{logger: logger, metrics: metrics}
}

func (r *Runner) Run(ctx context.Context, sc Scenario) (Result, error) {
	if err := sc.Validate(); err != nil {
		return Result{}, err
	}

	start := sc.Start
	if start.IsZero() {
		start = defaultStart
	}
	clock := NewVirtualClock(start)
	notifier := &countingNotifier{}
	coordinator := application.NewCoordinator(application.CoordinatorDeps{
		Transport: newTransport(sc),
		Modal:     walletModal{wallet: sc.Wallet},
		Ledger:    memory.NewLedger(24*time.Hour, clock),
		Clock:     clock,
		Scheduler: clock,
	},
		application.WithLogger(r.logger),
		application.WithMetrics(r.metrics),
		application.WithNotifier(notifier),
		application.WithRebroadcastDelay(sc.RebroadcastDelay),
	)
	defer coordinator.Close()

	result := Result{Name: sc.Name}
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		clock.AdvanceTo(start.Add(step.At))
		entry := Entry{At: step.At, Action: step.Action()}
		detail, err := r.apply(ctx, coordinator, clock, step)
		entry.Detail = detail
		if err != nil {
			entry.Error = err.Error()
		}
		result.Entries = append(result.Entries, entry)

		if mismatch := checkStepError(step, err); mismatch != "" {
			result.Mismatches = append(result.Mismatches, fmt.Sprintf("step %d (%s): %s", i+1, entry.Action, mismatch))
		}
	}

	// Let delayed rebroadcasts scheduled by the last steps land.
	clock.AdvanceTo(clock.Now().Add(sc.RebroadcastDelay))

	result.Generation = uint64(coordinator.Refresh.Generation())
	result.Confirmed, result.Failed = notifier.counts()
	for _, op := range coordinator.Operations.Pending() {
		result.Pending = append(result.Pending, string(op.Hash))
	}
	for _, session := range coordinator.Sessions.ListSessions() {
		result.Sessions = append(result.Sessions, string(session.Topic))
	}
	if active, ok := coordinator.Sessions.Active(); ok {
		result.Active = string(active.Topic)
	}
	result.Mismatches = append(result.Mismatches, sc.Expect.check(result)...)

	return result, nil
}

func (r *Runner) apply(ctx context.Context, c *application.Coordinator, clock *VirtualClock, step Step) (string, error) {
	switch {
	case step.Establish != nil:
		c.Sessions.OnSessionEstablished(step.Establish.session(clock.Now()))
		return step.Establish.Topic, nil
	case step.Update != nil:
		c.Sessions.OnSessionUpdated(step.Update.session(clock.Now()))
		return step.Update.Topic, nil
	case step.Delete != "":
		c.Sessions.OnSessionDeleted(domain.Topic(step.Delete))
		return step.Delete, nil
	case step.Use != "":
		return step.Use, c.Sessions.SetActive(domain.Topic(step.Use))
	case step.Connect:
		if err := c.Connection.ConnectViaDirectLink(ctx); err != nil {
			return "", err
		}
		if identity, ok := c.Connection.DirectLink(); ok {
			return identity.String(), nil
		}
		return "cancelled", nil
	case step.Pair:
		uri, err := c.Pairing.Generate(ctx)
		if err != nil {
			return "", err
		}
		return uri, c.Connection.ConnectViaPairingURI(ctx, uri)
	case step.Submit != "":
		hash := domain.RequestHash(step.Submit)
		handle, err := c.Operations.BeginOperation(ctx, func(context.Context) (domain.RequestHash, error) {
			return hash, nil
		})
		if err != nil {
			return "", err
		}
		return string(handle.Attempt()), nil
	case step.Transition != nil:
		state, _ := domain.ParseOperationState(step.Transition.State)
		transition := domain.Transition{Hash: domain.RequestHash(step.Transition.Hash), State: state}
		if step.Transition.Reason != "" {
			transition.Reason = errors.New(step.Transition.Reason)
		}
		changed, err := c.Operations.ObserveTransition(ctx, transition)
		if err != nil {
			return "", err
		}
		if !changed {
			return step.Transition.Hash + " unchanged", nil
		}
		return step.Transition.Hash + " " + state.String(), nil
	case step.Sweep:
		report, err := c.Sessions.DisconnectExpired(ctx)
		return reportDetail(report), err
	case step.Disconnect:
		report, err := c.Connection.DisconnectAll(ctx)
		return reportDetail(report), err
	case step.Publish:
		return fmt.Sprintf("generation %d", c.Refresh.Publish()), nil
	default:
		return "", fmt.Errorf("%w: step has no action", ErrInvalidScenario)
	}
}

func reportDetail(report application.DisconnectReport) string {
	return fmt.Sprintf("%d disconnected, %d failed", len(report.Succeeded()), len(report.Failed()))
}

func checkStepError(step Step, err error) string {
	switch {
	case step.ExpectError == "" && err != nil:
		return "unexpected error: " + err.Error()
	case step.ExpectError != "" && err == nil:
		return fmt.Sprintf("expected error containing %q, got none", step.ExpectError)
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		return fmt.Sprintf("expected error containing %q, got %q", step.ExpectError, err.Error())
	default:
		return ""
	}
}

func (e *Expectation) check(result Result) []string {
	if e == nil {
		return nil
	}

	var mismatches []string
	mismatch := func(field string, want, got any) {
		mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}
	if e.Generation != nil && *e.Generation != result.Generation {
		mismatch("generation", *e.Generation, result.Generation)
	}
	if e.Confirmed != nil && *e.Confirmed != result.Confirmed {
		mismatch("confirmed", *e.Confirmed, result.Confirmed)
	}
	if e.Failed != nil && *e.Failed != result.Failed {
		mismatch("failed", *e.Failed, result.Failed)
	}
	if e.Pending != nil && *e.Pending != len(result.Pending) {
		mismatch("pending", *e.Pending, len(result.Pending))
	}
	if e.Sessions != nil && *e.Sessions != len(result.Sessions) {
		mismatch("sessions", *e.Sessions, len(result.Sessions))
	}
	if e.Active != nil && *e.Active != result.Active {
		mismatch("active", *e.Active, result.Active)
	}
	return mismatches
}

// transport stands in for the wallet-connection daemon.
type transport struct {
	uri  string
	fail map[domain.Topic]struct{}
}

func newTransport(sc Scenario) *transport {
	uri := sc.PairingURI
	if uri == "" {
		uri = defaultPairingURI
	}
	fail := make(map[domain.Topic]struct{}, len(sc.FailDisconnect))
	for _, topic := range sc.FailDisconnect {
		fail[domain.Topic(topic)] = struct{}{}
	}
	return &transport{uri: uri, fail: fail}
}

func (t *transport) RequestPairingURI(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return t.uri, nil
}

func (t *transport) Pair(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (t *transport) Disconnect(ctx context.Context, topic domain.Topic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.fail[topic]; ok {
		return errors.New("relay unreachable")
	}
	return nil
}

type walletModal struct {
	wallet *WalletSpec
}

func (m walletModal) Open(ctx context.Context) (domain.WalletIdentity, error) {
	if err := ctx.Err(); err != nil {
		return domain.WalletIdentity{}, err
	}
	if m.wallet == nil {
		return domain.WalletIdentity{}, domain.ErrUserCancelled
	}
	return domain.WalletIdentity{Address: m.wallet.Address, ChainID: m.wallet.ChainID}, nil
}

type countingNotifier struct {
	mu        sync.Mutex
	confirmed int
	failed    int
}

func (n *countingNotifier) OperationConfirmed(domain.Operation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed++
}

func (n *countingNotifier) OperationFailed(domain.Operation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed++
}

func (n *countingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.confirmed, n.failed
}
