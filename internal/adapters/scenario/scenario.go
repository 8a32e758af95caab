package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted timeline of transport events and ledger transitions.
type Scenario struct {
	Name             string        `yaml:"name"`
	Start            time.Time     `yaml:"start"`
	RebroadcastDelay time.Duration `yaml:"rebroadcast_delay"`
	Wallet           *WalletSpec   `yaml:"wallet"`
	PairingURI       string        `yaml:"pairing_uri"`
	FailDisconnect   []string      `yaml:"fail_disconnect"`
	Steps            []Step        `yaml:"steps"`
	Expect           *Expectation  `yaml:"expect"`
}

// WalletSpec is what the direct-link modal returns. A nil wallet means the user cancels.
type WalletSpec struct {
	Address string `yaml:"address"`
	ChainID string `yaml:"chain_id"`
}

// Step is one action at an offset from Start. Exactly one action field must be set.
type Step struct {
	At          time.Duration   `yaml:"at"`
	Establish   *SessionSpec    `yaml:"establish,omitempty"`
	Update      *SessionSpec    `yaml:"update,omitempty"`
	Delete      string          `yaml:"delete,omitempty"`
	Use         string          `yaml:"use,omitempty"`
	Connect     bool            `yaml:"connect,omitempty"`
	Pair        bool            `yaml:"pair,omitempty"`
	Submit      string          `yaml:"submit,omitempty"`
	Transition  *TransitionSpec `yaml:"transition,omitempty"`
	Sweep       bool            `yaml:"sweep,omitempty"`
	Disconnect  bool            `yaml:"disconnect_all,omitempty"`
	Publish     bool            `yaml:"publish,omitempty"`
	ExpectError string          `yaml:"expect_error,omitempty"`
}

type SessionSpec struct {
	Topic     string        `yaml:"topic"`
	Peer      string        `yaml:"peer"`
	ExpiresIn time.Duration `yaml:"expires_in"`
	Chains    []string      `yaml:"chains"`
	Accounts  []string      `yaml:"accounts"`
}

type TransitionSpec struct {
	Hash   string `yaml:"hash"`
	State  string `yaml:"state"`
	Reason string `yaml:"reason"`
}

// Expectation checks the end state. Nil fields are not checked.
type Expectation struct {
	Generation *uint64 `yaml:"generation"`
	Confirmed  *int    `yaml:"confirmed"`
	Failed     *int    `yaml:"failed"`
	Pending    *int    `yaml:"pending"`
	Sessions   *int    `yaml:"sessions"`
	Active     *string `yaml:"active"`
}

func Load(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}

	return Parse(bytes.NewReader(raw))
}

func Parse(r io.Reader) (Scenario, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var sc Scenario
	if err := decoder.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}

	return sc, nil
}

func (sc Scenario) Validate() error {
	var errs []error
	if len(sc.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	if sc.RebroadcastDelay < 0 {
		errs = append(errs, errors.New("rebroadcast_delay must not be negative"))
	}

	var previous time.Duration
	for i, step := range sc.Steps {
		if step.At < previous {
			errs = append(errs, fmt.Errorf("step %d: at %s is before previous step at %s", i+1, step.At, previous))
		}
		previous = step.At

		if err := step.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}

// Action names the single action the step performs.
func (s Step) Action() string {
	actions := s.actions()
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

func (s Step) actions() []string {
	actions := make([]string, 0, 1)
	add := func(set bool, name string) {
		if set {
			actions = append(actions, name)
		}
	}
	add(s.Establish != nil, "establish")
	add(s.Update != nil, "update")
	add(s.Delete != "", "delete")
	add(s.Use != "", "use")
	add(s.Connect, "connect")
	add(s.Pair, "pair")
	add(s.Submit != "", "submit")
	add(s.Transition != nil, "transition")
	add(s.Sweep, "sweep")
	add(s.Disconnect, "disconnect_all")
	add(s.Publish, "publish")
	return actions
}

func (s Step) validate() error {
	actions := s.actions()
	switch len(actions) {
	case 0:
		return errors.New("no action")
	case 1:
	default:
		return fmt.Errorf("multiple actions: %s", strings.Join(actions, ", "))
	}

	if s.Transition != nil {
		if strings.TrimSpace(s.Transition.Hash) == "" {
			return errors.New("transition hash is required")
		}
		if _, ok := domain.ParseOperationState(s.Transition.State); !ok {
			return fmt.Errorf("unknown transition state %q", s.Transition.State)
		}
	}
	for _, spec := range []*SessionSpec{s.Establish, s.Update} {
		if spec != nil && strings.TrimSpace(spec.Topic) == "" {
			return errors.New("session topic is required")
		}
	}

	return nil
}

func (spec SessionSpec) session(now time.Time) domain.Session {
	chains := spec.Chains
	if len(chains) == 0 {
		chains = chainsOf(spec.Accounts)
	}

	namespaces := map[string]domain.Namespace{}
	for _, chain := range chains {
		key, _, _ := strings.Cut(chain, ":")
		ns := namespaces[key]
		ns.Chains = append(ns.Chains, chain)
		namespaces[key] = ns
	}
	for _, account := range spec.Accounts {
		key, _, _ := strings.Cut(account, ":")
		ns := namespaces[key]
		ns.Accounts = append(ns.Accounts, account)
		namespaces[key] = ns
	}

	return domain.Session{
		Topic:        domain.Topic(spec.Topic),
		Peer:         domain.PeerMetadata{Name: spec.Peer},
		Namespaces:   namespaces,
		Expiry:       now.Add(spec.ExpiresIn),
		Acknowledged: true,
	}
}

func chainsOf(accounts []string) []string {
	seen := map[string]struct{}{}
	chains := make([]string, 0, len(accounts))
	for _, account := range accounts {
		identity, err := domain.ParseAccountID(account)
		if err != nil {
			continue
		}
		if _, ok := seen[identity.ChainID]; ok {
			continue
		}
		seen[identity.ChainID] = struct{}{}
		chains = append(chains, identity.ChainID)
	}
	return chains
}
