package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Topic is the opaque identifier the wallet-connection transport assigns to a session.
type Topic string

type PeerMetadata struct {
	Name        string
	Description string
	URL         string
	Icons       []string
}

// Namespace is the capability set a wallet authorized for one chain family (e.g. "eip155").
type Namespace struct {
	Chains   []string
	Methods  []string
	Events   []string
	Accounts []string
}

type Session struct {
	Topic        Topic
	Peer         PeerMetadata
	Namespaces   map[string]Namespace
	Expiry       time.Time
	Acknowledged bool
}

func (s Session) Validate() error {
	if strings.TrimSpace(string(s.Topic)) == "" {
		return fmt.Errorf("topic is required")
	}
	if s.Expiry.IsZero() {
		return fmt.Errorf("expiry is required")
	}

	return nil
}

// IsExpired reports whether the session is logically dead at now. The boundary counts as expired.
func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// Identity resolves the wallet identity from the first CAIP-10 account, walking namespaces in key order.
func (s Session) Identity() (WalletIdentity, bool) {
	keys := make([]string, 0, len(s.Namespaces))
	for key := range s.Namespaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, account := range s.Namespaces[key].Accounts {
			identity, err := ParseAccountID(account)
			if err != nil {
				continue
			}
			return identity, true
		}
	}

	return WalletIdentity{}, false
}

// Clone returns a deep copy so stored sessions cannot be mutated through caller-held values.
func (s Session) Clone() Session {
	out := s
	out.Peer.Icons = append([]string(nil), s.Peer.Icons...)
	if s.Namespaces != nil {
		out.Namespaces = make(map[string]Namespace, len(s.Namespaces))
		for key, ns := range s.Namespaces {
			out.Namespaces[key] = Namespace{
				Chains:   append([]string(nil), ns.Chains...),
				Methods:  append([]string(nil), ns.Methods...),
				Events:   append([]string(nil), ns.Events...),
				Accounts: append([]string(nil), ns.Accounts...),
			}
		}
	}

	return out
}

// SessionSnapshot is the persisted view of a session store.
type SessionSnapshot struct {
	Sessions []Session
	Active   Topic
	// Cursor is the sequence of the last transport event applied.
	Cursor  int64
	SavedAt time.Time
}
