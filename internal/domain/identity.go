package domain

import (
	"fmt"
	"strings"
)

// WalletIdentity is a read-only projection of the connected wallet supplied by the ledger client.
type WalletIdentity struct {
	Address string
	ChainID string
}

func (w WalletIdentity) Connected() bool {
	return strings.TrimSpace(w.Address) != ""
}

func (w WalletIdentity) String() string {
	if w.ChainID == "" {
		return w.Address
	}
	return w.ChainID + ":" + w.Address
}

// ParseAccountID parses a CAIP-10 account id such as "eip155:1:0xab16...".
func ParseAccountID(raw string) (WalletIdentity, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 3 {
		return WalletIdentity{}, fmt.Errorf("invalid account id %q: want namespace:reference:address", raw)
	}
	for _, part := range parts {
		if part == "" {
			return WalletIdentity{}, fmt.Errorf("invalid account id %q: empty segment", raw)
		}
	}

	return WalletIdentity{
		Address: parts[2],
		ChainID: parts[0] + ":" + parts[1],
	}, nil
}
