package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIsExpiredBoundary(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := Session{Topic: "t1", Expiry: expiry}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before expiry", now: expiry.Add(-time.Second), want: false},
		{name: "exactly at expiry", now: expiry, want: true},
		{name: "after expiry", now: expiry.Add(time.Nanosecond), want: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, s.IsExpired(tc.now))
		})
	}
}

func TestSessionValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		session Session
		wantErr string
	}{
		{name: "valid", session: Session{Topic: "t1", Expiry: time.Unix(1, 0)}},
		{name: "missing topic", session: Session{Topic: "  ", Expiry: time.Unix(1, 0)}, wantErr: "topic is required"},
		{name: "missing expiry", session: Session{Topic: "t1"}, wantErr: "expiry is required"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.session.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestSessionIdentityUsesFirstValidAccountInKeyOrder(t *testing.T) {
	t.Parallel()

	s := Session{
		Topic: "t1",
		Namespaces: map[string]Namespace{
			"solana": {Accounts: []string{"solana:mainnet:7Np41"}},
			"eip155": {Accounts: []string{"broken", "eip155:137:0xfarmer"}},
		},
	}

	identity, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, WalletIdentity{Address: "0xfarmer", ChainID: "eip155:137"}, identity)
}

func TestSessionIdentityWithoutAccounts(t *testing.T) {
	t.Parallel()

	_, ok := Session{Topic: "t1"}.Identity()
	assert.False(t, ok)
}

func TestSessionCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := Session{
		Topic:      "t1",
		Peer:       PeerMetadata{Icons: []string{"a.png"}},
		Namespaces: map[string]Namespace{"eip155": {Accounts: []string{"eip155:1:0xabc"}}},
	}

	clone := original.Clone()
	clone.Peer.Icons[0] = "b.png"
	ns := clone.Namespaces["eip155"]
	ns.Accounts[0] = "eip155:1:0xdef"

	assert.Equal(t, "a.png", original.Peer.Icons[0])
	assert.Equal(t, "eip155:1:0xabc", original.Namespaces["eip155"].Accounts[0])
}

func TestParseAccountID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    WalletIdentity
		wantErr bool
	}{
		{name: "eip155", raw: "eip155:1:0xab16", want: WalletIdentity{Address: "0xab16", ChainID: "eip155:1"}},
		{name: "trims whitespace", raw: " eip155:5:0x01 ", want: WalletIdentity{Address: "0x01", ChainID: "eip155:5"}},
		{name: "missing address", raw: "eip155:1", wantErr: true},
		{name: "empty segment", raw: "eip155::0x01", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAccountID(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOperationStateClassification(t *testing.T) {
	t.Parallel()

	assert.False(t, OperationIdle.IsPending())
	assert.True(t, OperationSubmitted.IsPending())
	assert.True(t, OperationConfirming.IsPending())
	assert.True(t, OperationConfirmed.IsTerminal())
	assert.True(t, OperationFailed.IsTerminal())
	assert.False(t, OperationConfirming.IsTerminal())

	state, ok := ParseOperationState("confirming")
	require.True(t, ok)
	assert.Equal(t, OperationConfirming, state)

	_, ok = ParseOperationState("mined")
	assert.False(t, ok)
}

func TestRefreshTriggerNewerThan(t *testing.T) {
	t.Parallel()

	trigger := RefreshTrigger{Generation: 3}
	assert.True(t, trigger.NewerThan(2))
	assert.False(t, trigger.NewerThan(3))
}
