package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeCallModelLeavesOutcomeOnScreen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		msg      bridgeCallDoneMsg
		contains []string
	}{
		{
			name:     "pairing uri",
			msg:      bridgeCallDoneMsg{result: "wc:abc@2?relay-protocol=irn"},
			contains: []string{"✓ wc:abc@2?relay-protocol=irn"},
		},
		{
			name:     "bridge missing",
			msg:      bridgeCallDoneMsg{err: errBridgeNotConfigured},
			contains: []string{"✗ bridge.url is not configured", "start the bridge daemon"},
		},
		{
			name:     "pairing already running",
			msg:      bridgeCallDoneMsg{err: fmt.Errorf("generate pairing uri: %w", domain.ErrPairingInFlight)},
			contains: []string{"✗ generate pairing uri", "wait for the pending pairing request"},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			model := newBridgeCallModel("Requesting pairing URI...", nil)
			assert.Contains(t, model.View(), "Requesting pairing URI...")

			updated, cmd := model.Update(tc.msg)
			require.NotNil(t, cmd)
			view := updated.View()
			for _, want := range tc.contains {
				assert.Contains(t, view, want)
			}
			assert.NotContains(t, view, "Requesting pairing URI...")
		})
	}
}

func TestBridgeErrorHintIgnoresUnknownErrors(t *testing.T) {
	t.Parallel()

	assert.Empty(t, bridgeErrorHint(errors.New("bridge returned 502")))
	assert.NotEmpty(t, bridgeErrorHint(fmt.Errorf("open modal: %w", domain.ErrUserCancelled)))
}

func TestRunBridgeCallSpinnerReturnsCallResult(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	result, err := runBridgeCallSpinner(context.Background(), out, "Waiting for wallet...", func(context.Context) (string, error) {
		return "wallet linked on eip155:1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "wallet linked on eip155:1", result)
	assert.Contains(t, out.String(), "wallet linked on eip155:1")

	want := errors.New("relay unreachable")
	_, err = runBridgeCallSpinner(context.Background(), &bytes.Buffer{}, "Waiting for wallet...", func(context.Context) (string, error) {
		return "", want
	})
	assert.ErrorIs(t, err, want)
}
