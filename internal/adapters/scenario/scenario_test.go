package scenario

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadParsesDurationsAndSteps(t *testing.T) {
	t.Parallel()

	sc, err := Load("testdata/confirm_once.yaml")
	require.NoError(t, err)

	assert.Equal(t, "confirm-once", sc.Name)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), sc.Start.UTC())
	assert.Equal(t, 4*time.Second, sc.RebroadcastDelay)
	require.Len(t, sc.Steps, 8)
	assert.Equal(t, "establish", sc.Steps[0].Action())
	assert.Equal(t, time.Hour, sc.Steps[0].Establish.ExpiresIn)
	assert.Equal(t, "transition", sc.Steps[4].Action())
	require.NotNil(t, sc.Expect.Generation)
	assert.Equal(t, uint64(2), *sc.Expect.Generation)
}

func TestParseRejectsInvalidScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "no steps",
			input:   "name: empty\n",
			wantErr: "at least one step is required",
		},
		{
			name:    "step without action",
			input:   "steps:\n  - at: 1s\n",
			wantErr: "step 1: no action",
		},
		{
			name:    "two actions",
			input:   "steps:\n  - at: 1s\n    sweep: true\n    publish: true\n",
			wantErr: "multiple actions: sweep, publish",
		},
		{
			name:    "time goes backwards",
			input:   "steps:\n  - at: 5s\n    publish: true\n  - at: 1s\n    publish: true\n",
			wantErr: "step 2: at 1s is before previous step at 5s",
		},
		{
			name:    "unknown state",
			input:   "steps:\n  - transition: {hash: h, state: mined}\n",
			wantErr: `unknown transition state "mined"`,
		},
		{
			name:    "unknown field",
			input:   "steps:\n  - publish: true\n    bogus: 1\n",
			wantErr: "decode scenario",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := Parse(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestSessionSpecBuildsNamespacesFromAccounts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := SessionSpec{
		Topic:     "t1",
		Peer:      "Rainbow",
		ExpiresIn: time.Hour,
		Accounts:  []string{"eip155:1:0xabc", "eip155:10:0xabc"},
	}.session(now)

	require.Contains(t, session.Namespaces, "eip155")
	assert.Equal(t, []string{"eip155:1", "eip155:10"}, session.Namespaces["eip155"].Chains)
	assert.Equal(t, now.Add(time.Hour), session.Expiry)

	identity, ok := session.Identity()
	require.True(t, ok)
	assert.Equal(t, "0xabc", identity.Address)
}
