package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionPrintsBinaryAndVersion(t *testing.T) {
	configHome := t.TempDir()

	stdout, _, err := executeCLI(t, configHome, "version")
	require.NoError(t, err)
	assert.Equal(t, "wsync dev\n", stdout)
}

func TestInvalidConfigFailsEveryCommand(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("WSYNC_DEDUP_BACKEND", "etcd")

	_, _, err := executeCLI(t, configHome, "session", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Contains(t, err.Error(), `dedup.backend "etcd"`)
}

func TestSessionListEmpty(t *testing.T) {
	configHome := t.TempDir()

	stdout, _, err := executeCLI(t, configHome, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sessions: 0")
	assert.Contains(t, stdout, "No wallet sessions.")
	assert.Contains(t, stdout, "wallet: disconnected")
}

func TestSessionSyncAppliesBridgeEventsAndPersists(t *testing.T) {
	bridge := newFakeBridge(t)
	bridge.setEvents(`{"events":[
		{"seq":1,"type":"established","session":{"topic":"topic-a","expiry":4102444800,"peer":{"name":"Rainbow"},"namespaces":{"eip155":{"chains":["eip155:1"],"accounts":["eip155:1:0xabc"]}}}},
		{"seq":2,"type":"established","session":{"topic":"topic-b","expiry":4102444800,"peer":{"name":"Zerion"}}}
	]}`)
	configHome := t.TempDir()
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	stdout, _, err := executeCLI(t, configHome, "session", "sync")
	require.NoError(t, err)
	assert.Contains(t, stdout, "applied 2 session events (cursor 2)")
	assert.FileExists(t, filepath.Join(configHome, "walletsync", "sessions.toml"))
	assert.Contains(t, bridge.requests(), "GET /v1/session-events?since=0")

	stdout, _, err = executeCLI(t, configHome, "session", "list", "--json")
	require.NoError(t, err)

	var listed sessionListJSON
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	assert.Equal(t, int64(2), listed.Cursor)
	require.Len(t, listed.Sessions, 2)
	assert.Equal(t, "topic-a", listed.Sessions[0].Topic)
	assert.True(t, listed.Sessions[0].IsActive)
	assert.Equal(t, "0xabc", listed.Sessions[0].Address)
	assert.False(t, listed.Sessions[1].IsActive)

	bridge.setEvents(`{"events":[]}`)
	stdout, _, err = executeCLI(t, configHome, "session", "sync")
	require.NoError(t, err)
	assert.Contains(t, stdout, "applied 0 session events (cursor 2)")
	assert.Contains(t, bridge.requests(), "GET /v1/session-events?since=2")
}

func TestSessionUseSwitchesActiveSession(t *testing.T) {
	configHome := t.TempDir()
	require.NoError(t, writeSessionsFixture(configHome))

	_, _, err := executeCLI(t, configHome, "session", "use", "topic-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session not found")

	stdout, _, err := executeCLI(t, configHome, "session", "use", "topic-new")
	require.NoError(t, err)
	assert.Contains(t, stdout, "active session: topic-new")

	stdout, _, err = executeCLI(t, configHome, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Zerion [active]")
	assert.Contains(t, stdout, "expired")
}

func TestSessionSweepDisconnectsExpiredSessions(t *testing.T) {
	bridge := newFakeBridge(t)
	configHome := t.TempDir()
	require.NoError(t, writeSessionsFixture(configHome))
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	stdout, _, err := executeCLI(t, configHome, "session", "sweep")
	require.NoError(t, err)
	assert.Contains(t, stdout, "topic-old disconnected")
	assert.Contains(t, stdout, "1 disconnected, 0 failed")
	assert.Equal(t, []string{"DELETE /v1/sessions/topic-old"}, bridge.requests())

	stdout, _, err = executeCLI(t, configHome, "session", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"topic": "topic-new"`)
	assert.NotContains(t, stdout, "topic-old")
}

func TestSessionDisconnectAllReportsPartialFailure(t *testing.T) {
	bridge := newFakeBridge(t, func(b *fakeBridge) {
		b.failDisconnect["topic-new"] = true
	})
	configHome := t.TempDir()
	require.NoError(t, writeSessionsFixture(configHome))
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	stdout, _, err := executeCLI(t, configHome, "session", "disconnect-all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disconnect session topic-new")
	assert.Contains(t, stdout, "topic-old disconnected")
	assert.Contains(t, stdout, "1 disconnected, 1 failed")

	stdout, _, err = executeCLI(t, configHome, "session", "list", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, "topic-new")
	assert.NotContains(t, stdout, "topic-old")
}

func TestCommandsNeedingBridgeExplainMissingConfig(t *testing.T) {
	configHome := t.TempDir()

	_, _, err := executeCLI(t, configHome, "session", "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge.url is not configured")
}

func TestPairGenerateShowsSpinnerAndPrintsURI(t *testing.T) {
	bridge := newFakeBridge(t, func(b *fakeBridge) {
		b.delay = 150 * time.Millisecond
	})
	configHome := t.TempDir()
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	stdout, stderr, err := executeCLI(t, configHome, "pair", "generate")
	require.NoError(t, err)
	assert.Equal(t, "wc:fake@2?relay-protocol=irn&symKey=ab\n", stdout)
	assert.Contains(t, stderr, "Requesting pairing URI")
}

func TestPairApprove(t *testing.T) {
	bridge := newFakeBridge(t)
	configHome := t.TempDir()
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	_, _, err := executeCLI(t, configHome, "pair", "approve", "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairing uri is empty")

	stdout, _, err := executeCLI(t, configHome, "pair", "approve", "wc:dapp@2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "pairing approved")
	assert.Contains(t, bridge.requests(), "POST /v1/pairings/approve")
}

func TestConnectViaDirectLink(t *testing.T) {
	tests := []struct {
		name     string
		rejected bool
		want     string
	}{
		{name: "connected", want: "connected: eip155:1:0xdirect"},
		{name: "user cancelled", rejected: true, want: "connection cancelled"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			bridge := newFakeBridge(t, func(b *fakeBridge) {
				b.rejectDirectLink = tc.rejected
			})
			configHome := t.TempDir()
			t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

			stdout, _, err := executeCLI(t, configHome, "connect")
			require.NoError(t, err)
			assert.Contains(t, stdout, tc.want)
		})
	}
}

func TestReplayScenario(t *testing.T) {
	configHome := t.TempDir()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: cli-replay
rebroadcast_delay: 4s
steps:
  - establish: {topic: t1, peer: Rainbow, expires_in: 1h, accounts: ["eip155:1:0xabc"]}
  - at: 1s
    submit: "0xh1"
  - at: 2s
    transition: {hash: "0xh1", state: confirmed}
  - at: 3s
    transition: {hash: "0xh1", state: confirmed}
expect:
  confirmed: 1
  generation: 2
`), 0o600))

	stdout, _, err := executeCLI(t, configHome, "replay", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "scenario: cli-replay")
	assert.Contains(t, stdout, "0xh1 unchanged")
	assert.Contains(t, stdout, "generation: 2")
	assert.Contains(t, stdout, "ok")

	stdout, _, err = executeCLI(t, configHome, "replay", path, "--json")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(stdout)))
	assert.Contains(t, stdout, `"confirmed": 1`)
}

func TestReplayScenarioReportsMismatches(t *testing.T) {
	configHome := t.TempDir()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: wrong
steps:
  - publish: true
expect:
  generation: 5
`), 0o600))

	stdout, _, err := executeCLI(t, configHome, "replay", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `scenario "wrong": 1 expectation(s) not met`)
	assert.Contains(t, stdout, "MISMATCH generation: want 5, got 1")
}

func TestRedisDedupBackendIsWired(t *testing.T) {
	redisServer := miniredis.RunT(t)
	configHome := t.TempDir()
	t.Setenv("WSYNC_DEDUP_BACKEND", "redis")
	t.Setenv("WSYNC_REDIS_ADDR", redisServer.Addr())

	stdout, _, err := executeCLI(t, configHome, "session", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "sessions: 0")
}

func TestServeHandlerExposesHealthAndMetrics(t *testing.T) {
	configHome := t.TempDir()
	require.NoError(t, writeSessionsFixture(configHome))
	t.Setenv("XDG_CONFIG_HOME", configHome)

	app, err := wireApp()
	require.NoError(t, err)
	rt, err := app.openRuntime(context.Background(), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	rt.coordinator.Refresh.Publish()

	server := httptest.NewServer(newServeHandler(rt))
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.Sessions)
	assert.Equal(t, "topic-old", health.Active)
	assert.Equal(t, int64(4), health.Cursor)
	assert.Equal(t, uint64(1), health.Generation)

	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `walletsync_refresh_published_total{source="manual"} 1`)
	assert.Contains(t, string(body), "walletsync_sessions_known 2")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	redisServer := miniredis.RunT(t)
	configHome := t.TempDir()
	t.Setenv("WSYNC_METRICS_ADDR", "127.0.0.1:0")
	t.Setenv("WSYNC_RELAY_ENABLED", "true")
	t.Setenv("WSYNC_REDIS_ADDR", redisServer.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(300*time.Millisecond, cancel)

	_, stderr, err := executeCLIContext(ctx, t, configHome, "serve")
	require.NoError(t, err)
	assert.Contains(t, stderr, "serving metrics")
	assert.FileExists(t, filepath.Join(configHome, "walletsync", "sessions.toml"))
}

func TestTokenSetIsSentToBridgeAndClearRemovesIt(t *testing.T) {
	bridge := newFakeBridge(t)
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("WSYNC_CREDENTIALS_BACKEND", "file")
	t.Setenv("WSYNC_BRIDGE_URL", bridge.URL())

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader("bridge-secret\n"))
	root.SetArgs([]string{"token", "set"})
	require.NoError(t, root.Execute())
	assert.Contains(t, stdout.String(), "bridge token stored under walletsync/bridge-token")

	info, err := os.Stat(filepath.Join(configHome, "walletsync", "credentials", "walletsync", "bridge-token"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, _, err = executeCLI(t, configHome, "session", "sync")
	require.NoError(t, err)

	out, _, err := executeCLI(t, configHome, "token", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "bridge token cleared")

	_, _, err = executeCLI(t, configHome, "session", "sync")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer bridge-secret", ""}, bridge.authorizations())
}

func TestTokenSetRejectsEmptyInput(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	t.Setenv("WSYNC_CREDENTIALS_BACKEND", "file")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader("  \n"))
	root.SetArgs([]string{"token", "set"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bridge token is empty")
}

func executeCLI(t *testing.T, configHome string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIContext(context.Background(), t, configHome, args...)
}

func executeCLIContext(ctx context.Context, t *testing.T, configHome string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", configHome)
	if _, ok := os.LookupEnv("WSYNC_CREDENTIALS_BACKEND"); !ok {
		t.Setenv("WSYNC_CREDENTIALS_BACKEND", "file")
	}

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writeSessionsFixture(configHome string) error {
	dir := filepath.Join(configHome, "walletsync")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	sessions := `version = 1
active = "topic-old"
cursor = 4

[[sessions]]
topic = "topic-old"
expiry = "2020-01-01T00:00:00Z"
acknowledged = true

[sessions.peer]
name = "Rainbow"

[sessions.namespaces.eip155]
chains = ["eip155:1"]
accounts = ["eip155:1:0xold"]

[[sessions]]
topic = "topic-new"
expiry = "2099-01-01T00:00:00Z"
acknowledged = true

[sessions.peer]
name = "Zerion"

[sessions.namespaces.eip155]
chains = ["eip155:10"]
accounts = ["eip155:10:0xnew"]
`

	return os.WriteFile(filepath.Join(dir, "sessions.toml"), []byte(sessions), 0o600)
}

// fakeBridge is an in-process stand-in for the wallet-connection bridge daemon.
type fakeBridge struct {
	server           *httptest.Server
	delay            time.Duration
	rejectDirectLink bool
	failDisconnect   map[string]bool

	mu     sync.Mutex
	events string
	seen   []string
	auth   []string
}

func newFakeBridge(t *testing.T, opts ...func(*fakeBridge)) *fakeBridge {
	t.Helper()

	b := &fakeBridge{events: `{"events":[]}`, failDisconnect: map[string]bool{}}
	for _, opt := range opts {
		opt(b)
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

func (b *fakeBridge) setEvents(events string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = events
}

func (b *fakeBridge) URL() string {
	return b.server.URL
}

func (b *fakeBridge) requests() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.seen...)
}

func (b *fakeBridge) authorizations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.auth...)
}

func (b *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.seen = append(b.seen, r.Method+" "+r.URL.RequestURI())
	b.auth = append(b.auth, r.Header.Get("Authorization"))
	events := b.events
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/session-events":
		_, _ = fmt.Fprint(w, events)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/pairings":
		_, _ = fmt.Fprint(w, `{"uri":"wc:fake@2?relay-protocol=irn&symKey=ab"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/pairings/approve":
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/direct-link":
		if b.rejectDirectLink {
			w.WriteHeader(http.StatusConflict)
			_, _ = fmt.Fprint(w, `{"error":"user_rejected"}`)
			return
		}
		_, _ = fmt.Fprint(w, `{"address":"0xdirect","chain_id":"eip155:1"}`)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1/sessions/"):
		if b.failDisconnect[strings.TrimPrefix(r.URL.Path, "/v1/sessions/")] {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = fmt.Fprint(w, `{"error":"relay_unreachable"}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}
