package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bnema/walletsync/internal/adapters/bridge"
	credentialchain "github.com/bnema/walletsync/internal/adapters/credentials/chain"
	credentialfile "github.com/bnema/walletsync/internal/adapters/credentials/file"
	credentialpass "github.com/bnema/walletsync/internal/adapters/credentials/pass"
	memoryledger "github.com/bnema/walletsync/internal/adapters/dedup/memory"
	redisledger "github.com/bnema/walletsync/internal/adapters/dedup/redis"
	promadapter "github.com/bnema/walletsync/internal/adapters/metrics/prometheus"
	sessionsadapter "github.com/bnema/walletsync/internal/adapters/render/sessions"
	tomlrepo "github.com/bnema/walletsync/internal/adapters/repo/toml"
	"github.com/bnema/walletsync/internal/adapters/tracing"
	"github.com/bnema/walletsync/internal/application"
	"github.com/bnema/walletsync/internal/config"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"github.com/bnema/walletsync/internal/version"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

const serviceName = "wsync"

var errBridgeNotConfigured = errors.New("bridge.url is not configured (set it in config.toml or WSYNC_BRIDGE_URL)")

type app struct {
	cfg            config.Config
	logger         *slog.Logger
	logLevel       *slog.LevelVar
	httpClient     *http.Client
	sessionsRender func(sessionsadapter.Overview, sessionsadapter.RenderOptions) (string, error)
	now            func() time.Time
	credentials    func() (ports.CredentialStore, error)
}

func wireApp() (*app, error) {
	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{
		cfg:            cfg,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		logLevel:       new(slog.LevelVar),
		httpClient:     http.DefaultClient,
		sessionsRender: sessionsadapter.Render,
		now:            time.Now,
	}
	a.credentials = a.credentialStore

	return a, nil
}

func (a *app) credentialStore() (ports.CredentialStore, error) {
	switch a.cfg.Credentials.Backend {
	case config.CredentialsPass:
		return credentialpass.NewStore(), nil
	case config.CredentialsFile:
		return credentialfile.NewStore(a.cfg.Credentials.Dir), nil
	default:
		return credentialchain.NewPassWithFileFallback(a.cfg.Credentials.Dir)
	}
}

func (a *app) configureLogging(stderr io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	a.logLevel.Set(level)
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: a.logLevel}))
}

// runtime is one command's view of the coordination layer with persistence attached.
type runtime struct {
	coordinator *application.Coordinator
	housekeeper *application.Housekeeper
	metrics     *promadapter.Metrics
	redis       *redis.Client
}

func (a *app) openRuntime(ctx context.Context, traceOut io.Writer) (*runtime, error) {
	transport, modal, events, err := a.bridge(ctx)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if a.cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
	}

	ledger, err := a.ledger(redisClient)
	if err != nil {
		return nil, errors.Join(err, closeRedis(redisClient))
	}

	provider, shutdownTracing, err := tracing.Setup(a.cfg.Trace.Exporter, serviceName, version.Version, traceOut)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire tracing: %w", err), closeRedis(redisClient))
	}

	repo, err := tomlrepo.NewSessionRepository(a.cfg.SessionsPath)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("wire session repository: %w", err), closeRedis(redisClient))
	}

	metrics := promadapter.New()
	opts := []application.Option{
		application.WithLogger(a.logger),
		application.WithMetrics(metrics),
		application.WithTracer(provider.Tracer("github.com/bnema/walletsync")),
		application.WithBatch(application.BatchOptions{
			Concurrency: a.cfg.Sweep.Concurrency,
			Timeout:     a.cfg.Sweep.Timeout,
		}),
		application.WithRebroadcastDelay(a.cfg.Refresh.RebroadcastDelay),
		application.WithSettledRetention(a.cfg.Dedup.Retention),
	}

	coordinator := application.NewCoordinator(application.CoordinatorDeps{
		Transport: transport,
		Modal:     modal,
		Ledger:    ledger,
		Clock:     ports.SystemClock{},
		Scheduler: ports.SystemScheduler{},
	}, opts...)
	coordinator.OnClose(func() error {
		return closeRedis(redisClient)
	})
	coordinator.OnClose(func() error {
		return shutdownTracing(context.Background())
	})

	rt := &runtime{
		coordinator: coordinator,
		housekeeper: application.NewHousekeeper(coordinator.Sessions, events, repo, opts...),
		metrics:     metrics,
		redis:       redisClient,
	}
	if err := rt.housekeeper.Load(ctx); err != nil {
		return nil, errors.Join(err, coordinator.Close())
	}

	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.coordinator.Close()
}

func (a *app) bridge(ctx context.Context) (ports.WalletTransport, ports.WalletModal, ports.SessionEventSource, error) {
	if a.cfg.Bridge.URL == "" {
		return unconfiguredBridge{}, unconfiguredBridge{}, unconfiguredBridge{}, nil
	}

	token, err := a.bridgeToken(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := bridge.NewClient(bridge.Config{
		BaseURL:   a.cfg.Bridge.URL,
		Token:     token,
		Timeout:   a.cfg.Bridge.Timeout,
		RateLimit: a.cfg.Bridge.RateLimit,
		Burst:     a.cfg.Bridge.Burst,
	}, a.httpClient)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("wire bridge client: %w", err)
	}

	return client, client, client, nil
}

// bridgeToken prefers the configured token and otherwise reads the credential store. A missing
// entry means the bridge runs without authentication.
func (a *app) bridgeToken(ctx context.Context) (string, error) {
	if a.cfg.Bridge.Token != "" {
		return a.cfg.Bridge.Token, nil
	}

	store, err := a.credentials()
	if err != nil {
		return "", fmt.Errorf("wire credential store: %w", err)
	}

	token, err := store.Get(ctx, a.cfg.Bridge.TokenKey)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			a.logger.Debug("no bridge token stored", "key", a.cfg.Bridge.TokenKey)
			return "", nil
		}
		return "", fmt.Errorf("read bridge token: %w", err)
	}

	return token, nil
}

func (a *app) ledger(client *redis.Client) (ports.TerminalLedger, error) {
	switch a.cfg.Dedup.Backend {
	case config.DedupRedis:
		ledger, err := redisledger.NewLedger(client, a.cfg.Redis.Prefix, a.cfg.Dedup.Retention)
		if err != nil {
			return nil, fmt.Errorf("wire redis terminal ledger: %w", err)
		}
		return ledger, nil
	default:
		return memoryledger.NewLedger(a.cfg.Dedup.Retention, ports.SystemClock{}), nil
	}
}

func closeRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}

// unconfiguredBridge lets offline commands run without a bridge daemon.
type unconfiguredBridge struct{}

func (unconfiguredBridge) RequestPairingURI(context.Context) (string, error) {
	return "", errBridgeNotConfigured
}

func (unconfiguredBridge) Pair(context.Context, string) error {
	return errBridgeNotConfigured
}

func (unconfiguredBridge) Disconnect(context.Context, domain.Topic) error {
	return errBridgeNotConfigured
}

func (unconfiguredBridge) Open(context.Context) (domain.WalletIdentity, error) {
	return domain.WalletIdentity{}, errBridgeNotConfigured
}

func (unconfiguredBridge) Events(context.Context, int64) ([]domain.SessionEvent, error) {
	return nil, errBridgeNotConfigured
}
