package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	configName   = "config"
	configType   = "toml"
	configDir    = "walletsync"
	envPrefix    = "WSYNC"
	sessionsFile = "sessions.toml"
)

const (
	DedupMemory = "memory"
	DedupRedis  = "redis"

	TraceNone   = "none"
	TraceStdout = "stdout"

	CredentialsAuto = "auto"
	CredentialsPass = "pass"
	CredentialsFile = "file"
)

const (
	KeySessionsPath     = "sessions.path"
	KeyBridgeURL        = "bridge.url"
	KeyBridgeToken      = "bridge.token"
	KeyBridgeTokenKey   = "bridge.token_key"
	KeyBridgeTimeout    = "bridge.timeout"
	KeyBridgeRateLimit  = "bridge.rate_limit"
	KeyBridgeBurst      = "bridge.burst"
	KeyRebroadcastDelay = "refresh.rebroadcast_delay"
	KeySweepSchedule    = "sweep.schedule"
	KeySweepConcurrency = "sweep.concurrency"
	KeySweepTimeout     = "sweep.timeout"
	KeySyncInterval     = "sync.interval"
	KeyDedupBackend     = "dedup.backend"
	KeyDedupRetention   = "dedup.retention"
	KeyRedisAddr        = "redis.addr"
	KeyRedisPassword    = "redis.password"
	KeyRedisDB          = "redis.db"
	KeyRedisPrefix      = "redis.prefix"
	KeyRelayEnabled     = "relay.enabled"
	KeyMetricsAddr      = "metrics.addr"
	KeyTraceExporter    = "trace.exporter"
	KeyCredentials      = "credentials.backend"
)

type Config struct {
	SessionsPath string
	Bridge       Bridge
	Refresh      Refresh
	Sweep        Sweep
	Sync         Sync
	Dedup        Dedup
	Redis        Redis
	Relay        Relay
	Metrics      Metrics
	Trace        Trace
	Credentials  Credentials
}

// Bridge describes the wallet-connection daemon. TokenKey names the credential entry read
// when Token is empty.
type Bridge struct {
	URL       string
	Token     string
	TokenKey  string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
}

type Refresh struct {
	RebroadcastDelay time.Duration
}

type Sweep struct {
	Schedule    string
	Concurrency int
	Timeout     time.Duration
}

type Sync struct {
	Interval time.Duration
}

type Dedup struct {
	Backend   string
	Retention time.Duration
}

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Relay struct {
	Enabled bool
}

type Metrics struct {
	Addr string
}

type Trace struct {
	Exporter string
}

type Credentials struct {
	Backend string
	Dir     string
}

// Dir returns the directory holding config.toml and the session snapshot.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", fmt.Errorf("resolve config directory: %w", errors.Join(err, homeErr))
		}
		base = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(base, configDir), nil
}

// Load reads config.toml from the config directory (a missing file is fine), overlays WSYNC_*
// environment variables and validates the result.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := fromViper(v, dir)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault(KeySessionsPath, filepath.Join(dir, sessionsFile))
	v.SetDefault(KeyBridgeURL, "")
	v.SetDefault(KeyBridgeToken, "")
	v.SetDefault(KeyBridgeTokenKey, "walletsync/bridge-token")
	v.SetDefault(KeyBridgeTimeout, 30*time.Second)
	v.SetDefault(KeyBridgeRateLimit, 5.0)
	v.SetDefault(KeyBridgeBurst, 10)
	v.SetDefault(KeyRebroadcastDelay, 4*time.Second)
	v.SetDefault(KeySweepSchedule, "@every 1m")
	v.SetDefault(KeySweepConcurrency, 4)
	v.SetDefault(KeySweepTimeout, 10*time.Second)
	v.SetDefault(KeySyncInterval, 5*time.Second)
	v.SetDefault(KeyDedupBackend, DedupMemory)
	v.SetDefault(KeyDedupRetention, 24*time.Hour)
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyRedisPassword, "")
	v.SetDefault(KeyRedisDB, 0)
	v.SetDefault(KeyRedisPrefix, "walletsync")
	v.SetDefault(KeyRelayEnabled, false)
	v.SetDefault(KeyMetricsAddr, "127.0.0.1:9464")
	v.SetDefault(KeyTraceExporter, TraceNone)
	v.SetDefault(KeyCredentials, CredentialsAuto)
}

func fromViper(v *viper.Viper, dir string) Config {
	return Config{
		SessionsPath: v.GetString(KeySessionsPath),
		Bridge: Bridge{
			URL:       strings.TrimSpace(v.GetString(KeyBridgeURL)),
			Token:     v.GetString(KeyBridgeToken),
			TokenKey:  strings.TrimSpace(v.GetString(KeyBridgeTokenKey)),
			Timeout:   v.GetDuration(KeyBridgeTimeout),
			RateLimit: v.GetFloat64(KeyBridgeRateLimit),
			Burst:     v.GetInt(KeyBridgeBurst),
		},
		Refresh: Refresh{RebroadcastDelay: v.GetDuration(KeyRebroadcastDelay)},
		Sweep: Sweep{
			Schedule:    v.GetString(KeySweepSchedule),
			Concurrency: v.GetInt(KeySweepConcurrency),
			Timeout:     v.GetDuration(KeySweepTimeout),
		},
		Sync: Sync{Interval: v.GetDuration(KeySyncInterval)},
		Dedup: Dedup{
			Backend:   strings.ToLower(strings.TrimSpace(v.GetString(KeyDedupBackend))),
			Retention: v.GetDuration(KeyDedupRetention),
		},
		Redis: Redis{
			Addr:     v.GetString(KeyRedisAddr),
			Password: v.GetString(KeyRedisPassword),
			DB:       v.GetInt(KeyRedisDB),
			Prefix:   v.GetString(KeyRedisPrefix),
		},
		Relay:   Relay{Enabled: v.GetBool(KeyRelayEnabled)},
		Metrics: Metrics{Addr: v.GetString(KeyMetricsAddr)},
		Trace:   Trace{Exporter: strings.ToLower(strings.TrimSpace(v.GetString(KeyTraceExporter)))},
		Credentials: Credentials{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString(KeyCredentials))),
			Dir:     filepath.Join(dir, "credentials"),
		},
	}
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.SessionsPath) == "" {
		errs = append(errs, errors.New("sessions.path is empty"))
	}
	if c.Bridge.URL != "" {
		parsed, err := url.Parse(c.Bridge.URL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("bridge.url %q is not an absolute url", c.Bridge.URL))
		}
	}
	if c.Bridge.Timeout <= 0 {
		errs = append(errs, errors.New("bridge.timeout must be positive"))
	}
	if c.Bridge.RateLimit < 0 {
		errs = append(errs, errors.New("bridge.rate_limit must not be negative"))
	}
	if c.Bridge.RateLimit > 0 && c.Bridge.Burst < 1 {
		errs = append(errs, errors.New("bridge.burst must be at least 1 when rate limiting"))
	}
	if c.Refresh.RebroadcastDelay < 0 {
		errs = append(errs, errors.New("refresh.rebroadcast_delay must not be negative"))
	}
	if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
		errs = append(errs, fmt.Errorf("sweep.schedule %q: %w", c.Sweep.Schedule, err))
	}
	if c.Sweep.Concurrency < 1 {
		errs = append(errs, errors.New("sweep.concurrency must be at least 1"))
	}
	if c.Sweep.Timeout < 0 {
		errs = append(errs, errors.New("sweep.timeout must not be negative"))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, errors.New("sync.interval must not be negative"))
	}
	switch c.Dedup.Backend {
	case DedupMemory, DedupRedis:
	default:
		errs = append(errs, fmt.Errorf("dedup.backend %q must be %q or %q", c.Dedup.Backend, DedupMemory, DedupRedis))
	}
	if c.Dedup.Retention < 0 {
		errs = append(errs, errors.New("dedup.retention must not be negative"))
	}
	if c.NeedsRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		errs = append(errs, errors.New("redis.addr is required when redis dedup or relay is enabled"))
	}
	switch c.Trace.Exporter {
	case TraceNone, TraceStdout:
	default:
		errs = append(errs, fmt.Errorf("trace.exporter %q must be %q or %q", c.Trace.Exporter, TraceNone, TraceStdout))
	}
	switch c.Credentials.Backend {
	case CredentialsAuto, CredentialsPass, CredentialsFile:
	default:
		errs = append(errs, fmt.Errorf("credentials.backend %q must be %q, %q or %q", c.Credentials.Backend, CredentialsAuto, CredentialsPass, CredentialsFile))
	}
	if c.Bridge.Token == "" && c.Bridge.TokenKey == "" && c.Bridge.URL != "" {
		errs = append(errs, errors.New("bridge.token_key must be set when bridge.token is empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

// NeedsRedis reports whether any enabled component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.Dedup.Backend == DedupRedis || c.Relay.Enabled
}
