package application

import (
	"io"
	"log/slog"
	"time"

	"github.com/bnema/walletsync/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/bnema/walletsync/internal/application"

const (
	defaultBatchConcurrency = 4
	defaultSettledRetention = 24 * time.Hour
)

// Option configures the ambient collaborators shared by the coordination components.
type Option func(*settings)

type settings struct {
	logger           *slog.Logger
	metrics          ports.Metrics
	tracer           trace.Tracer
	batch            BatchOptions
	notifier         ports.OperationNotifier
	identity         ports.IdentitySource
	rebroadcastDelay time.Duration
	settledRetention time.Duration
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(metrics ports.Metrics) Option {
	return func(s *settings) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithBatch bounds the fan-out of batch disconnects.
func WithBatch(batch BatchOptions) Option {
	return func(s *settings) {
		s.batch = batch
	}
}

func WithNotifier(notifier ports.OperationNotifier) Option {
	return func(s *settings) {
		s.notifier = notifier
	}
}

// WithIdentitySource gates BeginOperation on a connected wallet.
func WithIdentitySource(identity ports.IdentitySource) Option {
	return func(s *settings) {
		s.identity = identity
	}
}

// WithRebroadcastDelay schedules a second refresh after each confirmed operation.
// Zero disables the rebroadcast.
func WithRebroadcastDelay(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.rebroadcastDelay = d
		}
	}
}

// WithSettledRetention bounds how long the tracker remembers which attempt a settled hash belonged to.
func WithSettledRetention(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.settledRetention = d
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:          ports.NopMetrics{},
		tracer:           otel.Tracer(tracerName),
		batch:            BatchOptions{Concurrency: defaultBatchConcurrency},
		settledRetention: defaultSettledRetention,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.batch.Concurrency <= 0 {
		s.batch.Concurrency = defaultBatchConcurrency
	}

	return s
}
