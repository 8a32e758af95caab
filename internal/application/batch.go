package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BatchOptions bounds a batch disconnect. A zero Timeout leaves each call to the caller's context.
type BatchOptions struct {
	Concurrency int
	Timeout     time.Duration
}

type DisconnectResult struct {
	Topic domain.Topic
	Err   error
}

// DisconnectReport holds exactly one result per requested topic, in request order.
type DisconnectReport struct {
	Results []DisconnectResult
}

func (r DisconnectReport) Succeeded() []domain.Topic {
	topics := make([]domain.Topic, 0, len(r.Results))
	for _, result := range r.Results {
		if result.Err == nil {
			topics = append(topics, result.Topic)
		}
	}
	return topics
}

func (r DisconnectReport) Failed() []DisconnectResult {
	failed := make([]DisconnectResult, 0)
	for _, result := range r.Results {
		if result.Err != nil {
			failed = append(failed, result)
		}
	}
	return failed
}

// Err joins every per-topic failure, or returns nil when the whole batch succeeded.
func (r DisconnectReport) Err() error {
	var err error
	for _, result := range r.Failed() {
		err = errors.Join(err, fmt.Errorf("disconnect session %s: %w", result.Topic, result.Err))
	}
	return err
}

type batchDisconnector struct {
	transport ports.WalletTransport
	options   BatchOptions
	tracer    trace.Tracer
	metrics   ports.Metrics
}

func (d batchDisconnector) run(ctx context.Context, batch string, topics []domain.Topic) DisconnectReport {
	ctx, span := d.tracer.Start(ctx, "sessions.disconnect_batch", trace.WithAttributes(
		attribute.String("batch", batch),
		attribute.Int("sessions", len(topics)),
	))
	defer span.End()

	report := DisconnectReport{Results: make([]DisconnectResult, len(topics))}

	var group errgroup.Group
	group.SetLimit(d.options.Concurrency)
	for i, topic := range topics {
		i, topic := i, topic
		group.Go(func() error {
			report.Results[i] = DisconnectResult{Topic: topic, Err: d.disconnectOne(ctx, topic)}
			d.metrics.DisconnectAttempted(batch, report.Results[i].Err)
			return nil
		})
	}
	_ = group.Wait()

	if failed := len(report.Failed()); failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d of %d disconnects failed", failed, len(topics)))
	}

	return report
}

func (d batchDisconnector) disconnectOne(ctx context.Context, topic domain.Topic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.options.Timeout)
		defer cancel()
	}

	return d.transport.Disconnect(ctx, topic)
}
