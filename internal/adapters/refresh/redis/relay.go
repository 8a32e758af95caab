package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChannel = "walletsync:refresh"
	defaultBuffer  = 64
)

type Options struct {
	Channel string
	Buffer  int
	Logger  *slog.Logger
}

// Relay fans local refresh generations out to sibling processes over Redis pub/sub and hands
// remote ones back to the caller. Messages from this relay's own origin are ignored.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
	outbox  chan message

	readyOnce sync.Once
	ready     chan struct{}
}

type message struct {
	Origin      string    `json:"origin"`
	Generation  uint64    `json:"generation"`
	Source      string    `json:"source"`
	ScheduledAt time.Time `json:"scheduled_at"`
	FireAt      time.Time `json:"fire_at"`
}

func NewRelay(client *redis.Client, opts Options) (*Relay, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Relay{
		client:  client,
		channel: opts.Channel,
		origin:  uuid.NewString(),
		logger:  opts.Logger,
		outbox:  make(chan message, opts.Buffer),
		ready:   make(chan struct{}),
	}, nil
}

func (r *Relay) Origin() string {
	return r.origin
}

// Ready is closed once the relay's subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Forward queues a local trigger for publication without blocking. Remote triggers are never
// forwarded, and a full outbox drops the trigger.
func (r *Relay) Forward(trigger domain.RefreshTrigger) bool {
	if trigger.Source == domain.RefreshSourceRemote {
		return false
	}

	msg := message{
		Origin:      r.origin,
		Generation:  uint64(trigger.Generation),
		Source:      string(trigger.Source),
		ScheduledAt: trigger.ScheduledAt,
		FireAt:      trigger.FireAt,
	}
	select {
	case r.outbox <- msg:
		return true
	default:
		r.logger.Warn("refresh relay outbox full, dropping trigger", "generation", msg.Generation)
		return false
	}
}

// Run subscribes to the relay channel and pumps both directions until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, onRemote func(domain.RefreshTrigger)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe refresh channel %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.publishLoop(ctx)
	})
	group.Go(func() error {
		return r.receiveLoop(ctx, pubsub.Channel(), onRemote)
	})

	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (r *Relay) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-r.outbox:
			payload, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("encode refresh message: %w", err)
			}
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
				r.logger.Warn("publish refresh message failed", "generation", msg.Generation, "error", err)
			}
		}
	}
}

func (r *Relay) receiveLoop(ctx context.Context, messages <-chan *redis.Message, onRemote func(domain.RefreshTrigger)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-messages:
			if !ok {
				return errors.New("refresh channel closed")
			}

			var msg message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.Warn("ignoring malformed refresh message", "error", err)
				continue
			}
			if msg.Origin == r.origin {
				continue
			}

			r.logger.Debug("remote refresh received", "origin", msg.Origin, "generation", msg.Generation)
			onRemote(domain.RefreshTrigger{
				Generation:  domain.Generation(msg.Generation),
				Source:      domain.RefreshSourceRemote,
				ScheduledAt: msg.ScheduledAt,
				FireAt:      msg.FireAt,
			})
		}
	}
}
