package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "walletsync"

// Ledger shares terminal dedup state between processes. SETNX makes the first writer the only winner.
type Ledger struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

var _ ports.TerminalLedger = (*Ledger)(nil)

// NewLedger stores keys under "<prefix>:terminal:". A zero retention never expires keys.
func NewLedger(client *redis.Client, prefix string, retention time.Duration) (*Ledger, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &Ledger{client: client, prefix: prefix, retention: retention}, nil
}

func (l *Ledger) key(key domain.TerminalKey) string {
	return l.prefix + ":terminal:" + key.String()
}

func (l *Ledger) MarkProcessed(ctx context.Context, key domain.TerminalKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	first, err := l.client.SetNX(ctx, l.key(key), time.Now().UTC().Format(time.RFC3339Nano), l.retention).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx terminal key: %w", err)
	}

	return first, nil
}

func (l *Ledger) Processed(ctx context.Context, key domain.TerminalKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	count, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists terminal key: %w", err)
	}

	return count > 0, nil
}
