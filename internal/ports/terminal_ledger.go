package ports

import (
	"context"

	"github.com/bnema/walletsync/internal/domain"
)

// TerminalLedger records which attempts already ran their terminal side effects.
// MarkProcessed must be atomic: exactly one caller per key observes first == true.
type TerminalLedger interface {
	MarkProcessed(ctx context.Context, key domain.TerminalKey) (first bool, err error)
	Processed(ctx context.Context, key domain.TerminalKey) (bool, error)
}
