package ports

import (
	"context"

	"github.com/bnema/walletsync/internal/domain"
)

type SessionRepository interface {
	Load(ctx context.Context) (domain.SessionSnapshot, error)
	Save(ctx context.Context, snapshot domain.SessionSnapshot) error
}
