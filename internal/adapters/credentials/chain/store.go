package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/walletsync/internal/adapters/credentials/file"
	passstore "github.com/bnema/walletsync/internal/adapters/credentials/pass"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
)

// Store reads from primary and falls back to fallback. Writes go to the first backend that
// accepts them; deletes clear both so a rotated credential cannot resurface.
type Store struct {
	primary  ports.CredentialStore
	fallback ports.CredentialStore
}

var _ ports.CredentialStore = (*Store)(nil)

func NewStore(primary ports.CredentialStore, fallback ports.CredentialStore) (*Store, error) {
	if primary == nil {
		return nil, errors.New("primary credential store is nil")
	}
	if fallback == nil {
		return nil, errors.New("fallback credential store is nil")
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

// NewPassWithFileFallback prefers pass and falls back to files below fileRoot.
func NewPassWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if isContextErr(err) {
		return "", err
	}

	value, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		return value, nil
	}
	if errors.Is(err, domain.ErrCredentialNotFound) && errors.Is(fallbackErr, domain.ErrCredentialNotFound) {
		return "", fmt.Errorf("credential %q: %w", key, domain.ErrCredentialNotFound)
	}

	return "", fmt.Errorf("primary credential backend: %w; fallback credential backend: %w", err, fallbackErr)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}
	if isContextErr(err) {
		return err
	}

	if fallbackErr := s.fallback.Put(ctx, key, value); fallbackErr != nil {
		return fmt.Errorf("primary credential backend: %w; fallback credential backend: %w", err, fallbackErr)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	primaryErr := s.primary.Delete(ctx, key)
	if isContextErr(primaryErr) {
		return primaryErr
	}
	if errors.Is(primaryErr, passstore.ErrUnavailable) {
		primaryErr = nil
	}

	return errors.Join(primaryErr, s.fallback.Delete(ctx, key))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
