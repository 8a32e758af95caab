package ports

import "context"

// CredentialStore keeps small secrets such as the bridge bearer token. Get wraps
// domain.ErrCredentialNotFound when the key has never been stored.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
