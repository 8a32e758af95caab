package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	passstore "github.com/bnema/walletsync/internal/adapters/credentials/pass"
	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const tokenKey = "walletsync/bridge-token"

func newChain(t *testing.T) (*Store, *mocks.MockCredentialStore, *mocks.MockCredentialStore) {
	t.Helper()

	primary := mocks.NewMockCredentialStore(t)
	fallback := mocks.NewMockCredentialStore(t)
	store, err := NewStore(primary, fallback)
	require.NoError(t, err)
	return store, primary, fallback
}

func TestStoreGet(t *testing.T) {
	t.Parallel()

	notFound := fmt.Errorf("entry: %w", domain.ErrCredentialNotFound)

	tests := []struct {
		name         string
		primaryVal   string
		primaryErr   error
		callFallback bool
		fallbackVal  string
		fallbackErr  error
		want         string
		wantNotFound bool
		wantErr      string
	}{
		{name: "primary hit", primaryVal: "from-pass", want: "from-pass"},
		{name: "fallback hit", primaryErr: passstore.ErrUnavailable, callFallback: true, fallbackVal: "from-file", want: "from-file"},
		{name: "missing everywhere", primaryErr: notFound, callFallback: true, fallbackErr: notFound, wantNotFound: true},
		{name: "both broken", primaryErr: errors.New("gpg failed"), callFallback: true, fallbackErr: errors.New("disk failed"), wantErr: "gpg failed"},
		{name: "cancelled skips fallback", primaryErr: context.Canceled, wantErr: "context canceled"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store, primary, fallback := newChain(t)
			primary.EXPECT().Get(mock.Anything, tokenKey).Return(tc.primaryVal, tc.primaryErr).Once()
			if tc.callFallback {
				fallback.EXPECT().Get(mock.Anything, tokenKey).Return(tc.fallbackVal, tc.fallbackErr).Once()
			}

			value, err := store.Get(context.Background(), tokenKey)
			switch {
			case tc.wantNotFound:
				assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
			case tc.wantErr != "":
				assert.ErrorContains(t, err, tc.wantErr)
				assert.NotErrorIs(t, err, domain.ErrCredentialNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, tc.want, value)
			}
		})
	}
}

func TestStorePutFallsBackWhenPrimaryFails(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(passstore.ErrUnavailable).Once()
	fallback.EXPECT().Put(mock.Anything, tokenKey, "secret").Return(nil).Once()

	require.NoError(t, store.Put(context.Background(), tokenKey, "secret"))
}

func TestStoreDeleteClearsBothBackends(t *testing.T) {
	t.Parallel()

	store, primary, fallback := newChain(t)
	primary.EXPECT().Delete(mock.Anything, tokenKey).Return(passstore.ErrUnavailable).Once()
	fallback.EXPECT().Delete(mock.Anything, tokenKey).Return(nil).Once()

	require.NoError(t, store.Delete(context.Background(), tokenKey))
}

func TestNewStoreRejectsNilBackends(t *testing.T) {
	t.Parallel()

	_, err := NewStore(nil, mocks.NewMockCredentialStore(t))
	assert.ErrorContains(t, err, "primary credential store is nil")

	_, err = NewStore(mocks.NewMockCredentialStore(t), nil)
	assert.ErrorContains(t, err, "fallback credential store is nil")
}
