package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeEventSource struct {
	mu     sync.Mutex
	events []domain.SessionEvent
	since  []int64
	err    error
}

func (f *fakeEventSource) Events(_ context.Context, since int64) ([]domain.SessionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.since = append(f.since, since)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.SessionEvent, 0)
	for _, event := range f.events {
		if event.Seq > since {
			out = append(out, event)
		}
	}
	return out, nil
}

type memoryRepository struct {
	mu       sync.Mutex
	snapshot domain.SessionSnapshot
	saves    int
}

func (r *memoryRepository) Load(context.Context) (domain.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot, nil
}

func (r *memoryRepository) Save(_ context.Context, snapshot domain.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshot = snapshot
	r.saves++
	return nil
}

func TestHousekeeperSyncOnceAppliesEventsAfterCursor(t *testing.T) {
	t.Parallel()

	source := &fakeEventSource{events: []domain.SessionEvent{
		{Seq: 1, Kind: domain.SessionEstablished, Session: testSession("t1", baseTime.Add(time.Hour))},
		{Seq: 2, Kind: domain.SessionEstablished, Session: testSession("t2", baseTime.Add(time.Hour))},
		{Seq: 3, Kind: domain.SessionDeleted, Topic: "t1"},
	}}
	repo := &memoryRepository{}
	store := NewSessionStore(nil, newFakeClock())
	housekeeper := NewHousekeeper(store, source, repo)

	applied, err := housekeeper.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Equal(t, int64(3), store.Cursor())

	applied, err = housekeeper.SyncOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, []int64{0, 3}, source.since)

	assert.Equal(t, 1, repo.saves)
	require.Len(t, repo.snapshot.Sessions, 1)
	assert.Equal(t, domain.Topic("t2"), repo.snapshot.Sessions[0].Topic)
}

func TestHousekeeperSyncOnceSurfacesSourceError(t *testing.T) {
	t.Parallel()

	housekeeper := NewHousekeeper(NewSessionStore(nil, newFakeClock()), &fakeEventSource{err: errors.New("bridge offline")}, nil)
	_, err := housekeeper.SyncOnce(context.Background())
	assert.ErrorContains(t, err, "fetch session events: bridge offline")
}

func TestHousekeeperSweepOncePersists(t *testing.T) {
	t.Parallel()

	transport := mocks.NewMockWalletTransport(t)
	transport.EXPECT().Disconnect(mock.Anything, domain.Topic("stale")).Return(errors.New("unknown topic")).Once()

	repo := &memoryRepository{snapshot: domain.SessionSnapshot{
		Sessions: []domain.Session{testSession("stale", baseTime.Add(-time.Second)), testSession("fresh", baseTime.Add(time.Hour))},
		Active:   "stale",
	}}
	store := NewSessionStore(transport, newFakeClock())
	housekeeper := NewHousekeeper(store, nil, repo)
	require.NoError(t, housekeeper.Load(context.Background()))

	report, err := housekeeper.SweepOnce(context.Background())
	assert.ErrorContains(t, err, "unknown topic")
	require.Len(t, report.Results, 1)
	require.Len(t, repo.snapshot.Sessions, 1)
	assert.Equal(t, domain.Topic("fresh"), repo.snapshot.Sessions[0].Topic)
	assert.Empty(t, repo.snapshot.Active)
}

func TestHousekeeperStartValidatesSchedule(t *testing.T) {
	t.Parallel()

	housekeeper := NewHousekeeper(NewSessionStore(nil, newFakeClock()), nil, nil)
	err := housekeeper.Start(context.Background(), "every now and then", 0)
	assert.ErrorContains(t, err, "schedule expiry sweep")

	require.NoError(t, housekeeper.Start(context.Background(), "@every 1h", time.Minute))
	assert.Error(t, housekeeper.Start(context.Background(), "@every 1h", 0))
	assert.NoError(t, housekeeper.Stop(context.Background()))
	assert.NoError(t, housekeeper.Stop(context.Background()))
}
