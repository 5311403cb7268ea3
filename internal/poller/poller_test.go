package poller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjcumming/wiimd/internal/eventbus"
	"github.com/mjcumming/wiimd/internal/wiim"
)

// fakeClient simulates a device that can be switched between answering and
// failing.
type fakeClient struct {
	host string

	mu      sync.Mutex
	failing bool
	uuid    string
}

func newFakeClient(host, uuid string) *fakeClient {
	return &fakeClient{host: host, uuid: uuid}
}

func (f *fakeClient) Host() string { return f.host }

func (f *fakeClient) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func (f *fakeClient) Status(ctx context.Context) (*wiim.StatusSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("%w: connection refused", wiim.ErrNetwork)
	}
	return &wiim.StatusSnapshot{
		UUID:        f.uuid,
		Name:        "Fake " + f.host,
		State:       wiim.PlayStatePlaying,
		VolumeLevel: 0.5,
		PolledAt:    time.Now(),
	}, nil
}

func (f *fakeClient) SlaveList(ctx context.Context) (*wiim.SlaveList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, fmt.Errorf("%w: connection refused", wiim.ErrNetwork)
	}
	return &wiim.SlaveList{}, nil
}

func newTestCoordinator(t *testing.T, clients map[string]*fakeClient) (*Coordinator, *Store) {
	t.Helper()

	store := NewStore()
	bus := eventbus.New()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bus.Close(ctx)
	})

	factory := func(host string) DeviceClient { return clients[host] }
	coordinator := New(Config{Interval: 20 * time.Millisecond, FailureThreshold: 3}, store, bus, factory, nil)
	t.Cleanup(coordinator.Stop)

	return coordinator, store
}

func TestCoordinatorPublishesSnapshots(t *testing.T) {
	client := newFakeClient("10.0.0.1", "uuid-1")
	coordinator, store := newTestCoordinator(t, map[string]*fakeClient{"10.0.0.1": client})

	coordinator.Add(context.Background(), "10.0.0.1")

	require.Eventually(t, func() bool {
		state, ok := store.Get("10.0.0.1")
		return ok && state.Snapshot != nil && state.Snapshot.Seq >= 2
	}, time.Second, 5*time.Millisecond)

	state, _ := store.Get("10.0.0.1")
	assert.Equal(t, AvailabilityHealthy, state.Availability)
	assert.Equal(t, "uuid-1", state.Identity.UUID)
	assert.Equal(t, "Fake 10.0.0.1", state.Identity.Name)
	assert.Equal(t, wiim.PlayStatePlaying, state.Snapshot.State)
}

func TestCoordinatorAvailabilityStateMachine(t *testing.T) {
	client := newFakeClient("10.0.0.1", "uuid-1")
	client.setFailing(true)
	coordinator, store := newTestCoordinator(t, map[string]*fakeClient{"10.0.0.1": client})

	coordinator.Add(context.Background(), "10.0.0.1")

	// Three consecutive failures make the device unavailable.
	require.Eventually(t, func() bool {
		state, ok := store.Get("10.0.0.1")
		return ok && state.Availability == AvailabilityUnavailable
	}, time.Second, 5*time.Millisecond)

	state, _ := store.Get("10.0.0.1")
	assert.GreaterOrEqual(t, state.Failures, 3)

	// Polling continues: a single success returns the device straight to
	// healthy with the failure count reset.
	client.setFailing(false)

	require.Eventually(t, func() bool {
		state, ok := store.Get("10.0.0.1")
		return ok && state.Availability == AvailabilityHealthy
	}, time.Second, 5*time.Millisecond)

	state, _ = store.Get("10.0.0.1")
	assert.Equal(t, 0, state.Failures)
	require.NotNil(t, state.Snapshot)
}

func TestCoordinatorKeepsLastSnapshotWhileUnavailable(t *testing.T) {
	client := newFakeClient("10.0.0.1", "uuid-1")
	coordinator, store := newTestCoordinator(t, map[string]*fakeClient{"10.0.0.1": client})

	coordinator.Add(context.Background(), "10.0.0.1")

	require.Eventually(t, func() bool {
		state, ok := store.Get("10.0.0.1")
		return ok && state.Snapshot != nil
	}, time.Second, 5*time.Millisecond)

	client.setFailing(true)

	require.Eventually(t, func() bool {
		state, _ := store.Get("10.0.0.1")
		return state.Availability == AvailabilityUnavailable
	}, time.Second, 5*time.Millisecond)

	// The last known snapshot survives for stale display; only the
	// availability changes.
	state, _ := store.Get("10.0.0.1")
	require.NotNil(t, state.Snapshot)
	assert.Equal(t, "uuid-1", state.Snapshot.UUID)
}

func TestCoordinatorIndependentDevices(t *testing.T) {
	healthy := newFakeClient("10.0.0.1", "uuid-1")
	broken := newFakeClient("10.0.0.2", "uuid-2")
	broken.setFailing(true)

	coordinator, store := newTestCoordinator(t, map[string]*fakeClient{
		"10.0.0.1": healthy,
		"10.0.0.2": broken,
	})

	ctx := context.Background()
	coordinator.Add(ctx, "10.0.0.1")
	coordinator.Add(ctx, "10.0.0.2")

	// One device failing never blocks or degrades the other.
	require.Eventually(t, func() bool {
		a, okA := store.Get("10.0.0.1")
		b, okB := store.Get("10.0.0.2")
		return okA && okB &&
			a.Availability == AvailabilityHealthy &&
			b.Availability == AvailabilityUnavailable
	}, time.Second, 5*time.Millisecond)
}

func TestCoordinatorRemove(t *testing.T) {
	client := newFakeClient("10.0.0.1", "uuid-1")
	coordinator, store := newTestCoordinator(t, map[string]*fakeClient{"10.0.0.1": client})

	coordinator.Add(context.Background(), "10.0.0.1")
	require.Eventually(t, func() bool {
		_, ok := store.Get("10.0.0.1")
		return ok
	}, time.Second, 5*time.Millisecond)

	coordinator.Remove("10.0.0.1")

	_, ok := store.Get("10.0.0.1")
	assert.False(t, ok)
	assert.Empty(t, coordinator.Hosts())
}

func TestStoreReplaceIsWholeSale(t *testing.T) {
	store := NewStore()

	first := DeviceState{
		Identity: Identity{Host: "10.0.0.1", UUID: "uuid-1"},
		Snapshot: &wiim.StatusSnapshot{UUID: "uuid-1", Title: "old", Seq: 1},
	}
	store.Replace("10.0.0.1", first)

	second := DeviceState{
		Identity: Identity{Host: "10.0.0.1", UUID: "uuid-1"},
		Snapshot: &wiim.StatusSnapshot{UUID: "uuid-1", Seq: 2},
	}
	store.Replace("10.0.0.1", second)

	// Publication is a full replace, not a merge: fields absent from the
	// new snapshot do not leak through from the old one.
	state, ok := store.Get("10.0.0.1")
	require.True(t, ok)
	assert.Empty(t, state.Snapshot.Title)
	assert.Equal(t, uint64(2), state.Snapshot.Seq)
}
