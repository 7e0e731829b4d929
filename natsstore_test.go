package upcheck_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	upcheck "github.com/upcheck/upcheck"
	"github.com/upcheck/upcheck/testutil"
)

func newNATSStore(t *testing.T, srv *testutil.NATSServer, bucket string, numPeers int) *upcheck.NATSStore {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := upcheck.NewNATSStore(ctx, upcheck.NATSStoreConfig{
		Servers:  []string{srv.URL()},
		Bucket:   bucket,
		NumPeers: numPeers,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNATSStore_SeedAndGet(t *testing.T) {
	srv := testutil.StartNATS(t)
	store := newNATSStore(t, srv, "SEED", 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := store.Get(ctx, i)
		require.NoError(t, err)
		assert.Empty(t, status.Owner)
		assert.False(t, status.Down)
		assert.False(t, status.Since.IsZero())
	}

	_, err := store.Get(ctx, 3)
	assert.ErrorIs(t, err, upcheck.ErrUnknownPeer)
}

func TestNATSStore_SeedPreservesExistingRecords(t *testing.T) {
	srv := testutil.StartNATS(t)
	ctx := context.Background()

	first := newNATSStore(t, srv, "RESTART", 1)
	ok, err := first.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, first.Update(ctx, 0, "worker-1", func(st *upcheck.PeerStatus) {
		st.Down = true
	}))

	// A restarting worker opening the same bucket must see the live
	// state, not a reset.
	second := newNATSStore(t, srv, "RESTART", 1)
	status, err := second.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, status.Down)
	assert.Equal(t, "worker-1", status.Owner)
}

func TestNATSStore_LeaseLifecycle(t *testing.T) {
	srv := testutil.StartNATS(t)
	store := newNATSStore(t, srv, "LEASE", 1)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "holder renews")

	ok, err = store.Acquire(ctx, 0, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "live lease is not stolen")

	// The owner goes silent past the staleness window.
	time.Sleep(20 * time.Millisecond)
	ok, err = store.Acquire(ctx, 0, "worker-2", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok, "stale lease is superseded")

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "worker-2", status.Owner)
}

func TestNATSStore_UpdateRequiresLease(t *testing.T) {
	srv := testutil.StartNATS(t)
	store := newNATSStore(t, srv, "UPDATE", 1)
	ctx := context.Background()

	err := store.Update(ctx, 0, "worker-1", func(*upcheck.PeerStatus) {})
	assert.ErrorIs(t, err, upcheck.ErrNotOwner)

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Update(ctx, 0, "worker-1", func(st *upcheck.PeerStatus) {
		st.Concurrent = 2
		st.LastCode = upcheck.OutcomeBadBody
	}))

	err = store.Update(ctx, 0, "worker-2", func(*upcheck.PeerStatus) {})
	assert.ErrorIs(t, err, upcheck.ErrNotOwner)

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Concurrent)
	assert.Equal(t, upcheck.OutcomeBadBody, status.LastCode)
}

func TestNATSStore_SupersededOwnerLosesUpdate(t *testing.T) {
	srv := testutil.StartNATS(t)
	store := newNATSStore(t, srv, "SUPERSEDE", 1)
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	ok, err = store.Acquire(ctx, 0, "worker-2", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// The superseded worker's next write must be rejected, which is
	// its signal to fall back to acquisition.
	err = store.Update(ctx, 0, "worker-1", func(st *upcheck.PeerStatus) {
		st.Down = true
	})
	assert.ErrorIs(t, err, upcheck.ErrNotOwner)
}

func TestNATSStore_SharedAcrossStores(t *testing.T) {
	srv := testutil.StartNATS(t)
	ctx := context.Background()

	a := newNATSStore(t, srv, "SHARED", 1)
	b := newNATSStore(t, srv, "SHARED", 1)

	ok, err := a.Acquire(ctx, 0, "worker-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Update(ctx, 0, "worker-a", func(st *upcheck.PeerStatus) {
		st.Down = true
		st.LastCode = upcheck.OutcomeTimedOut
	}))

	status, err := b.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, status.Down)
	assert.Equal(t, "worker-a", status.Owner)
}

func TestNATSStore_WatchDeliversUpdates(t *testing.T) {
	srv := testutil.StartNATS(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	owner := newNATSStore(t, srv, "WATCH", 2)
	observer := newNATSStore(t, srv, "WATCH", 2)

	events, err := observer.Watch(ctx)
	require.NoError(t, err)

	ok, err := owner.Acquire(ctx, 1, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, owner.Update(ctx, 1, "worker-1", func(st *upcheck.PeerStatus) {
		st.Down = true
	}))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Index == 1 && ev.Status.Down {
				return
			}
		case <-deadline:
			t.Fatal("no status event for the updated peer")
		}
	}
}

func TestNATSStoreConfig_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := upcheck.NewNATSStore(ctx, upcheck.NATSStoreConfig{Bucket: "B", NumPeers: 1})
	assert.ErrorContains(t, err, "NATS server")

	_, err = upcheck.NewNATSStore(ctx, upcheck.NATSStoreConfig{Servers: []string{"nats://x:4222"}, NumPeers: 1})
	assert.ErrorContains(t, err, "bucket")

	_, err = upcheck.NewNATSStore(ctx, upcheck.NATSStoreConfig{Servers: []string{"nats://x:4222"}, Bucket: "B"})
	assert.ErrorContains(t, err, "numPeers")
}
