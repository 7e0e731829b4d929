package upcheck_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	upcheck "github.com/upcheck/upcheck"
)

func TestMemoryStore_AcquireUnowned(t *testing.T) {
	store := upcheck.NewMemoryStore(2)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", status.Owner)
	assert.False(t, status.ActionTime.IsZero(), "acquisition stamps activity")
}

func TestMemoryStore_AcquireRenewsOwnLease(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the holder always renews")
}

func TestMemoryStore_AcquireRespectsLiveOwner(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Acquire(ctx, 0, "worker-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease must not be stolen")

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "worker-1", status.Owner)
}

func TestMemoryStore_AcquireSupersedesStaleOwner(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx := context.Background()

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// worker-1 goes silent; its last activity immediately exceeds a
	// tiny staleness window.
	time.Sleep(5 * time.Millisecond)
	ok, err = store.Acquire(ctx, 0, "worker-2", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "worker-2", status.Owner)
}

func TestMemoryStore_UpdateRequiresLease(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx := context.Background()

	err := store.Update(ctx, 0, "worker-1", func(*upcheck.PeerStatus) {})
	assert.ErrorIs(t, err, upcheck.ErrNotOwner, "nobody owns a fresh record")

	ok, err := store.Acquire(ctx, 0, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = store.Update(ctx, 0, "worker-1", func(st *upcheck.PeerStatus) {
		st.Down = true
		st.LastCode = upcheck.OutcomeTimedOut
	})
	require.NoError(t, err)

	err = store.Update(ctx, 0, "worker-2", func(*upcheck.PeerStatus) {})
	assert.ErrorIs(t, err, upcheck.ErrNotOwner)

	status, err := store.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, status.Down)
	assert.Equal(t, upcheck.OutcomeTimedOut, status.LastCode)
}

func TestMemoryStore_UnknownPeer(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx := context.Background()

	_, err := store.Acquire(ctx, 5, "worker-1", time.Minute)
	assert.ErrorIs(t, err, upcheck.ErrUnknownPeer)
	_, err = store.Get(ctx, -1)
	assert.ErrorIs(t, err, upcheck.ErrUnknownPeer)
	err = store.Update(ctx, 5, "worker-1", func(*upcheck.PeerStatus) {})
	assert.ErrorIs(t, err, upcheck.ErrUnknownPeer)
}

func TestMemoryStore_WatchDeliversUpdates(t *testing.T) {
	store := upcheck.NewMemoryStore(2)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := store.Watch(ctx)
	require.NoError(t, err)

	ok, err := store.Acquire(ctx, 1, "worker-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Update(ctx, 1, "worker-1", func(st *upcheck.PeerStatus) {
		st.Down = true
	}))

	select {
	case ev := <-events:
		assert.Equal(t, 1, ev.Index)
		assert.True(t, ev.Status.Down)
	case <-time.After(time.Second):
		t.Fatal("no status event delivered")
	}
}

func TestMemoryStore_WatchStopsOnCancel(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())

	events, err := store.Watch(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-events:
		assert.False(t, open, "channel closes after cancel")
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed")
	}
}

func TestMemoryStore_WatchAfterClose(t *testing.T) {
	store := upcheck.NewMemoryStore(1)
	require.NoError(t, store.Close())

	_, err := store.Watch(context.Background())
	assert.ErrorIs(t, err, upcheck.ErrStoreClosed)
	assert.NoError(t, store.Close(), "close is idempotent")
}
