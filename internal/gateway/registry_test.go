package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/websearch/internal/apperr"
)

func TestJoinFirstReplicaSkipsSync(t *testing.T) {
	r1 := newFakeReplica("r1")
	reg := NewRegistry(newFakeDialer(r1), nil, 0, nil)

	require.NoError(t, reg.Join(context.Background(), "r1"))
	assert.Equal(t, []string{"r1"}, reg.Addresses())
	assert.True(t, r1.connected)
}

func TestJoinSyncsFromExistingReplica(t *testing.T) {
	r1, r2 := newFakeReplica("r1"), newFakeReplica("r2")
	reg := NewRegistry(newFakeDialer(r1, r2), nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, reg.Join(ctx, "r1"))
	require.NoError(t, reg.Join(ctx, "r2"))

	assert.Equal(t, []string{"r2"}, r1.syncedTo)
	assert.True(t, r2.connected)
	assert.Equal(t, []string{"r1", "r2"}, reg.Addresses())
}

func TestJoinReplacesStaleEntry(t *testing.T) {
	r1, r2 := newFakeReplica("r1"), newFakeReplica("r2")
	reg := NewRegistry(newFakeDialer(r1, r2), nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, reg.Join(ctx, "r1"))
	require.NoError(t, reg.Join(ctx, "r2"))
	require.NoError(t, reg.Join(ctx, "r1"))

	assert.Equal(t, 2, reg.Len())
	assert.ElementsMatch(t, []string{"r1", "r2"}, reg.Addresses())
	// The rejoining r1 was bootstrapped from r2, not from its own stale entry.
	assert.Equal(t, []string{"r1"}, r2.syncedTo)
}

func TestJoinFailsWhenSyncFails(t *testing.T) {
	r1, r2 := newFakeReplica("r1"), newFakeReplica("r2")
	r1.syncErr = apperr.E(apperr.ErrStorage, "sync", errors.New("disk full"))
	reg := NewRegistry(newFakeDialer(r1, r2), nil, 0, nil)
	ctx := context.Background()

	require.NoError(t, reg.Join(ctx, "r1"))
	err := reg.Join(ctx, "r2")
	require.ErrorIs(t, err, apperr.ErrStorage)
	assert.Equal(t, []string{"r1"}, reg.Addresses())
	assert.False(t, r2.connected)
}

func TestJoinUnreachable(t *testing.T) {
	reg := NewRegistry(newFakeDialer(), nil, 0, nil)
	err := reg.Join(context.Background(), "ghost")
	require.ErrorIs(t, err, apperr.ErrConnectivity)
	assert.Zero(t, reg.Len())

	require.ErrorIs(t, reg.Join(context.Background(), ""), apperr.ErrValidation)
}

func TestRefreshAddsReachableCandidates(t *testing.T) {
	r1 := newFakeReplica("r1")
	dialer := newFakeDialer(r1)
	reg := NewRegistry(dialer, []string{"r1", "down"}, 0, nil)

	reg.Refresh(context.Background())
	assert.Equal(t, []string{"r1"}, reg.Addresses())
	assert.True(t, r1.connected)

	reg.Refresh(context.Background())
	assert.Equal(t, 1, dialer.dialCount("r1"), "registered candidates are not re-dialed")
	assert.Equal(t, 2, dialer.dialCount("down"))
}

func TestRefreshSkipsReplicaStillJoining(t *testing.T) {
	r1, r2 := newFakeReplica("r1"), newFakeReplica("r2")
	r1.syncStarted = make(chan struct{}, 1)
	r1.syncGate = make(chan struct{})
	dialer := newFakeDialer(r1, r2)
	reg := NewRegistry(dialer, []string{"r2"}, 0, nil)
	ctx := context.Background()

	// The first join has no source, so r1 is never asked to sync here.
	require.NoError(t, reg.Join(ctx, "r1"))

	joined := make(chan error, 1)
	go func() { joined <- reg.Join(ctx, "r2") }()
	<-r1.syncStarted

	reg.Refresh(ctx)
	assert.Equal(t, []string{"r1"}, reg.Addresses(), "a bootstrapping replica is not registered early")
	assert.False(t, r2.isConnected())
	assert.Equal(t, 1, dialer.dialCount("r2"), "only the join dialed r2")

	close(r1.syncGate)
	require.NoError(t, <-joined)
	assert.Equal(t, []string{"r1", "r2"}, reg.Addresses())
	assert.True(t, r2.isConnected())

	reg.Refresh(ctx)
	assert.Equal(t, 1, dialer.dialCount("r2"))
}

func TestAdmitLosesToJoin(t *testing.T) {
	r2 := newFakeReplica("r2")
	reg := NewRegistry(newFakeDialer(r2), nil, 0, nil)

	reg.beginJoin("r2")
	assert.False(t, reg.admit("r2", r2))
	assert.Zero(t, reg.Len())

	reg.endJoin("r2")
	assert.True(t, reg.admit("r2", r2))
	assert.False(t, reg.admit("r2", r2), "already registered")
	assert.Equal(t, []string{"r2"}, reg.Addresses())
}

func TestRefreshOutlivesCallerCancellation(t *testing.T) {
	r1 := newFakeReplica("r1")
	reg := NewRegistry(newFakeDialer(r1), []string{"r1"}, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reg.Refresh(ctx)

	assert.Equal(t, []string{"r1"}, reg.Addresses())
}

func TestRefreshBoundedByTimeout(t *testing.T) {
	r1 := newFakeReplica("r1")
	r1.hangConnect = true
	reg := NewRegistry(newFakeDialer(r1), []string{"r1"}, 50*time.Millisecond, nil)

	start := time.Now()
	reg.Refresh(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, reg.Len())
}

func TestRemove(t *testing.T) {
	reg := NewRegistry(newFakeDialer(newFakeReplica("r1")), nil, 0, nil)
	require.NoError(t, reg.Join(context.Background(), "r1"))
	assert.True(t, reg.Remove("r1"))
	assert.False(t, reg.Remove("r1"))
	_, ok := reg.Get("r1")
	assert.False(t, ok)
}
