package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/gantryhq/gantry/pkg/lock"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

func newTestService(store *storage.MemoryStore, instanceID string) (*Service, *lock.Manager) {
	locks := lock.NewManager(store, instanceID)
	svc := NewService(store, locks, nil, Config{Version: "test"})
	return svc, locks
}

type recordingAlerter struct {
	down          []string
	leaderChanges []bool
}

func (r *recordingAlerter) CertificateExpiringSoon(cert *types.Certificate, daysLeft int) {}
func (r *recordingAlerter) CertificateExpired(cert *types.Certificate)                    {}
func (r *recordingAlerter) CertificateIssued(cert *types.Certificate)                     {}
func (r *recordingAlerter) RenewalFailure(domains []string, cause error)                  {}
func (r *recordingAlerter) NodeJoined(node *types.ClusterNode)                            {}
func (r *recordingAlerter) NodeLeft(node *types.ClusterNode)                              {}

func (r *recordingAlerter) NodeDown(node *types.ClusterNode) {
	r.down = append(r.down, node.InstanceID)
}

func (r *recordingAlerter) LeaderChanged(instanceID string, isLeader bool) {
	r.leaderChanges = append(r.leaderChanges, isLeader)
}

func TestHeartbeatProjectsLeadership(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, locks := newTestService(store, "n1")

	require.NoError(t, svc.Heartbeat(ctx))
	node, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, node.IsLeader)
	assert.Equal(t, types.NodeStatusActive, node.Status)

	require.True(t, locks.TryAcquireLeaderLock(ctx))
	require.NoError(t, svc.Heartbeat(ctx))

	node, err = store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, node.IsLeader)
}

func TestHeartbeatSplitBrainDefense(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, locks := newTestService(store, "n1")

	require.True(t, locks.TryAcquireLeaderLock(ctx))

	// Another active row claims leadership (e.g. written before its
	// session died without the column being repaired)
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "n2", Status: types.NodeStatusActive,
		IsLeader: true, LastHeartbeat: time.Now(),
	}))

	require.NoError(t, svc.Heartbeat(ctx))

	assert.False(t, locks.IsLeader(), "lock must be released on conflict")
	node, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, node.IsLeader, "row must project the post-release state")
}

func TestCleanupStaleDemotionAndDeletion(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, _ := newTestService(store, "n1")

	now := time.Now()
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "crashed", Status: types.NodeStatusActive,
		IsLeader: true, LastHeartbeat: now.Add(-3 * time.Minute),
	}))
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "long-dead", Status: types.NodeStatusStale,
		LastHeartbeat: now.Add(-2 * time.Hour),
	}))

	require.NoError(t, svc.Cleanup(ctx))

	crashed, err := store.GetNode(ctx, "crashed")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusStale, crashed.Status)
	assert.False(t, crashed.IsLeader)

	_, err = store.GetNode(ctx, "long-dead")
	assert.True(t, types.IsNotFound(err), "rows past the delete threshold are removed")
}

func TestEnforceSingleLeaderKeepsFreshest(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, _ := newTestService(store, "n1")

	now := time.Now()
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "older", Status: types.NodeStatusActive,
		IsLeader: true, LastHeartbeat: now.Add(-time.Minute),
	}))
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "fresher", Status: types.NodeStatusActive,
		IsLeader: true, LastHeartbeat: now,
	}))

	require.NoError(t, svc.EnforceSingleLeader(ctx))

	leaders, err := store.ListLeaders(ctx)
	require.NoError(t, err)
	require.Len(t, leaders, 1)
	assert.Equal(t, "fresher", leaders[0].InstanceID)
}

func TestEnsureLeaderExists(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, locks := newTestService(store, "n1")

	became, err := svc.EnsureLeaderExists(ctx)
	require.NoError(t, err)
	assert.True(t, became, "with no leader this node should take the lock")
	assert.True(t, locks.IsLeader())

	// A second node sees an active leader and stays follower
	svc2, locks2 := newTestService(store, "n2")
	became, err = svc2.EnsureLeaderExists(ctx)
	require.NoError(t, err)
	assert.False(t, became)
	assert.False(t, locks2.IsLeader())
}

func TestTryBecomeLeaderMutualExclusion(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc1, _ := newTestService(store, "n1")
	svc2, _ := newTestService(store, "n2")

	ok, err := svc1.TryBecomeLeader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc2.TryBecomeLeader(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "only one node may hold the leader lock")
}

func TestLeadershipTransitionsAlert(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	locks := lock.NewManager(store, "n1")
	alerter := &recordingAlerter{}
	svc := NewService(store, locks, alerter, Config{Version: "test"})

	require.NoError(t, svc.Heartbeat(ctx))
	assert.Empty(t, alerter.leaderChanges, "steady follower state is silent")

	became, err := svc.TryBecomeLeader(ctx)
	require.NoError(t, err)
	require.True(t, became)
	assert.Equal(t, []bool{true}, alerter.leaderChanges)

	locks.ReleaseLeaderLock(ctx)
	require.NoError(t, svc.Heartbeat(ctx))
	assert.Equal(t, []bool{true, false}, alerter.leaderChanges,
		"losing the lock is projected as a transition")
}

func TestStats(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	svc, _ := newTestService(store, "n1")

	now := time.Now()
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "a", Status: types.NodeStatusActive, IsLeader: true, LastHeartbeat: now,
	}))
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "b", Status: types.NodeStatusActive, IsLeader: true, LastHeartbeat: now,
	}))
	require.NoError(t, store.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "c", Status: types.NodeStatusStale, LastHeartbeat: now.Add(-time.Hour),
	}))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByStatus["active"])
	assert.Equal(t, 1, stats.ByStatus["stale"])
	assert.True(t, stats.MultipleLeaders)
}
