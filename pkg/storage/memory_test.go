package storage

import (
	"context"
	"testing"
	"time"

	"github.com/gantryhq/gantry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindValidCertificatePrefersLatestExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	older := &types.Certificate{
		ID: "c1", DomainsHash: "h1",
		IssuedAt: now.Add(-60 * 24 * time.Hour), ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	newer := &types.Certificate{
		ID: "c2", DomainsHash: "h1",
		IssuedAt: now, ExpiresAt: now.Add(90 * 24 * time.Hour),
	}
	require.NoError(t, s.CreateCertificate(ctx, older))
	require.NoError(t, s.CreateCertificate(ctx, newer))

	got, err := s.FindValidCertificate(ctx, "h1", now)
	require.NoError(t, err)
	assert.Equal(t, "c2", got.ID)
}

func TestFindValidCertificateSkipsOrphanedAndExpiring(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateCertificate(ctx, &types.Certificate{
		ID: "orphan", DomainsHash: "h1",
		ExpiresAt: now.Add(90 * 24 * time.Hour), IsOrphaned: true,
	}))
	require.NoError(t, s.CreateCertificate(ctx, &types.Certificate{
		ID: "short", DomainsHash: "h1",
		ExpiresAt: now.Add(10 * 24 * time.Hour),
	}))

	// Window of 30 days excludes both rows
	_, err := s.FindValidCertificate(ctx, "h1", now.Add(30*24*time.Hour))
	assert.True(t, types.IsNotFound(err))
}

func TestStaleAndDeadNodeSweeps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "n1", Status: types.NodeStatusActive, IsLeader: true,
		LastHeartbeat: now.Add(-5 * time.Minute),
	}))
	require.NoError(t, s.UpsertNode(ctx, &types.ClusterNode{
		InstanceID: "n2", Status: types.NodeStatusActive,
		LastHeartbeat: now,
	}))

	marked, err := s.MarkStaleNodes(ctx, now.Add(-2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	n1, err := s.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusStale, n1.Status)
	assert.False(t, n1.IsLeader, "demotion must clear leadership")

	deleted, err := s.DeleteDeadNodes(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = s.GetNode(ctx, "n1")
	assert.True(t, types.IsNotFound(err))
}

func TestDemoteOtherLeaders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.UpsertNode(ctx, &types.ClusterNode{
			InstanceID: id, Status: types.NodeStatusActive,
			IsLeader: true, LastHeartbeat: now,
		}))
	}

	demoted, err := s.DemoteOtherLeaders(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, demoted)

	leaders, err := s.ListLeaders(ctx)
	require.NoError(t, err)
	require.Len(t, leaders, 1)
	assert.Equal(t, "b", leaders[0].InstanceID)
}

func TestAdvisoryLockExclusion(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire of held lock must fail")

	require.NoError(t, s.ReleaseAdvisoryLock(ctx, 42))

	ok, err = s.TryAdvisoryLock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok, "released lock must be acquirable")
}

func TestChallengeLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.CreateChallenge(ctx, &types.AcmeChallenge{
		Token: "T", KeyAuth: "KA", Domain: "d.com", ExpiresAt: now.Add(10 * time.Minute),
	}))

	ch, err := s.GetChallenge(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, "KA", ch.KeyAuth)

	n, err := s.DeleteExpiredChallenges(ctx, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetChallenge(ctx, "T")
	assert.True(t, types.IsNotFound(err))
}
