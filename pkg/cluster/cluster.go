package cluster

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gantryhq/gantry/pkg/events"
	"github.com/gantryhq/gantry/pkg/lock"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// Config holds the heartbeat service timings
type Config struct {
	HeartbeatInterval time.Duration // default 30s
	CleanupInterval   time.Duration // default 45s
	StaleAfter        time.Duration // default 120s
	DeleteAfter       time.Duration // default 3600s
	Version           string
	IPAddress         string
}

// Service maintains this node's row in cluster_nodes and repairs the
// registry: stale demotion, single-leader enforcement, dead-row
// deletion. The IsLeader column is only ever a projection of the local
// advisory-lock state.
type Service struct {
	store   storage.Store
	locks   *lock.Manager
	cfg     Config
	alerter events.Alerter

	mu        sync.Mutex
	started   bool
	wasLeader bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewService creates the heartbeat service
func NewService(store storage.Store, locks *lock.Manager, alerter events.Alerter, cfg Config) *Service {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 45 * time.Second
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = 120 * time.Second
	}
	if cfg.DeleteAfter == 0 {
		cfg.DeleteAfter = 3600 * time.Second
	}
	return &Service{
		store:   store,
		locks:   locks,
		cfg:     cfg,
		alerter: alerter,
		stopCh:  make(chan struct{}),
	}
}

// InstanceID returns this node's identity
func (s *Service) InstanceID() string {
	return s.locks.InstanceID()
}

// Start registers this node and begins the heartbeat and cleanup
// timers. One cleanup pass runs before registration so a restarted
// node never sees its own dead row.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	logger := log.WithComponent("cluster")

	if err := s.Cleanup(ctx); err != nil {
		logger.Warn().Err(err).Msg("startup cleanup failed")
	}

	if err := s.writeHeartbeat(ctx); err != nil {
		return err
	}
	logger.Info().Str("instance_id", s.InstanceID()).Msg("node registered")
	if s.alerter != nil {
		s.alerter.NodeJoined(s.selfNode())
	}

	s.wg.Add(2)
	go s.heartbeatLoop()
	go s.cleanupLoop()
	return nil
}

// Stop releases leadership, marks this node inactive, and waits for
// in-flight ticks.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.locks.ReleaseLeaderLock(ctx)

	node := s.selfNode()
	node.Status = types.NodeStatusInactive
	node.IsLeader = false
	if err := s.store.UpsertNode(ctx, node); err != nil {
		log.WithComponent("cluster").Error().Err(err).Msg("failed to mark node inactive")
	}
	metrics.IsLeader.Set(0)
	s.projectLeadership(false)
	if s.alerter != nil {
		s.alerter.NodeLeft(node)
	}
}

func (s *Service) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HeartbeatInterval)
			if err := s.Heartbeat(ctx); err != nil {
				log.WithComponent("cluster").Error().Err(err).Msg("heartbeat failed")
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CleanupInterval)
			if err := s.Cleanup(ctx); err != nil {
				log.WithComponent("cluster").Error().Err(err).Msg("cleanup failed")
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) selfNode() *types.ClusterNode {
	hostname, _ := os.Hostname()
	return &types.ClusterNode{
		InstanceID:    s.InstanceID(),
		Hostname:      hostname,
		IPAddress:     s.cfg.IPAddress,
		LastHeartbeat: time.Now(),
		Version:       s.cfg.Version,
		Metadata: map[string]string{
			"pid": strconv.Itoa(os.Getpid()),
		},
	}
}

// Heartbeat verifies leadership against the registry and upserts this
// node's row. When another active row claims leadership while we hold
// the lock, the lock is released immediately (split-brain defense) and
// the row projects the post-release state.
func (s *Service) Heartbeat(ctx context.Context) error {
	if s.locks.IsLeader() {
		if conflict, other := s.leaderConflict(ctx); conflict {
			log.WithComponent("cluster").Warn().
				Str("other", other).
				Msg("conflicting active leader row detected, releasing leader lock")
			s.locks.ReleaseLeaderLock(ctx)
			metrics.SplitBrainRepairsTotal.Inc()
		}
	}
	return s.writeHeartbeat(ctx)
}

func (s *Service) writeHeartbeat(ctx context.Context) error {
	node := s.selfNode()
	node.Status = types.NodeStatusActive
	node.IsLeader = s.locks.IsLeader()

	if err := s.store.UpsertNode(ctx, node); err != nil {
		return err
	}

	metrics.HeartbeatsTotal.Inc()
	if node.IsLeader {
		metrics.IsLeader.Set(1)
	} else {
		metrics.IsLeader.Set(0)
	}
	s.projectLeadership(node.IsLeader)
	return nil
}

// projectLeadership tracks the last projected leadership state and
// alerts on transitions.
func (s *Service) projectLeadership(isLeader bool) {
	s.mu.Lock()
	changed := isLeader != s.wasLeader
	s.wasLeader = isLeader
	s.mu.Unlock()

	if changed && s.alerter != nil {
		s.alerter.LeaderChanged(s.InstanceID(), isLeader)
	}
}

// leaderConflict reports whether another active node row claims
// leadership, returning its instance id.
func (s *Service) leaderConflict(ctx context.Context) (bool, string) {
	leaders, err := s.store.ListLeaders(ctx)
	if err != nil {
		// Unreadable registry is not a conflict; keep the lock
		return false, ""
	}
	for _, n := range leaders {
		if n.InstanceID != s.InstanceID() && n.Status == types.NodeStatusActive {
			return true, n.InstanceID
		}
	}
	return false, ""
}

// Cleanup demotes stale rows, enforces the single-leader invariant,
// and deletes long-dead rows.
func (s *Service) Cleanup(ctx context.Context) error {
	now := time.Now()
	logger := log.WithComponent("cluster")

	// Alert on nodes about to be marked stale
	if s.alerter != nil {
		if active, err := s.store.ListActiveNodes(ctx); err == nil {
			for _, n := range active {
				if n.LastHeartbeat.Before(now.Add(-s.cfg.StaleAfter)) {
					s.alerter.NodeDown(n)
				}
			}
		}
	}

	marked, err := s.store.MarkStaleNodes(ctx, now.Add(-s.cfg.StaleAfter))
	if err != nil {
		return err
	}
	if marked > 0 {
		logger.Info().Int("count", marked).Msg("nodes marked stale")
	}

	if err := s.EnforceSingleLeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("single-leader enforcement failed")
	}

	deleted, err := s.store.DeleteDeadNodes(ctx, now.Add(-s.cfg.DeleteAfter))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.Info().Int("count", deleted).Msg("dead node rows deleted")
	}
	return nil
}

// EnforceSingleLeader demotes all leader rows except the one with the
// most recent heartbeat.
func (s *Service) EnforceSingleLeader(ctx context.Context) error {
	leaders, err := s.store.ListLeaders(ctx)
	if err != nil {
		return err
	}
	if len(leaders) <= 1 {
		return nil
	}

	// ListLeaders orders by last_heartbeat descending
	keep := leaders[0].InstanceID
	demoted, err := s.store.DemoteOtherLeaders(ctx, keep)
	if err != nil {
		return err
	}
	log.WithComponent("cluster").Warn().
		Str("kept", keep).
		Int("demoted", demoted).
		Msg("multiple leader rows repaired")
	return nil
}

// ActiveNodes lists nodes currently marked active
func (s *Service) ActiveNodes(ctx context.Context) ([]*types.ClusterNode, error) {
	return s.store.ListActiveNodes(ctx)
}

// LeaderNode returns the active leader row, or a NotFoundError
func (s *Service) LeaderNode(ctx context.Context) (*types.ClusterNode, error) {
	leaders, err := s.store.ListLeaders(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range leaders {
		if n.Status == types.NodeStatusActive {
			return n, nil
		}
	}
	return nil, types.NewNotFound("node", "leader")
}

// Stats summarizes the registry for the admin surface
func (s *Service) Stats(ctx context.Context) (*types.ClusterStats, error) {
	nodes, err := s.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	stats := &types.ClusterStats{
		Total:    len(nodes),
		ByStatus: make(map[string]int),
	}
	for _, n := range nodes {
		stats.ByStatus[string(n.Status)]++
		if n.IsLeader {
			stats.Leaders = append(stats.Leaders, n)
		}
	}
	stats.MultipleLeaders = len(stats.Leaders) > 1
	return stats, nil
}

// EnsureLeaderExists attempts the leader lock when no active leader
// row exists. Returns true when this node leads afterwards.
func (s *Service) EnsureLeaderExists(ctx context.Context) (bool, error) {
	if s.locks.IsLeader() {
		return true, nil
	}
	if _, err := s.LeaderNode(ctx); err == nil {
		return false, nil
	} else if !types.IsNotFound(err) {
		return false, err
	}

	if !s.locks.TryAcquireLeaderLock(ctx) {
		return false, nil
	}
	// Project the new leadership right away
	return true, s.writeHeartbeat(ctx)
}

// TryBecomeLeader makes a single attempt at the leader lock
func (s *Service) TryBecomeLeader(ctx context.Context) (bool, error) {
	if s.locks.IsLeader() {
		return true, nil
	}
	if !s.locks.TryAcquireLeaderLock(ctx) {
		return false, nil
	}
	return true, s.writeHeartbeat(ctx)
}

// IsLeader reports local leadership (advisory lock state)
func (s *Service) IsLeader() bool {
	return s.locks.IsLeader()
}

