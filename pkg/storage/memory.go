package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gantryhq/gantry/pkg/types"
)

// MemoryStore is an in-memory Store for tests. Advisory locks are
// tracked per store instance, mirroring one database session.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*types.ProxyEntry
	certs      map[string]*types.Certificate
	nodes      map[string]*types.ClusterNode
	challenges map[string]*types.AcmeChallenge
	locks      map[int64]bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*types.ProxyEntry),
		certs:      make(map[string]*types.Certificate),
		nodes:      make(map[string]*types.ClusterNode),
		challenges: make(map[string]*types.AcmeChallenge),
		locks:      make(map[int64]bool),
	}
}

func (s *MemoryStore) Close() error { return nil }

// PutEntry seeds a proxy entry; tests stand in for the admin API
func (s *MemoryStore) PutEntry(e *types.ProxyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries[e.ID] = &cp
}

func (s *MemoryStore) ListEntries(ctx context.Context) ([]*types.ProxyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.ProxyEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, id string) (*types.ProxyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, types.NewNotFound("entry", id)
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) CreateCertificate(ctx context.Context, cert *types.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cert
	s.certs[cert.ID] = &cp
	return nil
}

func (s *MemoryStore) GetCertificate(ctx context.Context, id string) (*types.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.certs[id]
	if !ok {
		return nil, types.NewNotFound("certificate", id)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListCertificates(ctx context.Context) ([]*types.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Certificate, 0, len(s.certs))
	for _, c := range s.certs {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) FindValidCertificate(ctx context.Context, domainsHash string, notAfter time.Time) (*types.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *types.Certificate
	for _, c := range s.certs {
		if c.DomainsHash != domainsHash || c.IsOrphaned || !c.ExpiresAt.After(notAfter) {
			continue
		}
		if best == nil || c.ExpiresAt.After(best.ExpiresAt) {
			best = c
		}
	}
	if best == nil {
		return nil, types.NewNotFound("certificate", domainsHash)
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) TouchCertificate(ctx context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.certs[id]; ok {
		c.LastUsedAt = usedAt
	}
	return nil
}

func (s *MemoryStore) SetCertificateOrphaned(ctx context.Context, id string, orphaned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.certs[id]; ok {
		c.IsOrphaned = orphaned
	}
	return nil
}

func (s *MemoryStore) DeleteCertificate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.certs, id)
	return nil
}

func (s *MemoryStore) DeleteExpiredCertificates(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.certs {
		if c.ExpiresAt.Before(now) {
			delete(s.certs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteOrphanedCertificates(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, c := range s.certs {
		if c.IsOrphaned {
			delete(s.certs, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) UpsertNode(ctx context.Context, node *types.ClusterNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *node
	s.nodes[node.InstanceID] = &cp
	return nil
}

func (s *MemoryStore) GetNode(ctx context.Context, instanceID string) (*types.ClusterNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[instanceID]
	if !ok {
		return nil, types.NewNotFound("node", instanceID)
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) listNodes(filter func(*types.ClusterNode) bool) []*types.ClusterNode {
	out := make([]*types.ClusterNode, 0, len(s.nodes))
	for _, n := range s.nodes {
		if filter(n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastHeartbeat.After(out[j].LastHeartbeat)
	})
	return out
}

func (s *MemoryStore) ListNodes(ctx context.Context) ([]*types.ClusterNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listNodes(func(*types.ClusterNode) bool { return true }), nil
}

func (s *MemoryStore) ListActiveNodes(ctx context.Context) ([]*types.ClusterNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listNodes(func(n *types.ClusterNode) bool {
		return n.Status == types.NodeStatusActive
	}), nil
}

func (s *MemoryStore) ListLeaders(ctx context.Context) ([]*types.ClusterNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listNodes(func(n *types.ClusterNode) bool { return n.IsLeader }), nil
}

func (s *MemoryStore) MarkStaleNodes(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, node := range s.nodes {
		if node.Status == types.NodeStatusActive && node.LastHeartbeat.Before(olderThan) {
			node.Status = types.NodeStatusStale
			node.IsLeader = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DemoteOtherLeaders(ctx context.Context, keepInstanceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, node := range s.nodes {
		if node.IsLeader && node.InstanceID != keepInstanceID {
			node.IsLeader = false
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteDeadNodes(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, node := range s.nodes {
		dead := node.Status == types.NodeStatusStale || node.Status == types.NodeStatusInactive
		if dead && node.LastHeartbeat.Before(olderThan) {
			delete(s.nodes, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteNode(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, instanceID)
	return nil
}

func (s *MemoryStore) CreateChallenge(ctx context.Context, ch *types.AcmeChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ch
	s.challenges[ch.Token] = &cp
	return nil
}

func (s *MemoryStore) GetChallenge(ctx context.Context, token string) (*types.AcmeChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[token]
	if !ok {
		return nil, types.NewNotFound("challenge", token)
	}
	cp := *ch
	return &cp, nil
}

func (s *MemoryStore) DeleteChallenge(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, token)
	return nil
}

func (s *MemoryStore) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, ch := range s.challenges {
		if ch.ExpiresAt.Before(now) {
			delete(s.challenges, token)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) TryAdvisoryLock(ctx context.Context, lockID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks[lockID] {
		return false, nil
	}
	s.locks[lockID] = true
	return true, nil
}

func (s *MemoryStore) ReleaseAdvisoryLock(ctx context.Context, lockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockID)
	return nil
}
