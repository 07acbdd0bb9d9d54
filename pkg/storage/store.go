package storage

import (
	"context"
	"time"

	"github.com/gantryhq/gantry/pkg/types"
)

// Store defines typed access to the shared coordinating database.
// Implemented by PostgresStore; MemoryStore backs tests.
type Store interface {
	// Proxy entries (created by the admin API, read-only here)
	ListEntries(ctx context.Context) ([]*types.ProxyEntry, error)
	GetEntry(ctx context.Context, id string) (*types.ProxyEntry, error)

	// Certificates
	CreateCertificate(ctx context.Context, cert *types.Certificate) error
	GetCertificate(ctx context.Context, id string) (*types.Certificate, error)
	ListCertificates(ctx context.Context) ([]*types.Certificate, error)
	// FindValidCertificate returns the freshest non-orphaned row for the
	// hash whose expiry is after notAfter, or a NotFoundError.
	FindValidCertificate(ctx context.Context, domainsHash string, notAfter time.Time) (*types.Certificate, error)
	TouchCertificate(ctx context.Context, id string, usedAt time.Time) error
	SetCertificateOrphaned(ctx context.Context, id string, orphaned bool) error
	DeleteCertificate(ctx context.Context, id string) error
	DeleteExpiredCertificates(ctx context.Context, now time.Time) (int, error)
	DeleteOrphanedCertificates(ctx context.Context) (int, error)

	// Cluster nodes
	UpsertNode(ctx context.Context, node *types.ClusterNode) error
	GetNode(ctx context.Context, instanceID string) (*types.ClusterNode, error)
	ListNodes(ctx context.Context) ([]*types.ClusterNode, error)
	ListActiveNodes(ctx context.Context) ([]*types.ClusterNode, error)
	ListLeaders(ctx context.Context) ([]*types.ClusterNode, error)
	MarkStaleNodes(ctx context.Context, olderThan time.Time) (int, error)
	DemoteOtherLeaders(ctx context.Context, keepInstanceID string) (int, error)
	DeleteDeadNodes(ctx context.Context, olderThan time.Time) (int, error)
	DeleteNode(ctx context.Context, instanceID string) error

	// ACME challenges
	CreateChallenge(ctx context.Context, ch *types.AcmeChallenge) error
	GetChallenge(ctx context.Context, token string) (*types.AcmeChallenge, error)
	DeleteChallenge(ctx context.Context, token string) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int, error)

	// Advisory locks. Session-scoped and non-reentrant: the lock dies
	// with the connection. Requires the single-connection pool.
	TryAdvisoryLock(ctx context.Context, lockID int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, lockID int64) error

	// Utility
	Close() error
}
