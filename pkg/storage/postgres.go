package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/gantryhq/gantry/pkg/types"
)

const (
	// Writes retry on transient failures (connection drop,
	// serialization) at most writeRetries times.
	writeRetries    = 3
	writeRetryDelay = time.Second
)

// PostgresStore implements Store on the shared PostgreSQL database.
// It holds exactly one connection so that session-scoped advisory
// locks map one-to-one onto the process.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the coordinating database. The pool is forced
// to a single long-lived connection; advisory lock semantics depend on
// it.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection, releasing any advisory locks
// still held by the session.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// withRetry runs fn up to writeRetries times with a fixed delay.
// Context cancellation is never retried.
func (s *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		select {
		case <-time.After(writeRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Proxy entry operations

func (s *PostgresStore) ListEntries(ctx context.Context) ([]*types.ProxyEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domains, upstream, entry_type, ssl, nginx_custom_code, created_at, updated_at
		FROM proxy_entries
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*types.ProxyEntry
	for rows.Next() {
		var e types.ProxyEntry
		if err := rows.Scan(&e.ID, &e.Domains, &e.Upstream, &e.Type, &e.SSL,
			&e.NginxCustomCode, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetEntry(ctx context.Context, id string) (*types.ProxyEntry, error) {
	var e types.ProxyEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domains, upstream, entry_type, ssl, nginx_custom_code, created_at, updated_at
		FROM proxy_entries WHERE id = $1
	`, id).Scan(&e.ID, &e.Domains, &e.Upstream, &e.Type, &e.SSL,
		&e.NginxCustomCode, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("entry", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Certificate operations

func (s *PostgresStore) CreateCertificate(ctx context.Context, cert *types.Certificate) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO certificates (id, domains, domains_hash, cert_pem, key_pem,
				issued_at, expires_at, last_used_at, is_orphaned)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, cert.ID, cert.Domains, cert.DomainsHash, cert.CertPEM, cert.KeyPEM,
			cert.IssuedAt, cert.ExpiresAt, cert.LastUsedAt, cert.IsOrphaned)
		return err
	})
}

func (s *PostgresStore) GetCertificate(ctx context.Context, id string) (*types.Certificate, error) {
	c, err := s.scanCertificate(s.db.QueryRowContext(ctx, certSelect+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("certificate", id)
	}
	return c, err
}

const certSelect = `
	SELECT id, domains, domains_hash, cert_pem, key_pem,
	       issued_at, expires_at, last_used_at, is_orphaned
	FROM certificates`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanCertificate(row rowScanner) (*types.Certificate, error) {
	var c types.Certificate
	err := row.Scan(&c.ID, &c.Domains, &c.DomainsHash, &c.CertPEM, &c.KeyPEM,
		&c.IssuedAt, &c.ExpiresAt, &c.LastUsedAt, &c.IsOrphaned)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCertificates(ctx context.Context) ([]*types.Certificate, error) {
	rows, err := s.db.QueryContext(ctx, certSelect+` ORDER BY expires_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*types.Certificate
	for rows.Next() {
		c, err := s.scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	return certs, rows.Err()
}

func (s *PostgresStore) FindValidCertificate(ctx context.Context, domainsHash string, notAfter time.Time) (*types.Certificate, error) {
	c, err := s.scanCertificate(s.db.QueryRowContext(ctx, certSelect+`
		WHERE domains_hash = $1 AND is_orphaned = FALSE AND expires_at > $2
		ORDER BY expires_at DESC
		LIMIT 1
	`, domainsHash, notAfter))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("certificate", domainsHash)
	}
	return c, err
}

func (s *PostgresStore) TouchCertificate(ctx context.Context, id string, usedAt time.Time) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE certificates SET last_used_at = $2 WHERE id = $1`, id, usedAt)
		return err
	})
}

func (s *PostgresStore) SetCertificateOrphaned(ctx context.Context, id string, orphaned bool) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE certificates SET is_orphaned = $2 WHERE id = $1`, id, orphaned)
		return err
	})
}

func (s *PostgresStore) DeleteCertificate(ctx context.Context, id string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE id = $1`, id)
		return err
	})
}

func (s *PostgresStore) DeleteExpiredCertificates(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteOrphanedCertificates(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM certificates WHERE is_orphaned = TRUE`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Cluster node operations

func (s *PostgresStore) UpsertNode(ctx context.Context, node *types.ClusterNode) error {
	meta, err := json.Marshal(node.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal node metadata: %w", err)
	}
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO cluster_nodes (instance_id, hostname, ip_address, status,
				is_leader, last_heartbeat, version, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (instance_id) DO UPDATE SET
				hostname = EXCLUDED.hostname,
				ip_address = EXCLUDED.ip_address,
				status = EXCLUDED.status,
				is_leader = EXCLUDED.is_leader,
				last_heartbeat = EXCLUDED.last_heartbeat,
				version = EXCLUDED.version,
				metadata = EXCLUDED.metadata
		`, node.InstanceID, node.Hostname, node.IPAddress, node.Status,
			node.IsLeader, node.LastHeartbeat, node.Version, meta)
		return err
	})
}

const nodeSelect = `
	SELECT instance_id, hostname, ip_address, status, is_leader,
	       last_heartbeat, version, metadata
	FROM cluster_nodes`

func (s *PostgresStore) scanNode(row rowScanner) (*types.ClusterNode, error) {
	var n types.ClusterNode
	var meta []byte
	err := row.Scan(&n.InstanceID, &n.Hostname, &n.IPAddress, &n.Status,
		&n.IsLeader, &n.LastHeartbeat, &n.Version, &meta)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node metadata: %w", err)
		}
	}
	return &n, nil
}

func (s *PostgresStore) GetNode(ctx context.Context, instanceID string) (*types.ClusterNode, error) {
	n, err := s.scanNode(s.db.QueryRowContext(ctx, nodeSelect+` WHERE instance_id = $1`, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("node", instanceID)
	}
	return n, err
}

func (s *PostgresStore) listNodes(ctx context.Context, query string, args ...any) ([]*types.ClusterNode, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*types.ClusterNode
	for rows.Next() {
		n, err := s.scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

func (s *PostgresStore) ListNodes(ctx context.Context) ([]*types.ClusterNode, error) {
	return s.listNodes(ctx, nodeSelect+` ORDER BY last_heartbeat DESC`)
}

func (s *PostgresStore) ListActiveNodes(ctx context.Context) ([]*types.ClusterNode, error) {
	return s.listNodes(ctx, nodeSelect+` WHERE status = $1 ORDER BY last_heartbeat DESC`,
		types.NodeStatusActive)
}

func (s *PostgresStore) ListLeaders(ctx context.Context) ([]*types.ClusterNode, error) {
	return s.listNodes(ctx, nodeSelect+` WHERE is_leader = TRUE ORDER BY last_heartbeat DESC`)
}

func (s *PostgresStore) MarkStaleNodes(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cluster_nodes
		SET status = $1, is_leader = FALSE
		WHERE status = $2 AND last_heartbeat < $3
	`, types.NodeStatusStale, types.NodeStatusActive, olderThan)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DemoteOtherLeaders(ctx context.Context, keepInstanceID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cluster_nodes
		SET is_leader = FALSE
		WHERE is_leader = TRUE AND instance_id <> $1
	`, keepInstanceID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteDeadNodes(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cluster_nodes
		WHERE status IN ($1, $2) AND last_heartbeat < $3
	`, types.NodeStatusStale, types.NodeStatusInactive, olderThan)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) DeleteNode(ctx context.Context, instanceID string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM cluster_nodes WHERE instance_id = $1`, instanceID)
		return err
	})
}

// ACME challenge operations

func (s *PostgresStore) CreateChallenge(ctx context.Context, ch *types.AcmeChallenge) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO acme_challenges (token, key_auth, domain, expires_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (token) DO UPDATE SET
				key_auth = EXCLUDED.key_auth,
				domain = EXCLUDED.domain,
				expires_at = EXCLUDED.expires_at
		`, ch.Token, ch.KeyAuth, ch.Domain, ch.ExpiresAt)
		return err
	})
}

func (s *PostgresStore) GetChallenge(ctx context.Context, token string) (*types.AcmeChallenge, error) {
	var ch types.AcmeChallenge
	err := s.db.QueryRowContext(ctx, `
		SELECT token, key_auth, domain, expires_at
		FROM acme_challenges WHERE token = $1
	`, token).Scan(&ch.Token, &ch.KeyAuth, &ch.Domain, &ch.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.NewNotFound("challenge", token)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *PostgresStore) DeleteChallenge(ctx context.Context, token string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM acme_challenges WHERE token = $1`, token)
		return err
	})
}

func (s *PostgresStore) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM acme_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Advisory lock primitives

func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, lockID int64) (bool, error) {
	var acquired bool
	err := s.db.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired)
	if err != nil {
		return false, err
	}
	return acquired, nil
}

func (s *PostgresStore) ReleaseAdvisoryLock(ctx context.Context, lockID int64) error {
	// pg_advisory_unlock returns false when the lock was not held;
	// that is a no-op, not an error.
	var released bool
	return s.db.QueryRowContext(ctx,
		`SELECT pg_advisory_unlock($1)`, lockID).Scan(&released)
}
