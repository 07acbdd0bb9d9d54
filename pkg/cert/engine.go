package cert

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gantryhq/gantry/pkg/domain"
	"github.com/gantryhq/gantry/pkg/events"
	"github.com/gantryhq/gantry/pkg/lock"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// Config holds the engine's policy knobs
type Config struct {
	AdminEmail      string
	RenewBeforeDays int           // default 30
	LetsEncryptDir  string        // default /etc/letsencrypt/live
	Development     bool          // disables ACME issuance entirely
	RepollDelay     time.Duration // non-leader wait before the second lookup
}

// Engine owns certificate rows: lookup, issuance, upload, self-signed
// generation, renewal, and cleanup. Issuance only ever runs on the
// node holding the leader lock.
type Engine struct {
	store  storage.Store
	locks  *lock.Manager
	acme   AcmeClient
	tool   CertTool
	alerts events.Alerter
	cfg    Config
}

// NewEngine creates the certificate engine. A nil alerter disables
// alerting.
func NewEngine(store storage.Store, locks *lock.Manager, acme AcmeClient, tool CertTool, alerts events.Alerter, cfg Config) *Engine {
	if cfg.RenewBeforeDays == 0 {
		cfg.RenewBeforeDays = 30
	}
	if cfg.LetsEncryptDir == "" {
		cfg.LetsEncryptDir = "/etc/letsencrypt/live"
	}
	if cfg.RepollDelay == 0 {
		cfg.RepollDelay = 5 * time.Second
	}
	return &Engine{store: store, locks: locks, acme: acme, tool: tool, alerts: alerts, cfg: cfg}
}

// liveDir is the on-disk home for a group's PEMs, keyed by primary
// domain with wildcards stripped.
func (e *Engine) liveDir(primary string) string {
	return filepath.Join(e.cfg.LetsEncryptDir, strings.TrimPrefix(primary, "*."))
}

// FindValid returns the freshest usable certificate for the domain
// set: non-orphaned and expiring after the renew-before window.
func (e *Engine) FindValid(ctx context.Context, domains []string) (*types.Certificate, error) {
	if len(domains) == 0 {
		return nil, types.NewValidation("empty domain list")
	}
	notAfter := time.Now().AddDate(0, 0, e.cfg.RenewBeforeDays)
	return e.store.FindValidCertificate(ctx, domain.Hash(domains), notAfter)
}

// GetValid is FindValid plus a LastUsedAt bump
func (e *Engine) GetValid(ctx context.Context, domains []string) (*types.Certificate, error) {
	cert, err := e.FindValid(ctx, domains)
	if err != nil {
		return nil, err
	}
	if err := e.store.TouchCertificate(ctx, cert.ID, time.Now()); err != nil {
		log.WithComponent("cert").Warn().Err(err).Str("cert_id", cert.ID).Msg("failed to bump last_used_at")
	}
	return cert, nil
}

// Ensure guarantees a usable certificate for the domain set and its
// PEMs on local disk. Cache hits materialize on any node; misses go
// through leader-gated ACME issuance. Non-leaders re-poll the cache
// once and return nil without a certificate rather than block.
func (e *Engine) Ensure(ctx context.Context, domains []string) (*types.Certificate, error) {
	if e.cfg.Development {
		log.WithComponent("cert").Debug().Msg("development mode, skipping certificate ensure")
		return nil, nil
	}
	if len(domains) == 0 {
		return nil, types.NewValidation("empty domain list")
	}
	logger := log.WithComponent("cert").With().Str("domain", domain.Primary(domains)).Logger()

	if cert, err := e.FindValid(ctx, domains); err == nil {
		if err := e.materialize(cert); err != nil {
			return nil, err
		}
		if err := e.store.TouchCertificate(ctx, cert.ID, time.Now()); err != nil {
			logger.Warn().Err(err).Msg("failed to bump last_used_at")
		}
		return cert, nil
	} else if !types.IsNotFound(err) {
		return nil, err
	}

	// Cache miss. Issuance is leader-only; take the lock lazily.
	if !e.locks.IsLeader() && !e.locks.TryAcquireLeaderLock(ctx) {
		return e.repoll(ctx, domains, logger)
	}

	cert, err := e.issue(ctx, domains)
	if err != nil {
		metrics.CertIssuanceTotal.WithLabelValues("failure").Inc()
		if e.alerts != nil {
			e.alerts.RenewalFailure(domains, err)
		}
		return nil, &types.RenewalError{Domains: domains, Cause: err}
	}
	metrics.CertIssuanceTotal.WithLabelValues("success").Inc()
	if e.alerts != nil {
		e.alerts.CertificateIssued(cert)
	}
	logger.Info().Str("cert_id", cert.ID).Time("expires_at", cert.ExpiresAt).Msg("certificate issued")
	return cert, nil
}

// repoll waits briefly for the leader to finish issuing, then checks
// the cache one more time. Absence is not an error here.
func (e *Engine) repoll(ctx context.Context, domains []string, logger zerolog.Logger) (*types.Certificate, error) {
	logger.Debug().Msg("not leader, waiting for leader issuance")
	select {
	case <-time.After(e.cfg.RepollDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	cert, err := e.FindValid(ctx, domains)
	if types.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := e.materialize(cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// issue runs the ACME client and records the produced PEMs
func (e *Engine) issue(ctx context.Context, domains []string) (*types.Certificate, error) {
	timer := metrics.NewTimer(metrics.CertIssuanceDuration)
	defer timer.ObserveDuration()

	if err := e.acme.Issue(ctx, domains, e.cfg.AdminEmail); err != nil {
		return nil, err
	}

	dir := e.liveDir(domain.Primary(domains))
	certPath := filepath.Join(dir, "fullchain.pem")
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Join(dir, "privkey.pem"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt, err := e.tool.NotAfter(ctx, certPath)
	if err != nil {
		log.WithComponent("cert").Warn().Err(err).Msg("could not read notAfter, assuming 90 days")
		expiresAt = now.AddDate(0, 0, 90)
	}

	cert := &types.Certificate{
		ID:          uuid.New().String(),
		Domains:     domain.Join(domains),
		DomainsHash: domain.Hash(domains),
		CertPEM:     string(certPEM),
		KeyPEM:      string(keyPEM),
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
		LastUsedAt:  now,
	}
	if err := e.store.CreateCertificate(ctx, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// materialize writes a cached certificate's PEMs to the live directory
func (e *Engine) materialize(cert *types.Certificate) error {
	dir := e.liveDir(domain.Primary(domain.Parse(cert.Domains)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "fullchain.pem"), []byte(cert.CertPEM), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "privkey.pem"), []byte(cert.KeyPEM), 0600)
}

// UploadRequest carries operator-provided certificate material
type UploadRequest struct {
	Domains  []string
	CertPEM  string
	KeyPEM   string
	ChainPEM string
}

// Upload validates and stores an operator-provided certificate. The
// cert and key must share a modulus; the chain, when present, is
// appended to the leaf.
func (e *Engine) Upload(ctx context.Context, req UploadRequest) (*types.Certificate, error) {
	if len(req.Domains) == 0 {
		return nil, types.NewValidation("empty domain list")
	}
	if !strings.Contains(req.CertPEM, "BEGIN CERTIFICATE") {
		return nil, types.NewValidation("certificate is not PEM-encoded")
	}
	if !strings.Contains(req.KeyPEM, "PRIVATE KEY") {
		return nil, types.NewValidation("private key is not PEM-encoded")
	}

	certTmp, err := writeTemp("cert-*.pem", req.CertPEM)
	if err != nil {
		return nil, err
	}
	defer os.Remove(certTmp)
	keyTmp, err := writeTemp("key-*.pem", req.KeyPEM)
	if err != nil {
		return nil, err
	}
	defer os.Remove(keyTmp)

	certMod, err := e.tool.CertModulus(ctx, certTmp)
	if err != nil {
		return nil, err
	}
	keyMod, err := e.tool.KeyModulus(ctx, keyTmp)
	if err != nil {
		return nil, err
	}
	if certMod != keyMod {
		return nil, types.NewValidation("certificate and key modulus mismatch")
	}

	expiresAt, err := e.tool.NotAfter(ctx, certTmp)
	if err != nil {
		return nil, types.NewValidation("could not read certificate expiry")
	}

	fullchain := req.CertPEM
	if req.ChainPEM != "" {
		fullchain = req.CertPEM + "\n" + req.ChainPEM
	}

	return e.persist(ctx, req.Domains, fullchain, req.KeyPEM, expiresAt)
}

func writeTemp(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// persist writes PEMs to disk and inserts the row; shared by the
// upload and self-signed paths.
func (e *Engine) persist(ctx context.Context, domains []string, certPEM, keyPEM string, expiresAt time.Time) (*types.Certificate, error) {
	now := time.Now()
	cert := &types.Certificate{
		ID:          uuid.New().String(),
		Domains:     domain.Join(domains),
		DomainsHash: domain.Hash(domains),
		CertPEM:     certPEM,
		KeyPEM:      keyPEM,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
		LastUsedAt:  now,
	}
	if err := e.materialize(cert); err != nil {
		return nil, err
	}
	if err := e.store.CreateCertificate(ctx, cert); err != nil {
		return nil, err
	}
	if e.alerts != nil {
		e.alerts.CertificateIssued(cert)
	}
	return cert, nil
}

// RenewAll ensures a certificate for every unique ssl-enabled domain
// group. Leader-only; non-leaders return immediately. Per-group
// failures are logged and never abort the sweep.
func (e *Engine) RenewAll(ctx context.Context) error {
	if !e.locks.IsLeader() && !e.locks.TryAcquireLeaderLock(ctx) {
		log.WithComponent("cert").Debug().Msg("not leader, skipping renewal sweep")
		return nil
	}

	entries, err := e.store.ListEntries(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})
	logger := log.WithComponent("cert")
	for _, entry := range entries {
		if !entry.SSL {
			continue
		}
		domains := domain.Parse(entry.Domains)
		joined := domain.Join(domains)
		if _, ok := seen[joined]; ok || joined == "" {
			continue
		}
		seen[joined] = struct{}{}

		if _, err := e.Ensure(ctx, domains); err != nil {
			logger.Error().Err(err).Str("domains", joined).Msg("renewal failed for group")
		}
	}
	logger.Info().Int("groups", len(seen)).Msg("renewal sweep finished")
	return nil
}

// Cleanup recomputes orphan flags against current entries, then
// deletes expired and orphaned rows.
func (e *Engine) Cleanup(ctx context.Context) error {
	entries, err := e.store.ListEntries(ctx)
	if err != nil {
		return err
	}
	inUse := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		inUse[domain.HashJoined(entry.Domains)] = struct{}{}
	}

	certs, err := e.store.ListCertificates(ctx)
	if err != nil {
		return err
	}
	logger := log.WithComponent("cert")
	for _, c := range certs {
		_, referenced := inUse[c.DomainsHash]
		if c.IsOrphaned == !referenced {
			continue
		}
		if err := e.store.SetCertificateOrphaned(ctx, c.ID, !referenced); err != nil {
			logger.Warn().Err(err).Str("cert_id", c.ID).Msg("failed to update orphan flag")
		}
	}

	expired, err := e.store.DeleteExpiredCertificates(ctx, time.Now())
	if err != nil {
		return err
	}
	orphaned, err := e.store.DeleteOrphanedCertificates(ctx)
	if err != nil {
		return err
	}
	if expired > 0 || orphaned > 0 {
		logger.Info().Int("expired", expired).Int("orphaned", orphaned).Msg("certificates cleaned up")
	}
	return nil
}

// List returns per-certificate status lines for the admin surface
func (e *Engine) List(ctx context.Context) ([]*types.CertDetail, error) {
	certs, err := e.store.ListCertificates(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	details := make([]*types.CertDetail, 0, len(certs))
	for _, c := range certs {
		details = append(details, &types.CertDetail{
			ID:              c.ID,
			Domains:         c.Domains,
			ExpiresAt:       c.ExpiresAt,
			DaysUntilExpiry: c.DaysUntilExpiry(now),
			Status:          c.Status(now, e.cfg.RenewBeforeDays),
			IsOrphaned:      c.IsOrphaned,
		})
	}
	return details, nil
}

// ValidateDomain checks A/AAAA resolvability
func (e *Engine) ValidateDomain(ctx context.Context, d string) *types.DomainValidation {
	d = strings.TrimSpace(d)
	if d == "" {
		return &types.DomainValidation{Domain: d, Valid: false, Message: "empty domain"}
	}
	addrs, err := net.DefaultResolver.LookupHost(ctx, strings.TrimPrefix(d, "*."))
	if err != nil || len(addrs) == 0 {
		return &types.DomainValidation{Domain: d, Valid: false, Message: "domain does not resolve"}
	}
	return &types.DomainValidation{Domain: d, Valid: true}
}

// Delete removes the row and best-effort removes the on-disk directory
func (e *Engine) Delete(ctx context.Context, id string) error {
	cert, err := e.store.GetCertificate(ctx, id)
	if err != nil {
		return err
	}
	dir := e.liveDir(domain.Primary(domain.Parse(cert.Domains)))
	if err := os.RemoveAll(dir); err != nil {
		log.WithComponent("cert").Warn().Err(err).Str("dir", dir).Msg("failed to remove certificate directory")
	}
	return e.store.DeleteCertificate(ctx, id)
}
