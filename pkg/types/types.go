package types

import (
	"time"
)

// EntryType distinguishes proxying entries from plain redirects
type EntryType string

const (
	EntryTypeProxy    EntryType = "PROXY"
	EntryTypeRedirect EntryType = "REDIRECT"
)

// ProxyEntry is a declarative domain -> upstream route. Entries are
// created and updated by the admin API; the core only reads them.
type ProxyEntry struct {
	ID              string    `json:"id"`
	Domains         string    `json:"domains"` // ';'-joined domain list
	Upstream        string    `json:"upstream"` // URL or host[:port]
	Type            EntryType `json:"type"`
	SSL             bool      `json:"ssl"`
	NginxCustomCode string    `json:"nginx_custom_code,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Certificate is a cached X.509 certificate for a deduplicated domain set.
// At most one non-orphaned, non-expired row is active per DomainsHash;
// when several exist the greatest ExpiresAt wins.
type Certificate struct {
	ID          string    `json:"id"`
	Domains     string    `json:"domains"`     // ';'-joined, original order
	DomainsHash string    `json:"domains_hash"` // SHA-256 over sorted unique set
	CertPEM     string    `json:"-"`
	KeyPEM      string    `json:"-"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	IsOrphaned  bool      `json:"is_orphaned"`
}

// CertStatus classifies a certificate by time remaining until expiry
type CertStatus string

const (
	CertStatusValid        CertStatus = "valid"
	CertStatusExpiringSoon CertStatus = "expiring_soon"
	CertStatusExpired      CertStatus = "expired"
)

// DaysUntilExpiry returns the whole days remaining, rounded up.
// Negative when the certificate is already expired.
func (c *Certificate) DaysUntilExpiry(now time.Time) int {
	remaining := c.ExpiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Status classifies the certificate against the renew-before window
func (c *Certificate) Status(now time.Time, renewBeforeDays int) CertStatus {
	days := c.DaysUntilExpiry(now)
	switch {
	case days < 0:
		return CertStatusExpired
	case days <= renewBeforeDays:
		return CertStatusExpiringSoon
	default:
		return CertStatusValid
	}
}

// NodeStatus represents cluster node liveness
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusStale    NodeStatus = "stale"
	NodeStatusInactive NodeStatus = "inactive"
)

// ClusterNode is one control-plane process registered in the shared
// database. IsLeader is a projection of local advisory-lock state written
// during the heartbeat; the lock itself is authoritative.
type ClusterNode struct {
	InstanceID    string            `json:"instance_id"`
	Hostname      string            `json:"hostname"`
	IPAddress     string            `json:"ip_address,omitempty"`
	Status        NodeStatus        `json:"status"`
	IsLeader      bool              `json:"is_leader"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Version       string            `json:"version"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// AcmeChallenge is a pending HTTP-01 token, written by the leader during
// issuance and readable by every node's public challenge endpoint.
type AcmeChallenge struct {
	Token     string    `json:"token"`
	KeyAuth   string    `json:"key_auth"`
	Domain    string    `json:"domain"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClusterStats summarizes node rows for the admin surface
type ClusterStats struct {
	Total           int            `json:"total"`
	ByStatus        map[string]int `json:"by_status"`
	Leaders         []*ClusterNode `json:"leaders"`
	MultipleLeaders bool           `json:"multiple_leaders"`
}

// CertSummary is the monitor's aggregate view of stored certificates
type CertSummary struct {
	Total        int           `json:"total"`
	Valid        int           `json:"valid"`
	ExpiringSoon int           `json:"expiring_soon"`
	Expired      int           `json:"expired"`
	Details      []*CertDetail `json:"details"`
}

// CertDetail is one certificate's status line in a summary or listing
type CertDetail struct {
	ID              string     `json:"id"`
	Domains         string     `json:"domains"`
	ExpiresAt       time.Time  `json:"expires_at"`
	DaysUntilExpiry int        `json:"days_until_expiry"`
	Status          CertStatus `json:"status"`
	IsOrphaned      bool       `json:"is_orphaned"`
}

// DomainValidation is the result of a DNS resolvability check
type DomainValidation struct {
	Domain  string `json:"domain"`
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// ReloadResult reports the outcome of one reconciliation pass
type ReloadResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
