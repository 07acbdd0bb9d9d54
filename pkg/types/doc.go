/*
Package types defines the core data structures used throughout Gantry.

This package contains the domain model shared by all other packages:
proxy entries, cached certificates, cluster node rows, pending ACME
challenges, and the error taxonomy.

# Core Types

Routing:
  - ProxyEntry: declarative domain -> upstream route (PROXY or REDIRECT)

Certificates:
  - Certificate: cached PEM material deduplicated by DomainsHash
  - CertStatus: valid, expiring_soon, expired
  - CertSummary / CertDetail: monitor and listing views

Cluster:
  - ClusterNode: one registered control-plane process
  - NodeStatus: active, stale, inactive
  - ClusterStats: admin-surface aggregate

ACME:
  - AcmeChallenge: HTTP-01 token served by every node

# Invariants

  - At most one non-orphaned, non-expired Certificate is active per
    DomainsHash; ties resolve to the greatest ExpiresAt.
  - At most one ClusterNode row has IsLeader=true and Status=active;
    violations are repaired by the cluster cleanup pass.
  - IsLeader is a projection of advisory-lock state, never the source
    of truth for leadership.

# Errors

NotFoundError, ValidationError, RenewalError, ExpiredError and
SubprocessError map onto the admin API status codes (404, 400, 500,
410, 500). ErrLockNotAcquired stays internal.

All types are JSON-serializable; enums use typed string constants.
*/
package types
