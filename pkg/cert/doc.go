/*
Package cert owns the certificate lifecycle: lookup, issuance,
renewal, and cleanup of X.509 material stored in the shared database
and mirrored to the local filesystem for the proxy to read.

Certificates are deduplicated by domain-set hash. Lookup returns the
freshest non-orphaned row still outside the renew-before window (30
days by default). Ensure is the central operation: a cache hit
materializes the PEMs under the live directory on any node; a miss
triggers ACME issuance through an external client subprocess, which
only the leader-lock holder may run. Non-leaders wait briefly for the
leader and re-check the cache instead of issuing. The client runs in
manual HTTP-01 mode: its auth hook writes each pending challenge into
the shared store, so validation requests may land on any node.

Operator-provided material enters through Upload (modulus-checked
against the key, chain appended when given) or SelfSigned (2048-bit
RSA, one year, SANs for every domain in the group).

Service schedules the renewal sweep (12h, leader-gated, per-group
error tolerance) and the nightly cleanup that recomputes orphan flags
and deletes expired and orphaned rows. Monitor raises expiry alerts
through the Alerter once after startup and daily at 09:00.
*/
package cert
