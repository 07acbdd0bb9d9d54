/*
Package storage provides typed access to Gantry's shared coordinating
database.

The Store interface covers the four entity families (proxy entries,
certificates, cluster nodes, ACME challenges) plus the two advisory
lock primitives. PostgresStore is the production implementation;
MemoryStore backs tests.

# Connection model

PostgresStore pins the pool to exactly one connection. PostgreSQL
advisory locks are session-scoped: `pg_try_advisory_lock` binds the
lock to the connection that ran it, and the lock is released when that
session ends. A pool that recycles connections would silently drop
held locks, so the pool is forced to a single long-lived connection
per process.

# Write retries

Mutating operations retry transient failures at most 3 times with a
1 second delay. Context cancellation is never retried.

# Ownership

  - proxy_entries: written by the admin API, read-only here
  - certificates: written by the certificate engine
  - cluster_nodes: written by the heartbeat service
  - acme_challenges: written by the certbot auth hook during
    issuance, read by every node's challenge endpoint

# Usage

	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	certs, err := store.ListCertificates(ctx)
*/
package storage
