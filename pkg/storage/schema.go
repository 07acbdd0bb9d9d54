package storage

// Schema is the coordinating database DDL, applied by gantry-migrate.
// proxy_entries is owned by the admin API; it appears here so a fresh
// database can serve a whole cluster.
const Schema = `
CREATE TABLE IF NOT EXISTS proxy_entries (
    id                TEXT PRIMARY KEY,
    domains           TEXT NOT NULL,
    upstream          TEXT NOT NULL DEFAULT '',
    entry_type        TEXT NOT NULL DEFAULT 'PROXY',
    ssl               BOOLEAN NOT NULL DEFAULT FALSE,
    nginx_custom_code TEXT NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS certificates (
    id           TEXT PRIMARY KEY,
    domains      TEXT NOT NULL,
    domains_hash TEXT NOT NULL,
    cert_pem     TEXT NOT NULL,
    key_pem      TEXT NOT NULL,
    issued_at    TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    last_used_at TIMESTAMPTZ NOT NULL,
    is_orphaned  BOOLEAN NOT NULL DEFAULT FALSE,
    CHECK (expires_at > issued_at)
);

CREATE INDEX IF NOT EXISTS certificates_hash_idx
    ON certificates (domains_hash, expires_at DESC);

CREATE TABLE IF NOT EXISTS cluster_nodes (
    instance_id    TEXT PRIMARY KEY,
    hostname       TEXT NOT NULL,
    ip_address     TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'active',
    is_leader      BOOLEAN NOT NULL DEFAULT FALSE,
    last_heartbeat TIMESTAMPTZ NOT NULL,
    version        TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS cluster_nodes_heartbeat_idx
    ON cluster_nodes (status, last_heartbeat);

CREATE TABLE IF NOT EXISTS acme_challenges (
    token      TEXT PRIMARY KEY,
    key_auth   TEXT NOT NULL,
    domain     TEXT NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);
`
