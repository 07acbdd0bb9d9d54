/*
Package api is the per-node HTTP surface.

Public routes: the ACME HTTP-01 challenge endpoint (answered from the
shared store so any node can respond), health, and Prometheus
metrics. Everything else sits behind bearer-token auth when a
verifier is configured: local reload, cluster-wide reload with
fan-out, node/leader introspection, the cluster admin operations, and
the certificate management endpoints.

Cluster-wide reload mints a one-minute HS256 credential from the
shared cluster secret and fires it at every active peer with a known
address. Receivers are always called with broadcast=false, so the
fan-out never recurses; peer failures are logged, never surfaced to
the caller.
*/
package api
