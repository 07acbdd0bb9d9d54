/*
Package reloader drives on-node reconciliation of /etc/nginx.

Each pass rebuilds the tree in three phases: reset from the embedded
base configuration, render every entry HTTP-only and validate+reload,
ensure certificates for ssl entries (leader-gated inside the
certificate engine), then render again with the new material and
validate+reload. The two-step render exists so a node can always
serve ACME challenges over plain HTTP before any certificate exists.

A failed `nginx -t` aborts the pass before the reload signal, leaving
the running process on its previous configuration. Passes run at
startup, on a periodic timer, and on demand via Trigger; a local
mutex serializes them.
*/
package reloader
