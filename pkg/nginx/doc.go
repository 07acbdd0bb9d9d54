/*
Package nginx renders proxy entries into server blocks and drives the
local nginx process.

The generator is pure: an entry plus injected probes (certificate
files on disk, upstream resolvability) map to a conf.d file body.
TLS-capable entries render a port-80 server that answers ACME
challenges and redirects the rest to HTTPS, plus the TLS server
itself; entries without certificate material render HTTP-only so
validation never depends on files that do not exist yet. Unresolvable
upstreams render a 503 vhost instead of a proxy_pass that would fail
`nginx -t`.

The base configuration tree ships embedded in the binary and is
written out whenever the reloader resets /etc/nginx. The runner wraps
`nginx -t` and `nginx -s reload`, surfacing combined output on
failure.
*/
package nginx
