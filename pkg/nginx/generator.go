package nginx

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gantryhq/gantry/pkg/domain"
	"github.com/gantryhq/gantry/pkg/types"
)

// Generator renders one ProxyEntry into a conf.d file body. Pure:
// everything environmental comes in through Probes.
type Generator struct {
	LetsEncryptDir string
	AppPort        int // local control-plane port serving ACME challenges
}

// NewGenerator creates a config generator
func NewGenerator(letsEncryptDir string, appPort int) *Generator {
	return &Generator{LetsEncryptDir: letsEncryptDir, AppPort: appPort}
}

// Generate renders the server blocks for an entry. Entries without
// usable domains render to an empty string.
func (g *Generator) Generate(entry *types.ProxyEntry, probes Probes) string {
	domains := domain.Normalize(domain.Parse(entry.Domains))
	if len(domains) == 0 {
		return ""
	}
	primary := domains[0]
	serverNames := strings.Join(domains, " ")

	switch entry.Type {
	case types.EntryTypeRedirect:
		return g.renderRedirect(entry, primary, serverNames, probes)
	default:
		return g.renderProxy(entry, primary, serverNames, probes)
	}
}

func (g *Generator) renderProxy(entry *types.ProxyEntry, primary, serverNames string, probes Probes) string {
	host := UpstreamHost(entry.Upstream)
	if !probes.Resolves(host) {
		// An unresolvable upstream must not break nginx -t for
		// everyone else
		return g.renderUnavailable(serverNames)
	}

	hasCert := entry.SSL && probes.HasCert(primary)

	var b strings.Builder
	if hasCert {
		g.writeChallengeRedirectServer(&b, serverNames)
		b.WriteString("\n")
		g.writeTLSServerStart(&b, primary, serverNames)
		g.writeProxyLocation(&b, entry)
		b.WriteString("}\n")
	} else {
		fmt.Fprintf(&b, "server {\n    listen 80;\n    server_name %s;\n\n", serverNames)
		g.writeChallengeLocation(&b)
		g.writeProxyLocation(&b, entry)
		b.WriteString("}\n")
	}
	return b.String()
}

func (g *Generator) renderRedirect(entry *types.ProxyEntry, primary, serverNames string, probes Probes) string {
	// Scheme-less targets get the same http:// default as proxy_pass
	target := strings.TrimSuffix(UpstreamURL(entry.Upstream), "/")
	hasCert := entry.SSL && probes.HasCert(primary)

	var b strings.Builder
	if hasCert {
		g.writeChallengeRedirectServer(&b, serverNames)
		b.WriteString("\n")
		g.writeTLSServerStart(&b, primary, serverNames)
		fmt.Fprintf(&b, "    location / {\n        return 301 %s$request_uri;\n    }\n", target)
		b.WriteString("}\n")
	} else {
		fmt.Fprintf(&b, "server {\n    listen 80;\n    server_name %s;\n\n", serverNames)
		g.writeChallengeLocation(&b)
		fmt.Fprintf(&b, "    location / {\n        return 301 %s$request_uri;\n    }\n", target)
		b.WriteString("}\n")
	}
	return b.String()
}

// renderUnavailable keeps the vhost present but answering 503 so the
// rest of the configuration stays loadable.
func (g *Generator) renderUnavailable(serverNames string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "server {\n    listen 80;\n    server_name %s;\n\n", serverNames)
	g.writeChallengeLocation(&b)
	b.WriteString("    location / {\n        return 503;\n    }\n}\n")
	return b.String()
}

// writeChallengeRedirectServer emits the port-80 companion of a TLS
// server: challenges go to the local application, everything else
// redirects to HTTPS.
func (g *Generator) writeChallengeRedirectServer(b *strings.Builder, serverNames string) {
	fmt.Fprintf(b, "server {\n    listen 80;\n    server_name %s;\n\n", serverNames)
	g.writeChallengeLocation(b)
	b.WriteString("    location / {\n        return 301 https://$host$request_uri;\n    }\n}\n")
}

func (g *Generator) writeChallengeLocation(b *strings.Builder) {
	fmt.Fprintf(b, "    location /.well-known/acme-challenge/ {\n        proxy_pass http://127.0.0.1:%d;\n        proxy_set_header Host $host;\n    }\n", g.AppPort)
}

func (g *Generator) writeTLSServerStart(b *strings.Builder, primary, serverNames string) {
	live := filepath.Join(g.LetsEncryptDir, strings.TrimPrefix(primary, "*."))
	fmt.Fprintf(b, "server {\n    listen 443 ssl http2;\n    server_name %s;\n\n", serverNames)
	fmt.Fprintf(b, "    ssl_certificate %s;\n", filepath.Join(live, "fullchain.pem"))
	fmt.Fprintf(b, "    ssl_certificate_key %s;\n", filepath.Join(live, "privkey.pem"))
	b.WriteString(`    ssl_protocols TLSv1.2 TLSv1.3;
    ssl_ciphers ECDHE-ECDSA-AES128-GCM-SHA256:ECDHE-RSA-AES128-GCM-SHA256:ECDHE-ECDSA-AES256-GCM-SHA384:ECDHE-RSA-AES256-GCM-SHA384:ECDHE-ECDSA-CHACHA20-POLY1305:ECDHE-RSA-CHACHA20-POLY1305;
    ssl_prefer_server_ciphers off;
    ssl_session_cache shared:SSL:10m;
    ssl_stapling on;
    ssl_stapling_verify on;
    add_header Strict-Transport-Security "max-age=31536000; includeSubDomains" always;

`)
}

func (g *Generator) writeProxyLocation(b *strings.Builder, entry *types.ProxyEntry) {
	b.WriteString("    location / {\n")
	b.WriteString(`        proxy_http_version 1.1;
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_set_header X-Forwarded-Host $host;
        proxy_set_header X-Forwarded-Port $server_port;
        proxy_set_header Forwarded "for=$remote_addr;proto=$scheme;host=$host";
        proxy_set_header CF-Connecting-IP $http_cf_connecting_ip;
        proxy_set_header CF-IPCountry $http_cf_ipcountry;
        proxy_set_header CF-RAY $http_cf_ray;
        proxy_set_header CF-Visitor $http_cf_visitor;
        proxy_set_header True-Client-IP $http_true_client_ip;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection "upgrade";
        proxy_connect_timeout 5s;
        proxy_send_timeout 60s;
        proxy_read_timeout 60s;
`)
	if code := strings.TrimSpace(entry.NginxCustomCode); code != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(code, "\n") {
			b.WriteString("        " + strings.TrimRight(line, " \t") + "\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(b, "        proxy_pass %s;\n", UpstreamURL(entry.Upstream))
	b.WriteString("    }\n")
}

// UpstreamURL makes an entry's upstream usable as a proxy_pass target,
// defaulting to http:// for bare host[:port] values.
func UpstreamURL(upstream string) string {
	upstream = strings.TrimSpace(upstream)
	if strings.Contains(upstream, "://") {
		return upstream
	}
	return "http://" + upstream
}

// UpstreamHost extracts the hostname used for the resolvability probe
func UpstreamHost(upstream string) string {
	u, err := url.Parse(UpstreamURL(upstream))
	if err != nil || u.Hostname() == "" {
		// Fall back to stripping a port by hand
		host := strings.TrimSpace(upstream)
		if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host, "]") {
			host = host[:i]
		}
		return host
	}
	return u.Hostname()
}
