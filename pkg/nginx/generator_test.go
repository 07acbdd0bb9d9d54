package nginx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gantryhq/gantry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProbes answers from fixed sets
type stubProbes struct {
	certs    map[string]bool
	resolves map[string]bool
}

func (s *stubProbes) HasCert(primary string) bool { return s.certs[primary] }
func (s *stubProbes) Resolves(host string) bool   { return s.resolves[host] }

func allGood() *stubProbes {
	return &stubProbes{
		certs:    map[string]bool{"example.com": true},
		resolves: map[string]bool{"app": true, "app.internal": true},
	}
}

func proxyEntry() *types.ProxyEntry {
	return &types.ProxyEntry{
		ID:       "e1",
		Domains:  "example.com;www.example.com",
		Upstream: "app:8080",
		Type:     types.EntryTypeProxy,
		SSL:      true,
	}
}

func TestGenerateTLSProxy(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	conf := g.Generate(proxyEntry(), allGood())

	assert.Contains(t, conf, "listen 443 ssl http2;")
	assert.Contains(t, conf, "server_name example.com www.example.com;")
	assert.Contains(t, conf, "ssl_certificate /etc/letsencrypt/live/example.com/fullchain.pem;")
	assert.Contains(t, conf, "ssl_certificate_key /etc/letsencrypt/live/example.com/privkey.pem;")
	assert.Contains(t, conf, "Strict-Transport-Security")
	assert.Contains(t, conf, "ssl_stapling on;")
	assert.Contains(t, conf, "proxy_pass http://app:8080;")
	assert.Contains(t, conf, "return 301 https://$host$request_uri;")
	assert.Contains(t, conf, "location /.well-known/acme-challenge/")
	assert.Contains(t, conf, "proxy_pass http://127.0.0.1:3000;")
	assert.Contains(t, conf, "proxy_connect_timeout 5s;")
	assert.Contains(t, conf, "proxy_read_timeout 60s;")
}

func TestGenerateHTTPOnlyWithoutCert(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	probes := allGood()
	probes.certs = map[string]bool{}

	conf := g.Generate(proxyEntry(), probes)

	assert.Contains(t, conf, "listen 80;")
	assert.NotContains(t, conf, "listen 443")
	assert.Contains(t, conf, "proxy_pass http://app:8080;")
	assert.Contains(t, conf, "location /.well-known/acme-challenge/")
}

func TestGenerateHTTPOnlyWhenSSLDisabled(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := proxyEntry()
	entry.SSL = false

	conf := g.Generate(entry, allGood())
	assert.NotContains(t, conf, "listen 443")
}

func TestGenerateUnresolvableUpstream(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	probes := allGood()
	probes.resolves = map[string]bool{}

	conf := g.Generate(proxyEntry(), probes)

	assert.Contains(t, conf, "return 503;")
	assert.NotContains(t, conf, "proxy_pass http://app:8080;")
	assert.NotContains(t, conf, "listen 443")
}

func TestGenerateWildcardNormalization(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := proxyEntry()
	entry.Domains = "*.example.com"

	conf := g.Generate(entry, allGood())
	assert.Contains(t, conf, "server_name example.com;")
}

func TestGenerateEmptyDomains(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := proxyEntry()
	entry.Domains = " ; ;"

	assert.Empty(t, g.Generate(entry, allGood()))
}

func TestGenerateCustomCode(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := proxyEntry()
	entry.SSL = false
	entry.NginxCustomCode = "client_max_body_size 1g;\nproxy_buffering off;"

	conf := g.Generate(entry, allGood())

	assert.Contains(t, conf, "client_max_body_size 1g;")
	assert.Contains(t, conf, "proxy_buffering off;")
	// Custom code precedes proxy_pass inside the location
	assert.Less(t, strings.Index(conf, "client_max_body_size 1g;"), strings.Index(conf, "proxy_pass http://app:8080;"))
}

func TestGenerateForwardedHeaders(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	conf := g.Generate(proxyEntry(), allGood())

	for _, header := range []string{
		"X-Real-IP", "X-Forwarded-For", "X-Forwarded-Proto",
		"X-Forwarded-Host", "X-Forwarded-Port", "Forwarded",
		"CF-Connecting-IP", "True-Client-IP", "Upgrade",
	} {
		assert.Contains(t, conf, "proxy_set_header "+header, header)
	}
}

func TestGenerateRedirect(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := &types.ProxyEntry{
		ID:       "r1",
		Domains:  "old.example.com",
		Upstream: "https://new.example.com",
		Type:     types.EntryTypeRedirect,
	}

	conf := g.Generate(entry, &stubProbes{})
	assert.Contains(t, conf, "return 301 https://new.example.com$request_uri;")
	assert.NotContains(t, conf, "listen 443")
}

func TestGenerateRedirectDefaultsScheme(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := &types.ProxyEntry{
		ID:       "r1",
		Domains:  "old.example.com",
		Upstream: "new.example.com/",
		Type:     types.EntryTypeRedirect,
	}

	conf := g.Generate(entry, &stubProbes{})
	assert.Contains(t, conf, "return 301 http://new.example.com$request_uri;",
		"a bare host gets a scheme, never a relative 301 target")
}

func TestGenerateRedirectTLS(t *testing.T) {
	g := NewGenerator("/etc/letsencrypt/live", 3000)
	entry := &types.ProxyEntry{
		ID:       "r1",
		Domains:  "example.com",
		Upstream: "https://new.example.com",
		Type:     types.EntryTypeRedirect,
		SSL:      true,
	}

	conf := g.Generate(entry, allGood())
	assert.Contains(t, conf, "listen 443 ssl http2;")
	assert.Contains(t, conf, "return 301 https://new.example.com$request_uri;")
}

func TestUpstreamHelpers(t *testing.T) {
	assert.Equal(t, "http://app:8080", UpstreamURL("app:8080"))
	assert.Equal(t, "https://api.example.com/v1", UpstreamURL("https://api.example.com/v1"))

	assert.Equal(t, "app", UpstreamHost("app:8080"))
	assert.Equal(t, "api.example.com", UpstreamHost("https://api.example.com/v1"))
	assert.Equal(t, "10.0.0.5", UpstreamHost("10.0.0.5:9000"))
}

func TestWriteTemplateTree(t *testing.T) {
	dst := t.TempDir()
	require.NoError(t, WriteTemplateTree(dst))

	data, err := os.ReadFile(filepath.Join(dst, "nginx.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "include /etc/nginx/conf.d/*.conf;")

	_, err = os.Stat(filepath.Join(dst, "mime.types"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "conf.d", "default.conf"))
	assert.NoError(t, err)
}

func TestEnvProbesHasCert(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "example.com")
	require.NoError(t, os.MkdirAll(live, 0755))

	p := NewEnvProbes(dir)
	assert.False(t, p.HasCert("example.com"), "both files are required")

	require.NoError(t, os.WriteFile(filepath.Join(live, "fullchain.pem"), []byte("x"), 0644))
	assert.False(t, p.HasCert("example.com"))

	require.NoError(t, os.WriteFile(filepath.Join(live, "privkey.pem"), []byte("x"), 0600))
	assert.True(t, p.HasCert("example.com"))
	assert.True(t, p.HasCert("*.example.com"), "wildcards map to the stripped directory")
}

func TestEnvProbesResolvesLiteralIP(t *testing.T) {
	p := NewEnvProbes(t.TempDir())
	assert.True(t, p.Resolves("127.0.0.1"))
	assert.False(t, p.Resolves(""))
}
