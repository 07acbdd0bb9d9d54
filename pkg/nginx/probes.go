package nginx

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Probes answer the environment questions the generator needs: does
// certificate material exist on disk, does an upstream host resolve.
// Injected so rendering is testable without a filesystem or DNS.
type Probes interface {
	HasCert(primary string) bool
	Resolves(host string) bool
}

// EnvProbes is the production implementation: real filesystem, real
// resolver, short per-lookup timeout.
type EnvProbes struct {
	LetsEncryptDir string
	LookupTimeout  time.Duration
}

// NewEnvProbes creates filesystem/DNS probes rooted at the live dir
func NewEnvProbes(letsEncryptDir string) *EnvProbes {
	return &EnvProbes{
		LetsEncryptDir: letsEncryptDir,
		LookupTimeout:  3 * time.Second,
	}
}

// HasCert reports whether both PEM files exist for the primary domain
func (p *EnvProbes) HasCert(primary string) bool {
	dir := filepath.Join(p.LetsEncryptDir, strings.TrimPrefix(primary, "*."))
	for _, name := range []string{"fullchain.pem", "privkey.pem"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Resolves reports whether the host has at least one A/AAAA record
func (p *EnvProbes) Resolves(host string) bool {
	if host == "" {
		return false
	}
	if ip := net.ParseIP(host); ip != nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.LookupTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	return err == nil && len(addrs) > 0
}
