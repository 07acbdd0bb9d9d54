package cert

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/gantryhq/gantry/pkg/types"
)

// AcmeClient obtains certificates through an external ACME client.
// A successful Issue leaves fullchain.pem and privkey.pem under the
// live directory for the group's primary domain.
type AcmeClient interface {
	Issue(ctx context.Context, domains []string, email string) error
}

// CertTool wraps the external certificate tool used to inspect PEM
// material the engine did not produce itself.
type CertTool interface {
	NotAfter(ctx context.Context, path string) (time.Time, error)
	CertModulus(ctx context.Context, path string) (string, error)
	KeyModulus(ctx context.Context, path string) (string, error)
}

// CertbotClient shells out to certbot. When AuthHook is set, orders
// run in manual HTTP-01 mode and the hook records each challenge in
// the shared store, so any node can answer the validation request.
type CertbotClient struct {
	Bin         string
	Timeout     time.Duration
	AuthHook    string
	CleanupHook string
}

// NewCertbotClient creates the default ACME adapter
func NewCertbotClient(bin string, timeout time.Duration) *CertbotClient {
	if bin == "" {
		bin = "certbot"
	}
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &CertbotClient{Bin: bin, Timeout: timeout}
}

func (c *CertbotClient) args(domains []string, email string) []string {
	args := []string{"certonly", "--non-interactive", "--agree-tos", "-m", email}
	if c.AuthHook != "" {
		args = append(args, "--manual", "--preferred-challenges", "http",
			"--manual-auth-hook", c.AuthHook)
		if c.CleanupHook != "" {
			args = append(args, "--manual-cleanup-hook", c.CleanupHook)
		}
	}
	for _, d := range domains {
		args = append(args, "-d", d)
	}
	return args
}

func (c *CertbotClient) Issue(ctx context.Context, domains []string, email string) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Bin, c.args(domains, email)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &types.SubprocessError{
			Command: c.Bin + " certonly",
			Output:  strings.TrimSpace(string(out)),
			Cause:   err,
		}
	}
	return nil
}

// OpenSSLTool shells out to openssl
type OpenSSLTool struct {
	Bin     string
	Timeout time.Duration
}

// NewOpenSSLTool creates the default cert-tool adapter
func NewOpenSSLTool(bin string, timeout time.Duration) *OpenSSLTool {
	if bin == "" {
		bin = "openssl"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenSSLTool{Bin: bin, Timeout: timeout}
}

func (t *OpenSSLTool) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &types.SubprocessError{
			Command: t.Bin + " " + args[0],
			Output:  strings.TrimSpace(string(out)),
			Cause:   err,
		}
	}
	return strings.TrimSpace(string(out)), nil
}

// NotAfter parses the expiry out of `openssl x509 -enddate -noout`
func (t *OpenSSLTool) NotAfter(ctx context.Context, path string) (time.Time, error) {
	out, err := t.run(ctx, "x509", "-enddate", "-noout", "-in", path)
	if err != nil {
		return time.Time{}, err
	}
	value := strings.TrimPrefix(out, "notAfter=")
	// openssl prints e.g. "Jun  1 12:00:00 2027 GMT"
	for _, layout := range []string{"Jan 2 15:04:05 2006 MST", "Jan  2 15:04:05 2006 MST"} {
		if ts, perr := time.Parse(layout, value); perr == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable notAfter output: %q", out)
}

func (t *OpenSSLTool) CertModulus(ctx context.Context, path string) (string, error) {
	return t.run(ctx, "x509", "-noout", "-modulus", "-in", path)
}

func (t *OpenSSLTool) KeyModulus(ctx context.Context, path string) (string, error) {
	return t.run(ctx, "rsa", "-noout", "-modulus", "-in", path)
}
