package nginx

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/gantryhq/gantry/pkg/types"
)

// Runner drives the local nginx process: out-of-process validation
// and graceful reload.
type Runner interface {
	Validate(ctx context.Context) error
	Reload(ctx context.Context) error
}

// BinRunner shells out to the nginx binary
type BinRunner struct {
	Bin     string
	Timeout time.Duration
}

// NewBinRunner creates the default runner
func NewBinRunner(bin string) *BinRunner {
	if bin == "" {
		bin = "nginx"
	}
	return &BinRunner{Bin: bin, Timeout: 30 * time.Second}
}

func (r *BinRunner) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &types.SubprocessError{
			Command: r.Bin + " " + strings.Join(args, " "),
			Output:  strings.TrimSpace(string(out)),
			Cause:   err,
		}
	}
	return nil
}

// Validate runs `nginx -t`
func (r *BinRunner) Validate(ctx context.Context) error {
	return r.run(ctx, "-t")
}

// Reload runs `nginx -s reload`
func (r *BinRunner) Reload(ctx context.Context) error {
	return r.run(ctx, "-s", "reload")
}
