package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/challenge"
	"github.com/gantryhq/gantry/pkg/config"
	"github.com/gantryhq/gantry/pkg/storage"
)

// hookTimeout bounds one hook invocation; certbot waits on the hook
// before asking the CA to validate.
const hookTimeout = 15 * time.Second

// Certbot runs these in manual HTTP-01 mode, passing the challenge
// through CERTBOT_* environment variables. Writing the answer to the
// shared store lets any cluster node serve the validation request.
var hookCmd = &cobra.Command{
	Use:    "hook",
	Short:  "Certbot manual-hook helpers",
	Hidden: true,
}

var hookAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Record the pending HTTP-01 challenge in the shared store",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := os.Getenv("CERTBOT_TOKEN")
		keyAuth := os.Getenv("CERTBOT_VALIDATION")
		if token == "" || keyAuth == "" {
			return fmt.Errorf("CERTBOT_TOKEN and CERTBOT_VALIDATION must be set")
		}
		return withChallenges(func(ctx context.Context, challenges *challenge.Service) error {
			return challenges.Put(ctx, token, keyAuth, os.Getenv("CERTBOT_DOMAIN"))
		})
	},
}

var hookCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove the challenge once validation completes",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := os.Getenv("CERTBOT_TOKEN")
		if token == "" {
			return fmt.Errorf("CERTBOT_TOKEN must be set")
		}
		return withChallenges(func(ctx context.Context, challenges *challenge.Service) error {
			return challenges.Delete(ctx, token)
		})
	},
}

func withChallenges(fn func(context.Context, *challenge.Service) error) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, challenge.NewService(store, 0))
}

func init() {
	hookCmd.AddCommand(hookAuthCmd, hookCleanupCmd)
	rootCmd.AddCommand(hookCmd)
}
