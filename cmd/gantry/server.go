package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/pkg/api"
	"github.com/gantryhq/gantry/pkg/cert"
	"github.com/gantryhq/gantry/pkg/challenge"
	"github.com/gantryhq/gantry/pkg/cluster"
	"github.com/gantryhq/gantry/pkg/config"
	"github.com/gantryhq/gantry/pkg/events"
	"github.com/gantryhq/gantry/pkg/lock"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/nginx"
	"github.com/gantryhq/gantry/pkg/reloader"
	"github.com/gantryhq/gantry/pkg/storage"
)

// shutdownGrace bounds how long in-flight work may run after a signal
const shutdownGrace = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the control-plane node",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServer(configPath)
	},
}

func init() {
	serverCmd.Flags().String("config", "", "Path to YAML config file (env vars override)")
}

func runServer(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	instanceID := lock.NewInstanceID()
	logger := log.WithComponent("server")
	logger.Info().
		Str("instance_id", instanceID).
		Str("version", Version).
		Bool("development", cfg.IsDevelopment()).
		Msg("starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer store.Close()

	locks := lock.NewManager(store, instanceID)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	alerter := events.NewBrokerAlerter(broker)

	eventSub := broker.Subscribe()
	defer broker.Unsubscribe(eventSub)
	go func() {
		eventLog := log.WithComponent("events")
		for ev := range eventSub {
			eventLog.Info().Str("type", string(ev.Type)).Msg(ev.Message)
		}
	}()

	clusterSvc := cluster.NewService(store, locks, alerter, cluster.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		CleanupInterval:   cfg.CleanupInterval,
		StaleAfter:        cfg.StaleAfter,
		DeleteAfter:       cfg.DeleteAfter,
		Version:           Version,
		IPAddress:         os.Getenv("NODE_IP"),
	})

	acmeClient := cert.NewCertbotClient(cfg.CertbotBin, cfg.AcmeTimeout)
	if exe, err := os.Executable(); err == nil {
		// Manual HTTP-01: certbot calls back into this binary, which
		// records the challenge in the shared store for every node
		acmeClient.AuthHook = exe + " hook auth"
		acmeClient.CleanupHook = exe + " hook cleanup"
	}

	engine := cert.NewEngine(store, locks,
		acmeClient,
		cert.NewOpenSSLTool(cfg.OpenSSLBin, 0),
		alerter,
		cert.Config{
			AdminEmail:      cfg.AdminEmail,
			RenewBeforeDays: cfg.RenewBeforeDays,
			LetsEncryptDir:  cfg.LetsEncryptDir,
			Development:     cfg.IsDevelopment(),
		})

	probes := nginx.NewEnvProbes(cfg.LetsEncryptDir)
	gen := nginx.NewGenerator(cfg.LetsEncryptDir, cfg.Port)
	runner := nginx.NewBinRunner(cfg.NginxBin)
	rl := reloader.New(store, gen, probes, runner, engine, broker, reloader.Config{
		NginxDir: cfg.NginxDir,
		Interval: cfg.ReloadInterval,
	})

	certSvc := cert.NewService(engine, cfg.RenewInterval, rl.Trigger)
	monitor := cert.NewMonitor(store, alerter, cfg.RenewBeforeDays, cfg.AlertThresholdDays)
	challenges := challenge.NewService(store, 0)
	collector := metrics.NewCollector(store, cfg.RenewBeforeDays)

	var verifier api.TokenVerifier
	if cfg.ClusterSecret != "" {
		verifier = api.NewHMACVerifier(cfg.ClusterSecret)
	} else if cfg.IsProduction() {
		logger.Warn().Msg("no cluster secret configured, admin endpoints are unauthenticated")
	}

	server := api.NewServer(api.Config{
		Port:          cfg.Port,
		ClusterSecret: cfg.ClusterSecret,
		PeerTimeout:   cfg.PeerTimeout,
	}, challenges, clusterSvc, engine, monitor, rl, verifier)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = clusterSvc.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	rl.Start(context.Background())
	certSvc.Start()
	monitor.Start()
	collector.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	collector.Stop()
	monitor.Stop()
	certSvc.Stop()
	rl.Stop()
	clusterSvc.Stop(shutdownCtx)
	locks.ReleaseAll(shutdownCtx)

	logger.Info().Msg("stopped")
	return nil
}
