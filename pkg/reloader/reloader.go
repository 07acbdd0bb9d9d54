package reloader

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gantryhq/gantry/pkg/domain"
	"github.com/gantryhq/gantry/pkg/events"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/metrics"
	"github.com/gantryhq/gantry/pkg/nginx"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// CertEnsurer is the slice of the certificate engine the reloader
// needs during phase 2.
type CertEnsurer interface {
	Ensure(ctx context.Context, domains []string) (*types.Certificate, error)
}

// Config holds the reloader's filesystem roots and timing
type Config struct {
	NginxDir string        // default /etc/nginx
	LogDir   string        // default /var/log/nginx
	Interval time.Duration // default 5m
}

// Reloader reconciles the on-disk nginx configuration with the
// entries in the database. Invocations are serialized on a local
// mutex; triggering during a run queues at most one follow-up.
type Reloader struct {
	store  storage.Store
	gen    *nginx.Generator
	probes nginx.Probes
	runner nginx.Runner
	certs  CertEnsurer
	broker *events.Broker // nil disables event publishing
	cfg    Config

	reloadMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	trigger chan struct{}
	wg      sync.WaitGroup
}

var (
	rootDirective  = regexp.MustCompile(`root\s+([^;]+);`)
	aliasDirective = regexp.MustCompile(`alias\s+([^;]+);`)
)

// New creates a reloader. A nil broker disables event publishing.
func New(store storage.Store, gen *nginx.Generator, probes nginx.Probes, runner nginx.Runner, certs CertEnsurer, broker *events.Broker, cfg Config) *Reloader {
	if cfg.NginxDir == "" {
		cfg.NginxDir = "/etc/nginx"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "/var/log/nginx"
	}
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Reloader{
		store:   store,
		gen:     gen,
		probes:  probes,
		runner:  runner,
		certs:   certs,
		broker:  broker,
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}
}

// Start runs one immediate reconciliation, then reconciles on the
// periodic timer and on Trigger.
func (r *Reloader) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	result := r.Reload(ctx)
	if !result.OK {
		log.WithComponent("reloader").Error().Str("error", result.Error).Msg("initial reconciliation failed")
	}

	r.wg.Add(1)
	go r.loop()
}

// Stop halts the timer and waits for an in-flight pass
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
}

// Trigger requests an asynchronous reconciliation; coalesces when one
// is already queued.
func (r *Reloader) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Reloader) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce()
		case <-r.trigger:
			r.runOnce()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reloader) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
	defer cancel()
	result := r.Reload(ctx)
	if !result.OK {
		log.WithComponent("reloader").Error().Str("error", result.Error).Msg("reconciliation failed")
	}
}

// Reload performs one full reconciliation pass. Never returns an
// error type: the outcome is the result payload.
func (r *Reloader) Reload(ctx context.Context) *types.ReloadResult {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	timer := metrics.NewTimer(metrics.ReloadDuration)
	defer timer.ObserveDuration()

	logger := log.WithComponent("reloader")
	logger.Info().Msg("reconciliation started")

	entries, err := r.store.ListEntries(ctx)
	if err != nil {
		return r.fail("failed to load entries: " + err.Error())
	}

	// Phase 0: reset the tree
	if err := r.resetTree(entries); err != nil {
		return r.fail("failed to reset nginx tree: " + err.Error())
	}

	// Phase 1: HTTP-only render. Entries without certificate material
	// render plain HTTP with the challenge location, so validation
	// never references files that are not there yet.
	if err := r.renderAll(entries); err != nil {
		return r.fail("render failed: " + err.Error())
	}
	if err := r.runner.Validate(ctx); err != nil {
		// The running nginx keeps its previous config
		return r.fail(err.Error())
	}
	if err := r.runner.Reload(ctx); err != nil {
		return r.fail(err.Error())
	}

	// Phase 2: ensure certificates. Issuance is leader-gated inside
	// the engine; per-entry failures never abort the pass. The engine
	// sees the entry's domain set as stored, wildcards included, so
	// the row hash matches what the renewal sweep and cleanup compute.
	for _, entry := range entries {
		if !entry.SSL {
			continue
		}
		domains := domain.Parse(entry.Domains)
		if len(domains) == 0 || r.probes.HasCert(domains[0]) {
			continue
		}
		if _, err := r.certs.Ensure(ctx, domains); err != nil {
			logger.Error().Err(err).Str("entry_id", entry.ID).Msg("certificate ensure failed")
		}
	}

	// Phase 3: final render with fresh probes
	if err := r.renderAll(entries); err != nil {
		return r.fail("final render failed: " + err.Error())
	}
	if err := r.runner.Validate(ctx); err != nil {
		return r.fail(err.Error())
	}
	if err := r.runner.Reload(ctx); err != nil {
		return r.fail(err.Error())
	}

	metrics.ReloadsTotal.WithLabelValues("success").Inc()
	r.publish(events.EventReloadCompleted, "nginx configuration reconciled")
	logger.Info().Int("entries", len(entries)).Msg("reconciliation finished")
	return &types.ReloadResult{OK: true}
}

func (r *Reloader) fail(msg string) *types.ReloadResult {
	metrics.ReloadsTotal.WithLabelValues("failure").Inc()
	r.publish(events.EventReloadFailed, msg)
	return &types.ReloadResult{OK: false, Error: msg}
}

func (r *Reloader) publish(t events.EventType, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		ID:      uuid.New().String(),
		Type:    t,
		Message: msg,
	})
}

// resetTree clears the nginx directory, writes the packaged base
// configuration, and pre-creates log and content directories. The
// operator-provided DH parameters survive the reset; they are not
// part of the packaged tree and regenerating them is expensive.
func (r *Reloader) resetTree(entries []*types.ProxyEntry) error {
	dhparamPath := filepath.Join(r.cfg.NginxDir, "ssl", "dhparam.pem")
	dhparam, err := os.ReadFile(dhparamPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	children, err := os.ReadDir(r.cfg.NginxDir)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, child := range children {
		if err := os.RemoveAll(filepath.Join(r.cfg.NginxDir, child.Name())); err != nil {
			return err
		}
	}

	if err := nginx.WriteTemplateTree(r.cfg.NginxDir); err != nil {
		return err
	}
	if dhparam != nil {
		if err := os.MkdirAll(filepath.Dir(dhparamPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dhparamPath, dhparam, 0644); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(r.cfg.LogDir, 0755); err != nil {
		return err
	}

	for _, dir := range contentDirs(entries) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.WithComponent("reloader").Warn().Err(err).Str("dir", dir).Msg("failed to create content directory")
		}
	}
	return nil
}

// contentDirs scans custom code for root/alias directives so the
// directories exist before nginx validates.
func contentDirs(entries []*types.ProxyEntry) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, entry := range entries {
		code := entry.NginxCustomCode
		if code == "" {
			continue
		}
		for _, re := range []*regexp.Regexp{rootDirective, aliasDirective} {
			for _, m := range re.FindAllStringSubmatch(code, -1) {
				dir := strings.TrimSpace(m[1])
				if dir == "" || !filepath.IsAbs(dir) {
					continue
				}
				if _, ok := seen[dir]; ok {
					continue
				}
				seen[dir] = struct{}{}
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs
}

// renderAll writes every entry's conf atomically via tmp+rename
func (r *Reloader) renderAll(entries []*types.ProxyEntry) error {
	confDir := filepath.Join(r.cfg.NginxDir, "conf.d")
	if err := os.MkdirAll(confDir, 0755); err != nil {
		return err
	}

	for _, entry := range entries {
		conf := r.gen.Generate(entry, r.probes)
		if conf == "" {
			continue
		}
		final := filepath.Join(confDir, entry.ID+".conf")
		tmp := final + ".tmp"
		if err := os.WriteFile(tmp, []byte(conf), 0644); err != nil {
			return err
		}
		if err := os.Rename(tmp, final); err != nil {
			return err
		}
	}
	return nil
}
