package cert

import (
	"context"
	"sync"
	"time"

	"github.com/gantryhq/gantry/pkg/events"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// Monitor watches stored certificates and raises expiry alerts through
// the Alerter. Checks run once shortly after startup and then daily at
// 09:00 local time.
type Monitor struct {
	store           storage.Store
	alerter         events.Alerter
	renewBeforeDays int
	thresholdDays   int
	startupDelay    time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates the expiry monitor. thresholdDays defaults to 14.
func NewMonitor(store storage.Store, alerter events.Alerter, renewBeforeDays, thresholdDays int) *Monitor {
	if renewBeforeDays == 0 {
		renewBeforeDays = 30
	}
	if thresholdDays == 0 {
		thresholdDays = 14
	}
	return &Monitor{
		store:           store,
		alerter:         alerter,
		renewBeforeDays: renewBeforeDays,
		thresholdDays:   thresholdDays,
		startupDelay:    60 * time.Second,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the check schedule
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()
}

// Stop halts the schedule
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	wait := m.startupDelay
	for {
		select {
		case <-time.After(wait):
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := m.Check(ctx); err != nil {
				log.WithComponent("cert-monitor").Error().Err(err).Msg("certificate check failed")
			}
			cancel()
			wait = untilNextNineAM(time.Now())
		case <-m.stopCh:
			return
		}
	}
}

// untilNextNineAM returns the wait to the next 09:00 local time
func untilNextNineAM(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Check scans non-orphaned certificates and emits Expired and
// ExpiringSoon alerts.
func (m *Monitor) Check(ctx context.Context) error {
	certs, err := m.store.ListCertificates(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, c := range certs {
		if c.IsOrphaned {
			continue
		}
		days := c.DaysUntilExpiry(now)
		switch {
		case days < 0:
			if m.alerter != nil {
				m.alerter.CertificateExpired(c)
			}
		case days <= m.thresholdDays:
			if m.alerter != nil {
				m.alerter.CertificateExpiringSoon(c, days)
			}
		}
	}
	return nil
}

// Summary aggregates all stored certificates by status
func (m *Monitor) Summary(ctx context.Context) (*types.CertSummary, error) {
	certs, err := m.store.ListCertificates(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summary := &types.CertSummary{}
	for _, c := range certs {
		status := c.Status(now, m.renewBeforeDays)
		switch status {
		case types.CertStatusValid:
			summary.Valid++
		case types.CertStatusExpiringSoon:
			summary.ExpiringSoon++
		case types.CertStatusExpired:
			summary.Expired++
		}
		summary.Total++
		summary.Details = append(summary.Details, &types.CertDetail{
			ID:              c.ID,
			Domains:         c.Domains,
			ExpiresAt:       c.ExpiresAt,
			DaysUntilExpiry: c.DaysUntilExpiry(now),
			Status:          status,
			IsOrphaned:      c.IsOrphaned,
		})
	}
	return summary, nil
}
