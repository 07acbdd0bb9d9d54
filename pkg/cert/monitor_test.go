package cert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	mu              sync.Mutex
	expiringSoon    []string
	expired         []string
	issued          []string
	renewalFailures [][]string
}

func (r *recordingAlerter) CertificateExpiringSoon(cert *types.Certificate, daysLeft int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expiringSoon = append(r.expiringSoon, cert.Domains)
}

func (r *recordingAlerter) CertificateExpired(cert *types.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, cert.Domains)
}

func (r *recordingAlerter) CertificateIssued(cert *types.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, cert.Domains)
}

func (r *recordingAlerter) RenewalFailure(domains []string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renewalFailures = append(r.renewalFailures, domains)
}

func (r *recordingAlerter) NodeDown(node *types.ClusterNode)            {}
func (r *recordingAlerter) NodeJoined(node *types.ClusterNode)          {}
func (r *recordingAlerter) NodeLeft(node *types.ClusterNode)            {}
func (r *recordingAlerter) LeaderChanged(instanceID string, leads bool) {}

func TestMonitorCheck(t *testing.T) {
	store := storage.NewMemoryStore()
	alerter := &recordingAlerter{}
	monitor := NewMonitor(store, alerter, 30, 14)
	ctx := context.Background()

	seedCert(t, store, []string{"healthy.example.com"}, time.Now().AddDate(0, 0, 90))
	seedCert(t, store, []string{"soon.example.com"}, time.Now().AddDate(0, 0, 7))
	seedCert(t, store, []string{"dead.example.com"}, time.Now().Add(-48*time.Hour))

	orphan := seedCert(t, store, []string{"orphan.example.com"}, time.Now().Add(-48*time.Hour))
	require.NoError(t, store.SetCertificateOrphaned(ctx, orphan.ID, true))

	require.NoError(t, monitor.Check(ctx))

	assert.Equal(t, []string{"soon.example.com"}, alerter.expiringSoon)
	assert.Equal(t, []string{"dead.example.com"}, alerter.expired, "orphaned rows are skipped")
}

func TestMonitorSummary(t *testing.T) {
	store := storage.NewMemoryStore()
	monitor := NewMonitor(store, nil, 30, 14)

	seedCert(t, store, []string{"valid.example.com"}, time.Now().AddDate(0, 0, 90))
	seedCert(t, store, []string{"soon.example.com"}, time.Now().AddDate(0, 0, 7))
	seedCert(t, store, []string{"dead.example.com"}, time.Now().Add(-48*time.Hour))

	summary, err := monitor.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Valid)
	assert.Equal(t, 1, summary.ExpiringSoon)
	assert.Equal(t, 1, summary.Expired)
	assert.Len(t, summary.Details, 3)
}

func TestUntilNextNineAM(t *testing.T) {
	loc := time.UTC
	morning := time.Date(2026, 3, 10, 8, 0, 0, 0, loc)
	assert.Equal(t, time.Hour, untilNextNineAM(morning))

	afternoon := time.Date(2026, 3, 10, 15, 0, 0, 0, loc)
	assert.Equal(t, 18*time.Hour, untilNextNineAM(afternoon))
}

func TestUntilNextMidnight(t *testing.T) {
	loc := time.UTC
	evening := time.Date(2026, 3, 10, 23, 0, 0, 0, loc)
	assert.Equal(t, time.Hour, untilNextMidnight(evening))
}
