package metrics

import (
	"context"
	"time"

	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
)

// Collector periodically gauges store-derived metrics
type Collector struct {
	store           storage.Store
	renewBeforeDays int
	stopCh          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store storage.Store, renewBeforeDays int) *Collector {
	return &Collector{
		store:           store,
		renewBeforeDays: renewBeforeDays,
		stopCh:          make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectNodeMetrics(ctx)
	c.collectCertMetrics(ctx)
}

func (c *Collector) collectNodeMetrics(ctx context.Context) {
	nodes, err := c.store.ListNodes(ctx)
	if err != nil {
		return
	}

	counts := map[types.NodeStatus]int{}
	for _, n := range nodes {
		counts[n.Status]++
	}
	for _, status := range []types.NodeStatus{types.NodeStatusActive, types.NodeStatusStale, types.NodeStatusInactive} {
		NodesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (c *Collector) collectCertMetrics(ctx context.Context) {
	certs, err := c.store.ListCertificates(ctx)
	if err != nil {
		return
	}

	now := time.Now()
	counts := map[types.CertStatus]int{}
	for _, cert := range certs {
		counts[cert.Status(now, c.renewBeforeDays)]++
	}
	for _, status := range []types.CertStatus{types.CertStatusValid, types.CertStatusExpiringSoon, types.CertStatusExpired} {
		CertificatesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
