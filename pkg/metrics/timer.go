package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timer measures elapsed time for one histogram observation
type Timer struct {
	hist  prometheus.Histogram
	start time.Time
}

// NewTimer starts a timer bound to the given histogram
func NewTimer(h prometheus.Histogram) *Timer {
	return &Timer{hist: h, start: time.Now()}
}

// ObserveDuration records the elapsed seconds
func (t *Timer) ObserveDuration() {
	t.hist.Observe(time.Since(t.start).Seconds())
}
