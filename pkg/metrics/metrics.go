package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gantry_cluster_nodes_total",
			Help: "Total number of cluster nodes by status",
		},
		[]string{"status"},
	)

	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gantry_cluster_is_leader",
			Help: "Whether this node holds the leader lock (1 = leader)",
		},
	)

	HeartbeatsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gantry_cluster_heartbeats_total",
			Help: "Total number of heartbeats written by this node",
		},
	)

	SplitBrainRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gantry_cluster_split_brain_repairs_total",
			Help: "Times this node released the leader lock after detecting a conflicting leader row",
		},
	)

	// Certificate metrics
	CertificatesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gantry_certificates_total",
			Help: "Stored certificates by status",
		},
		[]string{"status"},
	)

	CertIssuanceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_cert_issuance_total",
			Help: "Certificate issuance attempts by outcome",
		},
		[]string{"outcome"},
	)

	CertIssuanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gantry_cert_issuance_duration_seconds",
			Help:    "Time taken by ACME client invocations in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Reload metrics
	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_reloads_total",
			Help: "NGINX reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)

	ReloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gantry_reload_duration_seconds",
			Help:    "Full reconciliation pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Challenge metrics
	ChallengeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_acme_challenge_requests_total",
			Help: "HTTP-01 challenge lookups by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(HeartbeatsTotal)
	prometheus.MustRegister(SplitBrainRepairsTotal)
	prometheus.MustRegister(CertificatesTotal)
	prometheus.MustRegister(CertIssuanceTotal)
	prometheus.MustRegister(CertIssuanceDuration)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(ReloadDuration)
	prometheus.MustRegister(ChallengeRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
