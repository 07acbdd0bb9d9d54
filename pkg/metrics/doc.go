/*
Package metrics exposes Gantry's Prometheus instrumentation.

Collectors are package-level and registered in init; components record
into them directly (counters, histograms), while the Collector gauges
store-derived totals (node counts by status, certificate counts by
expiry classification) every 15 seconds.

The /metrics endpoint is served by pkg/api via Handler().
*/
package metrics
