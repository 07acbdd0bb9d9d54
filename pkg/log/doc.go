/*
Package log provides structured logging for Gantry built on zerolog.

A single global logger is initialized once at process start via Init and
shared by every component. Child loggers carry contextual fields:

	logger := log.WithComponent("reloader")
	logger.Info().Str("phase", "render").Msg("rendering entry configs")

Console output (human-readable, RFC3339 timestamps) is the default;
JSON output is used when running under a log collector.

# Fields

  - component: subsystem name (cluster, cert, reloader, api, ...)
  - instance_id: this node's cluster instance identifier
  - entry_id: proxy entry being processed
  - domain: primary domain of a certificate operation
*/
package log
