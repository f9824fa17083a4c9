// Package logging builds the slog-based logger shared by the CLI, the link,
// the paho engine and the event sinks.
//
// Every entry carries service=mqttlink and the build version. Components add
// their own name with With:
//
//	logger := logging.New(cfg.Logging, version)
//	l.SetLogger(logger.With("component", "link"))
//
// The logging section selects the level (debug, info, warn, error), the
// format (json or text) and the destination (stdout, stderr or discard).
// Broker passwords and InfluxDB tokens must never be logged.
package logging
