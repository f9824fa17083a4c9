package link

import (
	"slices"
	"time"
)

// EventKind names a link lifecycle event.
type EventKind string

const (
	// EventConnected is emitted when the broker accepts a connection.
	EventConnected EventKind = "connected"

	// EventConnectFailed is emitted when a connect attempt is refused or
	// times out. Err carries the cause.
	EventConnectFailed EventKind = "connect_failed"

	// EventConnectionLost is emitted once per outage, when the engine first
	// reports the connection down.
	EventConnectionLost EventKind = "connection_lost"

	// EventReconnecting is emitted before each reconnect attempt. Detail is
	// the backoff delay that preceded it.
	EventReconnecting EventKind = "reconnecting"

	// EventReconciled is emitted once every registered subscription has been
	// re-established on the broker.
	EventReconciled EventKind = "reconciled"

	// EventReconcileIncomplete is emitted when reconciliation gives up with
	// topics still failing. Detail lists them.
	EventReconcileIncomplete EventKind = "reconcile_incomplete"

	// EventForcedRestart is emitted when the periodic restart tears down a
	// healthy connection.
	EventForcedRestart EventKind = "forced_restart"

	// EventShutdown is emitted when Shutdown has released the engine and
	// cleared the registry.
	EventShutdown EventKind = "shutdown"
)

// EventKinds lists every kind the link emits.
func EventKinds() []EventKind {
	return []EventKind{
		EventConnected, EventConnectFailed, EventConnectionLost, EventReconnecting,
		EventReconciled, EventReconcileIncomplete, EventForcedRestart, EventShutdown,
	}
}

// Valid reports whether k is one of the kinds the link emits.
func (k EventKind) Valid() bool {
	return slices.Contains(EventKinds(), k)
}

// Event describes something that happened on the control loop.
type Event struct {
	Kind     EventKind
	ClientID string
	Detail   string
	Err      error
	Time     time.Time
}

// EventSink receives link events. RecordEvent is called on the control loop
// goroutine and must return quickly; sinks that do I/O should buffer.
type EventSink interface {
	RecordEvent(ev Event)
}

// Logger is the logging interface used by the link.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MultiSink forwards each event to every non-nil sink in order.
type MultiSink []EventSink

// NewMultiSink drops nil entries so callers can pass optional sinks directly.
func NewMultiSink(sinks ...EventSink) MultiSink {
	out := make(MultiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// RecordEvent implements EventSink.
func (m MultiSink) RecordEvent(ev Event) {
	for _, s := range m {
		s.RecordEvent(ev)
	}
}
