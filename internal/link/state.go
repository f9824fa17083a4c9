package link

// ConnectionState is the last known result of the engine's connect and step calls.
type ConnectionState int

const (
	// Disconnected is the initial state and the state after any failed step.
	Disconnected ConnectionState = iota

	// Connected means the engine reported a successful connect and no step has failed since.
	Connected
)

// String returns the lower-case state name used in logs and events.
func (s ConnectionState) String() string {
	switch s {
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// phase tracks the control loop lifecycle. It is internal: callers only
// ever observe ConnectionState.
type phase int

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseRunning
	phaseShuttingDown
)

func (p phase) String() string {
	switch p {
	case phaseConnecting:
		return "connecting"
	case phaseRunning:
		return "running"
	case phaseShuttingDown:
		return "shutting_down"
	default:
		return "idle"
	}
}

// Will is the Last Will and Testament published by the broker when the
// connection drops without a clean disconnect.
type Will struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// TLSConfig holds file-based TLS material handed to the engine.
//
// Version accepts "tlsv1.2" or "tlsv1.3" (empty selects the engine default).
// Insecure disables server certificate verification and should only be used
// against development brokers.
type TLSConfig struct {
	CAFile   string
	CAPath   string
	CertFile string
	KeyFile  string
	Version  string
	Insecure bool
}

// empty reports whether no TLS material is configured at all.
func (t TLSConfig) empty() bool {
	return t.CAFile == "" && t.CAPath == "" && t.CertFile == "" && t.KeyFile == ""
}
