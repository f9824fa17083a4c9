package link

import "time"

// Default control loop settings.
const (
	// DefaultStepTimeout bounds a single Engine.Step call.
	DefaultStepTimeout = time.Second

	// DefaultBackoffFloor is the first reconnect delay after a failed step.
	DefaultBackoffFloor = 500 * time.Millisecond

	// DefaultBackoffCeiling caps the doubling reconnect delay.
	DefaultBackoffCeiling = 30 * time.Second

	// DefaultReconcileAttempts bounds the subscribe/unsubscribe retry passes.
	DefaultReconcileAttempts = 10

	// DefaultRestartInterval is the period of the forced reconnect cycle.
	DefaultRestartInterval = 24 * time.Hour

	// DefaultKeepAlive is the MQTT keepalive sent on connect.
	DefaultKeepAlive = 60 * time.Second

	// DefaultClientIDPrefix starts every generated client identifier.
	DefaultClientIDPrefix = "mqttlink"

	// restartPause is the settle time around the forced reconnect.
	restartPause = time.Second

	// maxPayloadSize limits published payloads (1MB), matching typical broker limits.
	maxPayloadSize = 1 << 20

	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2
)

// Options tunes a Link. Zero values select the defaults above.
type Options struct {
	// ClientID overrides the generated <prefix>-<mac>-<unix>-<pid> identifier.
	ClientID string

	// ClientIDPrefix replaces DefaultClientIDPrefix in generated identifiers.
	ClientIDPrefix string

	// CleanSession asks the broker to drop session state on disconnect.
	// The default (false) keeps broker-side subscriptions across reconnects.
	CleanSession bool

	KeepAlive   time.Duration
	StepTimeout time.Duration

	BackoffFloor   time.Duration
	BackoffCeiling time.Duration

	ReconcileAttempts int

	// RestartInterval is how often the loop forces a full unsubscribe and
	// reconnect cycle. Negative disables it; zero selects the default.
	RestartInterval time.Duration

	// MaxSubscriptions bounds the registry size.
	MaxSubscriptions int
}

// DefaultOptions returns Options populated with the defaults.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = DefaultClientIDPrefix
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = DefaultStepTimeout
	}
	if o.BackoffFloor <= 0 {
		o.BackoffFloor = DefaultBackoffFloor
	}
	if o.BackoffCeiling <= 0 {
		o.BackoffCeiling = DefaultBackoffCeiling
	}
	if o.BackoffCeiling < o.BackoffFloor {
		o.BackoffCeiling = o.BackoffFloor
	}
	if o.ReconcileAttempts <= 0 {
		o.ReconcileAttempts = DefaultReconcileAttempts
	}
	if o.RestartInterval == 0 {
		o.RestartInterval = DefaultRestartInterval
	}
	if o.MaxSubscriptions <= 0 {
		o.MaxSubscriptions = DefaultMaxSubscriptions
	}
	return o
}
