package link

import (
	"context"
	"fmt"
	"sync"
)

// Link supervises one broker connection and the subscriptions bound to it.
//
// A Link is an explicit handle: construct as many as needed with New, each
// owning its own engine, registry and control loop.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Message handlers run on the control loop goroutine, one at a time.
type Link struct {
	opts      Options
	newEngine EngineFactory
	registry  *Registry
	clock     clock

	// lifecycleMu serialises Connect, Shutdown, SetWill and SetTLS so that
	// the "already active" check and the loop spawn are atomic.
	lifecycleMu sync.Mutex
	will        *Will
	tls         *TLSConfig
	cancel      context.CancelFunc
	done        chan struct{}

	// engineMu guards the engine handle. Caller-side engine calls hold the
	// read lock so Shutdown cannot close the engine underneath them.
	engineMu sync.RWMutex
	engine   Engine
	clientID string

	stateMu sync.RWMutex
	state   ConnectionState
	phase   phase

	hooksMu sync.RWMutex
	logger  Logger
	sink    EventSink
}

// connParams are the broker parameters captured by Connect.
type connParams struct {
	address  string
	port     int
	username string
	password string
}

// New creates an idle Link that will build engines with factory.
func New(factory EngineFactory, opts Options) *Link {
	opts = opts.withDefaults()
	return &Link{
		opts:      opts,
		newEngine: factory,
		registry:  NewRegistry(opts.MaxSubscriptions),
		clock:     systemClock{},
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger used by the control loop and dispatch path.
func (l *Link) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	l.hooksMu.Lock()
	l.logger = logger
	l.hooksMu.Unlock()
}

// SetEventSink sets a receiver for lifecycle events. Pass nil to remove it.
func (l *Link) SetEventSink(sink EventSink) {
	l.hooksMu.Lock()
	l.sink = sink
	l.hooksMu.Unlock()
}

func (l *Link) log() Logger {
	l.hooksMu.RLock()
	defer l.hooksMu.RUnlock()
	return l.logger
}

// Connect starts the control loop for the broker at address:port.
//
// It returns as soon as the loop is running; the handshake happens in the
// background and its outcome is visible through State. Calling Connect
// while a loop is already running fails with ErrAlreadyActive.
func (l *Link) Connect(address string, port int, username, password string) error {
	if address == "" {
		return fmt.Errorf("%w: broker address cannot be empty", ErrInvalidArgument)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, port)
	}
	if l.newEngine == nil {
		return fmt.Errorf("%w: no engine factory configured", ErrInvalidArgument)
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.currentPhase() != phaseIdle {
		return ErrAlreadyActive
	}

	cfg := loopConfig{
		params: connParams{
			address:  address,
			port:     port,
			username: username,
			password: password,
		},
	}
	if l.will != nil {
		w := *l.will
		cfg.will = &w
	}
	if l.tls != nil {
		t := *l.tls
		cfg.tls = &t
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.setPhase(phaseConnecting)

	go l.run(ctx, cfg, l.done)

	l.log().Info("link control loop started", "address", address, "port", port)
	return nil
}

// Shutdown stops the control loop, disconnects and releases the engine,
// and clears every subscription. It is safe to call at any time, any
// number of times.
func (l *Link) Shutdown() {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.currentPhase() == phaseIdle {
		l.registry.Clear()
		l.setState(Disconnected)
		return
	}

	l.setPhase(phaseShuttingDown)
	l.log().Info("signalling link control loop to stop")

	l.cancel()
	<-l.done

	l.engineMu.Lock()
	eng := l.engine
	l.engine = nil
	l.engineMu.Unlock()

	if eng != nil {
		if l.State() == Connected {
			if err := eng.Disconnect(); err != nil {
				l.log().Warn("disconnect failed", "error", err)
			}
		}
		eng.Close()
	}

	l.registry.Clear()
	l.setState(Disconnected)
	l.emit(Event{Kind: EventShutdown})

	l.engineMu.Lock()
	l.clientID = ""
	l.engineMu.Unlock()

	l.cancel = nil
	l.done = nil
	l.setPhase(phaseIdle)
	l.log().Info("link shut down")
}

// State returns the last known connection state. It never blocks on the
// control loop.
func (l *Link) State() ConnectionState {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.state
}

// IsConnected reports whether State is Connected.
func (l *Link) IsConnected() bool {
	return l.State() == Connected
}

// HealthCheck returns ErrNotConnected unless the link is connected.
func (l *Link) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("link health check: %w", ctx.Err())
	default:
	}
	if !l.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// ClientID returns the identifier of the current engine, or "" when idle.
func (l *Link) ClientID() string {
	l.engineMu.RLock()
	defer l.engineMu.RUnlock()
	return l.clientID
}

// SetWill configures the Last Will and Testament. It must be called
// before Connect; afterwards it fails with ErrInvalidState.
// QoS values above 2 are clamped to 0.
func (l *Link) SetWill(topic string, payload []byte, qos byte, retain bool) error {
	if err := validateTopicName(topic); err != nil {
		return err
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.currentPhase() != phaseIdle {
		return fmt.Errorf("%w: will must be set before connect", ErrInvalidState)
	}

	l.will = &Will{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		QoS:     clampQoS(qos),
		Retain:  retain,
	}
	return nil
}

// SetTLS configures TLS material. It must be called before Connect;
// afterwards it fails with ErrInvalidState.
func (l *Link) SetTLS(cfg TLSConfig) error {
	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return fmt.Errorf("%w: certificate and key files must be given together", ErrInvalidArgument)
	}

	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	if l.currentPhase() != phaseIdle {
		return fmt.Errorf("%w: tls must be set before connect", ErrInvalidState)
	}

	l.tls = &cfg
	return nil
}

// Publish sends payload to topic. It fails fast with ErrNotConnected while
// the link is disconnected, without touching the engine.
// QoS values above 2 are clamped to 0.
func (l *Link) Publish(topic string, payload []byte, qos byte, retain bool) error {
	if err := validateTopicName(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrInvalidArgument, len(payload), maxPayloadSize)
	}
	qos = clampQoS(qos)

	if l.State() == Disconnected {
		return ErrNotConnected
	}

	l.engineMu.RLock()
	defer l.engineMu.RUnlock()

	if l.engine == nil {
		return ErrNotConnected
	}
	if err := l.engine.Publish(topic, payload, qos, retain); err != nil {
		return fmt.Errorf("%w: publish to %q: %w", ErrTransportFailure, topic, err)
	}
	return nil
}

// Subscribe registers handler for topic. The broker subscription is made
// by the control loop on its next pass, and restored after every reconnect.
// QoS values above 2 are clamped to 0.
func (l *Link) Subscribe(topic string, qos byte, handler Handler) error {
	if err := l.registry.Add(topic, clampQoS(qos), handler); err != nil {
		return err
	}
	l.log().Debug("subscription registered", "topic", topic, "qos", clampQoS(qos))
	return nil
}

// SubscribeFunc is Subscribe for a plain function.
func (l *Link) SubscribeFunc(topic string, qos byte, fn func(payload []byte, topic string)) error {
	if fn == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrInvalidArgument)
	}
	return l.Subscribe(topic, qos, HandlerFunc(fn))
}

// Unsubscribe removes the subscription for topic. The broker unsubscribe is
// issued by the control loop on its next pass.
func (l *Link) Unsubscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidArgument)
	}
	if err := l.registry.Remove(topic); err != nil {
		return err
	}
	l.log().Debug("subscription removed", "topic", topic)
	return nil
}

// SubscriptionCount returns the number of registered subscriptions.
func (l *Link) SubscriptionCount() int {
	return l.registry.Len()
}

// Subscriptions returns the registered topics and QoS levels in
// registration order.
func (l *Link) Subscriptions() []TopicQoS {
	return l.registry.Snapshot()
}

func (l *Link) setState(s ConnectionState) {
	l.stateMu.Lock()
	l.state = s
	l.stateMu.Unlock()
}

func (l *Link) currentPhase() phase {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.phase
}

func (l *Link) setPhase(p phase) {
	l.stateMu.Lock()
	l.phase = p
	l.stateMu.Unlock()
}

// emit forwards ev to the event sink, if any.
func (l *Link) emit(ev Event) {
	l.hooksMu.RLock()
	sink := l.sink
	l.hooksMu.RUnlock()
	if sink == nil {
		return
	}

	if ev.Time.IsZero() {
		ev.Time = l.clock.Now()
	}
	if ev.ClientID == "" {
		ev.ClientID = l.ClientID()
	}
	sink.RecordEvent(ev)
}

// clampQoS maps out-of-range QoS values to 0.
func clampQoS(qos byte) byte {
	if qos > maxQoS {
		return 0
	}
	return qos
}
