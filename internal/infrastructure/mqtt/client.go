package mqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqttlink/internal/link"
)

// Engine drives one paho client on behalf of a link.Link.
//
// paho delivers messages and connection events on its own goroutines. The
// Engine queues inbound messages and hands them to the message handler
// during Step, so every callback runs on the goroutine calling Connect,
// Reconnect or Step.
//
// Thread Safety:
//   - Setters, Connect, Reconnect, Step and Close belong to the control loop.
//   - Publish, Subscribe and Unsubscribe are safe for concurrent use.
type Engine struct {
	cfg      EngineConfig
	clientID string
	options  *pahomqtt.ClientOptions
	useTLS   bool

	onConnect func(error)
	onMessage func(topic string, payload []byte)

	// mu guards the paho client and the broker target.
	mu      sync.RWMutex
	client  pahomqtt.Client
	address string
	port    int

	connected atomic.Bool
	lost      chan error

	queueMu sync.Mutex
	queue   []inbound
	dropped uint64
	notify  chan struct{}

	closeOnce sync.Once
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type inbound struct {
	topic   string
	payload []byte
}

// NewFactory returns a link.EngineFactory building paho engines with cfg.
func NewFactory(cfg EngineConfig) link.EngineFactory {
	return func(clientID string, cleanSession bool) (link.Engine, error) {
		eng, err := NewEngine(clientID, cleanSession, cfg)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}
}

// Factory builds paho engines with the default EngineConfig.
var Factory = NewFactory(EngineConfig{})

// NewEngine creates an unconnected engine.
func NewEngine(clientID string, cleanSession bool, cfg EngineConfig) (*Engine, error) {
	if clientID == "" {
		return nil, ErrInvalidClientID
	}
	cfg = cfg.withDefaults()

	e := &Engine{
		cfg:      cfg,
		clientID: clientID,
		options:  buildClientOptions(clientID, cleanSession, cfg),
		lost:     make(chan error, 1),
		notify:   make(chan struct{}, 1),
	}
	e.options.SetDefaultPublishHandler(e.enqueue)
	e.options.SetConnectionLostHandler(e.handleConnectionLost)
	return e, nil
}

// SetCredentials sets the username and password sent on connect.
// An empty username connects anonymously.
func (e *Engine) SetCredentials(username, password string) {
	if username == "" {
		return
	}
	e.options.SetUsername(username)
	e.options.SetPassword(password)
}

// SetWill sets the Last Will and Testament sent on connect.
func (e *Engine) SetWill(will link.Will) {
	e.options.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retain)
}

// SetTLS loads certificate material and switches the broker URL to ssl://.
func (e *Engine) SetTLS(cfg link.TLSConfig) error {
	tlsConfig, err := newTLSConfig(cfg)
	if err != nil {
		return err
	}
	e.options.SetTLSConfig(tlsConfig)
	e.useTLS = true
	return nil
}

// SetConnectHandler sets the callback receiving every connect result.
func (e *Engine) SetConnectHandler(fn func(error)) {
	e.onConnect = fn
}

// SetMessageHandler sets the callback receiving inbound messages during Step.
func (e *Engine) SetMessageHandler(fn func(topic string, payload []byte)) {
	e.onMessage = fn
}

// Connect opens the broker connection and reports the result to the
// connect handler before returning.
func (e *Engine) Connect(ctx context.Context, address string, port int, keepAlive time.Duration) error {
	e.mu.Lock()
	e.address = address
	e.port = port
	e.mu.Unlock()

	e.options.SetKeepAlive(keepAlive)
	return e.dial(ctx)
}

// Reconnect drops any open connection and dials the last Connect target again.
func (e *Engine) Reconnect(ctx context.Context) error {
	e.mu.RLock()
	address := e.address
	e.mu.RUnlock()

	if address == "" {
		return fmt.Errorf("%w: connect has not been called", ErrNotConnected)
	}

	e.dropClient()
	return e.dial(ctx)
}

// dial builds a fresh paho client and waits for its CONNACK.
func (e *Engine) dial(ctx context.Context) error {
	e.mu.RLock()
	address, port := e.address, e.port
	e.mu.RUnlock()

	scheme := "tcp"
	if e.useTLS {
		scheme = "ssl"
	}
	e.options.Servers = nil
	e.options.AddBroker(fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(address, strconv.Itoa(port))))

	// Stale loss notifications belong to the previous client.
	select {
	case <-e.lost:
	default:
	}

	client := pahomqtt.NewClient(e.options)
	token := client.Connect()
	err := waitToken(ctx, token, e.cfg.ConnectTimeout)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		e.connected.Store(false)
		go abandon(client, token)
	} else {
		e.mu.Lock()
		e.client = client
		e.mu.Unlock()
		e.connected.Store(true)
	}

	if e.onConnect != nil {
		e.onConnect(err)
	}
	return err
}

// Disconnect closes the broker connection gracefully.
func (e *Engine) Disconnect() error {
	e.dropClient()
	return nil
}

// Close releases the engine. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.dropClient()

		e.queueMu.Lock()
		e.queue = nil
		e.queueMu.Unlock()
	})
}

// abandon tears down a client whose connect attempt was given up on, so a
// late CONNACK cannot leave a live session behind. Disconnect aborts an
// attempt still in flight; the second check covers one that completed first.
func abandon(client pahomqtt.Client, token pahomqtt.Token) {
	client.Disconnect(defaultDisconnectQuiesce)
	<-token.Done()
	if client.IsConnectionOpen() {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

func (e *Engine) dropClient() {
	e.mu.Lock()
	client := e.client
	e.client = nil
	e.mu.Unlock()

	e.connected.Store(false)
	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(defaultDisconnectQuiesce)
	}
}

// Step delivers queued messages, waiting up to timeout for the first one.
// It fails once the connection has been lost.
func (e *Engine) Step(ctx context.Context, timeout time.Duration) error {
	if !e.connected.Load() {
		return ErrNotConnected
	}
	if e.deliverQueued() > 0 {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-e.lost:
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	case <-e.notify:
		e.deliverQueued()
		return nil
	case <-timer.C:
		return nil
	}
}

// IsConnected reports whether the last connect succeeded and no loss has
// been reported since.
func (e *Engine) IsConnected() bool {
	return e.connected.Load()
}

// Dropped returns the number of inbound messages discarded because the
// queue was full.
func (e *Engine) Dropped() uint64 {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return e.dropped
}

// enqueue is the paho default publish handler. It never blocks, so paho's
// router cannot stall while the control loop waits on an acknowledgment.
func (e *Engine) enqueue(_ pahomqtt.Client, msg pahomqtt.Message) {
	e.queueMu.Lock()
	if len(e.queue) >= e.cfg.QueueSize {
		e.dropped++
		dropped := e.dropped
		e.queueMu.Unlock()
		if e.cfg.Logger != nil {
			e.cfg.Logger.Warn("MQTT inbound queue full, message dropped",
				"topic", msg.Topic(),
				"dropped_total", dropped,
			)
		}
		return
	}
	e.queue = append(e.queue, inbound{topic: msg.Topic(), payload: msg.Payload()})
	e.queueMu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Engine) deliverQueued() int {
	e.queueMu.Lock()
	batch := e.queue
	e.queue = nil
	e.queueMu.Unlock()

	if e.onMessage != nil {
		for _, m := range batch {
			e.onMessage(m.topic, m.payload)
		}
	}
	return len(batch)
}

func (e *Engine) handleConnectionLost(_ pahomqtt.Client, err error) {
	e.connected.Store(false)
	select {
	case e.lost <- err:
	default:
	}
}

// waitToken waits for token to complete, ctx to end or timeout to pass.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: after %v", ErrTimeout, timeout)
	}
}
