package link

import (
	"context"
	"time"
)

// Engine is the MQTT client capability the Link drives.
//
// An Engine owns exactly one broker session. The Link calls the Set*
// methods once, in this order, before the first Connect: SetWill, SetTLS,
// SetCredentials, SetConnectHandler, SetMessageHandler.
//
// Threading contract:
//   - Connect, Reconnect, Step, Subscribe and Unsubscribe are called from the
//     control loop goroutine only.
//   - Publish may be called from any goroutine, concurrently with Step.
//   - The connect handler and message handler must be invoked synchronously
//     from within Connect, Reconnect or Step, never from another goroutine.
//
// All methods return nil on success. Errors should carry a human-readable
// reason; the Link wraps them with ErrTransportFailure where they reach a
// caller.
type Engine interface {
	SetCredentials(username, password string)
	SetWill(will Will)
	SetTLS(cfg TLSConfig) error
	SetConnectHandler(fn func(err error))
	SetMessageHandler(fn func(topic string, payload []byte))

	Connect(ctx context.Context, address string, port int, keepAlive time.Duration) error
	Reconnect(ctx context.Context) error
	Disconnect() error

	// Step waits for network activity for at most timeout, delivering any
	// received messages to the message handler. It returns an error when the
	// session is not usable (connection lost or never established).
	Step(ctx context.Context, timeout time.Duration) error

	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retain bool) error

	// Close releases the engine. The Engine is not used afterwards.
	Close()
}

// EngineFactory creates a fresh Engine for one control loop run.
type EngineFactory func(clientID string, cleanSession bool) (Engine, error)
