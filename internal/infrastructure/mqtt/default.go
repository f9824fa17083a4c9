package mqtt

import (
	"sync"

	"github.com/nerrad567/mqttlink/internal/link"
)

// The default instance is a process-wide link.Link backed by paho engines,
// for programs that only ever talk to one broker.
var (
	defaultOnce sync.Once
	defaultLink *link.Link
)

// Default returns the process-wide link, creating it on first use.
func Default() *link.Link {
	defaultOnce.Do(func() {
		defaultLink = link.New(Factory, link.DefaultOptions())
	})
	return defaultLink
}

// ConnectAndMonitor starts the default link's control loop.
// See link.Link.Connect.
func ConnectAndMonitor(address string, port int, username, password string) error {
	return Default().Connect(address, port, username, password)
}

// Shutdown stops the default link and clears its subscriptions.
func Shutdown() {
	Default().Shutdown()
}

// Publish sends a message through the default link.
func Publish(topic string, payload []byte, qos byte, retain bool) error {
	return Default().Publish(topic, payload, qos, retain)
}

// Subscribe registers fn for topic on the default link.
func Subscribe(topic string, qos byte, fn func(payload []byte, topic string)) error {
	return Default().SubscribeFunc(topic, qos, fn)
}

// Unsubscribe removes the subscription for topic from the default link.
func Unsubscribe(topic string) error {
	return Default().Unsubscribe(topic)
}

// SetWill sets the default link's Last Will and Testament. Call before
// ConnectAndMonitor.
func SetWill(topic string, payload []byte, qos byte, retain bool) error {
	return Default().SetWill(topic, payload, qos, retain)
}

// SetTLS sets the default link's TLS material. Call before ConnectAndMonitor.
func SetTLS(cfg link.TLSConfig) error {
	return Default().SetTLS(cfg)
}

// ConnectionState returns the default link's last known connection state.
func ConnectionState() link.ConnectionState {
	return Default().State()
}
