// Package mqtt is the paho.mqtt.golang transport engine for link.Link.
//
// This package manages:
//   - Building paho client options (client ID, session mode, keepalive, will)
//   - TLS material loading (CA file, CA directory, client certificate pair)
//   - Turning paho's callback delivery into step-driven delivery
//   - A process-wide default link for single-broker programs
//
// # Architecture
//
// paho runs its own network goroutines and calls handlers from them. The
// link control loop expects the opposite: it calls Step and wants messages
// delivered synchronously inside that call. The Engine bridges the two with
// a non-blocking queue:
//
//	paho router ──enqueue──▶ queue ──Step──▶ message handler (control loop goroutine)
//
// paho's own reconnect logic is disabled; the link control loop decides
// when to reconnect and a fresh paho client is built for each attempt.
//
// # Security Considerations
//
//   - Supplying any TLS material switches the broker URL to ssl://
//   - TLS 1.2 is the minimum version accepted
//   - Insecure disables certificate verification and is meant for lab brokers only
//
// # Usage
//
//	l := link.New(mqtt.NewFactory(mqtt.EngineConfig{Logger: logger}), link.DefaultOptions())
//	if err := l.Connect("broker.local", 8883, "user", "secret"); err != nil {
//	    return err
//	}
//	defer l.Shutdown()
//
// Programs with a single broker can use the package-level functions instead:
//
//	_ = mqtt.SetWill("status/lastwill", []byte("client-offline"), 1, false)
//	_ = mqtt.ConnectAndMonitor("127.0.0.1", 1883, "", "")
//	defer mqtt.Shutdown()
package mqtt
