// Package link supervises a single MQTT broker connection and routes
// inbound messages to per-topic handlers.
//
// This package manages:
//   - A background control loop that drives the transport engine
//   - Reconnection with exponential backoff (500ms doubling to 30s)
//   - A subscription registry reconciled with the broker after every connect
//   - A periodic forced reconnect cycle (24h by default)
//   - Last Will and Testament and TLS settings applied before connect
//
// # Architecture
//
// The MQTT protocol itself lives behind the Engine interface. The Link owns
// one Engine per Connect call and drives it from one goroutine:
//
//	caller ──Subscribe/Unsubscribe──▶ Registry ◀──reconcile── control loop ──Step──▶ Engine
//	caller ──Publish──────────────────────────────────────────────────────────────▶ Engine
//	Engine ──message (during Step)──▶ dispatch ──Find──▶ Registry ──▶ Handler
//
// Subscribe and Unsubscribe only touch the registry; the control loop picks
// up the change on its next pass (at most one step timeout later) and
// issues the broker calls. Broker failures inside the loop are never
// returned to callers: they are logged, retried, and surfaced through State
// and the optional EventSink.
//
// # Handlers
//
// Handlers run synchronously on the control loop goroutine. A slow handler
// delays every other message and the reconnect logic. A handler must never
// call Shutdown on its own Link, which waits for that same goroutine.
//
// # Usage
//
//	l := link.New(mqtt.NewEngine, link.DefaultOptions())
//	l.SetLogger(logger.With("component", "link"))
//
//	_ = l.SetWill("status/lastwill", []byte("client-offline"), 1, false)
//	if err := l.Connect("127.0.0.1", 1883, "user", "secret"); err != nil {
//	    return err
//	}
//	defer l.Shutdown()
//
//	_ = l.SubscribeFunc("sensor/temperature", 1, func(payload []byte, topic string) {
//	    fmt.Printf("%s = %s\n", topic, payload)
//	})
package link
