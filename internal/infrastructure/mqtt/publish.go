package mqtt

import (
	"context"
	"fmt"
)

// Publish sends a message and waits for the broker acknowledgment the QoS
// level calls for.
//
// QoS Levels:
//   - 0: At most once (returns once written)
//   - 1: At least once (waits for PUBACK)
//   - 2: Exactly once (waits for PUBCOMP)
//
// Topic and payload validation is the caller's job; link.Link.Publish
// checks both before reaching the engine.
func (e *Engine) Publish(topic string, payload []byte, qos byte, retained bool) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.client == nil || !e.connected.Load() {
		return ErrNotConnected
	}

	token := e.client.Publish(topic, qos, retained, payload)
	if err := waitToken(context.Background(), token, e.cfg.OperationTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}
