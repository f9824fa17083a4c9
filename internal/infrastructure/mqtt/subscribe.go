package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Subscribe asks the broker for topic at qos and waits for the SUBACK.
//
// Matching messages arrive through the engine queue and are delivered by
// Step; routing to handlers is done by the link registry, not by paho.
// A SUBACK carrying the failure code is reported as ErrSubscribeFailed.
func (e *Engine) Subscribe(topic string, qos byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.client == nil || !e.connected.Load() {
		return ErrNotConnected
	}

	token := e.client.Subscribe(topic, qos, nil)
	if err := waitToken(context.Background(), token, e.cfg.OperationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if code, found := st.Result()[topic]; found && code == subackFailure {
			return fmt.Errorf("%w: broker refused %s", ErrSubscribeFailed, topic)
		}
	}
	return nil
}

// Unsubscribe removes topic at the broker and waits for the UNSUBACK.
func (e *Engine) Unsubscribe(topic string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.client == nil || !e.connected.Load() {
		return ErrNotConnected
	}

	token := e.client.Unsubscribe(topic)
	if err := waitToken(context.Background(), token, e.cfg.OperationTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, topic, err)
	}
	return nil
}
