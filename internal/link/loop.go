package link

import (
	"context"
	"fmt"
)

// loopConfig is the immutable input of one control loop run.
type loopConfig struct {
	params connParams
	will   *Will
	tls    *TLSConfig
}

// run is the control loop. It owns the engine until ctx is cancelled;
// teardown is left to Shutdown.
func (l *Link) run(ctx context.Context, cfg loopConfig, done chan<- struct{}) {
	defer close(done)

	bo := newBackoff(l.opts.BackoffFloor, l.opts.BackoffCeiling)

	eng, err := l.startEngine(ctx, cfg, bo)
	if err != nil {
		return
	}

	l.setPhase(phaseRunning)

	if err := eng.Connect(ctx, cfg.params.address, cfg.params.port, l.opts.KeepAlive); err != nil {
		l.log().Warn("initial connect failed", "address", cfg.params.address, "port", cfg.params.port, "error", err)
	}

	lastRestart := l.clock.Now()
	lost := false

	for ctx.Err() == nil {
		if err := eng.Step(ctx, l.opts.StepTimeout); err != nil {
			if ctx.Err() != nil {
				return
			}

			l.setState(Disconnected)
			if !lost {
				lost = true
				l.log().Warn("broker connection lost", "error", err)
				l.emit(Event{Kind: EventConnectionLost, Err: err})
			}

			delay := bo.Next()
			if l.clock.Sleep(ctx, delay) != nil {
				return
			}

			l.log().Debug("reconnecting to broker", "after", delay)
			l.emit(Event{Kind: EventReconnecting, Detail: delay.String()})
			if err := eng.Reconnect(ctx); err != nil {
				l.log().Debug("reconnect failed", "error", err)
			}
			continue
		}

		lost = false
		bo.Reset()

		if l.registry.Dirty() {
			l.reconcile(ctx, eng)
		}

		if l.opts.RestartInterval > 0 && l.clock.Now().Sub(lastRestart) >= l.opts.RestartInterval {
			l.forceRestart(ctx, eng)
			lastRestart = l.clock.Now()
		}
	}
}

// startEngine creates and configures the engine, retrying the factory with
// backoff until it succeeds or ctx is cancelled.
func (l *Link) startEngine(ctx context.Context, cfg loopConfig, bo *backoff) (Engine, error) {
	for {
		clientID := l.opts.ClientID
		if clientID == "" {
			clientID = newClientID(l.opts.ClientIDPrefix, l.clock.Now())
		}

		eng, err := l.newEngine(clientID, l.opts.CleanSession)
		if err == nil {
			bo.Reset()
			l.configureEngine(eng, cfg)

			l.engineMu.Lock()
			l.engine = eng
			l.clientID = clientID
			l.engineMu.Unlock()

			l.log().Info("engine created", "client_id", clientID, "clean_session", l.opts.CleanSession)
			return eng, nil
		}

		l.log().Error("failed to create engine", "error", err)
		if sleepErr := l.clock.Sleep(ctx, bo.Next()); sleepErr != nil {
			return nil, fmt.Errorf("creating engine: %w", sleepErr)
		}
	}
}

// configureEngine applies will, TLS, credentials and callbacks in that
// order. Failures are logged; the connect attempt still goes ahead.
func (l *Link) configureEngine(eng Engine, cfg loopConfig) {
	if cfg.will != nil {
		eng.SetWill(*cfg.will)
	}
	if cfg.tls != nil && !cfg.tls.empty() {
		if err := eng.SetTLS(*cfg.tls); err != nil {
			l.log().Error("failed to apply tls settings", "error", err)
		}
	}
	eng.SetCredentials(cfg.params.username, cfg.params.password)
	eng.SetConnectHandler(l.handleConnectResult)
	eng.SetMessageHandler(l.dispatch)
}

// handleConnectResult is the engine's connect callback. It runs on the
// control loop goroutine.
func (l *Link) handleConnectResult(err error) {
	if err != nil {
		l.setState(Disconnected)
		l.log().Warn("broker connection could not be established", "error", err)
		l.emit(Event{Kind: EventConnectFailed, Err: err})
		return
	}

	l.setState(Connected)
	// Subscriptions must be re-established on every new session.
	l.registry.markDirty()
	l.log().Info("connection to broker established")
	l.emit(Event{Kind: EventConnected})
}

// dispatch is the engine's message callback. It runs on the control loop
// goroutine. The registry lock is only held for the lookup.
func (l *Link) dispatch(topic string, payload []byte) {
	handler, ok := l.registry.Find(topic)
	if !ok {
		l.log().Debug("no subscription for topic, message dropped", "topic", topic)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.log().Error("message handler panic recovered", "topic", topic, "panic", r)
		}
	}()

	handler.HandleMessage(payload, topic)
}
