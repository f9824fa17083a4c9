package link

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

var errFakeNotConnected = errors.New("fake: no connection")

type fakeMessage struct {
	topic   string
	payload []byte
}

type publishCall struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// fakeEngine is an in-memory Engine. Handlers fire synchronously from
// Connect, Reconnect and Step, like a real engine honouring the contract.
type fakeEngine struct {
	mu sync.Mutex

	clientID     string
	cleanSession bool

	calls    []string
	will     *Will
	tls      *TLSConfig
	username string
	password string

	connected  bool
	connectErr error
	failSteps  int

	subscribeFailures   map[string]int
	unsubscribeFailures map[string]int
	subscribes          []TopicQoS
	unsubscribes        []string
	published           []publishCall

	onConnect func(error)
	onMessage func(string, []byte)

	inbox  chan fakeMessage
	closed bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		subscribeFailures:   make(map[string]int),
		unsubscribeFailures: make(map[string]int),
		inbox:               make(chan fakeMessage, 16),
	}
}

func (f *fakeEngine) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) SetCredentials(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetCredentials")
	f.username, f.password = username, password
}

func (f *fakeEngine) SetWill(will Will) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetWill")
	f.will = &will
}

func (f *fakeEngine) SetTLS(cfg TLSConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetTLS")
	f.tls = &cfg
	return nil
}

func (f *fakeEngine) SetConnectHandler(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetConnectHandler")
	f.onConnect = fn
}

func (f *fakeEngine) SetMessageHandler(fn func(string, []byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetMessageHandler")
	f.onMessage = fn
}

func (f *fakeEngine) Connect(_ context.Context, _ string, _ int, _ time.Duration) error {
	return f.connect("Connect")
}

func (f *fakeEngine) Reconnect(_ context.Context) error {
	return f.connect("Reconnect")
}

func (f *fakeEngine) connect(call string) error {
	f.mu.Lock()
	f.record(call)
	err := f.connectErr
	f.connected = err == nil
	cb := f.onConnect
	f.mu.Unlock()

	if cb != nil {
		cb(err)
	}
	return err
}

func (f *fakeEngine) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Disconnect")
	f.connected = false
	return nil
}

func (f *fakeEngine) Step(ctx context.Context, timeout time.Duration) error {
	f.mu.Lock()
	if f.failSteps > 0 {
		f.failSteps--
		f.connected = false
		f.mu.Unlock()
		return errFakeNotConnected
	}
	if !f.connected {
		f.mu.Unlock()
		return errFakeNotConnected
	}
	cb := f.onMessage
	f.mu.Unlock()

	wait := min(timeout, 2*time.Millisecond)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m := <-f.inbox:
		if cb != nil {
			cb(m.topic, m.payload)
		}
	case <-time.After(wait):
	}
	return nil
}

func (f *fakeEngine) Subscribe(topic string, qos byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Subscribe")
	if n := f.subscribeFailures[topic]; n > 0 {
		f.subscribeFailures[topic] = n - 1
		return errors.New("fake: subscribe refused")
	}
	f.subscribes = append(f.subscribes, TopicQoS{Topic: topic, QoS: qos})
	return nil
}

func (f *fakeEngine) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Unsubscribe")
	if n := f.unsubscribeFailures[topic]; n > 0 {
		f.unsubscribeFailures[topic] = n - 1
		return errors.New("fake: unsubscribe refused")
	}
	f.unsubscribes = append(f.unsubscribes, topic)
	return nil
}

func (f *fakeEngine) Publish(topic string, payload []byte, qos byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Publish")
	f.published = append(f.published, publishCall{topic: topic, payload: payload, qos: qos, retain: retain})
	return nil
}

func (f *fakeEngine) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Close")
	f.closed = true
}

// deliver queues an inbound message for the next Step.
func (f *fakeEngine) deliver(topic, payload string) {
	f.inbox <- fakeMessage{topic: topic, payload: []byte(payload)}
}

func (f *fakeEngine) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func (f *fakeEngine) callCount(name string) int {
	n := 0
	for _, c := range f.callLog() {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeEngine) subscribeCount(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.subscribes {
		if s.Topic == topic {
			n++
		}
	}
	return n
}

func (f *fakeEngine) unsubscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.unsubscribes, topic)
}

func (f *fakeEngine) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeEngine) setConnectErr(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *fakeEngine) setFailSteps(n int) {
	f.mu.Lock()
	f.failSteps = n
	f.mu.Unlock()
}

// fakeClock returns from Sleep immediately, recording the requested
// durations and advancing its notion of now.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	// Yield so a tight failure loop does not starve the test goroutine.
	time.Sleep(100 * time.Microsecond)
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sleeps)
}

// recordingSink collects events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) RecordEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) count(kind EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// testHarness wires a Link to fake engines and a fake clock.
type testHarness struct {
	link    *Link
	clock   *fakeClock
	sink    *recordingSink
	mu      sync.Mutex
	engines []*fakeEngine
	// prepare, if set, customises each engine before the link sees it.
	prepare func(*fakeEngine)
	// factoryErrs are returned by the first len(factoryErrs) factory calls.
	factoryErrs []error
}

func newHarness(t *testing.T, opts Options) *testHarness {
	t.Helper()

	h := &testHarness{clock: newFakeClock(), sink: &recordingSink{}}
	h.link = New(h.factory, opts)
	h.link.clock = h.clock
	h.link.SetEventSink(h.sink)

	t.Cleanup(h.link.Shutdown)
	return h
}

func (h *testHarness) factory(clientID string, cleanSession bool) (Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.factoryErrs) > 0 {
		err := h.factoryErrs[0]
		h.factoryErrs = h.factoryErrs[1:]
		return nil, err
	}

	eng := newFakeEngine()
	eng.clientID = clientID
	eng.cleanSession = cleanSession
	if h.prepare != nil {
		h.prepare(eng)
	}
	h.engines = append(h.engines, eng)
	return eng, nil
}

func (h *testHarness) engineCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.engines)
}

// engine waits for the n-th engine (0-based) to be created.
func (h *testHarness) engine(t *testing.T, n int) *fakeEngine {
	t.Helper()
	waitFor(t, "engine creation", func() bool { return h.engineCount() > n })
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.engines[n]
}

// connect starts the link and waits for the first connect to succeed.
func (h *testHarness) connect(t *testing.T) *fakeEngine {
	t.Helper()
	if err := h.link.Connect("127.0.0.1", 1883, "user", "secret"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	eng := h.engine(t, 0)
	waitFor(t, "connected state", func() bool { return h.link.State() == Connected })
	return eng
}

// waitFor polls cond until it holds or a deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
