package link

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultMaxSubscriptions bounds the registry size when Options does not.
const DefaultMaxSubscriptions = 255

// Handler receives messages for a subscribed topic.
//
// HandleMessage runs on the link's control loop goroutine. It must not block
// for long and must not call Link.Shutdown synchronously.
type Handler interface {
	HandleMessage(payload []byte, topic string)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(payload []byte, topic string)

// HandleMessage calls f(payload, topic).
func (f HandlerFunc) HandleMessage(payload []byte, topic string) {
	f(payload, topic)
}

// TopicQoS is one entry of a registry snapshot.
type TopicQoS struct {
	Topic string
	QoS   byte
}

// subscription is a registry entry.
type subscription struct {
	topic   string
	qos     byte
	handler Handler
}

// Registry is the ordered set of topic subscriptions a Link keeps in sync
// with the broker.
//
// Every mutation bumps a generation counter. The control loop reconciles
// against a snapshot and then marks that generation synced, so mutations
// made while a reconciliation pass is running are picked up by the next
// pass instead of being lost.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries []subscription
	pending []string // topics removed locally but not yet unsubscribed at the broker
	limit   int
	gen     uint64
	synced  uint64
}

// NewRegistry creates an empty registry holding at most limit entries.
// A non-positive limit selects DefaultMaxSubscriptions.
func NewRegistry(limit int) *Registry {
	if limit <= 0 {
		limit = DefaultMaxSubscriptions
	}
	return &Registry{limit: limit}
}

// Add registers handler for topic at the given QoS.
//
// Subscribing a topic that is already registered replaces its QoS and
// handler in place; the entry keeps its original position.
func (r *Registry) Add(topic string, qos byte, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrInvalidArgument)
	}
	if err := validateTopicFilter(topic); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropPendingLocked(topic)

	if i := r.indexLocked(topic); i >= 0 {
		r.entries[i].qos = qos
		r.entries[i].handler = handler
		r.gen++
		return nil
	}

	if len(r.entries) >= r.limit {
		return fmt.Errorf("%w: subscription limit of %d reached", ErrInvalidArgument, r.limit)
	}

	r.entries = append(r.entries, subscription{topic: topic, qos: qos, handler: handler})
	r.gen++
	return nil
}

// Remove deletes the subscription for topic and queues a broker unsubscribe.
// The registry is left unchanged when topic is not registered.
func (r *Registry) Remove(topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(topic)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, topic)
	}

	r.entries = slices.Delete(r.entries, i, i+1)
	r.pending = append(r.pending, topic)
	r.gen++
	return nil
}

// Find returns the handler registered for topic.
//
// An exact topic match wins; otherwise the first wildcard filter in
// insertion order that matches topic is used.
func (r *Registry) Find(topic string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.topic == topic {
			return e.handler, true
		}
	}
	for _, e := range r.entries {
		if hasWildcard(e.topic) && MatchTopic(e.topic, topic) {
			return e.handler, true
		}
	}
	return nil, false
}

// Snapshot returns the topics and QoS levels that should be subscribed,
// in insertion order.
func (r *Registry) Snapshot() []TopicQoS {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes every subscription and forgets pending unsubscribes.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.pending = nil
	r.gen++
}

// Dirty reports whether the registry changed since the last reconciliation.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen != r.synced
}

// markDirty forces the next loop pass to reconcile, e.g. after a reconnect.
func (r *Registry) markDirty() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
}

// pendingWork returns what a reconciliation pass has to do and the
// generation it corresponds to. Pending unsubscribes are handed over to
// the caller.
func (r *Registry) pendingWork() (subscribe []TopicQoS, unsubscribe []string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	unsubscribe = r.pending
	r.pending = nil
	return r.snapshotLocked(), unsubscribe, r.gen
}

// markSynced records that the broker matches generation gen.
func (r *Registry) markSynced(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen > r.synced {
		r.synced = gen
	}
}

func (r *Registry) snapshotLocked() []TopicQoS {
	out := make([]TopicQoS, len(r.entries))
	for i, e := range r.entries {
		out[i] = TopicQoS{Topic: e.topic, QoS: e.qos}
	}
	return out
}

func (r *Registry) indexLocked(topic string) int {
	for i, e := range r.entries {
		if e.topic == topic {
			return i
		}
	}
	return -1
}

func (r *Registry) dropPendingLocked(topic string) {
	kept := r.pending[:0]
	for _, t := range r.pending {
		if t != topic {
			kept = append(kept, t)
		}
	}
	r.pending = kept
}
