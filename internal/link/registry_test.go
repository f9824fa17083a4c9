package link

import (
	"errors"
	"fmt"
	"testing"
)

func noopHandler() Handler {
	return HandlerFunc(func([]byte, string) {})
}

// =============================================================================
// Add / Remove
// =============================================================================

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry(0)

	if err := r.Add("sensor/temperature", 1, noopHandler()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add("sensor/humidity", 0, noopHandler()); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	snap := r.Snapshot()
	want := []TopicQoS{{"sensor/temperature", 1}, {"sensor/humidity", 0}}
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() len = %d, want %d", len(snap), len(want))
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %+v, want %+v", i, snap[i], want[i])
		}
	}
}

func TestRegistryAddDuplicateReplaces(t *testing.T) {
	r := NewRegistry(0)

	var calledFirst, calledSecond bool
	_ = r.Add("a", 0, HandlerFunc(func([]byte, string) { calledFirst = true }))
	_ = r.Add("b", 0, noopHandler())
	if err := r.Add("a", 2, HandlerFunc(func([]byte, string) { calledSecond = true })); err != nil {
		t.Fatalf("Add() duplicate error = %v", err)
	}

	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	snap := r.Snapshot()
	if snap[0] != (TopicQoS{"a", 2}) {
		t.Errorf("Snapshot()[0] = %+v, want {a 2}", snap[0])
	}

	h, ok := r.Find("a")
	if !ok {
		t.Fatal("Find(a) = not found")
	}
	h.HandleMessage(nil, "a")
	if calledFirst || !calledSecond {
		t.Errorf("replaced handler not in effect: first=%v second=%v", calledFirst, calledSecond)
	}
}

func TestRegistryAddInvalid(t *testing.T) {
	r := NewRegistry(0)

	tests := []struct {
		name    string
		topic   string
		handler Handler
	}{
		{"nil handler", "a", nil},
		{"empty topic", "", noopHandler()},
		{"partial wildcard", "sensor/te+", noopHandler()},
		{"hash not last", "sensor/#/x", noopHandler()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Add(tt.topic, 0, tt.handler)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("Add() error = %v, want ErrInvalidArgument", err)
			}
		})
	}

	if r.Len() != 0 {
		t.Errorf("Len() = %d after rejected adds, want 0", r.Len())
	}
}

func TestRegistryLimit(t *testing.T) {
	r := NewRegistry(3)
	for i := range 3 {
		if err := r.Add(fmt.Sprintf("t/%d", i), 0, noopHandler()); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}

	if err := r.Add("t/overflow", 0, noopHandler()); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Add() past limit error = %v, want ErrInvalidArgument", err)
	}
	// Replacing an existing entry is still allowed at the limit.
	if err := r.Add("t/1", 1, noopHandler()); err != nil {
		t.Errorf("Add() replace at limit error = %v", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add("a", 0, noopHandler())
	_ = r.Add("b", 0, noopHandler())
	_ = r.Add("c", 0, noopHandler())

	if err := r.Remove("b"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := r.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
	if _, ok := r.Find("b"); ok {
		t.Error("Find(b) found removed topic")
	}

	snap := r.Snapshot()
	if snap[0].Topic != "a" || snap[1].Topic != "c" {
		t.Errorf("Snapshot() = %+v, want order a, c", snap)
	}
}

func TestRegistryRemoveNotFound(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add("a", 0, noopHandler())

	err := r.Remove("zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove() error = %v, want ErrNotFound", err)
	}
	if got := r.Len(); got != 1 {
		t.Errorf("Len() = %d after failed remove, want 1", got)
	}
}

// =============================================================================
// Find
// =============================================================================

func TestRegistryFindWildcard(t *testing.T) {
	r := NewRegistry(0)

	var got string
	_ = r.Add("sensor/+/temperature", 0, HandlerFunc(func([]byte, string) { got = "plus" }))
	_ = r.Add("sensor/#", 0, HandlerFunc(func([]byte, string) { got = "hash" }))
	_ = r.Add("sensor/kitchen/temperature", 0, HandlerFunc(func([]byte, string) { got = "exact" }))

	tests := []struct {
		topic string
		want  string
	}{
		{"sensor/kitchen/temperature", "exact"},
		{"sensor/hall/temperature", "plus"},
		{"sensor/hall/humidity", "hash"},
		{"sensor", "hash"},
	}
	for _, tt := range tests {
		got = ""
		h, ok := r.Find(tt.topic)
		if !ok {
			t.Errorf("Find(%q) = not found", tt.topic)
			continue
		}
		h.HandleMessage(nil, tt.topic)
		if got != tt.want {
			t.Errorf("Find(%q) routed to %q, want %q", tt.topic, got, tt.want)
		}
	}

	if _, ok := r.Find("other/topic"); ok {
		t.Error("Find(other/topic) matched, want no match")
	}
}

// =============================================================================
// Dirty tracking
// =============================================================================

func TestRegistryDirtyTracking(t *testing.T) {
	r := NewRegistry(0)
	if r.Dirty() {
		t.Error("Dirty() = true for new registry")
	}

	_ = r.Add("a", 1, noopHandler())
	if !r.Dirty() {
		t.Fatal("Dirty() = false after Add")
	}

	subs, unsubs, gen := r.pendingWork()
	if len(subs) != 1 || len(unsubs) != 0 {
		t.Fatalf("pendingWork() = %v, %v", subs, unsubs)
	}

	// A mutation between snapshot and sync must not be lost.
	_ = r.Add("b", 0, noopHandler())
	r.markSynced(gen)
	if !r.Dirty() {
		t.Error("Dirty() = false, concurrent Add was lost")
	}

	_, _, gen = r.pendingWork()
	r.markSynced(gen)
	if r.Dirty() {
		t.Error("Dirty() = true after sync")
	}

	r.markDirty()
	if !r.Dirty() {
		t.Error("Dirty() = false after markDirty")
	}
}

func TestRegistryPendingUnsubscribes(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add("a", 0, noopHandler())
	_ = r.Add("b", 0, noopHandler())
	_ = r.Remove("a")
	_ = r.Remove("b")
	// Re-adding cancels the queued unsubscribe.
	_ = r.Add("b", 0, noopHandler())

	_, unsubs, _ := r.pendingWork()
	if len(unsubs) != 1 || unsubs[0] != "a" {
		t.Errorf("pendingWork() unsubscribe = %v, want [a]", unsubs)
	}

	_, unsubs, _ = r.pendingWork()
	if len(unsubs) != 0 {
		t.Errorf("pendingWork() second call unsubscribe = %v, want empty", unsubs)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry(0)
	_ = r.Add("a", 0, noopHandler())
	_ = r.Remove("a")
	_ = r.Add("b", 0, noopHandler())

	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", r.Len())
	}
	subs, unsubs, _ := r.pendingWork()
	if len(subs) != 0 || len(unsubs) != 0 {
		t.Errorf("pendingWork() after Clear = %v, %v", subs, unsubs)
	}
}
