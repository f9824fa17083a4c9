package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mqttlink/internal/link"
)

// Sink defaults.
const (
	defaultBufferSize    = 256
	defaultWriteTimeout  = 5 * time.Second
	defaultPruneInterval = time.Hour
)

// Logger is the logging interface used by the sink.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SinkOptions configures a Sink. Zero values select defaults.
type SinkOptions struct {
	// BufferSize is how many events may wait for the writer before new
	// ones are dropped.
	BufferSize int

	// Retention deletes entries older than this. Zero keeps everything.
	Retention time.Duration

	// PruneInterval is how often retention is enforced.
	PruneInterval time.Duration

	// WriteTimeout bounds each insert.
	WriteTimeout time.Duration

	Logger Logger
}

// Sink is a link.EventSink that writes events to a Repository from its own
// goroutine, so RecordEvent never blocks the control loop.
type Sink struct {
	repo Repository
	opts SinkOptions

	mu     sync.RWMutex
	closed bool
	events chan link.Event

	written atomic.Uint64
	dropped atomic.Uint64

	done chan struct{}
}

// NewSink starts the writer goroutine. Close must be called to stop it.
func NewSink(repo Repository, opts SinkOptions) *Sink {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = defaultPruneInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Sink{
		repo:   repo,
		opts:   opts,
		events: make(chan link.Event, opts.BufferSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// RecordEvent queues ev for writing. When the buffer is full or the sink is
// closed the event is counted as dropped.
func (s *Sink) RecordEvent(ev link.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Close stops accepting events, writes whatever is buffered and waits for
// the writer to exit. It is safe to call more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	<-s.done
	return nil
}

// Written returns how many events reached the repository.
func (s *Sink) Written() uint64 {
	return s.written.Load()
}

// Dropped returns how many events were discarded.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Sink) run() {
	defer close(s.done)

	var prune <-chan time.Time
	if s.opts.Retention > 0 {
		s.prune()
		ticker := time.NewTicker(s.opts.PruneInterval)
		defer ticker.Stop()
		prune = ticker.C
	}

	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.write(ev)
		case <-prune:
			s.prune()
		}
	}
}

func (s *Sink) write(ev link.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	entry := EntryFromEvent(ev)
	if err := s.repo.Create(ctx, &entry); err != nil {
		s.opts.Logger.Error("journal write failed", "kind", entry.Kind, "error", err)
		return
	}
	s.written.Add(1)
}

func (s *Sink) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()

	n, err := s.repo.Prune(ctx, time.Now().Add(-s.opts.Retention))
	if err != nil {
		s.opts.Logger.Warn("journal prune failed", "error", err)
		return
	}
	if n > 0 {
		s.opts.Logger.Info("journal entries pruned", "count", n, "retention", s.opts.Retention)
	}
}
