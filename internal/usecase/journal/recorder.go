package journal

import (
	"context"
	"sync"
	"time"

	journalv1 "github.com/muhammadchandra19/execution-engine/internal/domain/journal/v1"
	"github.com/muhammadchandra19/execution-engine/pkg/errors"
	"github.com/muhammadchandra19/execution-engine/pkg/logger"
	"github.com/oklog/ulid/v2"
)

// Recorder is the audit journal. Record appends to an in-memory ring and
// hands the event to a drain goroutine that publishes to the configured
// sinks. Record itself never blocks order flow, when the drain queue is
// full the event is still retained in the ring and counted as dropped.
type Recorder struct {
	logger logger.Interface
	sinks  []journalv1.Sink

	mu      sync.Mutex
	ring    []journalv1.Event
	head    int
	size    int
	dropped int64

	queue  chan journalv1.Event
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

var _ journalv1.Journal = (*Recorder)(nil)

// NewRecorder creates a journal with the given ring capacity and sinks.
func NewRecorder(log logger.Interface, capacity int, sinks ...journalv1.Sink) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{
		logger: log,
		sinks:  sinks,
		ring:   make([]journalv1.Event, capacity),
		queue:  make(chan journalv1.Event, capacity),
	}
}

// Start launches the drain goroutine. The drain outlives the caller's
// context on purpose, Stop bounds the flush instead.
func (r *Recorder) Start() {
	drainCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.drain(drainCtx)
	}()
}

// Stop flushes queued events and stops the drain goroutine.
func (r *Recorder) Stop(ctx context.Context) {
	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if r.cancel != nil {
			r.cancel()
		}
		<-done
	}
}

// Record stores the event in the ring and queues it for the sinks.
func (r *Recorder) Record(ctx context.Context, event journalv1.Event) {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.LocalTime.IsZero() {
		event.LocalTime = time.Now()
	}

	r.mu.Lock()
	r.ring[r.head] = event
	r.head = (r.head + 1) % len(r.ring)
	if r.size < len(r.ring) {
		r.size++
	}
	r.mu.Unlock()

	select {
	case r.queue <- event:
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()

		r.logger.Warn("journal drain queue full, event not published",
			logger.Field{Key: "event_id", Value: event.ID},
			logger.Field{Key: "kind", Value: event.Kind},
			logger.Field{Key: "dropped_total", Value: dropped},
		)
	}
}

// Recent returns up to n most recent events, newest last.
func (r *Recorder) Recent(n int) []journalv1.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	out := make([]journalv1.Event, 0, n)
	start := (r.head - n + len(r.ring)) % len(r.ring)
	for i := 0; i < n; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}

// Dropped returns how many events could not be queued for publishing.
func (r *Recorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) drain(ctx context.Context) {
	for event := range r.queue {
		for _, sink := range r.sinks {
			if err := sink.Publish(ctx, event); err != nil {
				r.logger.Error(errors.TracerFromError(err),
					logger.Field{Key: "sink", Value: sink.Name()},
					logger.Field{Key: "event_id", Value: event.ID},
				)
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
