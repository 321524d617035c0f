// Package events fans board events out to asynchronous subscribers
// (automations, webhooks, live updates) without blocking the mutation
// that produced them.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavle/tavle/internal/model"
)

var tracer = otel.Tracer("tavle/events")

// Handler consumes one event. Handlers run on bus workers; a slow
// handler delays other events on the same worker but never the
// publisher.
type Handler interface {
	Name() string
	HandleEvent(ctx context.Context, ev model.Event)
}

// Bus is a bounded in-process event queue with a fixed worker pool.
// Publishing never blocks: when the queue is full the event is dropped
// and counted, favoring request latency over delivery of side effects.
type Bus struct {
	ch       chan model.Event
	handlers []Handler
	workers  int
	timeout  time.Duration
	logger   *slog.Logger

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu      sync.Mutex
	dropped int64
}

// New creates a bus with the given queue depth and worker count.
func New(buffer, workers int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	if workers <= 0 {
		workers = 4
	}
	return &Bus{
		ch:      make(chan model.Event, buffer),
		workers: workers,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// Subscribe registers a handler. Must be called before Start.
func (b *Bus) Subscribe(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Start launches the worker pool.
func (b *Bus) Start() {
	b.startOnce.Do(func() {
		for i := 0; i < b.workers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
	})
}

// Publish enqueues an event. It returns false when the queue is full
// and the event was dropped.
func (b *Bus) Publish(ctx context.Context, ev model.Event) bool {
	select {
	case b.ch <- ev:
		return true
	default:
		b.mu.Lock()
		b.dropped++
		n := b.dropped
		b.mu.Unlock()
		b.logger.Warn("event queue full, dropping event",
			"event", ev.Type, "org_id", ev.OrgID, "dropped_total", n)
		return false
	}
}

// Dropped reports how many events were discarded since startup.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close stops accepting events, drains the queue, and waits for the
// workers to finish.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.ch)
	})
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for ev := range b.ch {
		b.dispatch(ev)
	}
}

func (b *Bus) dispatch(ev model.Event) {
	for _, h := range b.handlers {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		ctx, span := tracer.Start(ctx, "events.dispatch",
			trace.WithAttributes(
				attribute.String("tavle.event", string(ev.Type)),
				attribute.String("tavle.handler", h.Name()),
				attribute.String("tavle.org_id", ev.OrgID),
			),
		)
		b.safeHandle(ctx, h, ev)
		span.End()
		cancel()
	}
}

// safeHandle isolates handler panics so one bad subscriber cannot take
// a worker down.
func (b *Bus) safeHandle(ctx context.Context, h Handler, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"handler", h.Name(), "event", ev.Type, "panic", r)
		}
	}()
	h.HandleEvent(ctx, ev)
}
