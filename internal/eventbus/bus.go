// Package eventbus routes plan events to subscribers through a bounded worker pool.
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType names a kind of plan event.
type EventType string

const (
	// EventTypeLevels carries a freshly evaluated set of channel levels.
	EventTypeLevels EventType = "levels"
	// EventTypePlanChanged is published after any timetable or pin edit.
	EventTypePlanChanged EventType = "plan_changed"
)

const (
	DefaultWorkerCount = 4
	DefaultQueueSize   = 100
)

// Event is one published message. Data keys are defined in events.go.
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler consumes events on a bus worker.
type Handler func(Event)

// work pairs an event with one subscriber
type work struct {
	event   Event
	handler Handler
}

// Bus fans events out to subscribers. Handlers run on a fixed number of
// workers, so a slow consumer delays others but never blocks a publisher.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler

	workQueue chan work
	wg        sync.WaitGroup

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a bus with DefaultWorkerCount workers and a DefaultQueueSize queue.
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a bus with the given pool size and queue capacity.
func NewWithConfig(workerCount, queueSize int) *Bus {
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
		closing:   make(chan struct{}),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

// worker runs handlers until the queue is closed. A panicking handler is logged and skipped.
func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe adds handler for eventType. Handlers cannot be removed.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Handlers returns how many handlers are subscribed to eventType
func (b *Bus) Handlers(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[eventType])
}

// Publish queues event for every subscriber without blocking.
// The event is dropped for a subscriber when the queue is full, and for all
// of them once Close has been called.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	select {
	case <-b.closing:
		log.Warn().Str("event_type", string(event.Type)).Msg("Event bus closing, dropping event")
		return
	default:
	}

	for _, handler := range b.handlers[event.Type] {
		select {
		case b.workQueue <- work{event: event, handler: handler}:
		default:
			log.Warn().
				Str("event_type", string(event.Type)).
				Msg("Event bus queue full, dropping event")
		}
	}
}

// Close stops accepting events and waits, up to ctx, for queued handlers to finish.
// Later calls return immediately.
func (b *Bus) Close(ctx context.Context) {
	first := false
	b.closeOnce.Do(func() {
		first = true
		close(b.closing)
	})
	if !first {
		return
	}

	// Publish holds the read lock while sending, so no send can race this close
	b.mu.Lock()
	close(b.workQueue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
