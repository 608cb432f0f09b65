// Package messaging carries ledger events from the command handlers to the
// read-side projections: an in-process bus, a Redis Pub/Sub relay between
// instances, and a retrying dispatcher in front of either.
package messaging

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures an InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode hands events to a worker pool instead of running handlers
	// on the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize is the number of async workers. Defaults to 4.
	WorkerPoolSize int

	Logger *logger.Logger
}

// InMemoryEventBus delivers events to handlers in the same process.
//
// In sync mode Publish runs every matching handler before returning and
// joins their errors. In async mode Publish enqueues and returns once the
// queue has room; handler errors are only logged. Handlers may publish. A
// publisher waiting on a full queue is released by Close with
// ErrEventBusClosed.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	typed    map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	closed   bool

	async   bool
	queue   chan delivery
	done    chan struct{}
	sending sync.WaitGroup
	pending sync.WaitGroup
	workers sync.WaitGroup

	log *logger.Logger
}

type delivery struct {
	event   shared.Event
	handler shared.EventHandler
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 4
	}

	b := &InMemoryEventBus{
		typed: make(map[shared.EventType][]shared.EventHandler),
		async: config.AsyncMode,
		log:   config.Logger.With(logger.Component("eventbus")),
	}
	if b.async {
		b.queue = make(chan delivery, config.WorkerPoolSize*32)
		b.done = make(chan struct{})
		for i := 0; i < config.WorkerPoolSize; i++ {
			b.workers.Add(1)
			go b.work()
		}
	}
	return b
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.register(func() {
		b.typed[eventType] = append(b.typed[eventType], handler)
	}, handler)
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.register(func() {
		b.wildcard = append(b.wildcard, handler)
	}, handler)
}

func (b *InMemoryEventBus) register(add func(), handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	add()
	return nil
}

// Publish delivers event to the handlers subscribed to its type, then to the
// wildcard handlers, in registration order.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.typed[event.EventType()]
	handlers := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	handlers = append(append(handlers, typed...), b.wildcard...)

	if b.async {
		// Close waits for in-flight senders before closing the queue.
		b.sending.Add(1)
		b.mu.RUnlock()
		return b.enqueue(event, handlers)
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.run(event, h); err != nil {
			b.log.Error("handler failed", logger.EventType(string(event.EventType())), logger.Owner(event.AggregateID()), logger.Err(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryEventBus) enqueue(event shared.Event, handlers []shared.EventHandler) error {
	defer b.sending.Done()
	for i, h := range handlers {
		b.pending.Add(1)
		select {
		case b.queue <- delivery{event: event, handler: h}:
		case <-b.done:
			b.pending.Done()
			b.log.Warn("event dropped on close",
				logger.EventType(string(event.EventType())), logger.Int("handlers", len(handlers)-i))
			return ErrEventBusClosed
		}
	}
	return nil
}

func (b *InMemoryEventBus) work() {
	defer b.workers.Done()
	for d := range b.queue {
		if err := b.run(d.event, d.handler); err != nil {
			b.log.Error("async handler failed", logger.EventType(string(d.event.EventType())), logger.Owner(d.event.AggregateID()), logger.Err(err))
		}
		b.pending.Done()
	}
}

func (b *InMemoryEventBus) run(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic", logger.Any("panic", r), logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Drain blocks until every queued async delivery has run.
func (b *InMemoryEventBus) Drain() {
	b.pending.Wait()
}

// Close stops accepting events and waits for queued deliveries to finish.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.async {
		close(b.done)
		b.sending.Wait()
		close(b.queue)
	}

	b.workers.Wait()
	b.log.Debug("event bus closed")
	return nil
}
