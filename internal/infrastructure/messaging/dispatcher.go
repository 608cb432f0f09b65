package messaging

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
	"github.com/alem-hub/progression-ledger/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher sits between a bus and its handlers. Each handler runs through
// the middleware chain and is retried with backoff; an event that still
// fails lands in the dead letter queue.
//
// Dispatcher implements shared.EventSubscriber, so anything that registers
// on a bus can register on a dispatcher instead.
type Dispatcher struct {
	bus         shared.EventSubscriber
	middlewares []Middleware
	retryOpts   []retry.Option
	deadLetterQ *DeadLetterQueue
	log         *logger.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc

	metrics DispatcherMetrics
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Bus is the underlying event bus
	Bus shared.EventSubscriber

	// MaxAttempts per handler, including the first call
	MaxAttempts int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries
	MaxBackoff time.Duration

	// DeadLetterQueueSize bounds the DLQ. Zero disables it.
	DeadLetterQueueSize int

	Logger *logger.Logger
}

// DefaultDispatcherConfig returns defaults suited to handlers that run in
// the request path: two quick attempts.
func DefaultDispatcherConfig(bus shared.EventSubscriber) DispatcherConfig {
	return DispatcherConfig{
		Bus:                 bus,
		MaxAttempts:         2,
		InitialBackoff:      50 * time.Millisecond,
		MaxBackoff:          time.Second,
		DeadLetterQueueSize: 1000,
	}
}

// NewDispatcher creates a new event dispatcher with recovery and logging
// middleware installed.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		bus: config.Bus,
		log: config.Logger.With(logger.Component("dispatcher")),
		retryOpts: []retry.Option{
			retry.WithMaxAttempts(config.MaxAttempts),
			retry.WithInitialDelay(config.InitialBackoff),
			retry.WithMaxDelay(config.MaxBackoff),
		},
		ctx:    ctx,
		cancel: cancel,
	}
	if config.DeadLetterQueueSize > 0 {
		d.deadLetterQ = NewDeadLetterQueue(config.DeadLetterQueueSize)
	}
	d.middlewares = []Middleware{RecoveryMiddleware(d.log), LoggingMiddleware(d.log)}
	return d
}

var _ shared.EventSubscriber = (*Dispatcher)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Subscribe registers handler for eventType on the underlying bus.
func (d *Dispatcher) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	return d.bus.Subscribe(eventType, d.wrap(string(eventType), handler))
}

// SubscribeAll registers handler for every event.
func (d *Dispatcher) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	return d.bus.SubscribeAll(d.wrap("*", handler))
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds middleware to the dispatcher. It applies to handlers subscribed
// afterwards.
func (d *Dispatcher) Use(middleware Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, middleware)
}

// RecoveryMiddleware turns a handler panic into an error.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.EventType(string(event.EventType())),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each handler attempt.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)

			fields := []logger.Field{
				logger.EventType(string(event.EventType())),
				logger.Owner(event.AggregateID()),
				logger.Latency(time.Since(start)),
			}
			if err != nil {
				log.Warn("handler attempt failed", append(fields, logger.Err(err))...)
			} else {
				log.Debug("handler completed", fields...)
			}
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

func (d *Dispatcher) wrap(name string, handler shared.EventHandler) shared.EventHandler {
	d.mu.RLock()
	chain := handler
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		chain = d.middlewares[i](chain)
	}
	d.mu.RUnlock()

	return func(event shared.Event) error {
		return d.execute(name, event, chain)
	}
}

func (d *Dispatcher) execute(name string, event shared.Event, handler shared.EventHandler) error {
	d.metrics.dispatched.Add(1)

	attempts := 0
	err := retry.Do(d.ctx, func(context.Context) error {
		attempts++
		if err := handler(event); err != nil {
			if errors.Is(err, ErrHandlerPanic) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	}, d.retryOpts...)

	if attempts > 1 {
		d.metrics.retries.Add(int64(attempts - 1))
	}
	if err == nil {
		return nil
	}

	d.metrics.failures.Add(1)
	if d.deadLetterQ != nil {
		d.deadLetterQ.Add(DeadLetterEntry{
			Event:    event,
			Handler:  name,
			Error:    err,
			Attempts: attempts,
			FailedAt: time.Now(),
		})
	}
	d.log.Error("handler gave up",
		logger.EventType(string(event.EventType())),
		logger.Owner(event.AggregateID()),
		logger.Int("attempts", attempts),
		logger.Err(err),
	)
	return fmt.Errorf("handler %s failed after %d attempts: %w", name, attempts, err)
}

// Stop aborts pending retries.
func (d *Dispatcher) Stop() {
	d.cancel()
}

// Metrics returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Metrics() DispatcherMetricsSnapshot {
	return d.metrics.snapshot()
}

// DeadLetterQueue returns the dead letter queue, or nil if disabled.
func (d *Dispatcher) DeadLetterQueue() *DeadLetterQueue {
	return d.deadLetterQ
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry represents a failed event.
type DeadLetterEntry struct {
	Event    shared.Event
	Handler  string
	Error    error
	Attempts int
	FailedAt time.Time
}

// DeadLetterQueue stores events that failed processing. The oldest entry is
// dropped when full.
type DeadLetterQueue struct {
	mu      sync.RWMutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add adds an entry to the queue.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]DeadLetterEntry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Pop removes and returns the oldest entry.
func (q *DeadLetterQueue) Pop() (DeadLetterEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return DeadLetterEntry{}, false
	}
	entry := q.entries[0]
	q.entries = q.entries[1:]
	return entry, true
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics tracks dispatcher activity.
type DispatcherMetrics struct {
	dispatched atomic.Int64
	retries    atomic.Int64
	failures   atomic.Int64
}

// DispatcherMetricsSnapshot is a point-in-time snapshot.
type DispatcherMetricsSnapshot struct {
	Dispatched int64
	Retries    int64
	Failures   int64
}

func (m *DispatcherMetrics) snapshot() DispatcherMetricsSnapshot {
	return DispatcherMetricsSnapshot{
		Dispatched: m.dispatched.Load(),
		Retries:    m.retries.Load(),
		Failures:   m.failures.Load(),
	}
}
