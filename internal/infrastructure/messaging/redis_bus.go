package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
	"github.com/alem-hub/progression-ledger/pkg/logger"
)

// DefaultChannel is the Pub/Sub channel shared by every ledger instance.
const DefaultChannel = "progression-ledger:events"

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisEventBus is a Redis Pub/Sub based implementation of EventBus.
// Events published here are handled locally and relayed to every other
// instance listening on the same channel.
type RedisEventBus struct {
	client      *redis.Client
	pubsub      *redis.PubSub
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	timeout     time.Duration
	log         *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	// Client is the Redis client to use
	Client *redis.Client

	// ChannelName defaults to DefaultChannel
	ChannelName string

	// InstanceID identifies this process so it can skip its own messages
	InstanceID string

	// LocalBusConfig is the config for the local in-memory bus
	LocalBusConfig InMemoryEventBusConfig

	// PublishTimeout bounds a single PUBLISH round trip
	PublishTimeout time.Duration

	Logger *logger.Logger
}

// NewRedisEventBus subscribes to the channel and starts relaying.
func NewRedisEventBus(ctx context.Context, config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	pubsub := config.Client.Subscribe(ctx, config.ChannelName)
	// Receive blocks until the subscription is confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:      config.Client,
		pubsub:      pubsub,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		timeout:     config.PublishTimeout,
		log: config.Logger.With(
			logger.Component("redis_eventbus"),
			logger.String("instance_id", config.InstanceID),
		),
		ctx:    loopCtx,
		cancel: cancel,
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(pubsub.Channel())
	}()

	return bus, nil
}

var _ shared.EventBus = (*RedisEventBus)(nil)

// InstanceID returns the identifier stamped on outgoing messages.
func (b *RedisEventBus) InstanceID() string {
	return b.instanceID
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends an event to Redis Pub/Sub and local handlers.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	b.mu.RUnlock()

	envelope, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(wireMessage{InstanceID: b.instanceID, Event: envelope})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if err := b.client.Publish(ctx, b.channelName, data).Err(); err != nil {
		// Local handlers still run
		b.log.Error("failed to publish to redis", logger.EventType(string(event.EventType())), logger.Err(err))
	}

	return b.localBus.Publish(event)
}

// subscriptionLoop processes messages from Redis.
func (b *RedisEventBus) subscriptionLoop(messages <-chan *redis.Message) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handleRedisMessage(msg.Payload)
		}
	}
}

// handleRedisMessage decodes one message and hands it to local handlers.
func (b *RedisEventBus) handleRedisMessage(payload string) {
	var wire wireMessage
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		b.log.Error("failed to unmarshal event", logger.Err(err))
		return
	}

	// Skip events from self (already processed locally)
	if wire.InstanceID == b.instanceID {
		return
	}

	event, err := NewRemoteEvent(wire.Event)
	if err != nil {
		b.log.Error("failed to decode remote event", logger.EventType(string(wire.Event.Type)), logger.Err(err))
		return
	}

	if err := b.localBus.Publish(event); err != nil {
		b.log.Error("failed to process remote event", logger.EventType(string(event.EventType())), logger.Err(err))
	}
}

// Close gracefully shuts down the Redis event bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	err := b.pubsub.Close()
	b.wg.Wait()

	if cerr := b.localBus.Close(); cerr != nil {
		b.log.Error("failed to close local bus", logger.Err(cerr))
	}

	b.log.Info("redis event bus closed")
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type wireMessage struct {
	InstanceID string               `json:"instance_id"`
	Event      shared.EventEnvelope `json:"event"`
}

// RemoteEvent is an event received from another instance. Only the envelope
// survives the trip, so fields are read from the payload.
type RemoteEvent struct {
	envelope shared.EventEnvelope
	payload  map[string]interface{}
}

// NewRemoteEvent decodes an envelope's payload. Numbers are kept as
// json.Number so uint64 counters round-trip exactly.
func NewRemoteEvent(env shared.EventEnvelope) (*RemoteEvent, error) {
	payload := make(map[string]interface{})
	if len(env.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(env.Payload))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, err
		}
	}
	return &RemoteEvent{envelope: env, payload: payload}, nil
}

// EventType implements shared.Event.
func (e *RemoteEvent) EventType() shared.EventType { return e.envelope.Type }

// OccurredAt implements shared.Event.
func (e *RemoteEvent) OccurredAt() time.Time { return e.envelope.Timestamp }

// AggregateID implements shared.Event.
func (e *RemoteEvent) AggregateID() string { return e.envelope.AggregateID }

// Payload implements shared.Event.
func (e *RemoteEvent) Payload() map[string]interface{} { return e.payload }

// CorrelationID returns the correlation ID carried by the envelope.
func (e *RemoteEvent) CorrelationID() string { return e.envelope.CorrelationID }

// Text returns a payload field as a string.
func (e *RemoteEvent) Text(key string) (string, bool) {
	s, ok := e.payload[key].(string)
	return s, ok
}

// Uint64 returns a payload field as an unsigned counter.
func (e *RemoteEvent) Uint64(key string) (uint64, bool) {
	n, ok := e.payload[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
