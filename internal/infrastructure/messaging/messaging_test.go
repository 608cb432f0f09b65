package messaging

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progression-ledger/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func quizEvent(owner string) shared.Event {
	return shared.NewQuizCompletedEvent(owner, "quiz-1", 10, 10, 150, 230, t0)
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY BUS
// ══════════════════════════════════════════════════════════════════════════════

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventQuizCompleted, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(quizEvent("alice")))
	require.NoError(t, bus.Publish(shared.NewStreakUpdatedEvent("alice", 2, t0)))

	assert.Equal(t, []shared.EventType{shared.EventQuizCompleted}, typed)
	assert.Equal(t, []shared.EventType{shared.EventQuizCompleted, shared.EventStreakUpdated}, all)
}

func TestInMemoryEventBus_HandlerErrors(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	boom := errors.New("boom")
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return boom }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))

	err := bus.Publish(quizEvent("alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrHandlerPanic)

	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		calls.Add(1)
		return nil
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(quizEvent("alice")))
	}

	bus.Drain()
	assert.Equal(t, int32(5), calls.Load())

	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(quizEvent("alice")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestInMemoryEventBus_CloseFlushesQueue(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})

	release := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		<-release
		calls.Add(1)
		return nil
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.Publish(quizEvent("alice")))
	}

	close(release)
	require.NoError(t, bus.Close())
	assert.Equal(t, int32(3), calls.Load())
	assert.NoError(t, bus.Close(), "second close is a no-op")
}

func TestInMemoryEventBus_CloseReleasesRepublishingHandler(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 1})

	// The only worker is busy in this handler, so its publishes fill the
	// queue and then wait for room.
	republished := make(chan error, 1)
	require.NoError(t, bus.Subscribe(shared.EventQuizCompleted, func(shared.Event) error {
		var err error
		for i := 0; i < 64 && err == nil; i++ {
			err = bus.Publish(shared.NewStreakUpdatedEvent("alice", 1, t0))
		}
		republished <- err
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakUpdated, func(shared.Event) error { return nil }))
	require.NoError(t, bus.Publish(quizEvent("alice")))

	closed := make(chan error, 1)
	go func() { closed <- bus.Close() }()
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("close blocked behind a publishing handler")
	}
	assert.ErrorIs(t, <-republished, ErrEventBusClosed)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

func newTestDispatcher(t *testing.T) (*InMemoryEventBus, *Dispatcher) {
	t.Helper()
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	t.Cleanup(func() { _ = bus.Close() })

	cfg := DefaultDispatcherConfig(bus)
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	cfg.DeadLetterQueueSize = 2
	d := NewDispatcher(cfg)
	t.Cleanup(d.Stop)
	return bus, d
}

func TestDispatcher_RetriesUntilSuccess(t *testing.T) {
	bus, d := newTestDispatcher(t)

	calls := 0
	require.NoError(t, d.Subscribe(shared.EventQuizCompleted, func(shared.Event) error {
		calls++
		if calls < 3 {
			return errors.New("redis hiccup")
		}
		return nil
	}))

	require.NoError(t, bus.Publish(quizEvent("alice")))
	assert.Equal(t, 3, calls)
	assert.Equal(t, DispatcherMetricsSnapshot{Dispatched: 1, Retries: 2}, d.Metrics())
	assert.Zero(t, d.DeadLetterQueue().Size())
}

func TestDispatcher_DeadLetters(t *testing.T) {
	bus, d := newTestDispatcher(t)

	down := errors.New("redis down")
	require.NoError(t, d.SubscribeAll(func(shared.Event) error { return down }))

	for _, owner := range []string{"alice", "bob", "carol"} {
		err := bus.Publish(quizEvent(owner))
		require.Error(t, err)
		assert.ErrorIs(t, err, down)
	}

	dlq := d.DeadLetterQueue()
	require.Equal(t, 2, dlq.Size(), "oldest entry dropped at capacity")
	entry, ok := dlq.Pop()
	require.True(t, ok)
	assert.Equal(t, "bob", entry.Event.AggregateID())
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, "*", entry.Handler)

	m := d.Metrics()
	assert.Equal(t, int64(3), m.Dispatched)
	assert.Equal(t, int64(3), m.Failures)
	assert.Equal(t, int64(6), m.Retries)
}

func TestDispatcher_PanicIsNotRetried(t *testing.T) {
	bus, d := newTestDispatcher(t)

	calls := 0
	require.NoError(t, d.Subscribe(shared.EventQuizCompleted, func(shared.Event) error {
		calls++
		panic("nil map")
	}))

	err := bus.Publish(quizEvent("alice"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Equal(t, 1, calls)
}

func TestDispatcher_NilHandler(t *testing.T) {
	_, d := newTestDispatcher(t)
	assert.Error(t, d.Subscribe(shared.EventQuizCompleted, nil))
	assert.Error(t, d.SubscribeAll(nil))
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS BUS
// ══════════════════════════════════════════════════════════════════════════════

func TestRemoteEvent_Decode(t *testing.T) {
	ev := quizEvent("alice")
	env, err := shared.NewEventEnvelope("evt-1", ev)
	require.NoError(t, err)

	remote, err := NewRemoteEvent(env)
	require.NoError(t, err)
	assert.Equal(t, shared.EventQuizCompleted, remote.EventType())
	assert.Equal(t, "alice", remote.AggregateID())

	xp, ok := remote.Uint64("new_xp")
	require.True(t, ok)
	assert.Equal(t, uint64(230), xp)
	quiz, ok := remote.Text("quiz_id")
	require.True(t, ok)
	assert.Equal(t, "quiz-1", quiz)

	_, ok = remote.Uint64("missing")
	assert.False(t, ok)
}

func TestRedisEventBus_Relay(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	channel := "test:events:" + t.Name()
	newBus := func(id string) *RedisEventBus {
		b, err := NewRedisEventBus(ctx, RedisEventBusConfig{Client: client, ChannelName: channel, InstanceID: id})
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		return b
	}
	a, b := newBus("a"), newBus("b")

	local := make(chan shared.Event, 4)
	remote := make(chan shared.Event, 4)
	require.NoError(t, a.SubscribeAll(func(e shared.Event) error { local <- e; return nil }))
	require.NoError(t, b.SubscribeAll(func(e shared.Event) error { remote <- e; return nil }))

	require.NoError(t, a.Publish(quizEvent("alice")))

	select {
	case e := <-remote:
		assert.Equal(t, "alice", e.AggregateID())
		assert.IsType(t, &RemoteEvent{}, e)
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}
	require.Len(t, local, 1, "publisher handles its own event once")
}
