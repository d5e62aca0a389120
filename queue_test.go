package pushqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTestConfig() Config {
	return Config{TTL: time.Hour, RetryCount: 1, RetryDelay: time.Millisecond}
}

type collector struct {
	mu       sync.Mutex
	payloads []string
}

func (c *collector) add(p string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.payloads))
	copy(out, c.payloads)
	return out
}

func TestNewQueueRejectsInvalidConfig(t *testing.T) {
	cfg := fastTestConfig()
	cfg.RetryCount = 0
	_, err := NewQueue(cfg)
	assert.ErrorIs(t, err, ErrInvalidRetryCount)
}

func TestSubscribeRejectsNilHandler(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	_, err = q.Subscribe(Subscriber{})
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestEnqueueDeliversInOrder(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	got := &collector{}
	_, err = q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			got.add(env.Payload)
			return Ack, nil
		},
	})
	require.NoError(t, err)

	q.Enqueue("one")
	q.Enqueue("two")
	q.Enqueue("three")

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"one", "two", "three"}, got.snapshot())
}

func TestEachSubscriberHasIndependentProgress(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	fast := &collector{}
	_, err = q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			fast.add(env.Payload)
			return Ack, nil
		},
	})
	require.NoError(t, err)

	var releaseSlow sync.WaitGroup
	releaseSlow.Add(1)
	slow := &collector{}
	_, err = q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			releaseSlow.Wait()
			slow.add(env.Payload)
			return Ack, nil
		},
	})
	require.NoError(t, err)

	q.Enqueue("msg")

	require.Eventually(t, func() bool {
		return len(fast.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, slow.snapshot(), "a blocked subscriber must not affect another subscriber's progress")

	releaseSlow.Done()
	require.Eventually(t, func() bool {
		return len(slow.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	got := &collector{}
	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			got.add(env.Payload)
			return Ack, nil
		},
	})
	require.NoError(t, err)

	q.Enqueue("before")
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	q.Unsubscribe(id)
	q.Enqueue("after")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"before"}, got.snapshot())
}

func TestUnsubscribeUnknownIDIsNoop(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	assert.NotPanics(t, func() { q.Unsubscribe("does-not-exist") })
}

func TestChangeMessagePayloadMutatesUndeliveredEnvelope(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	id := q.Enqueue("original")
	q.ChangeMessagePayload(id, "edited")

	state := q.GetState()
	require.Len(t, state.Buffer, 1)
	assert.Equal(t, "edited", state.Buffer[0].Payload)
	assert.Equal(t, id, state.Buffer[0].ID)
}

func TestChangeMessagePayloadUnknownIDIsNoop(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	assert.NotPanics(t, func() { q.ChangeMessagePayload("missing", "x") })
}

func TestGetStateReportsSubscriberCursorsAndDLQ(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) {
			return Nack, nil
		},
		OnMessageFailedHandler: func(context.Context, Envelope, string, error) FailureBehavior {
			return FailureAddToDLQ
		},
	})
	require.NoError(t, err)

	q.Enqueue("poison")

	require.Eventually(t, func() bool {
		state := q.GetState()
		for _, c := range state.Cursors {
			if c.SubscriberID == id && len(c.DLQ) == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReplayFromDlqRedeliversAndClearsDLQ(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	var shouldFail atomicBool
	shouldFail.set(true)
	got := &collector{}

	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			if shouldFail.get() {
				return Nack, nil
			}
			got.add(env.Payload)
			return Ack, nil
		},
		OnMessageFailedHandler: func(context.Context, Envelope, string, error) FailureBehavior {
			return FailureAddToDLQ
		},
	})
	require.NoError(t, err)

	msgID := q.Enqueue("retry-me")

	require.Eventually(t, func() bool {
		for _, c := range q.GetState().Cursors {
			if c.SubscriberID == id && len(c.DLQ) == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	shouldFail.set(false)
	q.ReplayFromDlq(id, msgID)

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	for _, c := range q.GetState().Cursors {
		if c.SubscriberID == id {
			assert.Empty(t, c.DLQ)
		}
	}
}

func TestReplayAllDlqSubscribersRedeliversEveryEntry(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	var shouldFail atomicBool
	shouldFail.set(true)
	got := &collector{}

	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			if shouldFail.get() {
				return Nack, nil
			}
			got.add(env.Payload)
			return Ack, nil
		},
		OnMessageFailedHandler: func(context.Context, Envelope, string, error) FailureBehavior {
			return FailureAddToDLQ
		},
	})
	require.NoError(t, err)

	q.Enqueue("a")
	q.Enqueue("b")

	require.Eventually(t, func() bool {
		for _, c := range q.GetState().Cursors {
			if c.SubscriberID == id && len(c.DLQ) == 2 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	shouldFail.set(false)
	q.ReplayAllDlqSubscribers()

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReplayFromDlqIsSingleAttemptAndKeepsEntryOnFailure(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	var receiveCalls, failCalls atomicCounter

	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) {
			receiveCalls.inc()
			return Nack, nil // never succeeds, in normal dispatch or replay
		},
		OnMessageFailedHandler: func(context.Context, Envelope, string, error) FailureBehavior {
			n := failCalls.inc()
			if n == 1 {
				return FailureAddToDLQ // first time through: quarantine it
			}
			return FailureCommit // replay's failure surface: must NOT clear the DLQ entry
		},
	})
	require.NoError(t, err)

	msgID := q.Enqueue("poison")

	require.Eventually(t, func() bool {
		for _, c := range q.GetState().Cursors {
			if c.SubscriberID == id && len(c.DLQ) == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	callsBeforeReplay := receiveCalls.get()
	q.ReplayFromDlq(id, msgID)

	require.Eventually(t, func() bool {
		return receiveCalls.get() == callsBeforeReplay+1
	}, 2*time.Second, 5*time.Millisecond)

	// give a would-be (incorrect) extra retry loop a chance to run so this
	// test can actually catch it
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, callsBeforeReplay+1, receiveCalls.get(), "replay must call OnMessageReceive exactly once more, not the full retry loop")

	for _, c := range q.GetState().Cursors {
		if c.SubscriberID == id {
			assert.Len(t, c.DLQ, 1, "a replay that still fails must leave the entry in the DLQ")
		}
	}
}

func TestReplayFromRewindsCursorForRedelivery(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	got := &collector{}
	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(_ context.Context, env Envelope, _ string) (DeliveryResult, error) {
			got.add(env.Payload)
			return Ack, nil
		},
	})
	require.NoError(t, err)

	msgID := q.Enqueue("replay-target")
	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	q.ReplayFrom(id, msgID)

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"replay-target", "replay-target"}, got.snapshot())
}

func TestReplayFromNoopWhenSubscriberNotCaughtUp(t *testing.T) {
	q := newTestQueue(fastTestConfig())
	q.store = newStore()
	q.subscribers = make(map[string]*cursor)

	target := q.store.append("target")
	q.store.append("behind-1")
	q.store.append("behind-2")

	c := newCursor("sub", Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) { return Ack, nil },
	}, context.Background())
	c.index = 0
	c.committed = true
	q.subscribers[c.id] = c

	q.ReplayFrom(c.id, target.ID)

	assert.Equal(t, 0, c.index, "rewind must be refused when index+1 < store size")
	assert.True(t, c.committed)
}

func TestReplayFromNoopWhenSubscriberMidDelivery(t *testing.T) {
	q := newTestQueue(fastTestConfig())
	q.store = newStore()
	q.subscribers = make(map[string]*cursor)

	target := q.store.append("target")

	c := newCursor("sub", Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) { return Ack, nil },
	}, context.Background())
	c.index = 1
	c.committed = false // mid-delivery
	q.subscribers[c.id] = c

	q.ReplayFrom(c.id, target.ID)

	assert.Equal(t, 1, c.index, "rewind must be refused while the subscriber is not committed")
	assert.False(t, c.committed)
}

func TestReplayFromUnknownMessageIsNoop(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)
	defer q.Dispose()

	id, err := q.Subscribe(Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) { return Ack, nil },
	})
	require.NoError(t, err)

	assert.NotPanics(t, func() { q.ReplayFrom(id, "missing") })
}

func TestDisposeIsIdempotentAndStopsAllSubscribers(t *testing.T) {
	q, err := NewQueue(fastTestConfig())
	require.NoError(t, err)

	_, err = q.Subscribe(Subscriber{
		OnMessageReceive: func(context.Context, Envelope, string) (DeliveryResult, error) { return Ack, nil },
	})
	require.NoError(t, err)

	q.Dispose()
	assert.NotPanics(t, func() { q.Dispose() })
}

// atomicBool is a tiny test helper; the package itself has no need for one.
type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (a *atomicBool) set(v bool) {
	a.mu.Lock()
	a.v = v
	a.mu.Unlock()
}

func (a *atomicBool) get() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.v
}

// atomicCounter is a tiny test helper; the package itself has no need for one.
type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (a *atomicCounter) inc() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return a.n
}

func (a *atomicCounter) get() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
