// Package pushqueue implements an in-process, push-based, multi-subscriber
// message bus: producers append opaque string payloads to a shared,
// time-bounded buffer; each subscriber maintains an independent cursor and
// receives every message in enqueue order, with automatic retry,
// per-subscriber dead-letter quarantine, payload editing, and replay.
//
// # Core model
//
// A Queue owns a single append-only, TTL-pruned store and a registry of
// subscriber cursors. Enqueue appends to the store's tail. Each Subscribe
// call starts a dedicated goroutine that reads forward from its own
// cursor, delivers through a bounded-retry policy engine, and either
// commits (advances past the envelope) or quarantines it into a private
// dead-letter queue depending on the subscriber's failure policy.
//
// # Usage
//
//	q, err := pushqueue.NewQueue(pushqueue.NewConfig())
//	id, err := q.Subscribe(pushqueue.Subscriber{
//	    OnMessageReceive: func(ctx context.Context, env pushqueue.Envelope, subscriberID string) (pushqueue.DeliveryResult, error) {
//	        return pushqueue.Ack, nil
//	    },
//	})
//	q.Enqueue("hello")
//	q.Dispose()
//
// This package covers only the dispatch/state-management core described
// above; an HTTP/RPC façade, diagnostic DTO mapping, UI dashboard,
// launcher, configuration loading, and structured logging backend are
// treated as external collaborators a caller wires in around it (see
// DESIGN.md).
package pushqueue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// Queue is the façade composing the store, pruner, cursors, and policy
// engine (spec.md §4.8). It is safe for concurrent use by multiple
// producer and subscriber goroutines.
//
// Grounded on EventBusModule in the teacher's modules/eventbus/module.go:
// a constructor that validates config and wires a background component,
// Publish/Subscribe/Unsubscribe each emitting a non-blocking lifecycle
// event, and an idempotent Stop.
type Queue struct {
	config Config

	dataMu sync.Mutex // guards store + every cursor's index/committed
	store  *store

	subMu       sync.RWMutex // guards the subscribers map itself
	subscribers map[string]*cursor

	rootCtx    context.Context
	rootCancel context.CancelFunc
	prunerDone chan struct{}

	disposeOnce sync.Once

	observer ObserverFunc
	logger   Logger
	metrics  *Metrics
}

// Option configures optional ambient collaborators on a Queue:
// WithObserver for lifecycle CloudEvents, WithLogger for structured
// logging, WithMetricsRegistry for Prometheus registration (SPEC_FULL.md
// §2 items 8-10).
type Option func(*Queue)

// WithObserver wires a lifecycle observer (spec.md §9's reserved
// DLQ-sweeper hook's sibling: generic lifecycle events here, not handler
// calls). A nil fn disables emission, which is also the default.
func WithObserver(fn ObserverFunc) Option {
	return func(q *Queue) { q.observer = fn }
}

// WithLogger replaces the default no-op logger. Use NewZapLogger to adapt
// an existing *zap.SugaredLogger, or pass nil to get a zap production
// default.
func WithLogger(l Logger) Option {
	return func(q *Queue) {
		if l == nil {
			l = defaultZapLogger()
		}
		q.logger = l
	}
}

// WithMetricsRegistry registers the Queue's Prometheus collectors against
// registry. Without this option, metrics are tracked in memory but never
// exposed.
func WithMetricsRegistry(registry *prometheus.Registry) Option {
	return func(q *Queue) { q.metrics = NewMetrics(registry) }
}

// NewQueue constructs a Queue and immediately starts its TTL pruner
// (spec.md §4.2: "started at queue construction"). Construction fails only
// if config fails Validate() (spec.md §4.8: "Construction fails if the
// configuration object is absent" — generalized here to "or invalid", per
// §6's validator).
func NewQueue(config Config, opts ...Option) (*Queue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config:      config,
		store:       newStore(),
		subscribers: make(map[string]*cursor),
		rootCtx:     rootCtx,
		rootCancel:  cancel,
		prunerDone:  make(chan struct{}),
		logger:      noopLogger{},
		metrics:     NewMetrics(nil),
	}

	for _, opt := range opts {
		opt(q)
	}

	go func() {
		defer close(q.prunerDone)
		q.runPruner()
	}()

	return q, nil
}

// Enqueue appends payload to the store's tail and returns the new
// envelope's id. Never fails (spec.md §4.8).
func (q *Queue) Enqueue(payload string) string {
	q.dataMu.Lock()
	env := q.store.append(payload)
	q.dataMu.Unlock()

	q.emit(q.rootCtx, EventTypeEnvelopeEnqueued, map[string]interface{}{
		"envelope_id": env.ID,
	})
	return env.ID
}

// Subscribe registers sub and starts its dispatch loop, returning a fresh
// subscriber id. Fails with ErrNilHandler if sub.OnMessageReceive is nil
// (spec.md §4.8: "fails if handler is absent").
func (q *Queue) Subscribe(sub Subscriber) (string, error) {
	if sub.OnMessageReceive == nil {
		return "", ErrNilHandler
	}

	id := uuid.NewString()
	c := newCursor(id, sub, q.rootCtx)

	q.subMu.Lock()
	q.subscribers[id] = c
	q.subMu.Unlock()

	q.metrics.Subscribers.Inc()
	q.dataMu.Lock()
	q.updateLag(c)
	q.dataMu.Unlock()

	started := make(chan struct{})
	go func() {
		close(started)
		q.runDispatchLoop(c)
	}()
	<-started

	q.emit(q.rootCtx, EventTypeSubscriberCreated, map[string]interface{}{
		"subscriber_id": id,
	})
	return id, nil
}

// Unsubscribe cancels subscriberID's cursor and removes it from the
// registry. Silent no-op if the id is absent (spec.md §7 unknown-id).
func (q *Queue) Unsubscribe(subscriberID string) {
	q.subMu.Lock()
	c, ok := q.subscribers[subscriberID]
	if ok {
		delete(q.subscribers, subscriberID)
	}
	q.subMu.Unlock()

	if !ok {
		q.logger.Warnw("unsubscribe: unknown subscriber id", "subscriber_id", subscriberID)
		return
	}

	c.cancel()
	<-c.done
	q.metrics.Subscribers.Dec()
	q.metrics.Lag.DeleteLabelValues(subscriberID)

	q.emit(q.rootCtx, EventTypeSubscriberRemoved, map[string]interface{}{
		"subscriber_id": subscriberID,
	})
}

// ChangeMessagePayload mutates the payload of the envelope with the given
// id in place, preserving id and CreatedAt (spec.md §4.7). Silent no-op if
// messageID is absent.
func (q *Queue) ChangeMessagePayload(messageID, newPayload string) {
	q.dataMu.Lock()
	ok := q.store.changePayload(messageID, newPayload)
	q.dataMu.Unlock()

	if !ok {
		q.logger.Warnw("change payload: unknown message id", "envelope_id", messageID)
		return
	}
	q.emit(q.rootCtx, EventTypeEnvelopeChanged, map[string]interface{}{
		"envelope_id": messageID,
	})
}

// GetState returns a consistent snapshot of the buffer, every subscriber's
// cursor, and the configured TTL (spec.md §4.8).
func (q *Queue) GetState() QueueState {
	q.dataMu.Lock()
	defer q.dataMu.Unlock()

	state := QueueState{
		TTL:    q.config.TTL,
		Buffer: q.store.snapshot(),
	}

	q.subMu.RLock()
	defer q.subMu.RUnlock()
	state.Cursors = make([]CursorState, 0, len(q.subscribers))
	for id, c := range q.subscribers {
		state.Cursors = append(state.Cursors, CursorState{
			SubscriberID: id,
			Index:        c.index,
			Committed:    c.committed,
			DLQ:          c.dlqSnapshot(),
		})
	}
	return state
}

// ReplayFromDlq redelivers a single quarantined message to the subscriber
// that dead-lettered it: the entry is removed from the DLQ only if the
// replay Acks (spec.md §4.5). Silent no-op if either id is unknown.
func (q *Queue) ReplayFromDlq(subscriberID, messageID string) {
	c, ok := q.lookupCursor(subscriberID)
	if !ok {
		q.logger.Warnw("replay from dlq: unknown subscriber id", "subscriber_id", subscriberID)
		return
	}
	q.replayOne(c, messageID)
}

// ReplayAllDlqMessages redelivers every message currently in subscriberID's
// DLQ, oldest first (spec.md §4.5). Silent no-op if subscriberID is
// unknown.
func (q *Queue) ReplayAllDlqMessages(subscriberID string) {
	c, ok := q.lookupCursor(subscriberID)
	if !ok {
		q.logger.Warnw("replay all dlq messages: unknown subscriber id", "subscriber_id", subscriberID)
		return
	}
	q.replayAllFor(c)
}

// ReplayAllDlqSubscribers redelivers every message in every subscriber's
// DLQ (spec.md §4.5).
func (q *Queue) ReplayAllDlqSubscribers() {
	q.subMu.RLock()
	cursors := make([]*cursor, 0, len(q.subscribers))
	for _, c := range q.subscribers {
		cursors = append(cursors, c)
	}
	q.subMu.RUnlock()

	for _, c := range cursors {
		q.replayAllFor(c)
	}
}

// replayAllFor redelivers every message currently in c's DLQ, oldest
// first. It replays a fixed snapshot rather than draining live, so a
// message a replay re-quarantines is not replayed again in the same pass.
func (q *Queue) replayAllFor(c *cursor) {
	for _, env := range c.dlqSnapshot() {
		q.replayOne(c, env.ID)
	}
}

// replayOne calls OnMessageReceive exactly once more for messageID
// (spec.md §4.5): on Ack the entry is removed from the DLQ; on Nack or
// error, OnMessageFailedHandler is invoked for its side effects only — the
// entry stays in the DLQ. Unlike the normal dispatch path, replay never
// retries and never re-runs the full fallback behavior; a
// FailureAddToDLQ-style outcome here would just be a no-op re-add, since
// the entry was never removed.
func (q *Queue) replayOne(c *cursor, messageID string) {
	env, ok := c.dlqFind(messageID)
	if !ok {
		q.logger.Warnw("replay: unknown dlq message id", "subscriber_id", c.id, "envelope_id", messageID)
		return
	}

	result, err := q.safeReceive(c.ctx, c, env)
	if err == nil && result == Ack {
		c.dlqRemove(messageID)
		q.metrics.Delivered.Inc()
		q.metrics.DlqReplayed.Inc()
		q.emit(c.ctx, EventTypeDlqReplayed, map[string]interface{}{
			"subscriber_id": c.id,
			"envelope_id":   env.ID,
		})
		return
	}

	q.safeFail(c.ctx, c, env, err)
}

// ReplayFrom rewinds subscriberID's cursor back to the envelope identified
// by messageID, so the dispatch loop redelivers it and everything after it
// (spec.md §4.6). Per P6, this succeeds iff the subscriber is committed
// (not mid-delivery) AND caught up (index+1 >= the store's logical size)
// at the moment of the call; either guard failing, an unknown subscriber
// id, or an unknown/pruned message id is a logged no-op.
func (q *Queue) ReplayFrom(subscriberID, messageID string) {
	c, ok := q.lookupCursor(subscriberID)
	if !ok {
		q.logger.Warnw("replay from: unknown subscriber id", "subscriber_id", subscriberID)
		return
	}

	q.dataMu.Lock()
	index, found := q.store.findIndexByID(messageID)
	if !found {
		q.dataMu.Unlock()
		q.logger.Warnw("replay from: unknown or pruned message id", "subscriber_id", subscriberID, "envelope_id", messageID)
		return
	}
	if !c.committed || c.index+1 < q.store.logicalSize() {
		q.dataMu.Unlock()
		q.logger.Warnw("replay from: subscriber not committed and caught up",
			"subscriber_id", subscriberID, "envelope_id", messageID,
			"committed", c.committed, "index", c.index, "logical_size", q.store.logicalSize())
		return
	}
	c.index = index
	c.committed = false
	q.updateLag(c)
	q.dataMu.Unlock()

	q.emit(c.ctx, EventTypeCursorRewound, map[string]interface{}{
		"subscriber_id": subscriberID,
		"envelope_id":   messageID,
	})
}

// lookupCursor is a read-locked lookup shared by the replay operations.
func (q *Queue) lookupCursor(subscriberID string) (*cursor, bool) {
	q.subMu.RLock()
	defer q.subMu.RUnlock()
	c, ok := q.subscribers[subscriberID]
	return c, ok
}

// Dispose cancels the root context (terminating every dispatch loop and
// the pruner) and waits for them to exit. Idempotent: calling it more than
// once is a no-op (spec.md §4.8/§5/P7).
func (q *Queue) Dispose() {
	q.disposeOnce.Do(func() {
		q.subMu.RLock()
		cursors := make([]*cursor, 0, len(q.subscribers))
		for _, c := range q.subscribers {
			cursors = append(cursors, c)
		}
		q.subMu.RUnlock()

		q.rootCancel()

		for _, c := range cursors {
			<-c.done
		}
		<-q.prunerDone

		q.emit(context.Background(), EventTypeQueueDisposed, nil)
	})
}
