package pushqueue

import (
	"context"
	"time"
)

// deliverOutcome tells the dispatch loop whether to advance the cursor past
// the envelope or leave it in place (FailureBlock).
type deliverOutcome int

const (
	outcomeAdvance deliverOutcome = iota
	outcomeBlock
)

// deliver runs the retry/fallback policy engine for a single envelope
// against a single subscriber (spec.md §4.4). It calls OnMessageReceive at
// most 1+RetryCount times, then — if every attempt Nacked or errored — the
// fallback path: OnMessageFailedHandler followed by whatever extra work its
// FailureBehavior choice implies.
//
// Grounded on the attempt-count retry loop, shouldRetry/onRetry hooks and
// cancellation-aware delay select in
// other_examples/f9df7051_zoobzio-streamz__dlq.go.go's
// DeadLetterQueue.processWithRetry, generalized to five fallback behaviors
// instead of "retry N times then always DLQ".
func (q *Queue) deliver(ctx context.Context, env Envelope, c *cursor) deliverOutcome {
	attempts := 1 + q.config.RetryCount
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := q.safeReceive(ctx, c, env)
		if err == nil && result == Ack {
			q.metrics.Delivered.Inc()
			return outcomeAdvance
		}
		lastErr = err
		q.metrics.Retried.Inc()

		if attempt < attempts-1 {
			select {
			case <-time.After(q.config.RetryDelay):
			case <-ctx.Done():
				return outcomeBlock
			}
		}
	}

	behavior := q.safeFail(ctx, c, env, lastErr)
	switch behavior {
	case FailureCommit:
		q.metrics.Delivered.Inc()
		return outcomeAdvance

	case FailureAddToDLQ:
		q.addToDLQ(ctx, c, env)
		return outcomeAdvance

	case FailureRetryOnceThenCommit:
		_, _ = q.safeReceive(ctx, c, env) // best-effort, result discarded
		q.metrics.Delivered.Inc()
		return outcomeAdvance

	case FailureRetryOnceThenDLQ:
		_, _ = q.safeReceive(ctx, c, env) // best-effort, result discarded
		q.addToDLQ(ctx, c, env)
		return outcomeAdvance

	case FailureBlock:
		return outcomeBlock

	default:
		// Unrecognized value from a caller; fail safe into Commit so the
		// subscriber keeps making progress.
		q.metrics.Delivered.Inc()
		return outcomeAdvance
	}
}

// safeReceive invokes OnMessageReceive, recovering a panic as a Nack-
// equivalent error so a misbehaving handler can never wedge the policy
// loop mid-attempt.
func (q *Queue) safeReceive(ctx context.Context, c *cursor, env Envelope) (result DeliveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorw("OnMessageReceive panicked", "subscriber_id", c.id, "envelope_id", env.ID, "panic", r)
			result, err = Nack, errHandlerPanic
		}
	}()
	return c.subscriber.OnMessageReceive(ctx, env, c.id)
}

// safeFail invokes OnMessageFailedHandler, treating both a nil handler and
// a panicking one as FailureCommit (spec.md §4.4: "If OnMessageFailedHandler
// itself throws, the engine treats that as Commit ... this prevents a
// single buggy failure handler from halting the subscriber").
func (q *Queue) safeFail(ctx context.Context, c *cursor, env Envelope, lastErr error) (behavior FailureBehavior) {
	if c.subscriber.OnMessageFailedHandler == nil {
		return FailureCommit
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorw("OnMessageFailedHandler panicked, committing", "subscriber_id", c.id, "envelope_id", env.ID, "panic", r)
			behavior = FailureCommit
		}
	}()
	return c.subscriber.OnMessageFailedHandler(ctx, env, c.id, lastErr)
}

// addToDLQ appends the envelope to the cursor's DLQ and emits a lifecycle
// event, used by both FailureAddToDLQ and FailureRetryOnceThenDLQ.
func (q *Queue) addToDLQ(ctx context.Context, c *cursor, env Envelope) {
	c.dlqAppend(env)
	q.metrics.DeadLettered.Inc()
	q.emit(ctx, EventTypeMessageDeadLettered, map[string]interface{}{
		"subscriber_id": c.id,
		"envelope_id":   env.ID,
	})
}
