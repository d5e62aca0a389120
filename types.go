package pushqueue

import "context"

// DeliveryResult is the outcome of a single OnMessageReceive attempt.
type DeliveryResult int

const (
	// Nack requests retry/fallback; it is the zero value so a handler that
	// forgets to return an explicit result fails safe into the retry path
	// rather than silently acking.
	Nack DeliveryResult = iota
	Ack
)

func (r DeliveryResult) String() string {
	if r == Ack {
		return "Ack"
	}
	return "Nack"
}

// FailureBehavior is the choice returned by OnMessageFailedHandler once
// retries are exhausted (spec.md §4.4).
type FailureBehavior int

const (
	// FailureCommit advances the cursor past the envelope, no DLQ.
	FailureCommit FailureBehavior = iota
	// FailureAddToDLQ appends the envelope to this cursor's DLQ, then advances.
	FailureAddToDLQ
	// FailureRetryOnceThenCommit makes one more best-effort delivery
	// attempt, discards its result, then advances.
	FailureRetryOnceThenCommit
	// FailureRetryOnceThenDLQ makes one more best-effort delivery attempt,
	// discards its result, appends to DLQ, then advances.
	FailureRetryOnceThenDLQ
	// FailureBlock leaves the cursor where it is; the dispatch loop will
	// observe the same envelope again on its next iteration.
	FailureBlock
)

func (b FailureBehavior) String() string {
	switch b {
	case FailureCommit:
		return "Commit"
	case FailureAddToDLQ:
		return "AddToDLQ"
	case FailureRetryOnceThenCommit:
		return "RetryOnceThenCommit"
	case FailureRetryOnceThenDLQ:
		return "RetryOnceThenDLQ"
	case FailureBlock:
		return "Block"
	default:
		return "Unknown"
	}
}

// MessageHandler is OnMessageReceive from spec.md §6: must be safe to
// invoke many times for the same envelope. A returned error is treated
// identically to Nack for retry purposes, regardless of the DeliveryResult
// value.
type MessageHandler func(ctx context.Context, env Envelope, subscriberID string) (DeliveryResult, error)

// FailureHandler is OnMessageFailedHandler from spec.md §6, called only
// after retries are exhausted. A panic from this handler is recovered and
// treated as FailureCommit (spec.md §4.4 edge case), so a single buggy
// failure handler can never halt a subscriber.
type FailureHandler func(ctx context.Context, env Envelope, subscriberID string, lastErr error) FailureBehavior

// DeadLetterHandler is OnDeadLetterHandler from spec.md §6: reserved for
// future DLQ sweepers. It is stored per-subscriber but not invoked by the
// current dispatch loop or replay operations.
type DeadLetterHandler func(ctx context.Context, env Envelope, subscriberID string) (DeliveryResult, error)

// Subscriber groups the three-method handler contract (spec.md §9's
// "single capability set") that a caller supplies to Subscribe.
type Subscriber struct {
	// OnMessageReceive is required; Subscribe fails with ErrNilHandler if
	// it is nil.
	OnMessageReceive MessageHandler

	// OnMessageFailedHandler is called once retries are exhausted. If nil,
	// it defaults to always choosing FailureCommit so a subscriber without
	// a failure policy still makes progress.
	OnMessageFailedHandler FailureHandler

	// OnDeadLetterHandler is optional and currently unused by the core
	// (spec.md §6): reserved for future DLQ sweepers.
	OnDeadLetterHandler DeadLetterHandler
}
