package pushqueue

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event type constants for lifecycle observation, following the teacher's
// reverse-domain CloudEvents naming convention in modules/eventbus/events.go.
const (
	EventTypeEnvelopeEnqueued    = "io.pushqueue.envelope.enqueued"
	EventTypeEnvelopeChanged     = "io.pushqueue.envelope.payload_changed"
	EventTypeSubscriberCreated   = "io.pushqueue.subscriber.created"
	EventTypeSubscriberRemoved   = "io.pushqueue.subscriber.removed"
	EventTypeMessageDeadLettered = "io.pushqueue.dlq.added"
	EventTypeDlqReplayed         = "io.pushqueue.dlq.replayed"
	EventTypeCursorRewound       = "io.pushqueue.cursor.rewound"
	EventTypeEnvelopesPruned     = "io.pushqueue.store.pruned"
	EventTypeQueueDisposed       = "io.pushqueue.queue.disposed"
)

// ObserverFunc receives lifecycle CloudEvents emitted by a Queue. It is
// invoked from a dedicated goroutine per event and must never block the
// data plane; a slow or panicking observer only affects itself.
type ObserverFunc func(ctx context.Context, event cloudevents.Event)

// newLifecycleEvent builds a CloudEvent with the queue's source and the
// given type/data, matching modular.NewCloudEvent's shape in the teacher's
// EventBusModule without depending on the teacher's DI runtime.
func newLifecycleEvent(eventType string, data map[string]interface{}) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetType(eventType)
	event.SetSource("pushqueue")
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// emit fires the observer in its own goroutine, mirroring the teacher's
// `go func(){ m.EmitEvent(...) }()` non-blocking emission. A nil observer
// is a no-op, matching the "skip silently if no subject" guard in
// EventBusModule.emitEvent.
func (q *Queue) emit(ctx context.Context, eventType string, data map[string]interface{}) {
	if q.observer == nil {
		return
	}
	event := newLifecycleEvent(eventType, data)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.Errorw("observer panicked", "event_type", eventType, "panic", r)
			}
		}()
		q.observer(ctx, event)
	}()
}
