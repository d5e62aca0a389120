// Command queuedemo is a minimal runnable example of the pushqueue
// package: one producer, one well-behaved subscriber, and one subscriber
// that always fails and ends up replayed from its DLQ.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/GoCodeAlone/pushqueue"
)

func main() {
	cfg := pushqueue.NewConfig()
	cfg.RetryCount = 1
	cfg.RetryDelay = 10 * time.Millisecond

	q, err := pushqueue.NewQueue(cfg, pushqueue.WithObserver(logEvents))
	if err != nil {
		log.Fatalf("new queue: %v", err)
	}
	defer q.Dispose()

	okSub, err := q.Subscribe(pushqueue.Subscriber{
		OnMessageReceive: func(_ context.Context, env pushqueue.Envelope, subscriberID string) (pushqueue.DeliveryResult, error) {
			fmt.Printf("[%s] received %q\n", subscriberID, env.Payload)
			return pushqueue.Ack, nil
		},
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	flakySub, err := q.Subscribe(pushqueue.Subscriber{
		OnMessageReceive: func(_ context.Context, _ pushqueue.Envelope, _ string) (pushqueue.DeliveryResult, error) {
			return pushqueue.Nack, nil
		},
		OnMessageFailedHandler: func(_ context.Context, _ pushqueue.Envelope, _ string, _ error) pushqueue.FailureBehavior {
			return pushqueue.FailureAddToDLQ
		},
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	q.Enqueue("hello")
	q.Enqueue("world")

	time.Sleep(200 * time.Millisecond)

	state := q.GetState()
	for _, c := range state.Cursors {
		if c.SubscriberID == flakySub && len(c.DLQ) > 0 {
			fmt.Printf("replaying %d dead-lettered message(s) for %s\n", len(c.DLQ), flakySub)
			q.ReplayAllDlqMessages(flakySub)
		}
	}

	q.Unsubscribe(okSub)
	q.Unsubscribe(flakySub)
}

func logEvents(_ context.Context, event cloudevents.Event) {
	fmt.Printf("event: %s\n", event.Type())
}
