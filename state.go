package pushqueue

import "time"

// CursorState is a diagnostic snapshot of one subscriber's cursor, part of
// GetState's result (spec.md §4.8).
type CursorState struct {
	SubscriberID string
	Index        int
	Committed    bool
	DLQ          []Envelope
}

// QueueState is the consistent snapshot returned by GetState: the buffer,
// every subscriber's cursor, and the configured TTL (spec.md §4.8).
//
// The buffer is taken under the same lock as all store mutation, so it is
// always consistent; per-subscriber cursor fields are read under the same
// lock too (stronger than spec.md's minimum bar of "may reflect slightly
// stale index/commit values", which is also acceptable for diagnostics).
type QueueState struct {
	TTL     time.Duration
	Buffer  []Envelope
	Cursors []CursorState
}
