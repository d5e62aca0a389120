package pushqueue

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the unit of payload plus its immutable id and creation
// timestamp (spec.md §3). Payload is the only mutable field, via
// Queue.ChangeMessagePayload.
type Envelope struct {
	ID        string
	CreatedAt time.Time
	Payload   string
}

// store is the ordered, append-only-at-tail, head-trimmed log shared by all
// subscribers (spec.md §4.1). It is not safe for concurrent use on its own;
// every method here is called while the owning Queue holds dataMu.
//
// Pruning re-slices the head instead of the teacher's list-with-filter-copy
// approach in MemoryEventBus.cleanupOldEvents, so TrimExpired drops the
// expired prefix without rebuilding the slice (see DESIGN.md). Logical
// indices are relative to the current head: after k envelopes are trimmed,
// every remaining envelope's index drops by k, and the pruner shifts each
// cursor down by the same k (I4).
type store struct {
	envelopes []Envelope
	base      int // logical index of envelopes[0]; trimExpired leaves it at 0
}

func newStore() *store {
	return &store{}
}

// logicalSize returns the store's current logical size (I1: non-decreasing
// except via pruning).
func (s *store) logicalSize() int {
	return s.base + len(s.envelopes)
}

// append generates a fresh id, timestamps with wall-clock now, and appends
// to the tail. Never fails (spec.md §4.1).
func (s *store) append(payload string) Envelope {
	env := Envelope{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Payload:   payload,
	}
	s.envelopes = append(s.envelopes, env)
	return env
}

// readAt returns the envelope at the given logical index, or (_, false) if
// the index is negative or >= the current logical size
// (spec.md I2: index == size means caught up, nothing to deliver).
func (s *store) readAt(index int) (Envelope, bool) {
	pos := index - s.base
	if pos < 0 || pos >= len(s.envelopes) {
		return Envelope{}, false
	}
	return s.envelopes[pos], true
}

// trimExpired removes envelopes from the head whose CreatedAt is before
// cutoff, stopping at the first non-expired envelope, and returns the
// count removed.
func (s *store) trimExpired(cutoff time.Time) int {
	k := 0
	for k < len(s.envelopes) && s.envelopes[k].CreatedAt.Before(cutoff) {
		k++
	}
	if k == 0 {
		return 0
	}
	s.envelopes = s.envelopes[k:]
	return k
}

// findIndexByID performs a linear scan for the envelope with the given id,
// returning its logical index, or (_, false) if absent.
func (s *store) findIndexByID(id string) (int, bool) {
	for i, env := range s.envelopes {
		if env.ID == id {
			return s.base + i, true
		}
	}
	return 0, false
}

// changePayload mutates the payload of the envelope with the given id in
// place, preserving id and CreatedAt. Returns false if absent.
func (s *store) changePayload(id, payload string) bool {
	for i := range s.envelopes {
		if s.envelopes[i].ID == id {
			s.envelopes[i].Payload = payload
			return true
		}
	}
	return false
}

// snapshot returns a shallow copy of the current log, for GetState.
func (s *store) snapshot() []Envelope {
	out := make([]Envelope, len(s.envelopes))
	copy(out, s.envelopes)
	return out
}
