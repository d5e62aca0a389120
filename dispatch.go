package pushqueue

import "time"

// idlePoll is how long the dispatch loop waits when the cursor has caught
// up to the tail before checking again (spec.md §4.3 step 2).
const idlePoll = 100 * time.Millisecond

// blockBackoff is a small pause inserted before re-offering the same
// envelope after a FailureBlock outcome. spec.md §9's "Open question —
// fairness" explicitly permits this: "Implementers may choose to insert a
// minimum back-off to avoid busy-spin; doing so does not change observable
// semantics aside from CPU load."
const blockBackoff = 10 * time.Millisecond

// runDispatchLoop is the per-subscriber goroutine started by Subscribe
// (spec.md §4.3), reading forward from c.index, delivering
// through the retry/fallback policy, and committing on Ack.
//
// Grounded on MemoryEventBus.handleEvents's `for { select { <-ctx.Done():
// return ... } }` shape in modules/eventbus/memory.go, generalized from
// draining a per-subscription channel to reading forward through a shared,
// prunable log at an independently owned offset.
func (q *Queue) runDispatchLoop(c *cursor) {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		q.dataMu.Lock()
		env, ok := q.store.readAt(c.index)
		if ok {
			c.committed = false
		}
		q.updateLag(c)
		q.dataMu.Unlock()

		if !ok {
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		switch q.deliver(c.ctx, env, c) {
		case outcomeAdvance:
			q.dataMu.Lock()
			c.index++
			c.committed = true
			q.updateLag(c)
			q.dataMu.Unlock()

		case outcomeBlock:
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(blockBackoff):
			}
		}
	}
}
