package store

import (
	"context"
	"sync"
)

// sequencer orders work per key. Tickets are taken in the order callers
// enqueue and each ticket runs only after the previous one for the same key
// has been released, so remote calls for one item reach the API in the order
// the local mutations happened.
type sequencer struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newSequencer() *sequencer {
	return &sequencer{tails: make(map[string]chan struct{})}
}

// ticket is a place in a key's queue.
type ticket struct {
	q    *sequencer
	key  string
	prev <-chan struct{}
	mine chan struct{}
}

// enqueue takes the next ticket for key. It never blocks.
func (q *sequencer) enqueue(key string) *ticket {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.tails[key]
	mine := make(chan struct{})
	q.tails[key] = mine
	return &ticket{q: q, key: key, prev: prev, mine: mine}
}

// wait blocks until every earlier ticket for the key is released. When ctx
// ends first the ticket is released in the background once its turn comes,
// and ctx.Err() is returned; the caller must not call release in that case.
func (t *ticket) wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		go func() {
			<-t.prev
			t.release()
		}()
		return ctx.Err()
	}
}

// release lets the next ticket for the key run.
func (t *ticket) release() {
	t.q.mu.Lock()
	if t.q.tails[t.key] == t.mine {
		delete(t.q.tails, t.key)
	}
	t.q.mu.Unlock()
	close(t.mine)
}

// pending reports how many keys have queued work.
func (q *sequencer) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
