package notify

import (
	"context"
	"sync"
)

// DefaultFeedSize is the number of notifications a Feed keeps.
const DefaultFeedSize = 100

// Feed keeps the most recent notifications in a bounded ring so a UI can poll
// for what it has not shown yet.
type Feed struct {
	mu    sync.Mutex
	items []Notification
	next  int
	full  bool
	seq   uint64
}

// NewFeed returns a feed holding up to size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{items: make([]Notification, size)}
}

// Notify stores n with the next sequence number, evicting the oldest entry
// when the feed is full.
func (f *Feed) Notify(_ context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	n.Seq = f.seq
	f.items[f.next] = n
	f.next = (f.next + 1) % len(f.items)
	if f.next == 0 {
		f.full = true
	}
}

// Since returns the retained notifications with Seq > after, oldest first.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notification, 0, f.lenLocked())
	for _, n := range f.orderedLocked() {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// LastSeq returns the sequence number of the newest notification, 0 if none.
func (f *Feed) LastSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// Len returns the number of retained notifications.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lenLocked()
}

func (f *Feed) lenLocked() int {
	if f.full {
		return len(f.items)
	}
	return f.next
}

func (f *Feed) orderedLocked() []Notification {
	if !f.full {
		return f.items[:f.next]
	}
	ordered := make([]Notification, 0, len(f.items))
	ordered = append(ordered, f.items[f.next:]...)
	return append(ordered, f.items[:f.next]...)
}
