package daemon

import (
	"sync"
	"sync/atomic"

	"github.com/1broseidon/winvd/internal/journal"
	"github.com/1broseidon/winvd/internal/listener"
)

const (
	subscriberBuffer = 32
	journalBuffer    = 256
)

// Broadcaster is the listener sink of the daemon. It keeps a ring of recent
// events, journals them and fans them out to subscribers. Neither a subscriber
// that falls behind nor a slow journal disk stalls the listener; both lose
// events instead.
type Broadcaster struct {
	journal *journal.Journal
	records chan listener.Event
	written chan struct{}

	mu     sync.Mutex
	ring   []listener.Event
	next   int
	full   bool
	subs   map[int]chan listener.Event
	nextID int
	closed bool

	dropped atomic.Int64
}

var _ listener.Sink = (*Broadcaster)(nil)

// NewBroadcaster keeps the last capacity events.
func NewBroadcaster(capacity int, j *journal.Journal) *Broadcaster {
	if capacity < 1 {
		capacity = 1
	}
	b := &Broadcaster{
		journal: j,
		ring:    make([]listener.Event, capacity),
		subs:    make(map[int]chan listener.Event),
	}
	if j != nil {
		b.records = make(chan listener.Event, journalBuffer)
		b.written = make(chan struct{})
		go b.writeJournal()
	}
	return b
}

// writeJournal appends queued events to the journal until Close.
func (b *Broadcaster) writeJournal() {
	defer close(b.written)
	for ev := range b.records {
		b.journal.RecordEvent(ev)
	}
}

// Send records ev and delivers it to every subscriber with room for it. It
// never waits on disk or on a subscriber.
func (b *Broadcaster) Send(ev listener.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.records != nil && !b.closed {
		select {
		case b.records <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	b.ring[b.next] = ev
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Recent returns up to limit events, oldest first. A limit <= 0 returns all
// buffered events.
func (b *Broadcaster) Recent(limit int) []listener.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []listener.Event
	if b.full {
		out = append(out, b.ring[b.next:]...)
	}
	out = append(out, b.ring[:b.next]...)
	if limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	return out
}

// Subscribe returns a channel of future events and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan listener.Event, func()) {
	ch := make(chan listener.Event, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers or a
// backed-up journal.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Close ends every subscription and waits for queued events to reach the
// journal. Later subscriptions are closed immediately.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	if b.records != nil {
		close(b.records)
	}
	b.mu.Unlock()

	if b.written != nil {
		<-b.written
	}
}
