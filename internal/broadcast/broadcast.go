// Package broadcast fans out PTY output to any number of attached
// subscribers without ever blocking the PTY read loop or a fast
// subscriber on a slow one.
package broadcast

import (
	"sync"
)

// HighWaterBytes bounds how many bytes of undelivered chunks a single
// subscriber may accumulate before further chunks are dropped for it
// and it is marked lagged. Tracked by summed chunk length rather than
// a fixed item count, since chunks range from a few bytes of keystroke
// echo up to a full 64KiB PTY read.
const HighWaterBytes = 256 * 1024

// Kind distinguishes a live output chunk from a resync snapshot so the
// attach layer knows which frame type to forward to its client.
type Kind int

const (
	Live Kind = iota
	Resync
)

// Chunk is one item delivered to a subscriber.
type Chunk struct {
	Kind Kind
	Data []byte
}

// SnapshotFunc returns the current scrollback snapshot, used to build a
// Resync payload for a subscriber that lagged.
type SnapshotFunc func() []byte

// Broadcaster distributes byte chunks to subscribers, each with its own
// byte-bounded, non-blocking queue.
type Broadcaster struct {
	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]*subscriber
	snapshot SnapshotFunc
}

// subscriber holds a byte-bounded FIFO queue of undelivered chunks, fed
// out through ch by pump. Publish only ever touches the queue (guarded
// by mu); it never sends on ch directly, so a subscriber that stops
// reading can never block a publisher no matter how ch is buffered.
type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Chunk
	pending int
	lagged  bool
	closed  bool
	ch      chan Chunk
	stop    chan struct{}
}

// New returns a Broadcaster. snapshotFn may be nil; if set, it is used
// to synthesize a Resync payload for subscribers recovering from lag.
func New(snapshotFn SnapshotFunc) *Broadcaster {
	return &Broadcaster{
		subs:     make(map[uint64]*subscriber),
		snapshot: snapshotFn,
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed when Unsubscribe stops the subscriber's pump;
// chunks still queued at that point are discarded, not flushed.
func (b *Broadcaster) Subscribe() (uint64, <-chan Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Chunk), stop: make(chan struct{})}
	sub.cond = sync.NewCond(&sub.mu)
	b.subs[id] = sub
	go sub.pump()
	return id, sub.ch
}

// Unsubscribe removes a subscriber and stops its pump, closing its
// channel once the pump goroutine exits.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	sub.mu.Lock()
	sub.closed = true
	sub.cond.Broadcast()
	sub.mu.Unlock()
	close(sub.stop)
}

// pump drains sub's queue into sub.ch one chunk at a time. A chunk's
// bytes leave the pending count here, when it is dequeued, not when
// Publish enqueues it and not when the consumer eventually reads it
// off ch.
func (sub *subscriber) pump() {
	defer close(sub.ch)
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			return
		}
		chunk := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.pending -= len(chunk.Data)
		sub.mu.Unlock()

		select {
		case sub.ch <- chunk:
		case <-sub.stop:
			return
		}
	}
}

// Publish sends chunk to every subscriber. A subscriber whose pending
// byte total would exceed HighWaterBytes is marked lagged and the
// chunk is dropped for it rather than blocking this call; once a
// lagged subscriber has room again, the next Publish sends it a Resync
// snapshot instead of the raw chunk.
func (b *Broadcaster) Publish(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		b.deliver(sub, chunk)
	}
}

func (b *Broadcaster) deliver(sub *subscriber, chunk []byte) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.lagged {
		if b.snapshot == nil {
			return
		}
		snap := b.snapshot()
		if sub.pending+len(snap) > HighWaterBytes {
			// Still can't catch up; stay lagged and drop this cycle too.
			return
		}
		sub.queue = append(sub.queue, Chunk{Kind: Resync, Data: snap})
		sub.pending += len(snap)
		sub.lagged = false
		sub.cond.Signal()
		return
	}

	if sub.pending+len(chunk) > HighWaterBytes {
		sub.lagged = true
		return
	}
	sub.queue = append(sub.queue, Chunk{Kind: Live, Data: chunk})
	sub.pending += len(chunk)
	sub.cond.Signal()
}

// SubscriberCount reports the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
