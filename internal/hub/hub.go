// Package hub is the in-memory broadcast of classified comments.
//
// Contract:
//   - Publish never blocks, regardless of subscriber speed.
//   - Each subscriber has its own bounded ring; overflow evicts the oldest
//     item and is reported to that subscriber as a lag signal.
//   - A lagging subscriber resumes from the next retained item; other
//     subscribers and the publisher are unaffected.
//   - After Close, every subscriber drains its buffer and then observes
//     a terminal closed signal.
package hub

import (
	"context"
	"sync"

	"leadwatch/internal/intent"
)

// Kind tags the outcome of a single Recv call.
type Kind int

const (
	// KindItem carries one classified comment.
	KindItem Kind = iota
	// KindLagged reports how many items the subscriber missed.
	KindLagged
	// KindClosed is terminal: no further items will arrive.
	KindClosed
)

// Msg is the tagged result of Subscriber.Recv.
type Msg struct {
	Kind    Kind
	Item    intent.AnalyzedComment
	Skipped uint64
}

type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscriber
	nextID uint64
	buffer int
	closed bool
}

// New creates a hub whose subscribers each buffer up to `buffer` items.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{subs: map[uint64]*Subscriber{}, buffer: buffer}
}

// Subscribe registers a new subscriber. Subscribing to a closed hub returns
// a subscriber that immediately reports closed.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &Subscriber{
		hub:  h,
		buf:  make([]intent.AnalyzedComment, h.buffer),
		wake: make(chan struct{}, 1),
	}
	if h.closed {
		s.closed = true
		return s
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	return s
}

// Publish delivers the item to every registered subscriber.
func (h *Hub) Publish(item intent.AnalyzedComment) {
	// Snapshot so delivery doesn't hold the hub lock.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.push(item)
	}
}

// Close marks the hub terminal and wakes every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.subs = map[uint64]*Subscriber{}
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Subscriber is one independent read position on the hub.
// Recv may be called from a single goroutine.
type Subscriber struct {
	hub *Hub
	id  uint64

	mu     sync.Mutex
	buf    []intent.AnalyzedComment // fixed-size ring
	head   int
	count  int
	lagged uint64
	closed bool

	wake chan struct{}
}

// Recv blocks until an item, a lag report, or the closed signal is available.
// The only error it returns is ctx's.
func (s *Subscriber) Recv(ctx context.Context) (Msg, error) {
	for {
		s.mu.Lock()
		if s.lagged > 0 {
			n := s.lagged
			s.lagged = 0
			s.mu.Unlock()
			return Msg{Kind: KindLagged, Skipped: n}, nil
		}
		if s.count > 0 {
			item := s.buf[s.head]
			s.buf[s.head] = intent.AnalyzedComment{}
			s.head = (s.head + 1) % len(s.buf)
			s.count--
			s.mu.Unlock()
			return Msg{Kind: KindItem, Item: item}, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Msg{Kind: KindClosed}, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Msg{}, ctx.Err()
		case <-s.wake:
		}
	}
}

// Cancel detaches the subscriber from the hub. Pending buffered items are
// still readable; after that Recv reports closed.
func (s *Subscriber) Cancel() {
	h := s.hub
	h.mu.Lock()
	delete(h.subs, s.id)
	h.mu.Unlock()
	s.close()
}

func (s *Subscriber) push(item intent.AnalyzedComment) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.count == len(s.buf) {
		// Evict oldest; the reader finds out via the lag counter.
		s.head = (s.head + 1) % len(s.buf)
		s.count--
		s.lagged++
	}
	tail := (s.head + s.count) % len(s.buf)
	s.buf[tail] = item
	s.count++
	s.mu.Unlock()
	s.signal()
}

func (s *Subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
