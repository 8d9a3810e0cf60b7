package stream

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the subscription channel buffer used when New is
// given a nonpositive size.
const DefaultBuffer = 64

// Stream is a hot multicast stream. Items published while a
// subscription is active are delivered to it; there is no replay and
// no backpressure.
type Stream struct {
	mu     sync.RWMutex
	subs   []*Subscription
	buffer int
	closed atomic.Bool
}

// Subscription is one consumer registration on a Stream.
type Subscription struct {
	stream *Stream
	ch     chan any
	closed atomic.Bool
}

// New creates a stream whose subscriptions buffer up to buffer items.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{buffer: buffer}
}

// Subscribe registers a new consumer. Subscribing to a closed stream
// returns a subscription whose channel is already closed.
func (s *Stream) Subscribe() *Subscription {
	sub := &Subscription{
		stream: s,
		ch:     make(chan any, s.buffer),
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		sub.closed.Store(true)
		close(sub.ch)
		return sub
	}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return sub
}

// Publish delivers item to all active subscriptions. Subscribers whose
// buffer is full miss the item. Publishing to a closed stream is a
// no-op.
func (s *Stream) Publish(item any) {
	if s.closed.Load() {
		return
	}

	// Sends stay under the read lock so a concurrent Cancel or Close,
	// which needs the write lock, cannot close a channel mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- item:
		default:
			// Buffer full, drop for this subscriber
		}
	}
}

// Close terminates the stream and closes all subscriber channels.
// Idempotent.
func (s *Stream) Close() {
	if s.closed.Swap(true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
	}
	s.subs = nil
}

// Closed reports whether the stream has been closed.
func (s *Stream) Closed() bool {
	return s.closed.Load()
}

// Items returns the channel of delivered items. The channel is closed
// when the subscription is cancelled or the stream closes.
func (sub *Subscription) Items() <-chan any {
	return sub.ch
}

// Cancel removes the subscription from its stream and closes the item
// channel. Idempotent.
func (sub *Subscription) Cancel() {
	s := sub.stream
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.closed.Swap(true) {
		return
	}
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			break
		}
	}
	close(sub.ch)
}
