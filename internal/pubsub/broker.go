package pubsub

import (
	"context"
	"sync"
)

const defaultBuffer = 32

// Broker fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events rather than stalling the
// publisher, which keeps store mutations synchronous.
type Broker[T any] struct {
	mu     sync.Mutex
	subs   map[chan Event[T]]struct{}
	buffer int
	closed bool
}

// NewBroker returns a broker with the default per-subscriber buffer.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerBuffered[T](defaultBuffer)
}

// NewBrokerBuffered returns a broker whose subscriber channels hold up to
// buffer pending events.
func NewBrokerBuffered[T any](buffer int) *Broker[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker[T]{
		subs:   make(map[chan Event[T]]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers for future events. The returned channel closes when
// ctx is done or the broker shuts down.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event[T])
		close(ch)
		return ch
	}

	ch := make(chan Event[T], b.buffer)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}()

	return ch
}

// Publish delivers payload to every subscriber, best effort.
func (b *Broker[T]) Publish(t EventType, payload T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := make([]chan Event[T], 0, len(b.subs))
	for ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	evt := Event[T]{Type: t, Payload: payload}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Subscriber buffer full; drop rather than block.
		}
	}
}

// Shutdown closes all subscriber channels. Idempotent.
func (b *Broker[T]) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	clear(b.subs)
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
