// Package pubsub is the in-process job transport: schedulers publish sync
// and recluster requests, the serve loop consumes them. Delivery is
// at-least-once from the consumer's point of view; handlers are idempotent.
package pubsub

import (
	"context"
	"sync"
)

// subscriberBufferSize is the channel buffer size for each subscriber.
const subscriberBufferSize = 64

// Broker is a generic, thread-safe publish/subscribe broker.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan T]struct{}
}

// NewBroker creates a new Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan T]struct{}),
	}
}

// Subscribe creates a new subscription. The returned channel receives
// published jobs until the provided context is cancelled, at which point the
// channel is closed and the subscription is removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, subscriberBufferSize)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts a job to all active subscribers. If a subscriber's
// buffer is full, the job is dropped for that subscriber (non-blocking);
// a scheduler's next tick republishes the work.
func (b *Broker[T]) Publish(job T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- job:
		default:
			// Drop for slow subscriber
		}
	}
}
