package eventbus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Send after the receiving side closed the bus, and
// by Recv once a closed bus has been drained.
var ErrClosed = errors.New("eventbus: closed")

// Bus is an unbounded multi-producer, single-consumer FIFO queue.
//
// Contract:
//   - Send MUST be non-blocking and is safe for concurrent producers.
//   - Items are delivered in Send order, so every producer's own order is kept.
//   - There is no back-pressure; the consumer is expected to keep up.
//
// It does not own any background goroutines.
type Bus[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool

	// ready holds at most one wake-up token for a blocked Recv.
	ready chan struct{}
}

// New returns an empty open bus.
func New[T any]() *Bus[T] {
	return &Bus[T]{ready: make(chan struct{}, 1)}
}

// Send enqueues v. It returns ErrClosed if the bus was closed.
func (b *Bus[T]) Send(v T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.items = append(b.items, v)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryRecv pops the oldest item without blocking.
func (b *Bus[T]) TryRecv() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked()
}

// Recv blocks until an item is available, ctx is done, or the bus is closed
// and empty.
func (b *Bus[T]) Recv(ctx context.Context) (T, error) {
	for {
		b.mu.Lock()
		v, ok := b.popLocked()
		closed := b.closed
		b.mu.Unlock()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, ErrClosed
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-b.ready:
		}
	}
}

// Close marks the bus closed. Items already queued can still be received;
// further Sends fail with ErrClosed. Close is idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Closed reports whether Close was called.
func (b *Bus[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items) - b.head
}

func (b *Bus[T]) popLocked() (T, bool) {
	var zero T
	if b.head >= len(b.items) {
		return zero, false
	}
	v := b.items[b.head]
	b.items[b.head] = zero
	b.head++

	// Compact once the consumed prefix dominates so memory follows the backlog.
	if b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
	} else if b.head >= 1024 && b.head*2 >= len(b.items) {
		n := copy(b.items, b.items[b.head:])
		for i := n; i < len(b.items); i++ {
			b.items[i] = zero
		}
		b.items = b.items[:n]
		b.head = 0
	}
	return v, true
}
