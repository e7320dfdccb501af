// Package ringbuffer implements the bounded single-producer/single-consumer
// queue that streams values from the script engine back to the request
// handler. Producers block when the buffer is full (back-pressure, never
// drop); consumers block while the buffer is empty and open, and observe
// end-of-stream once it is closed and drained.
package ringbuffer

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the results buffer size used per request unless
// configured otherwise.
const DefaultCapacity = 1024

// ErrClosed is returned by producers once the buffer has been closed.
var ErrClosed = errors.New("ringbuffer: closed")

type slot[T any] struct {
	value    T
	occupied bool
}

// Buffer is a fixed-capacity FIFO ring. The occupied slots always form a
// contiguous span from the reader index to the writer index, modulo
// capacity. Waiters never hold the lock while suspended: they snapshot the
// current change channel under the lock and wait on it outside.
type Buffer[T any] struct {
	mu      sync.Mutex
	slots   []slot[T]
	reader  int
	writer  int
	open    bool
	changed chan struct{}
}

// New creates a buffer with the given capacity. Capacities below one fall
// back to DefaultCapacity.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer[T]{
		slots:   make([]slot[T], capacity),
		open:    true,
		changed: make(chan struct{}),
	}
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.slots)
}

// Len returns the number of values pending consumption.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.slots {
		if b.slots[i].occupied {
			n++
		}
	}
	return n
}

// signalLocked wakes every waiter. Callers must hold b.mu.
func (b *Buffer[T]) signalLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// ProduceOne appends a single value, blocking until a slot is free.
func (b *Buffer[T]) ProduceOne(ctx context.Context, value T) error {
	return b.ProduceMany(ctx, []T{value})
}

// ProduceMany appends values in order, blocking on each full slot until the
// consumer frees it or ctx is cancelled. Producing on a closed buffer
// returns ErrClosed.
func (b *Buffer[T]) ProduceMany(ctx context.Context, values []T) error {
	for _, value := range values {
		for {
			b.mu.Lock()
			if !b.open {
				b.mu.Unlock()
				return ErrClosed
			}
			s := &b.slots[b.writer]
			if !s.occupied {
				s.value = value
				s.occupied = true
				b.writer = (b.writer + 1) % len(b.slots)
				b.signalLocked()
				b.mu.Unlock()
				break
			}
			ch := b.changed
			b.mu.Unlock()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ch:
			}
		}
	}
	return nil
}

// ConsumeOne removes and returns the oldest value. The second return is
// false only at end-of-stream: the buffer is closed and fully drained.
// While the buffer is empty and open, ConsumeOne blocks until a producer
// writes, the buffer closes, or ctx is cancelled.
func (b *Buffer[T]) ConsumeOne(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		b.mu.Lock()
		s := &b.slots[b.reader]
		if s.occupied {
			value := s.value
			s.value = zero
			s.occupied = false
			b.reader = (b.reader + 1) % len(b.slots)
			b.signalLocked()
			b.mu.Unlock()
			return value, true, nil
		}
		if !b.open {
			b.mu.Unlock()
			return zero, false, nil
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-ch:
		}
	}
}

// Close marks the buffer closed and wakes all waiters. Values already
// produced remain consumable. Idempotent.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return
	}
	b.open = false
	b.signalLocked()
}
