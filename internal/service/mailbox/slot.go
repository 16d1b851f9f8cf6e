// Package mailbox provides a single-slot, overwrite-on-publish handoff between
// one producer and one consumer. The producer never blocks: a value that was
// not consumed before the next Publish is dropped, so a slow consumer only
// ever sees the latest value.
package mailbox

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Wait after Close.
var ErrClosed = errors.New("mailbox: closed")

// Slot holds at most one pending value.
type Slot[T any] struct {
	mu     sync.Mutex
	value  T
	full   bool
	closed bool

	published uint64
	dropped   uint64

	ready  chan struct{} // capacity 1, signalled on publish
	done   chan struct{}
	onDrop func(T)
}

// NewSlot creates an empty slot. onDrop, if non-nil, is called with every value
// that is overwritten or discarded without being taken, so owned resources
// (image buffers) can be released.
func NewSlot[T any](onDrop func(T)) *Slot[T] {
	return &Slot[T]{
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
		onDrop: onDrop,
	}
}

// Publish stores v, replacing any unconsumed value. It returns false if the
// slot is closed, in which case v is dropped.
func (s *Slot[T]) Publish(v T) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.drop(v)
		return false
	}

	var (
		old     T
		hadPrev = s.full
	)
	if hadPrev {
		old = s.value
		s.dropped++
	}
	s.value = v
	s.full = true
	s.published++
	s.mu.Unlock()

	if hadPrev {
		s.drop(old)
	}

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true
}

// Take removes and returns the pending value without blocking.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value = zero
	s.full = false
	return v, true
}

// Wait blocks until a value is available, ctx is done or the slot is closed.
func (s *Slot[T]) Wait(ctx context.Context) (T, error) {
	for {
		if v, ok := s.Take(); ok {
			return v, nil
		}

		var zero T
		select {
		case <-s.ready:
		case <-s.done:
			if v, ok := s.Take(); ok {
				return v, nil
			}
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close drops any pending value and wakes waiters. Safe to call more than once.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var (
		pending T
		hadPrev = s.full
	)
	if hadPrev {
		pending = s.value
		var zero T
		s.value = zero
		s.full = false
		s.dropped++
	}
	s.mu.Unlock()

	if hadPrev {
		s.drop(pending)
	}
	close(s.done)
}

// Stats returns how many values were published and how many were dropped unread.
func (s *Slot[T]) Stats() (published, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.dropped
}

func (s *Slot[T]) drop(v T) {
	if s.onDrop != nil {
		s.onDrop(v)
	}
}
