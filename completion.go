package gocbbridge

import (
	"sync/atomic"
)

// completion is a single-shot handoff from one completing goroutine to either one
// blocked waiter or one continuation. It is resolved exactly once over its lifetime.
type completion[T any] struct {
	resolved uint32
	signal   chan T
	callback func(T)

	// Incremented on every set, including rejected second sets, so tests can
	// instrument delivery.
	setCalls uint32
}

func newBlockingCompletion[T any]() *completion[T] {
	// The signal channel must have a queue of at least 1 so the resolving
	// goroutine never waits on the consumer.
	return &completion[T]{
		signal: make(chan T, 1),
	}
}

func newCallbackCompletion[T any](callback func(T)) *completion[T] {
	return &completion[T]{
		callback: callback,
	}
}

// set resolves the completion. In callback mode the continuation is invoked inline on
// the calling goroutine before set returns. A second set is a programming error and is
// dropped.
func (c *completion[T]) set(value T) bool {
	atomic.AddUint32(&c.setCalls, 1)

	if !atomic.CompareAndSwapUint32(&c.resolved, 0, 1) {
		logErrorf("Completion was resolved more than once, dropping the later value")
		return false
	}

	if c.callback != nil {
		c.callback(value)
		return true
	}

	c.signal <- value
	return true
}

// get suspends until the completion has been resolved and returns its value.
func (c *completion[T]) get() T {
	if c.signal == nil {
		panic("cannot wait on a callback-mode completion")
	}
	return <-c.signal
}

func (c *completion[T]) isResolved() bool {
	return atomic.LoadUint32(&c.resolved) == 1
}

func (c *completion[T]) setCount() uint32 {
	return atomic.LoadUint32(&c.setCalls)
}
