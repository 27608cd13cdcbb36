// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package ring contains a fixed size FIFO that bridges a producer which must
// never block (such as a hardware capture callback) and a consumer that
// drains it at its own pace.
package ring

import (
	"log"
	"sync"
)

// Option will configure a Buffer.
type Option func(*options)

type options struct {
	logger     *log.Logger
	onOverflow func(dropped int)
}

// WithLogger will log overflow warnings to logger rather than the default
// logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOverflowFunc will call fn with the number of samples dropped by every
// Push that overflows. fn is called with the Buffer lock held, and must not
// block.
func WithOverflowFunc(fn func(dropped int)) Option {
	return func(o *options) {
		o.onOverflow = fn
	}
}

// Buffer is a lock protected, fixed capacity circular buffer. When a write
// does not fit, the oldest unread samples are dropped to make room; Push
// never blocks and never fails.
type Buffer[T any] struct {
	mu   sync.Mutex
	data []T

	// head is the index of the oldest unread sample, and count the number of
	// unread samples. Tracking the count means a full buffer and an empty
	// buffer never look alike.
	head  int
	count int

	dropped    uint64
	overflowed bool
	opts       options
}

// New will allocate a Buffer able to hold capacity samples.
func New[T any](capacity int, opts ...Option) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Buffer[T]{
		data: make([]T, capacity),
		opts: o,
	}
}

// Cap returns the number of samples the Buffer can hold.
func (b *Buffer[T]) Cap() int {
	return len(b.data)
}

// Len returns the number of unread samples.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of samples lost to overflow.
func (b *Buffer[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Push appends samples to the Buffer, dropping the oldest unread samples if
// there isn't room for all of them.
func (b *Buffer[T]) Push(samples []T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := len(b.data)
	drop := b.count + len(samples) - size
	if drop <= 0 {
		b.overflowed = false
	} else {
		b.overflow(drop)
	}

	// Only the newest size samples of an oversized write can survive.
	if len(samples) > size {
		samples = samples[len(samples)-size:]
	}

	if drop > 0 {
		if drop > b.count {
			drop = b.count
		}
		b.head = (b.head + drop) % size
		b.count -= drop
	}

	tail := (b.head + b.count) % size
	n := copy(b.data[tail:], samples)
	copy(b.data, samples[n:])
	b.count += len(samples)
}

func (b *Buffer[T]) overflow(drop int) {
	b.dropped += uint64(drop)
	if b.opts.onOverflow != nil {
		b.opts.onOverflow(drop)
	}
	if !b.overflowed {
		b.overflowed = true
		b.opts.logger.Printf("[ring] overflow, dropping oldest samples (capacity %d)", len(b.data))
	}
}

// Pop copies up to len(out) of the oldest unread samples into out, in the
// order they were pushed, and returns how many were copied.
func (b *Buffer[T]) Pop(out []T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(out)
	if n > b.count {
		n = b.count
	}
	if n == 0 {
		return 0
	}

	end := b.head + n
	if end <= len(b.data) {
		copy(out, b.data[b.head:end])
	} else {
		m := copy(out, b.data[b.head:])
		copy(out[m:n], b.data[:n-m])
	}

	b.head = end % len(b.data)
	b.count -= n
	return n
}

// Clear throws away every unread sample. The backing array is kept.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.count = 0
	b.overflowed = false
}

// vim: foldmethod=marker
