// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Scalar constrains the element types device buffers may hold.
type Scalar interface {
	constraints.Integer | constraints.Float
}

// Buffer is a typed device allocation tied to a session. Device-side code
// (kernels enqueued on the session's stream) accesses data directly; host
// code must go through the copy methods, which follow stream ordering.
type Buffer[T Scalar] struct {
	session *Session
	data    []T
	freed   bool
}

// Alloc reserves a device buffer of n elements, zero-initialized, released
// when the session closes.
func Alloc[T Scalar](s *Session, n int) *Buffer[T] {
	b := &Buffer[T]{session: s, data: make([]T, n)}
	s.track(func() { b.freed = true; b.data = nil })
	return b
}

// Len returns the element count.
func (b *Buffer[T]) Len() int { return len(b.data) }

// Data returns the device-side view. Only kernel code running on the
// session's stream may touch it.
func (b *Buffer[T]) Data() []T { return b.data }

// CopyToDevice enqueues an asynchronous host-to-device copy of src starting
// at element offset. The host slice must stay unchanged until the stream
// reaches the copy.
func (b *Buffer[T]) CopyToDevice(src []T, offset int) {
	if offset < 0 || offset+len(src) > len(b.data) {
		panic(fmt.Sprintf("gpu: copy of %d elements at offset %d exceeds buffer of %d", len(src), offset, len(b.data)))
	}
	b.session.stream.Enqueue(func() {
		copy(b.data[offset:], src)
	})
}

// CopyFromDevice copies count elements starting at offset back to the host.
// It synchronizes: all prior work on the session's stream completes before
// the copy, and the returned slice is host-owned.
func (b *Buffer[T]) CopyFromDevice(offset, count int) []T {
	if offset < 0 || offset+count > len(b.data) {
		panic(fmt.Sprintf("gpu: read of %d elements at offset %d exceeds buffer of %d", count, offset, len(b.data)))
	}
	dst := make([]T, count)
	fence := make(chan struct{})
	b.session.stream.Enqueue(func() {
		copy(dst, b.data[offset:offset+count])
		close(fence)
	})
	<-fence
	return dst
}
