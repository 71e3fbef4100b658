// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"sync"
)

// Stream is an ordered command queue on one device. Tasks run one at a time
// in submission order on a dedicated goroutine, matching the FIFO semantics
// of a device stream.
type Stream struct {
	device Device

	tasks chan func()
	done  chan struct{}

	closeOnce sync.Once
}

func newStream(device Device) *Stream {
	s := &Stream{
		device: device,
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.done)
	for task := range s.tasks {
		task()
	}
}

// Device returns the stream's device.
func (s *Stream) Device() Device { return s.device }

// Enqueue submits a task. It never blocks the device; it may block the host
// when the queue is full, as a real driver does.
func (s *Stream) Enqueue(task func()) {
	s.tasks <- task
}

// Synchronize blocks until every previously enqueued task has completed.
func (s *Stream) Synchronize() {
	fence := make(chan struct{})
	s.tasks <- func() { close(fence) }
	<-fence
}

// Close drains the stream and stops its worker. Idempotent.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.tasks)
		<-s.done
	})
}

// Session scopes a stream and the device allocations of one execution unit.
// Closing the session synchronizes the stream and releases every buffer
// allocated through it.
type Session struct {
	device Device
	stream *Stream

	mu       sync.Mutex
	released bool
	frees    []func()
}

// NewSession opens a session on the device at gpuIndex.
func NewSession(gpuIndex int) (*Session, error) {
	dev, err := GetDevice(gpuIndex)
	if err != nil {
		return nil, fmt.Errorf("gpu: open session: %w", err)
	}
	return &Session{device: dev, stream: newStream(dev)}, nil
}

// Device returns the session's device.
func (s *Session) Device() Device { return s.device }

// Stream returns the session's command stream.
func (s *Session) Stream() *Stream { return s.stream }

// Synchronize blocks until all work submitted on the session has completed.
func (s *Session) Synchronize() {
	s.stream.Synchronize()
}

// track registers a release hook to run at Close.
func (s *Session) track(free func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		panic("gpu: allocation on closed session")
	}
	s.frees = append(s.frees, free)
}

// Close synchronizes the stream, releases the session's buffers and stops
// the stream. The session must not be used after.
func (s *Session) Close() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	frees := s.frees
	s.frees = nil
	s.mu.Unlock()

	s.stream.Synchronize()
	for i := len(frees) - 1; i >= 0; i-- {
		frees[i]()
	}
	s.stream.Close()
}
