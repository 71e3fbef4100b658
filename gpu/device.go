// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu hosts the accelerator runtime of the bootstrap engine: device
// enumeration, ordered command streams, typed device buffers and the
// bootstrap and keyswitch kernels. The backend is an in-process simulator
// with the same ordering and residency semantics as a CUDA device, so the
// host-side pipeline (upload, enqueue, synchronize) is exercised for real.
package gpu

import (
	"fmt"
	"sync"
)

// Device describes one accelerator.
type Device struct {
	// Index is the device's position in the registry.
	Index int
	// Name is a human-readable model label.
	Name string
	// SMCount is the number of streaming multiprocessors. The low-latency
	// bootstrap admission bound derives from it.
	SMCount int
	// MaxSharedMemory is the per-block shared memory in bytes.
	MaxSharedMemory int
	// TotalMemory is the global memory in bytes.
	TotalMemory int64
}

var (
	registryMu sync.RWMutex
	registry   []Device
)

func init() {
	// One default device, dimensioned like a mid-range accelerator.
	registry = []Device{{
		Index:           0,
		Name:            "sim-sm80",
		SMCount:         108,
		MaxSharedMemory: 96 << 10,
		TotalMemory:     16 << 30,
	}}
}

// Devices returns a snapshot of the device registry.
func Devices() []Device {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Device, len(registry))
	copy(out, registry)
	return out
}

// GetDevice returns the device at index.
func GetDevice(index int) (Device, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if index < 0 || index >= len(registry) {
		return Device{}, fmt.Errorf("gpu: no device at index %d (have %d)", index, len(registry))
	}
	return registry[index], nil
}

// RegisterDevice adds a simulated device and returns its index. Tests use it
// to model constrained hardware.
func RegisterDevice(d Device) int {
	registryMu.Lock()
	defer registryMu.Unlock()
	d.Index = len(registry)
	registry = append(registry, d)
	return d.Index
}
