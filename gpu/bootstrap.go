// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/fhelab/pbs"
	"github.com/fhelab/pbs/internal/fft"
)

// Variant selects the bootstrap kernel.
type Variant int

const (
	// Amortized streams the bootstrap key once across the whole batch,
	// maximizing throughput on wide batches.
	Amortized Variant = iota
	// LowLatency fans each input out to its own block group, minimizing the
	// latency of small batches at a higher occupancy cost.
	LowLatency
)

func (v Variant) String() string {
	switch v {
	case Amortized:
		return "amortized"
	case LowLatency:
		return "low-latency"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ErrLowLatencyInfeasible reports that a device cannot host the low-latency
// kernel's block grid for the requested configuration.
var ErrLowLatencyInfeasible = errors.New("gpu: low-latency bootstrap infeasible on device")

// LowLatencyCapacity returns the largest batch the low-latency kernel can
// schedule on dev: the kernel needs (k+1)*level blocks per input and the
// device co-schedules four blocks per multiprocessor.
func LowLatencyCapacity(dev Device, params pbs.Parameters) int {
	return dev.SMCount * 4 / (params.GlweSize() * params.Level())
}

// LowLatencyFeasible reports whether dev can run the low-latency kernel for
// the parameter set's configured batch width.
func LowLatencyFeasible(dev Device, params pbs.Parameters) bool {
	return params.NumberOfInputs() <= LowLatencyCapacity(dev, params)
}

// UploadBootstrapKeys copies the Fourier bootstrap keys of every repetition
// into one device buffer at the per-repetition stride, enqueued on the
// session's stream. Each repetition's slot is padded by one GGSW so kernels
// may prefetch past the final key bit.
func UploadBootstrapKeys(s *Session, params pbs.Parameters, keys []*pbs.FourierBootstrapKey) *Buffer[float64] {
	stride := params.BootstrapKeyDeviceLen()
	buf := Alloc[float64](s, stride*len(keys))
	for r, key := range keys {
		buf.CopyToDevice(key.Floats(), r*stride)
	}
	return buf
}

// Scratch is the device-resident working state of one bootstrap call shape.
// The amortized variant keeps every input's accumulator resident for the
// whole batch; the low-latency variant gives each input an independent one.
type Scratch struct {
	variant Variant
	inputs  int
	geom    geometry
	acc     *Buffer[uint64]
}

// AllocateScratch reserves the working buffers for up to inputs ciphertexts
// per call under the given variant.
func AllocateScratch(s *Session, params pbs.Parameters, variant Variant, inputs int) *Scratch {
	g := geometryOf(params)
	return &Scratch{
		variant: variant,
		inputs:  inputs,
		geom:    g,
		acc:     Alloc[uint64](s, inputs*g.glweSize*g.n),
	}
}

// Bootstrap enqueues one programmable bootstrap over a batch of inputs
// ciphertexts on the session's stream and returns without waiting for it.
//
// bsk holds the Fourier bootstrap keys at the device stride; keyIndex selects
// the repetition. luts holds the lookup tables in GLWE layout; lutIndexes[j]
// selects the table applied to input j. in and out are flat ciphertext
// batches of n+1 and k*N+1 scalars per entry.
func Bootstrap(s *Session, params pbs.Parameters, variant Variant,
	bsk *Buffer[float64], keyIndex int,
	luts *Buffer[uint64], lutIndexes []int,
	in, out *Buffer[uint64], inputs int, scratch *Scratch) error {

	if scratch.variant != variant || scratch.inputs < inputs {
		return fmt.Errorf("gpu: scratch allocated for %s/%d, call wants %s/%d",
			scratch.variant, scratch.inputs, variant, inputs)
	}
	if len(lutIndexes) < inputs {
		return fmt.Errorf("gpu: %d lut indexes for %d inputs", len(lutIndexes), inputs)
	}
	g := geometryOf(params)
	if in.Len() < inputs*params.InputLweSize() {
		return fmt.Errorf("gpu: input buffer holds %d scalars, batch needs %d", in.Len(), inputs*params.InputLweSize())
	}
	if out.Len() < inputs*params.OutputLweSize() {
		return fmt.Errorf("gpu: output buffer holds %d scalars, batch needs %d", out.Len(), inputs*params.OutputLweSize())
	}
	if variant == LowLatency && inputs > LowLatencyCapacity(s.Device(), params) {
		return fmt.Errorf("%w: %d inputs, capacity %d (sm=%d, (k+1)*level=%d)",
			ErrLowLatencyInfeasible, inputs, LowLatencyCapacity(s.Device(), params),
			s.Device().SMCount, g.glweSize*g.level)
	}

	key := fourierKeyView{geom: g, base: keyIndex * params.BootstrapKeyDeviceLen()}
	idx := append([]int(nil), lutIndexes[:inputs]...)

	s.stream.Enqueue(func() {
		key.data = bsk.Data()
		switch variant {
		case LowLatency:
			bootstrapLowLatency(g, key, luts.Data(), idx, in.Data(), out.Data(), scratch.acc.Data(), inputs)
		default:
			bootstrapAmortized(g, key, luts.Data(), idx, in.Data(), out.Data(), scratch.acc.Data(), inputs)
		}
	})
	return nil
}

// bootstrapAmortized walks the key bits once, advancing every input's CMux
// ladder in lockstep so each GGSW is read a single time per batch.
func bootstrapAmortized(g geometry, key fourierKeyView, luts []uint64, lutIndexes []int, in, out, accs []uint64, inputs int) {
	proc := fft.Get(g.n)
	w := newWorkspace(g)
	log2TwoN := uint(bits.Len(uint(g.n)))
	twoN := 2 * g.n

	lutSize := g.glweSize * g.n
	inSize := g.inDim + 1
	outSize := (g.glweSize-1)*g.n + 1

	for j := 0; j < inputs; j++ {
		acc := accs[j*lutSize : (j+1)*lutSize]
		lut := luts[lutIndexes[j]*lutSize : (lutIndexes[j]+1)*lutSize]
		bSwitched := modSwitch(in[j*inSize+g.inDim], log2TwoN)
		for c := 0; c < g.glweSize; c++ {
			rotateMonomial(acc[c*g.n:(c+1)*g.n], lut[c*g.n:(c+1)*g.n], (twoN-bSwitched)%twoN)
		}
	}

	for i := 0; i < g.inDim; i++ {
		for j := 0; j < inputs; j++ {
			aSwitched := modSwitch(in[j*inSize+i], log2TwoN)
			if aSwitched == 0 {
				continue
			}
			acc := accs[j*lutSize : (j+1)*lutSize]
			for c := 0; c < g.glweSize; c++ {
				rotateMonomial(w.rot[c*g.n:(c+1)*g.n], acc[c*g.n:(c+1)*g.n], aSwitched)
			}
			for t := range w.rot {
				w.rot[t] -= acc[t]
			}
			externalProduct(proc, key, i, w.rot, acc, w)
		}
	}

	for j := 0; j < inputs; j++ {
		sampleExtract(accs[j*lutSize:(j+1)*lutSize], g.glweSize, g.n, out[j*outSize:(j+1)*outSize])
	}
}

// bootstrapLowLatency runs every input's full ladder concurrently, the way
// the latency-optimized kernel dedicates a block group per input.
func bootstrapLowLatency(g geometry, key fourierKeyView, luts []uint64, lutIndexes []int, in, out, accs []uint64, inputs int) {
	proc := fft.Get(g.n)
	lutSize := g.glweSize * g.n
	inSize := g.inDim + 1
	outSize := (g.glweSize-1)*g.n + 1

	var wg sync.WaitGroup
	for j := 0; j < inputs; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			w := newWorkspace(g)
			acc := accs[j*lutSize : (j+1)*lutSize]
			lut := luts[lutIndexes[j]*lutSize : (lutIndexes[j]+1)*lutSize]
			blindRotateOne(proc, key, lut, in[j*inSize:(j+1)*inSize], acc, w)
			sampleExtract(acc, g.glweSize, g.n, out[j*outSize:(j+1)*outSize])
		}(j)
	}
	wg.Wait()
}
