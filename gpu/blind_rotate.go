// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"math/bits"

	"github.com/fhelab/pbs/internal/fft"
)

// modSwitch rounds a torus element to the 2N sub-lattice, returning the
// exponent in [0, 2N).
func modSwitch(v uint64, log2TwoN uint) int {
	shift := 64 - log2TwoN
	return int((v+(1<<(shift-1)))>>shift) & (1<<log2TwoN - 1)
}

// rotateMonomial writes src * X^amount into dst, negacyclic, amount in
// [0, 2N). Coefficients crossing the degree-N boundary flip sign.
func rotateMonomial(dst, src []uint64, amount int) {
	n := len(src)
	for i, v := range src {
		j := i + amount
		if j >= 2*n {
			j -= 2 * n
		}
		if j >= n {
			dst[j-n] = -v
		} else {
			dst[j] = v
		}
	}
}

// blindRotateOne rotates the lookup table by the phase of one switched input
// ciphertext, leaving the result in acc (glweSize polynomials, flat).
func blindRotateOne(proc *fft.Processor, key fourierKeyView, lut, in, acc []uint64, w *workspace) {
	g := key.geom
	log2TwoN := uint(bits.Len(uint(g.n))) // log2(N) + 1
	twoN := 2 * g.n

	// acc = lut * X^{-b~}.
	bSwitched := modSwitch(in[g.inDim], log2TwoN)
	for c := 0; c < g.glweSize; c++ {
		rotateMonomial(acc[c*g.n:(c+1)*g.n], lut[c*g.n:(c+1)*g.n], (twoN-bSwitched)%twoN)
	}

	// CMux ladder: acc <- acc + s_i * (acc * X^{a~_i} - acc), one external
	// product per key bit.
	for i := 0; i < g.inDim; i++ {
		aSwitched := modSwitch(in[i], log2TwoN)
		if aSwitched == 0 {
			continue
		}
		for c := 0; c < g.glweSize; c++ {
			rotateMonomial(w.rot[c*g.n:(c+1)*g.n], acc[c*g.n:(c+1)*g.n], aSwitched)
		}
		for j := range w.rot {
			w.rot[j] -= acc[j]
		}
		externalProduct(proc, key, i, w.rot, acc, w)
	}
}

// sampleExtract reads the constant coefficient of the accumulator out as an
// LWE ciphertext of dimension (glweSize-1)*n.
func sampleExtract(acc []uint64, glweSize, n int, out []uint64) {
	glweDim := glweSize - 1
	for c := 0; c < glweDim; c++ {
		a := acc[c*n : (c+1)*n]
		o := out[c*n : (c+1)*n]
		o[0] = a[0]
		for i := 1; i < n; i++ {
			o[i] = -a[n-i]
		}
	}
	out[glweDim*n] = acc[glweDim*n]
}
