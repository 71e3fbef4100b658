// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/fhelab/pbs"
	"github.com/fhelab/pbs/internal/fft"
)

// geometry is the kernel-side view of a parameter set.
type geometry struct {
	n        int // polynomial degree
	half     int // n/2, complex lanes per polynomial
	glweSize int // k+1
	level    int
	baseLog  int
	inDim    int // input LWE dimension
}

func geometryOf(p pbs.Parameters) geometry {
	return geometry{
		n:        p.PolynomialSize(),
		half:     p.PolynomialSize() / 2,
		glweSize: p.GlweSize(),
		level:    p.Level(),
		baseLog:  p.BaseLog(),
		inDim:    p.LweDimension(),
	}
}

// fourierKeyView indexes one Fourier bootstrap key inside a device float
// buffer (interleaved re/im pairs). base is the scalar offset of the key's
// first polynomial, so several keys can share one buffer at the device
// stride.
type fourierKeyView struct {
	geom geometry
	data []float64
	base int
}

func (v fourierKeyView) rows() int { return v.geom.glweSize * v.geom.level }

// mulAdd accumulates a * row(bit, row, comp) into acc, reading the row
// polynomial straight from the interleaved layout.
func (v fourierKeyView) mulAdd(acc, a []complex128, bit, row, comp int) {
	off := v.base + ((bit*v.rows()+row)*v.geom.glweSize+comp)*v.geom.half*2
	b := v.data[off : off+2*v.geom.half]
	for i := range acc {
		ar, ai := real(a[i]), imag(a[i])
		br, bi := b[2*i], b[2*i+1]
		acc[i] += complex(ar*br-ai*bi, ar*bi+ai*br)
	}
}

// decomposer extracts signed base-2^baseLog digits, most significant first.
type decomposer struct {
	baseLog int
	level   int
}

// decompose rounds every coefficient of poly to its closest multiple of
// 2^(64-baseLog*level) and writes the signed digits into digits[l], where
// digits[l] carries weight 2^(64-baseLog*(l+1)).
func (d decomposer) decompose(poly []uint64, digits [][]int64) {
	base := uint64(1) << d.baseLog
	halfBase := int64(base >> 1)
	shift := uint(64 - d.baseLog*d.level)
	for i, v := range poly {
		if shift > 0 {
			v = (v + (1 << (shift - 1))) >> shift
		}
		for l := d.level - 1; l >= 0; l-- {
			dig := int64(v & (base - 1))
			v >>= uint(d.baseLog)
			if dig >= halfBase {
				dig -= int64(base)
				v++
			}
			digits[l][i] = dig
		}
	}
}

// workspace holds the per-execution-unit temporaries of the blind rotation.
type workspace struct {
	rot    []uint64 // rotated accumulator, glweSize polynomials
	digits [][]int64
	digitF []complex128
	accF   [][]complex128
}

func newWorkspace(g geometry) *workspace {
	w := &workspace{
		rot:    make([]uint64, g.glweSize*g.n),
		digits: make([][]int64, g.level),
		digitF: make([]complex128, g.half),
		accF:   make([][]complex128, g.glweSize),
	}
	for l := range w.digits {
		w.digits[l] = make([]int64, g.n)
	}
	for c := range w.accF {
		w.accF[c] = make([]complex128, g.half)
	}
	return w
}

// externalProduct computes acc += GGSW_bit ⊛ diff, where diff and acc are
// GLWE ciphertexts of glweSize polynomials in flat layout. diff is consumed.
func externalProduct(proc *fft.Processor, key fourierKeyView, bit int, diff, acc []uint64, w *workspace) {
	g := key.geom
	for c := range w.accF {
		clearComplex(w.accF[c])
	}
	dec := decomposer{baseLog: g.baseLog, level: g.level}
	for c := 0; c < g.glweSize; c++ {
		dec.decompose(diff[c*g.n:(c+1)*g.n], w.digits)
		for l := 0; l < g.level; l++ {
			proc.ForwardSigned(w.digits[l], w.digitF)
			row := c*g.level + l
			for out := 0; out < g.glweSize; out++ {
				key.mulAdd(w.accF[out], w.digitF, bit, row, out)
			}
		}
	}
	for out := 0; out < g.glweSize; out++ {
		proc.BackwardAdd(w.accF[out], acc[out*g.n:(out+1)*g.n])
	}
}

func clearComplex(v []complex128) {
	for i := range v {
		v[i] = 0
	}
}
