// Package fft implements the negacyclic polynomial transform used by the
// bootstrap pipeline. Polynomials live in Z_{2^64}[X]/(X^N + 1); the forward
// transform folds the N torus coefficients into N/2 complex points, twists
// them onto the odd 2N-th roots of unity and runs a radix-2 complex FFT.
// Pointwise products in that domain are negacyclic convolutions.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package fft

import (
	"fmt"
	"math"
	"math/bits"
	"sync"
)

// Processor holds the precomputed tables for one transform size.
type Processor struct {
	n    int // polynomial degree, power of two
	half int // complex transform size, n/2

	w    []complex128 // forward roots, w[k] = exp(+2πik/half)
	wInv []complex128 // inverse roots

	twist    []complex128 // twist[j] = exp(+iπj/n)
	twistInv []complex128

	rev []int // bit-reversal permutation over half
}

var (
	procMu    sync.Mutex
	procCache = map[int]*Processor{}
)

// Get returns a shared Processor for degree n, building it on first use.
func Get(n int) *Processor {
	procMu.Lock()
	defer procMu.Unlock()
	if p, ok := procCache[n]; ok {
		return p
	}
	p := NewProcessor(n)
	procCache[n] = p
	return p
}

// NewProcessor precomputes tables for polynomials of degree n.
func NewProcessor(n int) *Processor {
	if n < 2 || n&(n-1) != 0 {
		panic(fmt.Sprintf("fft: degree must be a power of two >= 2, got %d", n))
	}
	half := n / 2

	p := &Processor{
		n:        n,
		half:     half,
		w:        make([]complex128, half/2+1),
		wInv:     make([]complex128, half/2+1),
		twist:    make([]complex128, half),
		twistInv: make([]complex128, half),
		rev:      make([]int, half),
	}

	for k := 0; k <= half/2; k++ {
		theta := 2 * math.Pi * float64(k) / float64(half)
		p.w[k] = complex(math.Cos(theta), math.Sin(theta))
		p.wInv[k] = complex(math.Cos(theta), -math.Sin(theta))
	}
	for j := 0; j < half; j++ {
		theta := math.Pi * float64(j) / float64(n)
		p.twist[j] = complex(math.Cos(theta), math.Sin(theta))
		p.twistInv[j] = complex(math.Cos(theta), -math.Sin(theta))
	}

	shift := bits.UintSize - uint(bits.Len(uint(half-1)))
	for i := range p.rev {
		p.rev[i] = int(bits.Reverse(uint(i)) >> shift)
	}

	return p
}

// N returns the polynomial degree.
func (p *Processor) N() int { return p.n }

// Half returns the complex transform size N/2.
func (p *Processor) Half() int { return p.half }

func (p *Processor) transform(v []complex128, roots []complex128) {
	for i, j := range p.rev {
		if i < j {
			v[i], v[j] = v[j], v[i]
		}
	}
	n := len(v)
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for base := 0; base < n; base += size {
			k := 0
			for j := base; j < base+half; j++ {
				t := v[j+half] * roots[k]
				v[j+half] = v[j] - t
				v[j] += t
				k += step
			}
		}
	}
}

// Forward transforms a torus polynomial into the Fourier domain. Coefficients
// are read as signed 64-bit values centered around zero. dst must have length
// N/2.
func (p *Processor) Forward(src []uint64, dst []complex128) {
	for j := 0; j < p.half; j++ {
		dst[j] = complex(float64(int64(src[j])), float64(int64(src[j+p.half]))) * p.twist[j]
	}
	p.transform(dst, p.w)
}

// ForwardSigned transforms a signed digit polynomial (output of the gadget
// decomposition) into the Fourier domain.
func (p *Processor) ForwardSigned(src []int64, dst []complex128) {
	for j := 0; j < p.half; j++ {
		dst[j] = complex(float64(src[j]), float64(src[j+p.half])) * p.twist[j]
	}
	p.transform(dst, p.w)
}

// Backward maps a Fourier-domain polynomial back to torus coefficients,
// rounding each lane to the nearest integer mod 2^64. src is clobbered.
func (p *Processor) Backward(src []complex128, dst []uint64) {
	p.transform(src, p.wInv)
	scale := 1 / float64(p.half)
	for j := 0; j < p.half; j++ {
		c := src[j] * p.twistInv[j]
		dst[j] = torusFromFloat(real(c) * scale)
		dst[j+p.half] = torusFromFloat(imag(c) * scale)
	}
}

// BackwardAdd is Backward followed by a wrapping addition into dst.
func (p *Processor) BackwardAdd(src []complex128, dst []uint64) {
	p.transform(src, p.wInv)
	scale := 1 / float64(p.half)
	for j := 0; j < p.half; j++ {
		c := src[j] * p.twistInv[j]
		dst[j] += torusFromFloat(real(c) * scale)
		dst[j+p.half] += torusFromFloat(imag(c) * scale)
	}
}

// MulAdd accumulates the pointwise product a*b into acc.
func MulAdd(acc, a, b []complex128) {
	for i := range acc {
		acc[i] += a[i] * b[i]
	}
}

const (
	two64 = 18446744073709551616.0 // 2^64
	two63 = 9223372036854775808.0  // 2^63
)

// torusFromFloat reduces a rounded float into Z_{2^64}. The fold keeps the
// value centered in [-2^63, 2^63] before the integer conversion: small
// results stay exact there, whereas folding into [0, 2^64) first would
// quantize negative values to the double spacing near 2^64.
func torusFromFloat(x float64) uint64 {
	x -= math.Round(x/two64) * two64
	x = math.Round(x)
	if x >= two63 || x < -two63 {
		return 1 << 63
	}
	return uint64(int64(x))
}

// limb splitting for exact products against binary polynomials: 3 limbs of
// 22 bits keep every convolution coefficient below 2^53, so the float
// round-trip is exact.
const (
	limbBits  = 22
	limbCount = 3
	limbMask  = (1 << limbBits) - 1
)

// BinaryFourier transforms a binary polynomial (entries in {0,1}) for use
// with BinaryMulAdd.
func (p *Processor) BinaryFourier(bin []uint64) []complex128 {
	dst := make([]complex128, p.half)
	p.Forward(bin, dst)
	return dst
}

// BinaryMulAdd adds a*b to res mod X^N+1 over Z_{2^64}, where bF is the
// Fourier image of a binary polynomial. The product is exact: a is split
// into 22-bit limbs so no lane exceeds the float53 integer range.
func (p *Processor) BinaryMulAdd(a []uint64, bF []complex128, res []uint64) {
	limb := make([]uint64, p.n)
	work := make([]complex128, p.half)
	out := make([]uint64, p.n)

	for l := 0; l < limbCount; l++ {
		shift := uint(l * limbBits)
		for i := 0; i < p.n; i++ {
			limb[i] = (a[i] >> shift) & limbMask
		}
		p.Forward(limb, work)
		for i := range work {
			work[i] *= bF[i]
		}
		p.Backward(work, out)
		for i := 0; i < p.n; i++ {
			res[i] += out[i] << shift
		}
	}
}
