// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import "fmt"

// GenLookupTable compiles f over the payload space into a test vector in GLWE
// layout: k zero mask polynomials followed by the table polynomial. Each
// message owns a box of N/payload redundant coefficients; the table is then
// rotated back by half a box so the rounding error of the modulus switch
// stays inside the box.
func (p Parameters) GenLookupTable(f func(uint64) uint64) []uint64 {
	n := p.PolynomialSize()
	payload := uint64(p.PayloadModulus())
	boxSize := n / int(payload)
	if boxSize < 2 {
		panic(fmt.Sprintf("pbs: payload %d leaves no redundancy in degree %d", payload, n))
	}
	delta := p.Delta()

	lut := make([]uint64, p.LutSize())
	body := lut[p.GlweDimension()*n:]
	for i := 0; i < n; i++ {
		body[i] = delta * (f(uint64(i/boxSize)) % payload)
	}

	// Negacyclic left rotation by boxSize/2.
	rot := boxSize / 2
	rotated := make([]uint64, n)
	copy(rotated, body[rot:])
	for i := 0; i < rot; i++ {
		rotated[n-rot+i] = -body[i]
	}
	copy(body, rotated)
	return lut
}

// IdentityLookupTable returns the test vector of the identity function, the
// table a plain noise-refreshing bootstrap evaluates.
func (p Parameters) IdentityLookupTable() []uint64 {
	return p.GenLookupTable(func(x uint64) uint64 { return x })
}
