// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

// Encode maps a message in [0, payload) onto the torus by scaling with delta.
func (p Parameters) Encode(msg uint64) uint64 {
	return msg * p.Delta()
}

// Decode rounds a noisy torus plaintext back to its message. The rounding bit
// is the bit just below the message; carrying it up and dividing by delta
// rounds to the nearest multiple, with ties and wraparound landing on the
// next value mod payload.
func (p Parameters) Decode(decrypted uint64) uint64 {
	delta := p.Delta()
	roundingBit := delta >> 1
	rounding := (decrypted & roundingBit) << 1
	return ((decrypted + rounding) / delta) % uint64(p.PayloadModulus())
}
