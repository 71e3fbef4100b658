// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import "fmt"

// LweCiphertext is one LWE sample: dimension mask scalars followed by the
// body. All arithmetic is wrapping over Z_{2^64}.
type LweCiphertext struct {
	Data []uint64
}

// NewLweCiphertext allocates a zero ciphertext for the given key dimension.
func NewLweCiphertext(dimension int) *LweCiphertext {
	return &LweCiphertext{Data: make([]uint64, dimension+1)}
}

// Dimension returns the mask length.
func (c *LweCiphertext) Dimension() int { return len(c.Data) - 1 }

// Body returns the ciphertext body b.
func (c *LweCiphertext) Body() uint64 { return c.Data[len(c.Data)-1] }

// Clone deep-copies the ciphertext.
func (c *LweCiphertext) Clone() *LweCiphertext {
	return &LweCiphertext{Data: append([]uint64(nil), c.Data...)}
}

// Encryptor produces fresh LWE encryptions under one secret key.
type Encryptor struct {
	key   *LweSecretKey
	prng  PRNG
	noise *gaussianSampler
}

// NewEncryptor creates an encryptor adding gaussian noise of the given
// modular variance.
func NewEncryptor(key *LweSecretKey, variance float64, prng PRNG) *Encryptor {
	return &Encryptor{
		key:   key,
		prng:  prng,
		noise: newGaussianSampler(prng, variance),
	}
}

// Encrypt returns a fresh encryption of the torus plaintext pt.
func (e *Encryptor) Encrypt(pt uint64) *LweCiphertext {
	ct := NewLweCiphertext(e.key.Dimension())
	e.EncryptInto(pt, ct)
	return ct
}

// EncryptInto writes a fresh encryption of pt into ct.
func (e *Encryptor) EncryptInto(pt uint64, ct *LweCiphertext) {
	if ct.Dimension() != e.key.Dimension() {
		panic(fmt.Sprintf("pbs: ciphertext dimension %d, want %d", ct.Dimension(), e.key.Dimension()))
	}
	encryptLwe(e.prng, e.noise, e.key.bits, pt, ct.Data)
}

// encryptLwe fills ct (len dim+1) with an encryption of pt: uniform mask,
// body = <mask, key> + pt + e.
func encryptLwe(prng PRNG, noise *gaussianSampler, key []uint64, pt uint64, ct []uint64) {
	dim := len(key)
	uniformTorus(prng, ct[:dim])
	body := pt + noise.sample()
	for i, b := range key {
		if b == 1 {
			body += ct[i]
		}
	}
	ct[dim] = body
}

// Decryptor recovers noisy torus plaintexts from LWE ciphertexts.
type Decryptor struct {
	key *LweSecretKey
}

// NewDecryptor creates a decryptor for key.
func NewDecryptor(key *LweSecretKey) *Decryptor {
	return &Decryptor{key: key}
}

// Decrypt returns the noisy plaintext b - <mask, key>.
func (d *Decryptor) Decrypt(ct *LweCiphertext) uint64 {
	if ct.Dimension() != d.key.Dimension() {
		panic(fmt.Sprintf("pbs: ciphertext dimension %d, want %d", ct.Dimension(), d.key.Dimension()))
	}
	pt := ct.Body()
	for i, b := range d.key.bits {
		if b == 1 {
			pt -= ct.Data[i]
		}
	}
	return pt
}
