// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/crypto/blake2b"
)

// PRNG is a source of random bytes for key material and noise.
type PRNG interface {
	io.Reader
}

// NewPRNG returns a thread-safe PRNG backed by crypto/rand, for secret key
// material.
func NewPRNG() PRNG {
	return cryptoPRNG{}
}

type cryptoPRNG struct{}

func (cryptoPRNG) Read(b []byte) (int, error) {
	return rand.Read(b)
}

// KeyedPRNG deterministically expands a seed through a blake2b XOF. It is the
// source used for reproducible noise in tests and benchmarks. Not safe for
// concurrent use; each execution unit gets its own instance.
type KeyedPRNG struct {
	xof blake2b.XOF
}

// NewKeyedPRNG creates a deterministic PRNG from a seed key.
func NewKeyedPRNG(key []byte) (*KeyedPRNG, error) {
	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, key)
	if err != nil {
		return nil, err
	}
	return &KeyedPRNG{xof: xof}, nil
}

func (p *KeyedPRNG) Read(b []byte) (int, error) {
	return p.xof.Read(b)
}

// gaussianSampler draws centered gaussian torus noise with a standard
// deviation given as a fraction of the modulus.
type gaussianSampler struct {
	prng  PRNG
	std64 float64 // standard deviation scaled to the 2^64 torus
	spare float64
	has   bool
}

func newGaussianSampler(prng PRNG, variance float64) *gaussianSampler {
	return &gaussianSampler{
		prng:  prng,
		std64: math.Sqrt(variance) * math.Exp2(64),
	}
}

func (s *gaussianSampler) uniformFloat() float64 {
	var b [8]byte
	if _, err := io.ReadFull(s.prng, b[:]); err != nil {
		panic("pbs: prng failure: " + err.Error())
	}
	// 53 uniform mantissa bits in (0, 1].
	return (float64(binary.LittleEndian.Uint64(b[:])>>11) + 1) / (1 << 53)
}

// sample returns one gaussian torus element, Box-Muller over the XOF stream.
func (s *gaussianSampler) sample() uint64 {
	if s.has {
		s.has = false
		return uint64(int64(math.Round(s.spare * s.std64)))
	}
	u1 := s.uniformFloat()
	u2 := s.uniformFloat()
	r := math.Sqrt(-2 * math.Log(u1))
	s.spare = r * math.Sin(2*math.Pi*u2)
	s.has = true
	return uint64(int64(math.Round(r * math.Cos(2*math.Pi*u2) * s.std64)))
}

// uniformTorus fills dst with uniform torus elements.
func uniformTorus(prng PRNG, dst []uint64) {
	buf := make([]byte, 8*len(dst))
	if _, err := io.ReadFull(prng, buf); err != nil {
		panic("pbs: prng failure: " + err.Error())
	}
	for i := range dst {
		dst[i] = binary.LittleEndian.Uint64(buf[8*i:])
	}
}

// uniformBits fills dst with uniform {0,1} values.
func uniformBits(prng PRNG, dst []uint64) {
	buf := make([]byte, (len(dst)+7)/8)
	if _, err := io.ReadFull(prng, buf); err != nil {
		panic("pbs: prng failure: " + err.Error())
	}
	for i := range dst {
		dst[i] = uint64(buf[i/8]>>(i%8)) & 1
	}
}
