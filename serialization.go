// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/zeebo/blake3"
)

// Keyset bundles the key material of one parameter set for persistence: the
// input LWE key, the GLWE key, the bootstrap key and optionally a keyswitch
// key.
type Keyset struct {
	Params       ParametersLiteral
	InputKey     *LweSecretKey
	GlweKey      *GlweSecretKey
	BootstrapKey *BootstrapKey
	KeyswitchKey *KeyswitchKey // may be nil
}

// Fingerprint returns the blake3 digest of the serialized keyset, used as a
// cache handle by key stores.
func (ks *Keyset) Fingerprint() ([32]byte, error) {
	data, err := ks.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return blake3.Sum256(data), nil
}

const keysetMagic = uint32(0x50425331) // "PBS1"

// MarshalBinary serializes the keyset to binary format.
func (ks *Keyset) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	w := &stickyWriter{w: &buf}

	w.u32(keysetMagic)
	writeParams(w, ks.Params)
	w.slice(ks.InputKey.bits)
	w.u64(uint64(ks.GlweKey.glweDimension))
	w.u64(uint64(ks.GlweKey.polynomialSize))
	w.slice(ks.GlweKey.bits)
	w.u64(uint64(ks.BootstrapKey.lweDimension))
	w.u64(uint64(ks.BootstrapKey.glweSize))
	w.u64(uint64(ks.BootstrapKey.level))
	w.u64(uint64(ks.BootstrapKey.polynomialSize))
	w.slice(ks.BootstrapKey.data)
	if ks.KeyswitchKey != nil {
		w.u64(1)
		w.u64(uint64(ks.KeyswitchKey.inputDimension))
		w.u64(uint64(ks.KeyswitchKey.outputDimension))
		w.u64(uint64(ks.KeyswitchKey.baseLog))
		w.u64(uint64(ks.KeyswitchKey.level))
		w.slice(ks.KeyswitchKey.data)
	} else {
		w.u64(0)
	}

	if w.err != nil {
		return nil, fmt.Errorf("serialize keyset: %w", w.err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes a keyset from binary format.
func (ks *Keyset) UnmarshalBinary(data []byte) error {
	r := &stickyReader{r: bytes.NewReader(data)}

	if magic := r.u32(); r.err == nil && magic != keysetMagic {
		return fmt.Errorf("deserialize keyset: bad magic 0x%08x", magic)
	}
	ks.Params = readParams(r)
	ks.InputKey = &LweSecretKey{bits: r.slice()}
	ks.GlweKey = &GlweSecretKey{
		glweDimension:  int(r.u64()),
		polynomialSize: int(r.u64()),
		bits:           r.slice(),
	}
	ks.BootstrapKey = &BootstrapKey{
		lweDimension:   int(r.u64()),
		glweSize:       int(r.u64()),
		level:          int(r.u64()),
		polynomialSize: int(r.u64()),
		data:           r.slice(),
	}
	if r.u64() == 1 {
		ks.KeyswitchKey = &KeyswitchKey{
			inputDimension:  int(r.u64()),
			outputDimension: int(r.u64()),
			baseLog:         int(r.u64()),
			level:           int(r.u64()),
			data:            r.slice(),
		}
	} else {
		ks.KeyswitchKey = nil
	}

	if r.err != nil {
		return fmt.Errorf("deserialize keyset: %w", r.err)
	}
	return nil
}

func writeParams(w *stickyWriter, p ParametersLiteral) {
	w.u64(uint64(p.LweDimension))
	w.u64(uint64(p.GlweDimension))
	w.u64(uint64(p.PolynomialSize))
	w.f64(p.LweVariance)
	w.f64(p.GlweVariance)
	w.u64(uint64(p.BaseLog))
	w.u64(uint64(p.Level))
	w.u64(uint64(p.MessageModulus))
	w.u64(uint64(p.CarryModulus))
	w.u64(uint64(p.NumberOfInputs))
	w.u64(uint64(p.Repetitions))
	w.u64(uint64(p.Samples))
	w.u64(uint64(p.GpuIndex))
}

func readParams(r *stickyReader) ParametersLiteral {
	return ParametersLiteral{
		LweDimension:   int(r.u64()),
		GlweDimension:  int(r.u64()),
		PolynomialSize: int(r.u64()),
		LweVariance:    r.f64(),
		GlweVariance:   r.f64(),
		BaseLog:        int(r.u64()),
		Level:          int(r.u64()),
		MessageModulus: int(r.u64()),
		CarryModulus:   int(r.u64()),
		NumberOfInputs: int(r.u64()),
		Repetitions:    int(r.u64()),
		Samples:        int(r.u64()),
		GpuIndex:       int(r.u64()),
	}
}

// stickyWriter accumulates the first write error so marshalling code stays
// linear.
type stickyWriter struct {
	w   io.Writer
	err error
}

func (w *stickyWriter) u32(v uint32) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *stickyWriter) u64(v uint64) {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

func (w *stickyWriter) f64(v float64) { w.u64(math.Float64bits(v)) }

func (w *stickyWriter) slice(v []uint64) {
	w.u64(uint64(len(v)))
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
}

type stickyReader struct {
	r   io.Reader
	err error
}

func (r *stickyReader) u32() uint32 {
	var v uint32
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *stickyReader) u64() uint64 {
	var v uint64
	if r.err == nil {
		r.err = binary.Read(r.r, binary.LittleEndian, &v)
	}
	return v
}

func (r *stickyReader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *stickyReader) slice() []uint64 {
	n := r.u64()
	if r.err != nil {
		return nil
	}
	if n > 1<<32 {
		r.err = fmt.Errorf("slice length %d out of range", n)
		return nil
	}
	v := make([]uint64, n)
	r.err = binary.Read(r.r, binary.LittleEndian, v)
	return v
}
