// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"fmt"

	"github.com/fhelab/pbs/internal/fft"
)

// LweSecretKey is a binary LWE secret key. Input keys have dimension n;
// output keys are flattened GLWE keys of dimension k*N.
type LweSecretKey struct {
	bits []uint64
}

// Dimension returns the key dimension.
func (k *LweSecretKey) Dimension() int { return len(k.bits) }

// Bits exposes the key bits for decryption. Callers must not mutate.
func (k *LweSecretKey) Bits() []uint64 { return k.bits }

// Clone deep-copies the key.
func (k *LweSecretKey) Clone() *LweSecretKey {
	return &LweSecretKey{bits: append([]uint64(nil), k.bits...)}
}

// GlweSecretKey is a binary GLWE secret key: k polynomials of degree N.
type GlweSecretKey struct {
	glweDimension  int
	polynomialSize int
	bits           []uint64 // k polynomials, flattened
}

// Poly returns the j-th key polynomial.
func (k *GlweSecretKey) Poly(j int) []uint64 {
	n := k.polynomialSize
	return k.bits[j*n : (j+1)*n]
}

// FlattenedLwe reinterprets the GLWE key as an LWE key of dimension k*N.
// Bootstrapped ciphertexts decrypt under this key.
func (k *GlweSecretKey) FlattenedLwe() *LweSecretKey {
	return &LweSecretKey{bits: append([]uint64(nil), k.bits...)}
}

// BootstrapKey holds n GGSW encryptions of the input key bits under the GLWE
// key, in the standard (coefficient) domain. Immutable once generated.
type BootstrapKey struct {
	lweDimension   int
	glweSize       int
	level          int
	polynomialSize int
	data           []uint64 // [bit][row][component][N]
}

// Len returns the scalar count of the key.
func (bk *BootstrapKey) Len() int { return len(bk.data) }

func (bk *BootstrapKey) poly(bit, row, comp int) []uint64 {
	n := bk.polynomialSize
	rows := bk.glweSize * bk.level
	off := ((bit*rows+row)*bk.glweSize + comp) * n
	return bk.data[off : off+n]
}

// Clone deep-copies the key. Cloning exists to give each execution unit its
// own device-resident instance; the copy has identical semantics.
func (bk *BootstrapKey) Clone() *BootstrapKey {
	c := *bk
	c.data = append([]uint64(nil), bk.data...)
	return &c
}

// Fourier converts the key into the evaluation-domain representation the
// bootstrap kernels consume.
func (bk *BootstrapKey) Fourier() *FourierBootstrapKey {
	n := bk.polynomialSize
	proc := fft.Get(n)
	fbk := &FourierBootstrapKey{
		lweDimension:   bk.lweDimension,
		glweSize:       bk.glweSize,
		level:          bk.level,
		polynomialSize: n,
		data:           make([]complex128, len(bk.data)/2),
	}
	half := n / 2
	rows := bk.glweSize * bk.level
	idx := 0
	for bit := 0; bit < bk.lweDimension; bit++ {
		for row := 0; row < rows; row++ {
			for comp := 0; comp < bk.glweSize; comp++ {
				proc.Forward(bk.poly(bit, row, comp), fbk.data[idx:idx+half])
				idx += half
			}
		}
	}
	return fbk
}

// FourierBootstrapKey is the Fourier-domain bootstrap key: every GGSW row
// polynomial stored as N/2 complex evaluation points.
type FourierBootstrapKey struct {
	lweDimension   int
	glweSize       int
	level          int
	polynomialSize int
	data           []complex128
}

// LweDimension returns the input LWE dimension n.
func (fbk *FourierBootstrapKey) LweDimension() int { return fbk.lweDimension }

// GlweSize returns k+1.
func (fbk *FourierBootstrapKey) GlweSize() int { return fbk.glweSize }

// Level returns the decomposition level count.
func (fbk *FourierBootstrapKey) Level() int { return fbk.level }

// PolynomialSize returns N.
func (fbk *FourierBootstrapKey) PolynomialSize() int { return fbk.polynomialSize }

// Poly returns the Fourier image of one GGSW row polynomial.
func (fbk *FourierBootstrapKey) Poly(bit, row, comp int) []complex128 {
	half := fbk.polynomialSize / 2
	rows := fbk.glweSize * fbk.level
	off := ((bit*rows+row)*fbk.glweSize + comp) * half
	return fbk.data[off : off+half]
}

// Clone deep-copies the key.
func (fbk *FourierBootstrapKey) Clone() *FourierBootstrapKey {
	c := *fbk
	c.data = append([]complex128(nil), fbk.data...)
	return &c
}

// Floats flattens the key to interleaved (re, im) float64 pairs, the device
// upload format.
func (fbk *FourierBootstrapKey) Floats() []float64 {
	out := make([]float64, 2*len(fbk.data))
	for i, c := range fbk.data {
		out[2*i] = real(c)
		out[2*i+1] = imag(c)
	}
	return out
}

// KeyswitchParameters carries the gadget decomposition of a keyswitch key.
// These are evaluation-key parameters, separate from the PBS scalar set.
type KeyswitchParameters struct {
	BaseLog int
	Level   int
}

// KeyswitchKey converts ciphertexts from the bootstrap output key basis
// (dimension k*N) back to the input key basis (dimension n). Owned once per
// runtime context, never thread-partitioned: keyswitching reads it only.
type KeyswitchKey struct {
	inputDimension  int
	outputDimension int
	baseLog         int
	level           int
	data            []uint64 // [i][l][outputDimension+1]
}

// InputDimension returns the dimension keyswitched from.
func (k *KeyswitchKey) InputDimension() int { return k.inputDimension }

// OutputDimension returns the dimension keyswitched to.
func (k *KeyswitchKey) OutputDimension() int { return k.outputDimension }

// BaseLog returns log2 of the keyswitch decomposition base.
func (k *KeyswitchKey) BaseLog() int { return k.baseLog }

// Level returns the keyswitch decomposition level count.
func (k *KeyswitchKey) Level() int { return k.level }

// Data exposes the raw rows for device upload. Callers must not mutate.
func (k *KeyswitchKey) Data() []uint64 { return k.data }

// Clone deep-copies the key.
func (k *KeyswitchKey) Clone() *KeyswitchKey {
	c := *k
	c.data = append([]uint64(nil), k.data...)
	return &c
}

// KeyGenerator derives key material for one parameter set.
type KeyGenerator struct {
	params Parameters
	prng   PRNG
}

// NewKeyGenerator creates a key generator drawing from prng. Pass a
// KeyedPRNG for reproducible keys, NewPRNG() otherwise.
func NewKeyGenerator(params Parameters, prng PRNG) *KeyGenerator {
	return &KeyGenerator{params: params, prng: prng}
}

// GenLweSecretKey samples a fresh binary input key of dimension n.
func (g *KeyGenerator) GenLweSecretKey() *LweSecretKey {
	bits := make([]uint64, g.params.LweDimension())
	uniformBits(g.prng, bits)
	return &LweSecretKey{bits: bits}
}

// GenGlweSecretKey samples a fresh binary GLWE key (k polynomials of N bits).
func (g *KeyGenerator) GenGlweSecretKey() *GlweSecretKey {
	bits := make([]uint64, g.params.GlweDimension()*g.params.PolynomialSize())
	uniformBits(g.prng, bits)
	return &GlweSecretKey{
		glweDimension:  g.params.GlweDimension(),
		polynomialSize: g.params.PolynomialSize(),
		bits:           bits,
	}
}

// GenBootstrapKey encrypts every bit of in under out as a GGSW ciphertext.
func (g *KeyGenerator) GenBootstrapKey(in *LweSecretKey, out *GlweSecretKey) *BootstrapKey {
	p := g.params
	if in.Dimension() != p.LweDimension() {
		panic(fmt.Sprintf("pbs: bootstrap key input dimension %d, want %d", in.Dimension(), p.LweDimension()))
	}
	n := p.PolynomialSize()
	glweSize := p.GlweSize()
	rows := glweSize * p.Level()

	bk := &BootstrapKey{
		lweDimension:   p.LweDimension(),
		glweSize:       glweSize,
		level:          p.Level(),
		polynomialSize: n,
		data:           make([]uint64, p.BootstrapKeyLen()),
	}

	proc := fft.Get(n)
	skF := make([][]complex128, p.GlweDimension())
	for j := range skF {
		skF[j] = proc.BinaryFourier(out.Poly(j))
	}
	noise := newGaussianSampler(g.prng, p.GlweVariance())

	ct := make([]uint64, glweSize*n)
	for bit := 0; bit < p.LweDimension(); bit++ {
		for j := 0; j < glweSize; j++ { // gadget column block
			for l := 0; l < p.Level(); l++ {
				g.encryptGlweZero(proc, skF, noise, ct)
				if in.bits[bit] == 1 {
					// m * q/B^(l+1) on component j, constant coefficient.
					ct[j*n] += 1 << (64 - uint(p.BaseLog()*(l+1)))
				}
				copy(bk.data[((bit*rows+j*p.Level()+l)*glweSize)*n:], ct)
			}
		}
	}
	return bk
}

// encryptGlweZero writes a fresh GLWE encryption of zero into ct
// (k mask polynomials followed by the body polynomial).
func (g *KeyGenerator) encryptGlweZero(proc *fft.Processor, skF [][]complex128, noise *gaussianSampler, ct []uint64) {
	p := g.params
	n := p.PolynomialSize()
	body := ct[p.GlweDimension()*n:]
	uniformTorus(g.prng, ct[:p.GlweDimension()*n])
	for i := range body {
		body[i] = noise.sample()
	}
	for j := 0; j < p.GlweDimension(); j++ {
		proc.BinaryMulAdd(ct[j*n:(j+1)*n], skF[j], body)
	}
}

// GenKeyswitchKey encrypts the gadget decomposition of in's bits under out.
// in is the bootstrap output key (dimension k*N), out the original input key.
func (g *KeyGenerator) GenKeyswitchKey(in, out *LweSecretKey, kp KeyswitchParameters) *KeyswitchKey {
	if kp.BaseLog < 1 || kp.Level < 1 || kp.BaseLog*kp.Level > 64 {
		panic(fmt.Sprintf("pbs: invalid keyswitch decomposition %d/%d", kp.BaseLog, kp.Level))
	}
	outSize := out.Dimension() + 1
	ksk := &KeyswitchKey{
		inputDimension:  in.Dimension(),
		outputDimension: out.Dimension(),
		baseLog:         kp.BaseLog,
		level:           kp.Level,
		data:            make([]uint64, in.Dimension()*kp.Level*outSize),
	}
	noise := newGaussianSampler(g.prng, g.params.LweVariance())
	for i := 0; i < in.Dimension(); i++ {
		for l := 0; l < kp.Level; l++ {
			msg := in.bits[i] << (64 - uint(kp.BaseLog*(l+1)))
			ct := ksk.data[(i*kp.Level+l)*outSize : (i*kp.Level+l+1)*outSize]
			encryptLwe(g.prng, noise, out.bits, msg, ct)
		}
	}
	return ksk
}
