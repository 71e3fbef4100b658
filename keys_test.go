// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"math"
	"testing"

	"github.com/fhelab/pbs/internal/fft"
	"github.com/stretchr/testify/require"
)

var testLiteral = ParametersLiteral{
	LweDimension: 32, GlweDimension: 2, PolynomialSize: 256,
	LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
	BaseLog: 23, Level: 1,
	MessageModulus: 2, CarryModulus: 1,
	NumberOfInputs: 2, Repetitions: 1, Samples: 2,
}

func testKeyGen(t *testing.T, seed string) (Parameters, *KeyGenerator) {
	t.Helper()
	p, err := NewParameters(testLiteral)
	require.NoError(t, err)
	prng, err := NewKeyedPRNG([]byte(seed))
	require.NoError(t, err)
	return p, NewKeyGenerator(p, prng)
}

func TestKeyGenDimensions(t *testing.T) {
	p, kg := testKeyGen(t, "dims")

	sk := kg.GenLweSecretKey()
	require.Equal(t, p.LweDimension(), sk.Dimension())
	for _, b := range sk.Bits() {
		require.LessOrEqual(t, b, uint64(1))
	}

	glwe := kg.GenGlweSecretKey()
	require.Equal(t, p.OutputLweDimension(), glwe.FlattenedLwe().Dimension())

	bsk := kg.GenBootstrapKey(sk, glwe)
	require.Equal(t, p.BootstrapKeyLen(), bsk.Len())

	fbk := bsk.Fourier()
	require.Equal(t, p.BootstrapKeyLen(), len(fbk.Floats()))
	require.Equal(t, p.LweDimension(), fbk.LweDimension())
	require.Equal(t, p.GlweSize(), fbk.GlweSize())
}

// glweDecrypt recovers the plaintext polynomial of a GLWE ciphertext, exact
// binary products against the key.
func glweDecrypt(p Parameters, sk *GlweSecretKey, ct []uint64) []uint64 {
	n := p.PolynomialSize()
	proc := fft.Get(n)
	pt := append([]uint64(nil), ct[p.GlweDimension()*n:]...)
	maskDot := make([]uint64, n)
	for j := 0; j < p.GlweDimension(); j++ {
		proc.BinaryMulAdd(ct[j*n:(j+1)*n], proc.BinaryFourier(sk.Poly(j)), maskDot)
	}
	for i := range pt {
		pt[i] -= maskDot[i]
	}
	return pt
}

func TestBootstrapKeyRowsEncryptKeyBits(t *testing.T) {
	p, kg := testKeyGen(t, "ggsw-rows")

	sk := kg.GenLweSecretKey()
	glwe := kg.GenGlweSecretKey()
	bsk := kg.GenBootstrapKey(sk, glwe)

	n := p.PolynomialSize()
	rows := p.GlweSize() * p.Level()
	scale := uint64(1) << (64 - uint(p.BaseLog()))
	noiseBound := uint64(1) << 30 // sigma is ~2^24 for the test variance

	// The body-block row (j = k) encrypts s_i * q/B in the plaintext slot;
	// every other coefficient carries only noise.
	for _, bit := range []int{0, 1, p.LweDimension() - 1} {
		row := (bit*rows + p.GlweDimension()*p.Level()) * p.GlweSize() * n
		pt := glweDecrypt(p, glwe, bsk.data[row:row+p.GlweSize()*n])

		want := sk.Bits()[bit] * scale
		require.Less(t, centered(pt[0]-want), noiseBound, "bit %d constant term", bit)
		for i := 1; i < n; i++ {
			require.Less(t, centered(pt[i]), noiseBound, "bit %d coeff %d", bit, i)
		}
	}
}

func centered(v uint64) uint64 {
	if v >= 1<<63 {
		return -v
	}
	return v
}

func TestBootstrapKeyCloneIsIndependent(t *testing.T) {
	_, kg := testKeyGen(t, "clone")
	bsk := kg.GenBootstrapKey(kg.GenLweSecretKey(), kg.GenGlweSecretKey())

	clone := bsk.Clone()
	require.Equal(t, bsk.data, clone.data)

	clone.data[0]++
	require.NotEqual(t, bsk.data[0], clone.data[0], "clone must not alias the original")

	fbk := bsk.Fourier()
	fclone := fbk.Clone()
	require.Equal(t, fbk.Floats(), fclone.Floats())

	// Fourier lanes sit near 2^67, where +1 is below one ulp; perturb by at
	// least the lane's own magnitude so the write is representable.
	lane := fclone.data[0]
	fclone.data[0] = lane + complex(math.Max(1, math.Abs(real(lane))), 0)
	require.NotEqual(t, fbk.data[0], fclone.data[0], "clone must not alias the original")
	require.Equal(t, fbk.data[1:], fclone.data[1:])
}

func TestKeyswitchKeyShape(t *testing.T) {
	p, kg := testKeyGen(t, "ksk")

	glwe := kg.GenGlweSecretKey()
	out := kg.GenLweSecretKey()
	kp := KeyswitchParameters{BaseLog: 3, Level: 5}
	ksk := kg.GenKeyswitchKey(glwe.FlattenedLwe(), out, kp)

	require.Equal(t, p.OutputLweDimension(), ksk.InputDimension())
	require.Equal(t, p.LweDimension(), ksk.OutputDimension())
	require.Equal(t, kp.BaseLog, ksk.BaseLog())
	require.Equal(t, kp.Level, ksk.Level())
	require.Len(t, ksk.Data(), p.OutputLweDimension()*kp.Level*(p.LweDimension()+1))

	require.Panics(t, func() {
		kg.GenKeyswitchKey(glwe.FlattenedLwe(), out, KeyswitchParameters{BaseLog: 33, Level: 2})
	})
}

func TestKeyedPRNGIsDeterministic(t *testing.T) {
	_, kgA := testKeyGen(t, "same-seed")
	_, kgB := testKeyGen(t, "same-seed")
	require.Equal(t, kgA.GenLweSecretKey().Bits(), kgB.GenLweSecretKey().Bits())

	_, kgC := testKeyGen(t, "other-seed")
	require.NotEqual(t, kgA.GenLweSecretKey().Bits(), kgC.GenLweSecretKey().Bits())
}
