// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptDecode(t *testing.T) {
	p, kg := testKeyGen(t, "encrypt")
	sk := kg.GenLweSecretKey()

	prng, err := NewKeyedPRNG([]byte("encrypt-noise"))
	require.NoError(t, err)
	enc := NewEncryptor(sk, p.LweVariance(), prng)
	dec := NewDecryptor(sk)

	for msg := uint64(0); msg < uint64(p.PayloadModulus()); msg++ {
		for round := 0; round < 16; round++ {
			ct := enc.Encrypt(p.Encode(msg))

			noisy := dec.Decrypt(ct)
			require.NotEqual(t, p.Encode(msg), noisy, "fresh ciphertext must carry noise")
			require.Less(t, centered(noisy-p.Encode(msg)), p.Delta()/2, "noise past decoding budget")
			require.Equal(t, msg, p.Decode(noisy))
		}
	}
}

func TestEncryptIntoRejectsWrongDimension(t *testing.T) {
	p, kg := testKeyGen(t, "encrypt-dim")
	sk := kg.GenLweSecretKey()
	enc := NewEncryptor(sk, p.LweVariance(), NewPRNG())

	require.Panics(t, func() { enc.EncryptInto(0, NewLweCiphertext(p.LweDimension()+1)) })
	require.Panics(t, func() { NewDecryptor(sk).Decrypt(NewLweCiphertext(p.LweDimension()-1)) })
}

func TestCiphertextClone(t *testing.T) {
	ct := NewLweCiphertext(4)
	ct.Data[0] = 7
	ct.Data[4] = 9

	c := ct.Clone()
	require.Equal(t, ct.Data, c.Data)
	require.Equal(t, 4, c.Dimension())
	require.Equal(t, uint64(9), c.Body())

	c.Data[0] = 1
	require.Equal(t, uint64(7), ct.Data[0])
}

func TestOracleCheckAndReport(t *testing.T) {
	p, kg := testKeyGen(t, "oracle")
	sk := kg.GenLweSecretKey()

	prng, err := NewKeyedPRNG([]byte("oracle-noise"))
	require.NoError(t, err)
	enc := NewEncryptor(sk, p.LweVariance(), prng)
	oracle := NewOracle(p, sk)

	var results []CheckResult
	payload := uint64(p.PayloadModulus())
	for i := 0; i < 32; i++ {
		msg := uint64(i) % payload
		res := oracle.Check(enc.Encrypt(p.Encode(msg)), msg)
		require.True(t, res.Ok(), "round %d decoded %d want %d", i, res.Decoded, res.Want)
		require.False(t, res.RawEqual, "round %d came out noiseless", i)
		require.NotZero(t, res.Noise)
		results = append(results, res)
	}

	report, err := oracle.Report(results)
	require.NoError(t, err)
	require.Equal(t, 32, report.Count)
	require.Zero(t, report.Failures)
	require.Less(t, report.MaxBits, report.BudgetBits)
	require.LessOrEqual(t, report.MeanBits, report.MaxBits)

	_, err = oracle.Report(nil)
	require.Error(t, err)
}

func TestOracleCountsFailures(t *testing.T) {
	p, kg := testKeyGen(t, "oracle-fail")
	sk := kg.GenLweSecretKey()
	oracle := NewOracle(p, sk)

	// A zero ciphertext decrypts to zero; expecting message 1 must fail.
	res := oracle.Check(NewLweCiphertext(sk.Dimension()), 1)
	require.False(t, res.Ok())

	report, err := oracle.Report([]CheckResult{res})
	require.NoError(t, err)
	require.Equal(t, 1, report.Failures)
}
