// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
)

// Oracle checks bootstrapped ciphertexts against expected messages under the
// output secret key, and aggregates the residual noise.
type Oracle struct {
	params Parameters
	dec    *Decryptor
}

// NewOracle creates an oracle decrypting under outputKey (the flattened GLWE
// key for post-bootstrap ciphertexts).
func NewOracle(params Parameters, outputKey *LweSecretKey) *Oracle {
	return &Oracle{params: params, dec: NewDecryptor(outputKey)}
}

// CheckResult is the verdict on one ciphertext.
type CheckResult struct {
	// Decrypted is the raw noisy torus plaintext.
	Decrypted uint64
	// Decoded is the rounded message.
	Decoded uint64
	// Want is the expected message.
	Want uint64
	// RawEqual reports whether the raw plaintext equals the exact encoding.
	// A healthy ciphertext is never noiseless, so this is expected false.
	RawEqual bool
	// Noise is the signed distance from the exact encoding of Decoded.
	Noise int64
}

// Ok reports whether the ciphertext decoded to the expected message.
func (r CheckResult) Ok() bool { return r.Decoded == r.Want }

// Check decrypts and decodes ct and compares against the expected message.
func (o *Oracle) Check(ct *LweCiphertext, want uint64) CheckResult {
	decrypted := o.dec.Decrypt(ct)
	decoded := o.params.Decode(decrypted)
	return CheckResult{
		Decrypted: decrypted,
		Decoded:   decoded,
		Want:      want % uint64(o.params.PayloadModulus()),
		RawEqual:  decrypted == o.params.Encode(decoded),
		Noise:     int64(decrypted - o.params.Encode(decoded)),
	}
}

// NoiseReport summarizes the residual noise of a batch, in bits of torus
// amplitude. BudgetBits is log2(delta/2), the decoding failure threshold.
type NoiseReport struct {
	Count      int
	Failures   int
	MeanBits   float64
	StdDevBits float64
	MaxBits    float64
	BudgetBits float64
}

func (r NoiseReport) String() string {
	return fmt.Sprintf("noise over %d samples: mean 2^%.1f, stddev 2^%.1f, max 2^%.1f, budget 2^%.1f, failures %d",
		r.Count, r.MeanBits, r.StdDevBits, r.MaxBits, r.BudgetBits, r.Failures)
}

// Report aggregates per-ciphertext check results into a noise report.
func (o *Oracle) Report(results []CheckResult) (NoiseReport, error) {
	if len(results) == 0 {
		return NoiseReport{}, fmt.Errorf("pbs: empty result set")
	}
	amps := make([]float64, len(results))
	failures := 0
	for i, r := range results {
		amps[i] = math.Abs(float64(r.Noise))
		if !r.Ok() {
			failures++
		}
	}
	mean, err := stats.Mean(amps)
	if err != nil {
		return NoiseReport{}, err
	}
	std, err := stats.StandardDeviation(amps)
	if err != nil {
		return NoiseReport{}, err
	}
	max, err := stats.Max(amps)
	if err != nil {
		return NoiseReport{}, err
	}
	return NoiseReport{
		Count:      len(results),
		Failures:   failures,
		MeanBits:   math.Log2(math.Max(mean, 1)),
		StdDevBits: math.Log2(math.Max(std, 1)),
		MaxBits:    math.Log2(math.Max(max, 1)),
		BudgetBits: math.Log2(float64(o.params.Delta() / 2)),
	}, nil
}
