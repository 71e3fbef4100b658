// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"fmt"
	"math/bits"
)

// ParametersLiteral is a user-facing programmable-bootstrap parameter
// specification. It carries the thirteen scalars a caller (compiler-emitted
// code or a test harness) supplies for one PBS configuration.
type ParametersLiteral struct {
	// LweDimension is the input LWE dimension n.
	LweDimension int
	// GlweDimension is the GLWE dimension k.
	GlweDimension int
	// PolynomialSize is the GLWE polynomial degree N (power of two).
	PolynomialSize int
	// LweVariance is the modular noise variance of input LWE samples.
	LweVariance float64
	// GlweVariance is the modular noise variance of the bootstrap key rows.
	GlweVariance float64
	// BaseLog is log2 of the gadget decomposition base for the bootstrap key.
	BaseLog int
	// Level is the gadget decomposition level count.
	Level int
	// MessageModulus is the number of message values per plaintext.
	MessageModulus int
	// CarryModulus is the carry space multiplier.
	CarryModulus int
	// NumberOfInputs is the ciphertext batch width per bootstrap call.
	NumberOfInputs int
	// Repetitions is the number of independent key sets to exercise.
	Repetitions int
	// Samples is the number of fresh encryption rounds per key set.
	Samples int
	// GpuIndex is the target accelerator for this configuration.
	GpuIndex int
}

// Parameters is a validated, immutable PBS parameter set.
type Parameters struct {
	lweDimension   int
	glweDimension  int
	polynomialSize int
	lweVariance    float64
	glweVariance   float64
	baseLog        int
	level          int
	messageModulus int
	carryModulus   int
	numberOfInputs int
	repetitions    int
	samples        int
	gpuIndex       int
}

// Parameter sets mirroring the reference coverage grid. Variances target
// 128-bit security for the associated dimensions.
var (
	// PBS567N256 is the smallest grid entry; fastest for tests.
	PBS567N256 = ParametersLiteral{
		LweDimension: 567, GlweDimension: 5, PolynomialSize: 256,
		LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
		BaseLog: 15, Level: 1,
		MessageModulus: 2, CarryModulus: 1,
		NumberOfInputs: 5, Repetitions: 2, Samples: 5,
	}

	// PBS769N1024 is the canonical boolean parameter set.
	PBS769N1024 = ParametersLiteral{
		LweDimension: 769, GlweDimension: 2, PolynomialSize: 1024,
		LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
		BaseLog: 23, Level: 1,
		MessageModulus: 2, CarryModulus: 1,
		NumberOfInputs: 5, Repetitions: 2, Samples: 50,
	}

	// PBS754N2048 carries a 2-bit message space.
	PBS754N2048 = ParametersLiteral{
		LweDimension: 754, GlweDimension: 1, PolynomialSize: 2048,
		LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
		BaseLog: 23, Level: 1,
		MessageModulus: 4, CarryModulus: 1,
		NumberOfInputs: 5, Repetitions: 2, Samples: 50,
	}

	// PBS847N4096 uses a deep decomposition; its occupancy footprint makes
	// it the canonical probe for the low-latency feasibility bound.
	PBS847N4096 = ParametersLiteral{
		LweDimension: 847, GlweDimension: 1, PolynomialSize: 4096,
		LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
		BaseLog: 2, Level: 12,
		MessageModulus: 2, CarryModulus: 1,
		NumberOfInputs: 2, Repetitions: 1, Samples: 50,
	}
)

// NewParameters validates a literal and compiles it into Parameters.
func NewParameters(lit ParametersLiteral) (Parameters, error) {
	switch {
	case lit.LweDimension < 1:
		return Parameters{}, fmt.Errorf("pbs: lwe dimension must be >= 1, got %d", lit.LweDimension)
	case lit.GlweDimension < 1:
		return Parameters{}, fmt.Errorf("pbs: glwe dimension must be >= 1, got %d", lit.GlweDimension)
	case lit.PolynomialSize < 2 || bits.OnesCount(uint(lit.PolynomialSize)) != 1:
		return Parameters{}, fmt.Errorf("pbs: polynomial size must be a power of two >= 2, got %d", lit.PolynomialSize)
	case lit.BaseLog < 1 || lit.Level < 1:
		return Parameters{}, fmt.Errorf("pbs: decomposition base log and level must be >= 1, got %d/%d", lit.BaseLog, lit.Level)
	case lit.BaseLog*lit.Level > 64:
		return Parameters{}, fmt.Errorf("pbs: decomposition exceeds the 64-bit torus: base log %d * level %d", lit.BaseLog, lit.Level)
	case lit.MessageModulus < 1 || lit.CarryModulus < 1:
		return Parameters{}, fmt.Errorf("pbs: message and carry moduli must be >= 1, got %d/%d", lit.MessageModulus, lit.CarryModulus)
	case lit.LweVariance <= 0 || lit.GlweVariance <= 0:
		return Parameters{}, fmt.Errorf("pbs: noise variances must be positive")
	case lit.NumberOfInputs < 1:
		return Parameters{}, fmt.Errorf("pbs: number of inputs must be >= 1, got %d", lit.NumberOfInputs)
	case lit.Repetitions < 1 || lit.Samples < 1:
		return Parameters{}, fmt.Errorf("pbs: repetitions and samples must be >= 1, got %d/%d", lit.Repetitions, lit.Samples)
	case lit.GpuIndex < 0:
		return Parameters{}, fmt.Errorf("pbs: gpu index must be >= 0, got %d", lit.GpuIndex)
	}

	payload := lit.MessageModulus * lit.CarryModulus
	if 2*payload > lit.PolynomialSize {
		return Parameters{}, fmt.Errorf("pbs: payload modulus %d too large for polynomial size %d", payload, lit.PolynomialSize)
	}

	return Parameters{
		lweDimension:   lit.LweDimension,
		glweDimension:  lit.GlweDimension,
		polynomialSize: lit.PolynomialSize,
		lweVariance:    lit.LweVariance,
		glweVariance:   lit.GlweVariance,
		baseLog:        lit.BaseLog,
		level:          lit.Level,
		messageModulus: lit.MessageModulus,
		carryModulus:   lit.CarryModulus,
		numberOfInputs: lit.NumberOfInputs,
		repetitions:    lit.Repetitions,
		samples:        lit.Samples,
		gpuIndex:       lit.GpuIndex,
	}, nil
}

// Literal returns the literal this parameter set was compiled from.
func (p Parameters) Literal() ParametersLiteral {
	return ParametersLiteral{
		LweDimension:   p.lweDimension,
		GlweDimension:  p.glweDimension,
		PolynomialSize: p.polynomialSize,
		LweVariance:    p.lweVariance,
		GlweVariance:   p.glweVariance,
		BaseLog:        p.baseLog,
		Level:          p.level,
		MessageModulus: p.messageModulus,
		CarryModulus:   p.carryModulus,
		NumberOfInputs: p.numberOfInputs,
		Repetitions:    p.repetitions,
		Samples:        p.samples,
		GpuIndex:       p.gpuIndex,
	}
}

// LweDimension returns the input LWE dimension n.
func (p Parameters) LweDimension() int { return p.lweDimension }

// GlweDimension returns the GLWE dimension k.
func (p Parameters) GlweDimension() int { return p.glweDimension }

// PolynomialSize returns the GLWE polynomial degree N.
func (p Parameters) PolynomialSize() int { return p.polynomialSize }

// LweVariance returns the input LWE modular noise variance.
func (p Parameters) LweVariance() float64 { return p.lweVariance }

// GlweVariance returns the bootstrap key modular noise variance.
func (p Parameters) GlweVariance() float64 { return p.glweVariance }

// BaseLog returns log2 of the gadget decomposition base.
func (p Parameters) BaseLog() int { return p.baseLog }

// Level returns the gadget decomposition level count.
func (p Parameters) Level() int { return p.level }

// MessageModulus returns the message modulus.
func (p Parameters) MessageModulus() int { return p.messageModulus }

// CarryModulus returns the carry modulus.
func (p Parameters) CarryModulus() int { return p.carryModulus }

// NumberOfInputs returns the batch width per bootstrap call.
func (p Parameters) NumberOfInputs() int { return p.numberOfInputs }

// Repetitions returns the independent key set count.
func (p Parameters) Repetitions() int { return p.repetitions }

// Samples returns the encryption rounds per key set.
func (p Parameters) Samples() int { return p.samples }

// GpuIndex returns the target accelerator index.
func (p Parameters) GpuIndex() int { return p.gpuIndex }

// PayloadModulus returns message_modulus * carry_modulus, the number of
// usable plaintext values.
func (p Parameters) PayloadModulus() int { return p.messageModulus * p.carryModulus }

// Delta returns the plaintext scaling factor 2^64 / (payload * 2). The factor
// of two keeps a padding bit above the message for the negacyclic rotation.
func (p Parameters) Delta() uint64 {
	return (1 << 63) / uint64(p.PayloadModulus())
}

// OutputLweDimension returns k*N, the dimension of bootstrapped ciphertexts.
func (p Parameters) OutputLweDimension() int { return p.glweDimension * p.polynomialSize }

// InputLweSize returns n+1, the scalar count of one input ciphertext.
func (p Parameters) InputLweSize() int { return p.lweDimension + 1 }

// OutputLweSize returns k*N+1, the scalar count of one output ciphertext.
func (p Parameters) OutputLweSize() int { return p.OutputLweDimension() + 1 }

// GlweSize returns k+1, the polynomial count of one GLWE ciphertext.
func (p Parameters) GlweSize() int { return p.glweDimension + 1 }

// LutSize returns the scalar count of one lookup table in GLWE layout.
func (p Parameters) LutSize() int { return p.GlweSize() * p.polynomialSize }

// BootstrapKeyLen returns the scalar count of one bootstrap key:
// n GGSW ciphertexts of (k+1)*level rows, each row k+1 polynomials.
func (p Parameters) BootstrapKeyLen() int {
	return p.lweDimension * p.GlweSize() * p.level * p.GlweSize() * p.polynomialSize
}

// BootstrapKeyDeviceLen returns the per-repetition device allocation stride
// for a Fourier bootstrap key: (k+1)^2 * level * N * (n+1) scalars. The
// trailing (n+1) leaves one GGSW of headroom over the n populated entries so
// kernels may prefetch past the last key bit.
func (p Parameters) BootstrapKeyDeviceLen() int {
	g := p.GlweSize()
	return g * g * p.level * p.polynomialSize * (p.lweDimension + 1)
}
