// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import "fmt"

// BatchLayout addresses the flat buffers of a bootstrap campaign: for every
// repetition (independent key set) and sample (fresh encryption round), one
// batch of NumberOfInputs ciphertexts is bootstrapped in a single call.
type BatchLayout struct {
	repetitions int
	samples     int
	inputs      int
}

// NewBatchLayout derives the layout of a parameter set's campaign.
func NewBatchLayout(p Parameters) BatchLayout {
	return BatchLayout{
		repetitions: p.Repetitions(),
		samples:     p.Samples(),
		inputs:      p.NumberOfInputs(),
	}
}

// Total returns the number of ciphertexts in the campaign.
func (l BatchLayout) Total() int { return l.repetitions * l.samples * l.inputs }

// Index maps (repetition, sample, input) to a flat ciphertext index.
func (l BatchLayout) Index(rep, sample, input int) int {
	if rep < 0 || rep >= l.repetitions || sample < 0 || sample >= l.samples || input < 0 || input >= l.inputs {
		panic(fmt.Sprintf("pbs: batch index (%d,%d,%d) out of layout (%d,%d,%d)",
			rep, sample, input, l.repetitions, l.samples, l.inputs))
	}
	return (rep*l.samples+sample)*l.inputs + input
}

// Offset maps (repetition, sample, input) to a scalar offset into a flat
// buffer of stride scalars per ciphertext.
func (l BatchLayout) Offset(rep, sample, input, stride int) int {
	return l.Index(rep, sample, input) * stride
}
