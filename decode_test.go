// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	for _, lit := range []ParametersLiteral{PBS567N256, PBS754N2048} {
		p, err := NewParameters(lit)
		require.NoError(t, err)
		for msg := uint64(0); msg < uint64(p.PayloadModulus()); msg++ {
			require.Equal(t, msg, p.Decode(p.Encode(msg)))
		}
	}
}

func TestDecodeToleratesNoiseUnderHalfDelta(t *testing.T) {
	p, err := NewParameters(PBS754N2048)
	require.NoError(t, err)

	half := p.Delta() / 2
	for msg := uint64(0); msg < uint64(p.PayloadModulus()); msg++ {
		pt := p.Encode(msg)
		require.Equal(t, msg, p.Decode(pt+half-1), "msg %d, +noise", msg)
		require.Equal(t, msg, p.Decode(pt-half+1), "msg %d, -noise", msg)
	}
}

func TestDecodeWrapsAtPayload(t *testing.T) {
	p, err := NewParameters(PBS754N2048)
	require.NoError(t, err)

	// Noise past half delta above the top message rounds up and wraps to 0.
	top := uint64(p.PayloadModulus() - 1)
	require.Equal(t, uint64(0), p.Decode(p.Encode(top)+p.Delta()/2+1))
}

func TestBatchLayout(t *testing.T) {
	p, err := NewParameters(PBS769N1024)
	require.NoError(t, err)

	l := NewBatchLayout(p)
	require.Equal(t, 2*50*5, l.Total())
	require.Equal(t, 0, l.Index(0, 0, 0))
	require.Equal(t, 5, l.Index(0, 1, 0))
	require.Equal(t, 50*5, l.Index(1, 0, 0))
	require.Equal(t, l.Total()-1, l.Index(1, 49, 4))
	require.Equal(t, 2*p.InputLweSize(), l.Offset(0, 0, 2, p.InputLweSize()))

	require.Panics(t, func() { l.Index(2, 0, 0) })
	require.Panics(t, func() { l.Index(0, 0, 5) })
	require.Panics(t, func() { l.Index(0, -1, 0) })
}
