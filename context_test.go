// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pbs

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testContextKey(t *testing.T) (Parameters, *FourierBootstrapKey) {
	t.Helper()
	// Tiny dimensions: context semantics do not depend on the PBS scalars.
	p, err := NewParameters(ParametersLiteral{
		LweDimension: 8, GlweDimension: 1, PolynomialSize: 64,
		LweVariance: 7.52316384526264e-25, GlweVariance: 7.52316384526264e-25,
		BaseLog: 23, Level: 1,
		MessageModulus: 2, CarryModulus: 1,
		NumberOfInputs: 1, Repetitions: 1, Samples: 1,
	})
	require.NoError(t, err)

	prng, err := NewKeyedPRNG([]byte("context-test"))
	require.NoError(t, err)
	kg := NewKeyGenerator(p, prng)
	bsk := kg.GenBootstrapKey(kg.GenLweSecretKey(), kg.GenGlweSecretKey())
	return p, bsk.Fourier()
}

func TestContextSharedByDefault(t *testing.T) {
	p, fbk := testContextKey(t)
	ctx := NewRuntimeContext(p, fbk)
	defer ctx.Close()

	a := ctx.BootstrapKey(BaseKeyID, "worker-0")
	b := ctx.BootstrapKey(BaseKeyID, "worker-1")
	require.Same(t, fbk, a)
	require.Same(t, a, b)
	require.Empty(t, ctx.ClonedIdentities(BaseKeyID))
}

func TestContextClonesPerIdentity(t *testing.T) {
	p, fbk := testContextKey(t)
	ctx := NewRuntimeContext(p, fbk, WithConcurrentExecution())
	defer ctx.Close()

	a := ctx.BootstrapKey(BaseKeyID, "worker-0")
	b := ctx.BootstrapKey(BaseKeyID, "worker-1")
	again := ctx.BootstrapKey(BaseKeyID, "worker-0")

	require.NotSame(t, fbk, a)
	require.NotSame(t, a, b)
	require.Same(t, a, again, "same identity must resolve to the same clone")
	require.Equal(t, fbk.Floats(), a.Floats(), "clone must be semantically identical")
	require.Equal(t, []string{"worker-0", "worker-1"}, ctx.ClonedIdentities(BaseKeyID))
}

func TestContextConcurrentResolutionClonesOnce(t *testing.T) {
	p, fbk := testContextKey(t)
	ctx := NewRuntimeContext(p, fbk, WithConcurrentExecution())
	defer ctx.Close()

	const workers = 8
	const callsPerWorker = 16

	got := make([][]*FourierBootstrapKey, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("worker-%d", w)
			for c := 0; c < callsPerWorker; c++ {
				got[w] = append(got[w], ctx.BootstrapKey(BaseKeyID, id))
			}
		}(w)
	}
	wg.Wait()

	seen := map[*FourierBootstrapKey]bool{}
	for w := 0; w < workers; w++ {
		for _, k := range got[w] {
			require.Same(t, got[w][0], k, "worker %d saw more than one clone", w)
		}
		require.False(t, seen[got[w][0]], "clone shared across identities")
		seen[got[w][0]] = true
	}
	require.Len(t, ctx.ClonedIdentities(BaseKeyID), workers)
}

func TestContextPanicsOnMissingKey(t *testing.T) {
	p, fbk := testContextKey(t)
	ctx := NewRuntimeContext(p, fbk)
	defer ctx.Close()

	require.Panics(t, func() { ctx.BootstrapKey("no-such-key", "worker-0") })
}

func TestContextSecondaryKeyAndClose(t *testing.T) {
	p, fbk := testContextKey(t)
	other := fbk.Clone()

	ctx := NewRuntimeContext(p, fbk, WithConcurrentExecution())
	ctx.RegisterBootstrapKey("aux_bsk", other)

	require.NotSame(t, ctx.BootstrapKey(BaseKeyID, "w"), ctx.BootstrapKey("aux_bsk", "w"))
	require.Equal(t, []string{"w"}, ctx.ClonedIdentities("aux_bsk"))

	ctx.Close()
	require.Empty(t, ctx.ClonedIdentities("aux_bsk"))
}
