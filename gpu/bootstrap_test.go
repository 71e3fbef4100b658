// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"testing"

	"github.com/fhelab/pbs"
	"github.com/stretchr/testify/require"
)

// runBootstrapScenario drives the full pipeline for one parameter set: one
// keyset per repetition, all bootstrap keys resident at the device stride,
// fresh encryptions per sample, identity table, decode check per input.
func runBootstrapScenario(t *testing.T, lit pbs.ParametersLiteral, variant Variant) {
	t.Helper()
	params, err := pbs.NewParameters(lit)
	require.NoError(t, err)

	session, err := NewSession(params.GpuIndex())
	require.NoError(t, err)
	defer session.Close()

	if variant == LowLatency && !LowLatencyFeasible(session.Device(), params) {
		t.Skipf("low-latency bootstrap needs %d block groups, device %s fits %d",
			params.NumberOfInputs(), session.Device().Name, LowLatencyCapacity(session.Device(), params))
	}

	prng, err := pbs.NewKeyedPRNG([]byte("bootstrap-scenario"))
	require.NoError(t, err)
	kg := pbs.NewKeyGenerator(params, prng)

	type keyset struct {
		in   *pbs.LweSecretKey
		glwe *pbs.GlweSecretKey
	}
	keysets := make([]keyset, params.Repetitions())
	fbks := make([]*pbs.FourierBootstrapKey, params.Repetitions())
	for r := range keysets {
		in := kg.GenLweSecretKey()
		glwe := kg.GenGlweSecretKey()
		keysets[r] = keyset{in: in, glwe: glwe}
		fbks[r] = kg.GenBootstrapKey(in, glwe).Fourier()
	}

	bskBuf := UploadBootstrapKeys(session, params, fbks)

	lut := params.IdentityLookupTable()
	lutBuf := Alloc[uint64](session, len(lut))
	lutBuf.CopyToDevice(lut, 0)

	inputs := params.NumberOfInputs()
	lutIndexes := make([]int, inputs)
	scratch := AllocateScratch(session, params, variant, inputs)
	inBuf := Alloc[uint64](session, inputs*params.InputLweSize())
	outBuf := Alloc[uint64](session, inputs*params.OutputLweSize())

	layout := pbs.NewBatchLayout(params)
	payload := uint64(params.PayloadModulus())

	for r := 0; r < params.Repetitions(); r++ {
		enc := pbs.NewEncryptor(keysets[r].in, params.LweVariance(), prng)
		oracle := pbs.NewOracle(params, keysets[r].glwe.FlattenedLwe())
		var results []pbs.CheckResult

		for s := 0; s < params.Samples(); s++ {
			host := make([]uint64, inputs*params.InputLweSize())
			msgs := make([]uint64, inputs)
			ct := pbs.NewLweCiphertext(params.LweDimension())
			for j := 0; j < inputs; j++ {
				msgs[j] = uint64(layout.Index(r, s, j)) % payload
				enc.EncryptInto(params.Encode(msgs[j]), ct)
				copy(host[j*params.InputLweSize():], ct.Data)
			}
			inBuf.CopyToDevice(host, 0)

			require.NoError(t, Bootstrap(session, params, variant, bskBuf, r, lutBuf, lutIndexes, inBuf, outBuf, inputs, scratch))

			outHost := outBuf.CopyFromDevice(0, inputs*params.OutputLweSize())
			for j := 0; j < inputs; j++ {
				res := oracle.Check(&pbs.LweCiphertext{
					Data: outHost[j*params.OutputLweSize() : (j+1)*params.OutputLweSize()],
				}, msgs[j])
				require.True(t, res.Ok(), "rep %d sample %d input %d: decoded %d want %d (noise %d)",
					r, s, j, res.Decoded, res.Want, res.Noise)
				require.False(t, res.RawEqual, "rep %d sample %d input %d came out noiseless", r, s, j)
				results = append(results, res)
			}
		}

		report, err := oracle.Report(results)
		require.NoError(t, err)
		require.Zero(t, report.Failures)
		require.Less(t, report.MaxBits, report.BudgetBits, "rep %d: %s", r, report)
	}
}

func TestBootstrapAmortized(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bootstrap campaign in short mode")
	}
	lit := pbs.PBS769N1024
	lit.Samples = 2
	runBootstrapScenario(t, lit, Amortized)
}

func TestBootstrapLowLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bootstrap campaign in short mode")
	}
	lit := pbs.PBS567N256
	lit.Repetitions = 1
	lit.Samples = 2
	runBootstrapScenario(t, lit, LowLatency)
}

func TestBootstrapVariantsAgreeOnDecode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping bootstrap campaign in short mode")
	}
	lit := pbs.PBS567N256
	lit.Repetitions = 1
	lit.Samples = 1
	runBootstrapScenario(t, lit, Amortized)
	runBootstrapScenario(t, lit, LowLatency)
}

func TestLowLatencyCapacity(t *testing.T) {
	dev := Device{SMCount: 108}

	p769, err := pbs.NewParameters(pbs.PBS769N1024)
	require.NoError(t, err)
	p847, err := pbs.NewParameters(pbs.PBS847N4096)
	require.NoError(t, err)

	// (k+1)*level = 3 vs 24: capacity shrinks as the grid deepens.
	require.Equal(t, 144, LowLatencyCapacity(dev, p769))
	require.Equal(t, 18, LowLatencyCapacity(dev, p847))
	require.Greater(t, LowLatencyCapacity(dev, p769), LowLatencyCapacity(dev, p847))

	require.True(t, LowLatencyFeasible(dev, p769))
	require.True(t, LowLatencyFeasible(dev, p847))
	require.False(t, LowLatencyFeasible(Device{SMCount: 4}, p847))
}

func TestBootstrapRejectsInfeasibleLowLatency(t *testing.T) {
	// A constrained device: 4 SMs fit 16 block groups, PBS847 needs 24 per
	// input.
	idx := RegisterDevice(Device{Name: "sim-edge", SMCount: 4, MaxSharedMemory: 48 << 10, TotalMemory: 1 << 30})
	session, err := NewSession(idx)
	require.NoError(t, err)
	defer session.Close()

	params, err := pbs.NewParameters(pbs.PBS847N4096)
	require.NoError(t, err)

	inputs := params.NumberOfInputs()
	scratch := AllocateScratch(session, params, LowLatency, inputs)
	bskBuf := Alloc[float64](session, params.BootstrapKeyDeviceLen())
	lutBuf := Alloc[uint64](session, params.LutSize())
	inBuf := Alloc[uint64](session, inputs*params.InputLweSize())
	outBuf := Alloc[uint64](session, inputs*params.OutputLweSize())

	err = Bootstrap(session, params, LowLatency, bskBuf, 0, lutBuf, make([]int, inputs), inBuf, outBuf, inputs, scratch)
	require.ErrorIs(t, err, ErrLowLatencyInfeasible)

	// The feasibility bound is the target device's, not device 0's.
	require.True(t, LowLatencyFeasible(Device{SMCount: 108}, params))
	require.False(t, LowLatencyFeasible(session.Device(), params))
}

func TestBootstrapValidatesCallShape(t *testing.T) {
	session, err := NewSession(0)
	require.NoError(t, err)
	defer session.Close()

	params, err := pbs.NewParameters(pbs.PBS567N256)
	require.NoError(t, err)

	inputs := params.NumberOfInputs()
	bskBuf := Alloc[float64](session, params.BootstrapKeyDeviceLen())
	lutBuf := Alloc[uint64](session, params.LutSize())
	inBuf := Alloc[uint64](session, inputs*params.InputLweSize())
	outBuf := Alloc[uint64](session, inputs*params.OutputLweSize())
	scratch := AllocateScratch(session, params, Amortized, inputs)

	// Scratch variant mismatch.
	err = Bootstrap(session, params, LowLatency, bskBuf, 0, lutBuf, make([]int, inputs), inBuf, outBuf, inputs, scratch)
	require.Error(t, err)

	// Too few lut indexes.
	err = Bootstrap(session, params, Amortized, bskBuf, 0, lutBuf, make([]int, inputs-1), inBuf, outBuf, inputs, scratch)
	require.Error(t, err)

	// Undersized input buffer.
	small := Alloc[uint64](session, params.InputLweSize())
	err = Bootstrap(session, params, Amortized, bskBuf, 0, lutBuf, make([]int, inputs), small, outBuf, inputs, scratch)
	require.Error(t, err)
}
