// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command pbs-bench runs a programmable bootstrap campaign for one parameter
// set and reports timing and residual noise.
//
// Usage:
//
//	pbs-bench -params=pbs769 -variant=amortized -samples=10
//	pbs-bench -params=pbs847 -variant=lowlatency -keystore=/tmp/keys
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fhelab/pbs"
	"github.com/fhelab/pbs/gpu"
	"github.com/fhelab/pbs/internal/keystore"
)

var (
	paramsName = flag.String("params", "pbs769", "parameter set: pbs567, pbs769, pbs754, pbs847")
	variantStr = flag.String("variant", "amortized", "bootstrap variant: amortized, lowlatency")
	samples    = flag.Int("samples", 0, "override the parameter set's sample count")
	reps       = flag.Int("repetitions", 0, "override the parameter set's repetition count")
	storeDir   = flag.String("keystore", "", "cache keysets under this directory")
	seed       = flag.String("seed", "", "deterministic keygen seed (hex-free string)")
	verbose    = flag.Bool("v", false, "verbose output")
)

func main() {
	flag.Parse()

	lit, ok := map[string]pbs.ParametersLiteral{
		"pbs567": pbs.PBS567N256,
		"pbs769": pbs.PBS769N1024,
		"pbs754": pbs.PBS754N2048,
		"pbs847": pbs.PBS847N4096,
	}[*paramsName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown parameter set: %s\n", *paramsName)
		os.Exit(1)
	}
	if *samples > 0 {
		lit.Samples = *samples
	}
	if *reps > 0 {
		lit.Repetitions = *reps
	}

	var variant gpu.Variant
	switch *variantStr {
	case "amortized":
		variant = gpu.Amortized
	case "lowlatency":
		variant = gpu.LowLatency
	default:
		fmt.Fprintf(os.Stderr, "unknown variant: %s\n", *variantStr)
		os.Exit(1)
	}

	params, err := pbs.NewParameters(lit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid parameters: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("parameters %s: n=%d k=%d N=%d baseLog=%d level=%d payload=%d inputs=%d\n",
		*paramsName, params.LweDimension(), params.GlweDimension(), params.PolynomialSize(),
		params.BaseLog(), params.Level(), params.PayloadModulus(), params.NumberOfInputs())
	fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	if err := run(params, variant); err != nil {
		fmt.Fprintf(os.Stderr, "pbs-bench: %v\n", err)
		os.Exit(1)
	}
}

func run(params pbs.Parameters, variant gpu.Variant) error {
	prng := newPRNG()

	start := time.Now()
	ks, err := loadOrGenKeyset(params, prng)
	if err != nil {
		return err
	}
	fmt.Printf("keyset ready in %v\n", time.Since(start))

	session, err := gpu.NewSession(params.GpuIndex())
	if err != nil {
		return err
	}
	defer session.Close()

	if variant == gpu.LowLatency && !gpu.LowLatencyFeasible(session.Device(), params) {
		return fmt.Errorf("%w: capacity %d on %s, batch %d",
			gpu.ErrLowLatencyInfeasible,
			gpu.LowLatencyCapacity(session.Device(), params),
			session.Device().Name, params.NumberOfInputs())
	}

	fbk := ks.BootstrapKey.Fourier()
	bskBuf := gpu.UploadBootstrapKeys(session, params, []*pbs.FourierBootstrapKey{fbk})

	lut := params.IdentityLookupTable()
	lutBuf := gpu.Alloc[uint64](session, len(lut))
	lutBuf.CopyToDevice(lut, 0)

	inputs := params.NumberOfInputs()
	lutIndexes := make([]int, inputs)
	scratch := gpu.AllocateScratch(session, params, variant, inputs)
	inBuf := gpu.Alloc[uint64](session, inputs*params.InputLweSize())
	outBuf := gpu.Alloc[uint64](session, inputs*params.OutputLweSize())

	enc := pbs.NewEncryptor(ks.InputKey, params.LweVariance(), prng)
	oracle := pbs.NewOracle(params, ks.GlweKey.FlattenedLwe())
	layout := pbs.NewBatchLayout(params)

	var results []pbs.CheckResult
	var kernelTime time.Duration
	payload := uint64(params.PayloadModulus())

	for rep := 0; rep < params.Repetitions(); rep++ {
		for sample := 0; sample < params.Samples(); sample++ {
			host := make([]uint64, inputs*params.InputLweSize())
			msgs := make([]uint64, inputs)
			ct := pbs.NewLweCiphertext(params.LweDimension())
			for j := 0; j < inputs; j++ {
				msgs[j] = uint64(layout.Index(rep, sample, j)) % payload
				enc.EncryptInto(params.Encode(msgs[j]), ct)
				copy(host[j*params.InputLweSize():], ct.Data)
			}
			inBuf.CopyToDevice(host, 0)

			t0 := time.Now()
			if err := gpu.Bootstrap(session, params, variant, bskBuf, 0, lutBuf, lutIndexes, inBuf, outBuf, inputs, scratch); err != nil {
				return err
			}
			session.Synchronize()
			kernelTime += time.Since(t0)

			outHost := outBuf.CopyFromDevice(0, inputs*params.OutputLweSize())
			for j := 0; j < inputs; j++ {
				res := oracle.Check(&pbs.LweCiphertext{
					Data: outHost[j*params.OutputLweSize() : (j+1)*params.OutputLweSize()],
				}, msgs[j])
				if *verbose && !res.Ok() {
					fmt.Printf("  mismatch rep=%d sample=%d input=%d: got %d want %d\n", rep, sample, j, res.Decoded, res.Want)
				}
				results = append(results, res)
			}
		}
	}

	calls := params.Repetitions() * params.Samples()
	fmt.Printf("%s bootstrap: %d calls x %d inputs, %v/call\n",
		variant, calls, inputs, kernelTime/time.Duration(calls))

	report, err := oracle.Report(results)
	if err != nil {
		return err
	}
	fmt.Println(report)
	if report.Failures > 0 {
		return fmt.Errorf("%d/%d decode failures", report.Failures, report.Count)
	}
	return nil
}

func newPRNG() pbs.PRNG {
	if *seed == "" {
		return pbs.NewPRNG()
	}
	prng, err := pbs.NewKeyedPRNG([]byte(*seed))
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed rejected: %v\n", err)
		os.Exit(1)
	}
	return prng
}

// loadOrGenKeyset pulls a cached keyset from the keystore when one exists
// for these parameters, generating and caching it otherwise.
func loadOrGenKeyset(params pbs.Parameters, prng pbs.PRNG) (*pbs.Keyset, error) {
	gen := func() *pbs.Keyset {
		kg := pbs.NewKeyGenerator(params, prng)
		inKey := kg.GenLweSecretKey()
		glweKey := kg.GenGlweSecretKey()
		return &pbs.Keyset{
			Params:       params.Literal(),
			InputKey:     inKey,
			GlweKey:      glweKey,
			BootstrapKey: kg.GenBootstrapKey(inKey, glweKey),
		}
	}

	if *storeDir == "" {
		return gen(), nil
	}

	store, err := keystore.NewFileStore(*storeDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	ctx := context.Background()

	// Handles are content hashes, so the lookup key is kept in a sidecar
	// named after the parameter set.
	ref := *storeDir + "/" + *paramsName + ".handle"
	if hb, err := os.ReadFile(ref); err == nil {
		data, err := store.Get(ctx, keystore.Handle(hb))
		if err == nil {
			ks := new(pbs.Keyset)
			if err := ks.UnmarshalBinary(data); err != nil {
				return nil, err
			}
			fmt.Println("keyset loaded from keystore")
			return ks, nil
		}
		if !errors.Is(err, keystore.ErrNotFound) {
			return nil, err
		}
	}

	ks := gen()
	data, err := ks.MarshalBinary()
	if err != nil {
		return nil, err
	}
	handle, err := store.Put(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(ref, []byte(handle), 0600); err != nil {
		return nil, err
	}
	return ks, nil
}
