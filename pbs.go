// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package pbs implements the host-side runtime of a TFHE programmable
// bootstrap engine: parameter sets, key generation, LWE encryption over the
// 2^64 discretized torus, lookup-table compilation, and the runtime context
// that hands evaluation keys to concurrent execution units. The accelerator
// kernels live in the gpu subpackage.
package pbs
