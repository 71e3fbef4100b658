// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/fhelab/pbs"
)

// UploadKeyswitchKey copies a keyswitch key into a device buffer, enqueued
// on the session's stream.
func UploadKeyswitchKey(s *Session, ksk *pbs.KeyswitchKey) *Buffer[uint64] {
	buf := Alloc[uint64](s, len(ksk.Data()))
	buf.CopyToDevice(ksk.Data(), 0)
	return buf
}

// KeySwitch enqueues a batched keyswitch from ksk's input basis to its
// output basis. in and out are flat ciphertext batches.
func KeySwitch(s *Session, ksk *pbs.KeyswitchKey, kskBuf *Buffer[uint64], in, out *Buffer[uint64], inputs int) error {
	inSize := ksk.InputDimension() + 1
	outSize := ksk.OutputDimension() + 1
	if in.Len() < inputs*inSize {
		return fmt.Errorf("gpu: keyswitch input buffer holds %d scalars, batch needs %d", in.Len(), inputs*inSize)
	}
	if out.Len() < inputs*outSize {
		return fmt.Errorf("gpu: keyswitch output buffer holds %d scalars, batch needs %d", out.Len(), inputs*outSize)
	}
	inDim, outDim := ksk.InputDimension(), ksk.OutputDimension()
	baseLog, level := ksk.BaseLog(), ksk.Level()

	s.stream.Enqueue(func() {
		key := kskBuf.Data()
		digits := make([]int64, level)
		for j := 0; j < inputs; j++ {
			src := in.Data()[j*inSize : (j+1)*inSize]
			dst := out.Data()[j*outSize : (j+1)*outSize]
			for t := 0; t < outDim; t++ {
				dst[t] = 0
			}
			dst[outDim] = src[inDim]
			for i := 0; i < inDim; i++ {
				decomposeScalar(src[i], baseLog, level, digits)
				for l := 0; l < level; l++ {
					if digits[l] == 0 {
						continue
					}
					row := key[(i*level+l)*outSize : (i*level+l+1)*outSize]
					d := uint64(digits[l])
					for t := range dst {
						dst[t] -= d * row[t]
					}
				}
			}
		}
	})
	return nil
}

// decomposeScalar is the signed gadget decomposition of one torus element,
// digits[l] carrying weight 2^(64-baseLog*(l+1)).
func decomposeScalar(v uint64, baseLog, level int, digits []int64) {
	base := uint64(1) << uint(baseLog)
	halfBase := int64(base >> 1)
	shift := uint(64 - baseLog*level)
	if shift > 0 {
		v = (v + (1 << (shift - 1))) >> shift
	}
	for l := level - 1; l >= 0; l-- {
		dig := int64(v & (base - 1))
		v >>= uint(baseLog)
		if dig >= halfBase {
			dig -= int64(base)
			v++
		}
		digits[l] = dig
	}
}
