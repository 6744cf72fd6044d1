// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/creachadair/cityhash"

	"github.com/NVIDIA/fsstream/blunder"
)

var (
	payloadRandLock sync.Mutex
	payloadRand     = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// generatePayload returns size bytes of random data of the given kind.
//
// The payload is built once per writer and reused for every attempt.
func generatePayload(size uint64, kind PayloadKind) (payload []byte, err error) {
	payloadRandLock.Lock()
	defer payloadRandLock.Unlock()

	payload = make([]byte, size)

	switch kind {
	case PayloadBytes:
		_, _ = payloadRand.Read(payload)
	case PayloadFloat64:
		for i := uint64(0); i+8 <= size; i += 8 {
			binary.LittleEndian.PutUint64(payload[i:], math.Float64bits(payloadRand.Float64()))
		}
	default:
		payload = nil
		err = blunder.NewError(blunder.InvalidArgError, "unknown payload kind \"%s\"", kind)
		return
	}

	err = nil
	return
}

// TargetFileName returns the per-writer file name
//
//   <PayloadSize>_<Rate>_<Index>_<CityHash64(Name) in hex>
//
// Rate is 0 for an unlimited writer.
func TargetFileName(config WriterConfig) string {
	return fmt.Sprintf("%d_%s_%d_%016X",
		config.PayloadSize,
		strconv.FormatFloat(config.Rate, 'f', -1, 64),
		config.Index,
		cityhash.Hash64([]byte(config.Name)))
}
