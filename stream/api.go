// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package stream provides the simulated filesystem write workloads.
//
// Each Writer attempts to put PayloadSize bytes on the filesystem every Period
// for Duration, recording a Sample per write. Two disciplines are provided:
//
//   sync     - SyncRateWriter: one blocking open/write/close per period
//   buffered - BufferedAsyncWriter: a producer appends to a DoubleBuffer every
//              period while a flusher goroutine writes out whatever has
//              accumulated
//
// A finished Writer's samples are handed to its orchestrator through a
// ResultChannel.
package stream

import (
	"fmt"
	"math"
	"time"

	"github.com/NVIDIA/fsstream/blunder"
)

type Discipline string

const (
	DisciplineSync     Discipline = "sync"
	DisciplineBuffered Discipline = "buffered"
)

// ParseDiscipline maps a configured discipline name to a Discipline.
func ParseDiscipline(s string) (discipline Discipline, err error) {
	switch Discipline(s) {
	case DisciplineSync, DisciplineBuffered:
		discipline = Discipline(s)
		err = nil
	default:
		err = blunder.NewError(blunder.InvalidArgError, "unknown writer discipline \"%s\" (expected sync or buffered)", s)
	}
	return
}

type PayloadKind string

const (
	PayloadBytes   PayloadKind = "bytes"   // uniform random bytes
	PayloadFloat64 PayloadKind = "float64" // little-endian float64s uniform in [0,1)
)

func ParsePayloadKind(s string) (payloadKind PayloadKind, err error) {
	switch PayloadKind(s) {
	case "":
		payloadKind = PayloadBytes
		err = nil
	case PayloadBytes, PayloadFloat64:
		payloadKind = PayloadKind(s)
		err = nil
	default:
		err = blunder.NewError(blunder.InvalidArgError, "unknown payload kind \"%s\" (expected bytes or float64)", s)
	}
	return
}

// Sample records one write attempt. Start and End are seconds since the
// Unix epoch. A failed attempt has End == NaN and BytesWritten == 0.
type Sample struct {
	Start        float64
	End          float64
	BytesWritten uint64
}

func (sample Sample) Failed() bool {
	return math.IsNaN(sample.End)
}

// Latency returns End - Start, or zero for a failed attempt.
func (sample Sample) Latency() time.Duration {
	if sample.Failed() {
		return 0
	}
	return time.Duration((sample.End - sample.Start) * float64(time.Second))
}

// WriterConfig is the immutable description of one writer.
//
// Rate (bytes/sec) and Period are two views of the same pacing: when only one
// is set the other is derived as Period = PayloadSize / Rate. When both are
// zero the writer is unlimited and writes back to back.
type WriterConfig struct {
	Name        string
	Index       int
	TargetDir   string
	PayloadSize uint64
	Rate        float64
	Period      time.Duration
	Duration    time.Duration
	PayloadKind PayloadKind
	SyncWrites  bool
}

// Unlimited reports whether the config has no pacing.
func (config WriterConfig) Unlimited() bool {
	return 0 == config.Period
}

// normalize validates config and fills in whichever of Rate/Period was derived.
//
// When both are given Period wins and Rate is recomputed from it.
func (config WriterConfig) normalize() (normalized WriterConfig, err error) {
	normalized = config

	if "" == normalized.Name {
		err = blunder.NewError(blunder.InvalidArgError, "writer name must not be empty")
		return
	}
	if "" == normalized.TargetDir {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: TargetDir must not be empty", normalized.Name)
		return
	}
	if 0 == normalized.PayloadSize {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: PayloadSize must be positive", normalized.Name)
		return
	}
	if 0 >= normalized.Duration {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: Duration must be positive", normalized.Name)
		return
	}
	if (0 > normalized.Rate) || math.IsNaN(normalized.Rate) || math.IsInf(normalized.Rate, 0) {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: Rate must be a finite non-negative number", normalized.Name)
		return
	}
	if 0 > normalized.Period {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: Period must not be negative", normalized.Name)
		return
	}

	normalized.PayloadKind, err = ParsePayloadKind(string(normalized.PayloadKind))
	if nil != err {
		return
	}
	if (PayloadFloat64 == normalized.PayloadKind) && (0 != normalized.PayloadSize%8) {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: float64 PayloadSize must be a multiple of 8 (got %d)", normalized.Name, normalized.PayloadSize)
		return
	}

	switch {
	case 0 < normalized.Period:
		normalized.Rate = float64(normalized.PayloadSize) / normalized.Period.Seconds()
	case 0 < normalized.Rate:
		normalized.Period = time.Duration(float64(normalized.PayloadSize) / normalized.Rate * float64(time.Second))
		if 0 == normalized.Period {
			// Faster than we can express; treat as unlimited
			normalized.Rate = 0
		}
	}

	err = nil
	return
}

// WriterResult is what a finished writer reports.
type WriterResult struct {
	Name         string
	Config       WriterConfig
	Discipline   Discipline
	Samples      []Sample
	BytesOffered uint64 // sync: attempts * PayloadSize; buffered: appends * PayloadSize
}

// Copy returns a deep copy of result.
func (result WriterResult) Copy() (resultCopy WriterResult) {
	resultCopy = result
	if nil != result.Samples {
		resultCopy.Samples = make([]Sample, len(result.Samples))
		copy(resultCopy.Samples, result.Samples)
	}
	return
}

// Writer is one simulated write workload.
type Writer interface {
	// Run executes the workload for Config().Duration and reports the result.
	// Only the first call runs; later calls fail with AlreadyRunningError.
	Run() (err error)

	// Result returns a copy of the reported result (empty before Run completes).
	Result() (result WriterResult)

	Config() (config WriterConfig)
	Discipline() (discipline Discipline)

	// AttachResultChannel arranges for the result to also be sent on resultChannel.
	AttachResultChannel(resultChannel *ResultChannel)

	SetObserver(observer Observer)
}

// NewWriter constructs the Writer for discipline.
func NewWriter(discipline Discipline, config WriterConfig) (writer Writer, err error) {
	switch discipline {
	case DisciplineSync:
		writer, err = NewSyncRateWriter(config)
	case DisciplineBuffered:
		writer, err = NewBufferedAsyncWriter(config)
	default:
		err = blunder.NewError(blunder.InvalidArgError, "unknown writer discipline \"%s\"", discipline)
	}
	return
}

func (discipline Discipline) String() string {
	return string(discipline)
}

func (sample Sample) String() string {
	if sample.Failed() {
		return fmt.Sprintf("{%.6f failed}", sample.Start)
	}
	return fmt.Sprintf("{%.6f +%v %d}", sample.Start, sample.Latency(), sample.BytesWritten)
}
