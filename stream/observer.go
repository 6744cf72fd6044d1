// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
)

// Observer is told about writer progress. Calls are made from the writer's
// goroutines (including a BufferedAsyncWriter's flusher) and must not block
// for long.
type Observer interface {
	WriteCompleted(writer string, sample Sample)
	WriteFailed(writer string, sample Sample, err error)
	BufferSwapped(writer string, bytes int)
	WriterFinished(result WriterResult)
}

// NopObserver ignores everything. It is every writer's default.
type NopObserver struct{}

func (NopObserver) WriteCompleted(writer string, sample Sample)         {}
func (NopObserver) WriteFailed(writer string, sample Sample, err error) {}
func (NopObserver) BufferSwapped(writer string, bytes int)              {}
func (NopObserver) WriterFinished(result WriterResult)                  {}

// MultiObserver fans each call out to every member in order.
type MultiObserver []Observer

func (multiObserver MultiObserver) WriteCompleted(writer string, sample Sample) {
	for _, observer := range multiObserver {
		observer.WriteCompleted(writer, sample)
	}
}

func (multiObserver MultiObserver) WriteFailed(writer string, sample Sample, err error) {
	for _, observer := range multiObserver {
		observer.WriteFailed(writer, sample, err)
	}
}

func (multiObserver MultiObserver) BufferSwapped(writer string, bytes int) {
	for _, observer := range multiObserver {
		observer.BufferSwapped(writer, bytes)
	}
}

func (multiObserver MultiObserver) WriterFinished(result WriterResult) {
	for _, observer := range multiObserver {
		observer.WriterFinished(result)
	}
}

// LogObserver logs progress through the logger package. Successful writes
// and swaps go to trace logging. Failure warnings are rate limited since a
// degraded writer fails on every period.
type LogObserver struct {
	limiter    *rate.Limiter
	suppressed uint64
}

// NewLogObserver allows burst failure warnings at once and then one every interval.
func NewLogObserver(interval time.Duration, burst int) (logObserver *LogObserver) {
	logObserver = &LogObserver{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
	}
	return
}

func (logObserver *LogObserver) WriteCompleted(writer string, sample Sample) {
	logger.Tracef("writer %s wrote %d bytes in %v", writer, sample.BytesWritten, sample.Latency())
}

func (logObserver *LogObserver) WriteFailed(writer string, sample Sample, err error) {
	if !logObserver.limiter.Allow() {
		atomic.AddUint64(&logObserver.suppressed, 1)
		return
	}

	suppressed := atomic.SwapUint64(&logObserver.suppressed, 0)

	logger.WarnfWithError(err, "writer %s write at %.6f failed [%v] (%d similar warnings suppressed)",
		writer, sample.Start, blunder.FsError(blunder.Errno(err)), suppressed)
}

func (logObserver *LogObserver) BufferSwapped(writer string, bytes int) {
	logger.Tracef("writer %s swapped out %d buffered bytes", writer, bytes)
}

func (logObserver *LogObserver) WriterFinished(result WriterResult) {
	logger.Infof("%v", Summarize(result))
}

// Suppressed returns the count of failure warnings dropped since the last one logged.
func (logObserver *LogObserver) Suppressed() uint64 {
	return atomic.LoadUint64(&logObserver.suppressed)
}
