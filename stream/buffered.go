// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/halter"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/pace"
	"github.com/NVIDIA/fsstream/utils"
)

// BufferedAsyncWriter decouples producing data from writing it. The Run
// goroutine appends one payload to a DoubleBuffer every period while a
// flusher goroutine, waking every quarter period, swaps the buffers and
// writes the swapped-out one to a file held open for append.
//
// Memory held by the buffer therefore grows whenever the filesystem falls
// behind, which is part of what the memory sampler is there to show.
type BufferedAsyncWriter struct {
	lifecycle
	flushSamples []Sample // owned by the flusher until it is joined
	file         *os.File // owned by the flusher
	flushPanic   interface{}
}

func NewBufferedAsyncWriter(config WriterConfig) (bufferedAsyncWriter *BufferedAsyncWriter, err error) {
	bufferedAsyncWriter = &BufferedAsyncWriter{}

	err = bufferedAsyncWriter.init(config, DisciplineBuffered)
	if nil != err {
		bufferedAsyncWriter = nil
		return
	}

	if bufferedAsyncWriter.config.Unlimited() {
		err = blunder.NewError(blunder.InvalidArgError, "writer %s: buffered discipline requires a Rate or Period", config.Name)
		bufferedAsyncWriter = nil
		return
	}

	return
}

func (bufferedAsyncWriter *BufferedAsyncWriter) Run() (err error) {
	var (
		appends        uint64
		doubleBuffer   *DoubleBuffer
		flusherDone    chan struct{}
		flusherStarted bool
		iteration      *utils.Stopwatch
		producerDone   chan struct{}
		producerOnce   sync.Once
		runStopwatch   *utils.Stopwatch
	)

	err = bufferedAsyncWriter.start()
	if nil != err {
		return
	}

	doubleBuffer = NewDoubleBuffer(int(bufferedAsyncWriter.config.PayloadSize) * 4)
	producerDone = make(chan struct{})
	flusherDone = make(chan struct{})

	stopProducer := func() {
		producerOnce.Do(func() { close(producerDone) })
	}

	defer func() {
		panicValue := recover()

		// Whatever happened to the producer, the flusher gets to drain and exit
		stopProducer()
		if flusherStarted {
			<-flusherDone
		}

		doubleBuffer.Release()
		bufferedAsyncWriter.removeTarget()

		if (nil == panicValue) && (nil != bufferedAsyncWriter.flushPanic) {
			panicValue = fmt.Sprintf("flusher: %v", bufferedAsyncWriter.flushPanic)
		}

		finishErr := bufferedAsyncWriter.finish(bufferedAsyncWriter.flushSamples, appends*bufferedAsyncWriter.config.PayloadSize, panicValue)
		if nil == err {
			err = finishErr
		}
	}()

	runStopwatch = utils.NewStopwatch()

	go bufferedAsyncWriter.flusher(doubleBuffer, runStopwatch, producerDone, flusherDone)
	flusherStarted = true

	for runStopwatch.Elapsed() < bufferedAsyncWriter.config.Duration {
		iteration = utils.NewStopwatch()
		doubleBuffer.Append(bufferedAsyncWriter.payload)
		appends++
		_ = pace.WaitRemaining(bufferedAsyncWriter.config.Period, iteration.Stop())
	}

	stopProducer()

	return
}

// flusher drains doubleBuffer until Duration has elapsed, then waits for the
// producer to stop and performs a final drain so no append is lost.
func (bufferedAsyncWriter *BufferedAsyncWriter) flusher(doubleBuffer *DoubleBuffer, runStopwatch *utils.Stopwatch, producerDone chan struct{}, flusherDone chan struct{}) {
	var (
		observer Observer
		wakeup   time.Duration
	)

	defer close(flusherDone)

	defer func() {
		if nil != bufferedAsyncWriter.file {
			closeErr := bufferedAsyncWriter.file.Close()
			if nil != closeErr {
				logger.WarnfWithError(blunder.FromSyscall(closeErr), "writer %s: close of %s failed", bufferedAsyncWriter.config.Name, bufferedAsyncWriter.targetPath)
			}
			bufferedAsyncWriter.file = nil
		}
	}()

	defer func() {
		bufferedAsyncWriter.flushPanic = recover()
	}()

	observer = bufferedAsyncWriter.currentObserver()
	wakeup = bufferedAsyncWriter.config.Period / 4

	err := bufferedAsyncWriter.openTarget()
	if nil != err {
		logger.WarnfWithError(err, "writer %s: open of %s failed; will retry on next flush", bufferedAsyncWriter.config.Name, bufferedAsyncWriter.targetPath)
	}

	for runStopwatch.Elapsed() < bufferedAsyncWriter.config.Duration {
		bufferedAsyncWriter.flushOnce(doubleBuffer, observer)
		_ = pace.Wait(wakeup)
	}

	<-producerDone

	bufferedAsyncWriter.flushOnce(doubleBuffer, observer)
}

func (bufferedAsyncWriter *BufferedAsyncWriter) openTarget() (err error) {
	bufferedAsyncWriter.file, err = os.OpenFile(bufferedAsyncWriter.targetPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if nil != err {
		bufferedAsyncWriter.file = nil
		err = blunder.FromSyscall(err)
	}
	return
}

// flushOnce swaps the buffers and, outside the buffer lock, writes what was
// swapped out. It records one Sample per non-empty swap.
func (bufferedAsyncWriter *BufferedAsyncWriter) flushOnce(doubleBuffer *DoubleBuffer, observer Observer) {
	var (
		drained        []byte
		err            error
		flushStopwatch *utils.Stopwatch
		n              int
		sample         Sample
	)

	drained = doubleBuffer.Swap()
	if nil == drained {
		return
	}

	observer.BufferSwapped(bufferedAsyncWriter.config.Name, len(drained))

	flushStopwatch = utils.NewStopwatch()

	if nil == bufferedAsyncWriter.file {
		err = bufferedAsyncWriter.openTarget()
	}
	if nil == err {
		err = halter.Trigger(halter.StreamAsyncFlush)
	}
	if nil == err {
		n, err = bufferedAsyncWriter.file.Write(drained)
		if (nil == err) && bufferedAsyncWriter.config.SyncWrites {
			err = bufferedAsyncWriter.file.Sync()
		}
		if nil != err {
			err = blunder.FromSyscall(err)
		}
	}

	_ = flushStopwatch.Stop()

	sample = Sample{Start: utils.TimeToSeconds(flushStopwatch.StartTime)}
	if nil == err {
		sample.End = utils.TimeToSeconds(flushStopwatch.StopTime)
		sample.BytesWritten = uint64(n)
		observer.WriteCompleted(bufferedAsyncWriter.config.Name, sample)
	} else {
		sample.End = math.NaN()
		sample.BytesWritten = 0
		observer.WriteFailed(bufferedAsyncWriter.config.Name, sample, err)
	}

	bufferedAsyncWriter.flushSamples = append(bufferedAsyncWriter.flushSamples, sample)
}
