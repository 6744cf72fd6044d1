// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"math"
	"os"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/halter"
	"github.com/NVIDIA/fsstream/pace"
	"github.com/NVIDIA/fsstream/utils"
)

// SyncRateWriter performs one blocking open/write/close of the whole payload
// per period, then waits out whatever is left of the period. An attempt that
// takes longer than the period is followed immediately by the next one, so a
// slow filesystem shows up as drift rather than as queued writes.
type SyncRateWriter struct {
	lifecycle
}

func NewSyncRateWriter(config WriterConfig) (syncRateWriter *SyncRateWriter, err error) {
	syncRateWriter = &SyncRateWriter{}

	err = syncRateWriter.init(config, DisciplineSync)
	if nil != err {
		syncRateWriter = nil
	}

	return
}

func (syncRateWriter *SyncRateWriter) Run() (err error) {
	var (
		attemptStopwatch *utils.Stopwatch
		bytesOffered     uint64
		bytesWritten     uint64
		observer         Observer
		runStopwatch     *utils.Stopwatch
		sample           Sample
		samples          []Sample
		writeErr         error
	)

	err = syncRateWriter.start()
	if nil != err {
		return
	}

	defer func() {
		finishErr := syncRateWriter.finish(samples, bytesOffered, recover())
		if nil == err {
			err = finishErr
		}
	}()

	observer = syncRateWriter.currentObserver()

	runStopwatch = utils.NewStopwatch()

	for runStopwatch.Elapsed() < syncRateWriter.config.Duration {
		attemptStopwatch = utils.NewStopwatch()
		bytesWritten, writeErr = syncRateWriter.writeOnce()
		_ = attemptStopwatch.Stop()

		bytesOffered += syncRateWriter.config.PayloadSize

		sample = Sample{Start: utils.TimeToSeconds(attemptStopwatch.StartTime)}
		if nil == writeErr {
			sample.End = utils.TimeToSeconds(attemptStopwatch.StopTime)
			sample.BytesWritten = bytesWritten
			observer.WriteCompleted(syncRateWriter.config.Name, sample)
		} else {
			sample.End = math.NaN()
			sample.BytesWritten = 0
			observer.WriteFailed(syncRateWriter.config.Name, sample, writeErr)
		}
		samples = append(samples, sample)

		syncRateWriter.removeTarget()

		if !syncRateWriter.config.Unlimited() {
			_ = pace.WaitRemaining(syncRateWriter.config.Period, attemptStopwatch.Elapsed())
		}
	}

	return
}

// writeOnce is the timed region: open (truncating), write, optionally fsync, close.
func (syncRateWriter *SyncRateWriter) writeOnce() (bytesWritten uint64, err error) {
	var (
		closeErr error
		file     *os.File
		n        int
	)

	err = halter.Trigger(halter.StreamSyncWrite)
	if nil != err {
		return
	}

	file, err = os.OpenFile(syncRateWriter.targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if nil != err {
		err = blunder.FromSyscall(err)
		return
	}

	n, err = file.Write(syncRateWriter.payload)
	if (nil == err) && syncRateWriter.config.SyncWrites {
		err = file.Sync()
	}

	closeErr = file.Close()
	if nil == err {
		err = closeErr
	}

	if nil != err {
		err = blunder.FromSyscall(err)
		return
	}

	bytesWritten = uint64(n)
	return
}
