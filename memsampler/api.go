// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package memsampler periodically records host memory and swap usage while
// writers run.
package memsampler

import (
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/halter"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/pace"
	"github.com/NVIDIA/fsstream/utils"
)

// DefaultInterval is the sampling interval used when none is configured.
const DefaultInterval = time.Second

const bytesPerGB = 1e9

// MemorySample is one observation. Timestamp is seconds since the Unix epoch.
type MemorySample struct {
	Timestamp  float64
	ResidentGB float64
	SwapGB     float64
}

// MemorySource reports used memory and used swap in bytes.
type MemorySource interface {
	Used() (residentBytes uint64, swapBytes uint64, err error)
}

// Observer is told about every sample taken or missed.
type Observer interface {
	MemorySampled(sample MemorySample)
	MemorySampleFailed(err error)
}

type NopObserver struct{}

func (NopObserver) MemorySampled(sample MemorySample) {}
func (NopObserver) MemorySampleFailed(err error)      {}

// GopsutilSource reads system-wide usage via gopsutil.
type GopsutilSource struct{}

func (GopsutilSource) Used() (residentBytes uint64, swapBytes uint64, err error) {
	var (
		swapMemoryStat    *mem.SwapMemoryStat
		virtualMemoryStat *mem.VirtualMemoryStat
	)

	virtualMemoryStat, err = mem.VirtualMemory()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	swapMemoryStat, err = mem.SwapMemory()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	residentBytes = virtualMemoryStat.Used
	swapBytes = swapMemoryStat.Used

	err = nil
	return
}

// Sampler takes a MemorySample every Interval for Duration.
type Sampler struct {
	Source   MemorySource
	Interval time.Duration
	Duration time.Duration
	Observer Observer
}

func New(duration time.Duration, interval time.Duration) (sampler *Sampler) {
	if 0 >= interval {
		interval = DefaultInterval
	}

	sampler = &Sampler{
		Source:   GopsutilSource{},
		Interval: interval,
		Duration: duration,
		Observer: NopObserver{},
	}

	return
}

// Run samples until Duration has elapsed and returns the samples in time
// order. A failed sample is logged and skipped; it never ends the run. A zero
// Interval or nil Source falls back to what New would have chosen.
//
// At least one sample is attempted, and the loop checks elapsed time only
// after waiting out an interval, so a 5s run at 1s intervals yields 5 samples.
func (sampler *Sampler) Run() (samples []MemorySample) {
	var (
		err           error
		interval      time.Duration
		observer      Observer
		residentBytes uint64
		runStopwatch  *utils.Stopwatch
		sample        MemorySample
		source        MemorySource
		swapBytes     uint64
	)

	interval = sampler.Interval
	if 0 >= interval {
		interval = DefaultInterval
	}
	source = sampler.Source
	if nil == source {
		source = GopsutilSource{}
	}
	observer = sampler.Observer
	if nil == observer {
		observer = NopObserver{}
	}

	samples = make([]MemorySample, 0)

	runStopwatch = utils.NewStopwatch()

	for {
		sample.Timestamp = utils.TimeToSeconds(time.Now())

		err = halter.Trigger(halter.MemsamplerSample)
		if nil == err {
			residentBytes, swapBytes, err = source.Used()
		}

		if nil == err {
			sample.ResidentGB = float64(residentBytes) / bytesPerGB
			sample.SwapGB = float64(swapBytes) / bytesPerGB
			samples = append(samples, sample)
			observer.MemorySampled(sample)
		} else {
			logger.WarnfWithError(err, "memory sample at %.6f skipped", sample.Timestamp)
			observer.MemorySampleFailed(err)
		}

		_ = pace.Wait(interval)

		if runStopwatch.Elapsed() >= sampler.Duration {
			return
		}
	}
}
