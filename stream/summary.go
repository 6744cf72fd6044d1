// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Summary condenses a WriterResult into the figures reported after a run.
type Summary struct {
	Name         string
	Discipline   Discipline
	Attempts     int
	Failures     int
	BytesWritten uint64
	BytesOffered uint64
	Span         time.Duration // first Start to last End (or Start)
	Throughput   float64       // BytesWritten / Config.Duration, bytes/sec
	TargetRate   float64       // Config.Rate, 0 if unlimited
	MeanLatency  time.Duration // over successful attempts
	MaxLatency   time.Duration
}

func Summarize(result WriterResult) (summary Summary) {
	var (
		firstStart   float64
		lastEnd      float64
		latency      time.Duration
		latencySum   time.Duration
		successCount int
	)

	summary = Summary{
		Name:         result.Name,
		Discipline:   result.Discipline,
		Attempts:     len(result.Samples),
		BytesOffered: result.BytesOffered,
		TargetRate:   result.Config.Rate,
	}

	for i, sample := range result.Samples {
		if 0 == i {
			firstStart = sample.Start
			lastEnd = sample.Start
		}

		if sample.Failed() {
			summary.Failures++
			if sample.Start > lastEnd {
				lastEnd = sample.Start
			}
			continue
		}

		successCount++
		summary.BytesWritten += sample.BytesWritten
		if sample.End > lastEnd {
			lastEnd = sample.End
		}

		latency = sample.Latency()
		latencySum += latency
		if latency > summary.MaxLatency {
			summary.MaxLatency = latency
		}
	}

	if 0 < len(result.Samples) {
		summary.Span = time.Duration((lastEnd - firstStart) * float64(time.Second))
	}
	if 0 < successCount {
		summary.MeanLatency = latencySum / time.Duration(successCount)
	}
	if 0 < result.Config.Duration {
		summary.Throughput = float64(summary.BytesWritten) / result.Config.Duration.Seconds()
	}

	return
}

func (summary Summary) String() string {
	target := "unlimited"
	if 0 < summary.TargetRate {
		target = humanize.Bytes(uint64(summary.TargetRate)) + "/s"
	}

	return fmt.Sprintf("%s [%s] %d attempts (%d failed) wrote %s of %s offered; %s/s vs target %s; latency mean %v max %v",
		summary.Name,
		summary.Discipline,
		summary.Attempts,
		summary.Failures,
		humanize.Bytes(summary.BytesWritten),
		humanize.Bytes(summary.BytesOffered),
		humanize.Bytes(uint64(summary.Throughput)),
		target,
		summary.MeanLatency,
		summary.MaxLatency)
}
