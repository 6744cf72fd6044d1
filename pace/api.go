// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package pace provides the coarse delay primitive used to hold writers to
// their target rate.
package pace

import (
	"time"
)

// Granularity is the number of sleeps Wait() divides a delay into.
const Granularity = 1000

// Wait blocks for at least d, sleeping in increments of d/Granularity and
// re-checking wall time after each. Overshoot is typically a few milliseconds
// (bounded by timer resolution). A non-positive d returns immediately.
//
// The actual elapsed time is returned.
func Wait(d time.Duration) (elapsed time.Duration) {
	var (
		increment time.Duration
		startTime time.Time
	)

	if d <= 0 {
		elapsed = 0
		return
	}

	increment = d / Granularity
	if 0 == increment {
		increment = 1
	}

	startTime = time.Now()

	for {
		time.Sleep(increment)
		elapsed = time.Since(startTime)
		if elapsed >= d {
			return
		}
	}
}

// Remaining returns how much of period is left after spent, or zero if
// spent already covers it.
func Remaining(period time.Duration, spent time.Duration) time.Duration {
	if spent >= period {
		return 0
	}
	return period - spent
}

// WaitRemaining waits out whatever is left of period after spent.
func WaitRemaining(period time.Duration, spent time.Duration) (elapsed time.Duration) {
	elapsed = Wait(Remaining(period, spent))
	return
}
