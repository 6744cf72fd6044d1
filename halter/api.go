// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package halter provides named fault injection points.
//
// A trigger armed with a count of N lets N-1 calls to Trigger() pass and
// fails the Nth and every later call until it is disarmed.
package halter

import (
	"github.com/NVIDIA/fsstream/blunder"
)

// Note 1: Following const block and HaltLabelStrings should be kept in sync
// Note 2: HaltLabelStrings should be parseable in a "label:count" conf value

const (
	apiTestHaltLabel1 = iota
	apiTestHaltLabel2
	StreamSyncWrite
	StreamAsyncFlush
	MemsamplerSample
)

var (
	HaltLabelStrings = []string{
		"halter.testHaltLabel1",
		"halter.testHaltLabel2",
		"stream.SyncWrite",
		"stream.AsyncFlush",
		"memsampler.Sample",
	}
)

// Arm sets up a failure on the haltAfterCount'd call to Trigger()
func Arm(haltLabelString string, haltAfterCount uint32) (err error) {
	globals.Lock()
	defer globals.Unlock()

	haltLabel, ok := globals.triggerNamesToNumbers[haltLabelString]
	if !ok {
		err = blunder.NewError(blunder.InvalidArgError, "halter.Arm(haltLabelString='%v',) - label unknown", haltLabelString)
		return
	}
	if 0 == haltAfterCount {
		err = blunder.NewError(blunder.InvalidArgError, "halter.Arm(haltLabel==%v,) called with haltAfterCount==0", haltLabelString)
		return
	}

	globals.armedTriggers[haltLabel] = haltAfterCount

	err = nil
	return
}

// Disarm removes a previously armed trigger via a call to Arm()
func Disarm(haltLabelString string) (err error) {
	globals.Lock()
	defer globals.Unlock()

	haltLabel, ok := globals.triggerNamesToNumbers[haltLabelString]
	if !ok {
		err = blunder.NewError(blunder.InvalidArgError, "halter.Disarm(haltLabelString='%v') - label unknown", haltLabelString)
		return
	}

	delete(globals.armedTriggers, haltLabel)

	err = nil
	return
}

// DisarmAll removes every armed trigger.
func DisarmAll() {
	globals.Lock()
	globals.armedTriggers = make(map[uint32]uint32)
	globals.Unlock()
}

// Trigger decrements the haltAfterCount if armed and, once it reaches 0,
// returns an injected error.
func Trigger(haltLabel uint32) (err error) {
	globals.Lock()
	defer globals.Unlock()

	numTriggersRemaining, armed := globals.armedTriggers[haltLabel]
	if !armed {
		err = nil
		return
	}

	if numTriggersRemaining > 1 {
		globals.armedTriggers[haltLabel] = numTriggersRemaining - 1
		err = nil
		return
	}

	globals.armedTriggers[haltLabel] = 1

	err = blunder.NewError(blunder.InjectedError, "halter.Trigger(haltLabelString==%v) injected failure", globals.triggerNumbersToNames[haltLabel])
	return
}

// Dump returns a map of currently armed triggers and their remaining trigger count
func Dump() (armedTriggers map[string]uint32) {
	globals.Lock()
	defer globals.Unlock()

	armedTriggers = make(map[string]uint32)
	for k, v := range globals.armedTriggers {
		armedTriggers[globals.triggerNumbersToNames[k]] = v
	}
	return
}

// List returns a slice of available triggers
func List() (availableTriggers []string) {
	availableTriggers = make([]string, 0, len(HaltLabelStrings))
	availableTriggers = append(availableTriggers, HaltLabelStrings...)
	return
}
