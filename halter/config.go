// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package halter

import (
	"strconv"
	"strings"
	"sync"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/conf"
	"github.com/NVIDIA/fsstream/logger"
)

type globalsStruct struct {
	sync.Mutex
	armedTriggers         map[uint32]uint32 // key: haltLabel; value: haltAfterCount (remaining)
	triggerNamesToNumbers map[string]uint32
	triggerNumbersToNames map[uint32]string
}

var globals globalsStruct

func init() {
	globals.armedTriggers = make(map[uint32]uint32)
	globals.triggerNamesToNumbers = make(map[string]uint32)
	globals.triggerNumbersToNames = make(map[uint32]string)
	for i, s := range HaltLabelStrings {
		globals.triggerNamesToNumbers[s] = uint32(i)
		globals.triggerNumbersToNames[uint32(i)] = s
	}
}

// Up disarms every trigger and then arms those listed in [Halter]Arm, each
// given as "<label>:<count>".
func Up(confMap conf.ConfMap) (err error) {
	var (
		armList        []string
		armString      string
		colonIndex     int
		haltAfterCount uint64
	)

	DisarmAll()

	armList, err = confMap.FetchOptionValueStringSlice("Halter", "Arm")
	if nil != err {
		// [Halter]Arm is optional
		err = nil
		return
	}

	for _, armString = range armList {
		colonIndex = strings.LastIndex(armString, ":")
		if colonIndex < 0 {
			err = blunder.NewError(blunder.InvalidArgError, "[Halter]Arm entry \"%s\" must be of the form <label>:<count>", armString)
			return
		}
		haltAfterCount, err = strconv.ParseUint(armString[colonIndex+1:], 10, 32)
		if nil != err {
			err = blunder.NewError(blunder.InvalidArgError, "[Halter]Arm entry \"%s\" has bad count: %v", armString, err)
			return
		}
		err = Arm(armString[:colonIndex], uint32(haltAfterCount))
		if nil != err {
			return
		}
		logger.Infof("armed %s after %d call(s)", armString[:colonIndex], haltAfterCount)
	}

	err = nil
	return
}

// Down terminates the halter package
func Down() (err error) {
	DisarmAll()
	err = nil
	return
}
