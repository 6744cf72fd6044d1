// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package utils provides miscellaneous utilities for fsstream.
package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var (
	extractFnNameRE       = regexp.MustCompile(`[^\/]*$`)
	extractPkgNameRE      = regexp.MustCompile(`^[^.]*`)
	extractTrailingNameRE = regexp.MustCompile(`[^.]*$`)
)

// GetGID returns the id of the calling goroutine.
//
// Only intended for log decoration; nothing should key behavior off of it.
//
func GetGID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	b = b[:bytes.IndexByte(b, ' ')]
	n, _ := strconv.ParseUint(string(b), 10, 64)
	return n
}

// GetAFnName returns a string containing calling function and package
func GetAFnName(level int) string {
	// Get the PC for the level requested, adding one level to skip this function
	pc, _, _, ok := runtime.Caller(level + 1)
	if !ok {
		return ""
	}
	functionObject := runtime.FuncForPC(pc)
	if nil == functionObject {
		return ""
	}
	// Strip the module path, leaving just <package>.<function>
	return extractFnNameRE.FindString(functionObject.Name())
}

// GetFuncPackage returns separate strings containing calling function and package
// along with the calling goroutine id
func GetFuncPackage(level int) (fn string, pkg string, gid uint64) {
	funcPkg := GetAFnName(level + 1)

	pkg = extractPkgNameRE.FindString(funcPkg)
	fn = extractTrailingNameRE.FindString(funcPkg)

	gid = GetGID()

	return fn, pkg, gid
}

type Stopwatch struct {
	StartTime   time.Time
	StopTime    time.Time
	ElapsedTime time.Duration
	IsRunning   bool
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{StartTime: time.Now(), IsRunning: true}
}

// Stop halts the stopwatch (if running) and returns the elapsed time.
func (sw *Stopwatch) Stop() time.Duration {
	sw.StopTime = time.Now()

	if sw.IsRunning {
		sw.ElapsedTime = sw.StopTime.Sub(sw.StartTime)
		sw.IsRunning = false
	}
	return sw.ElapsedTime
}

// Elapsed returns the time so far if running, else the time at which it was stopped.
func (sw *Stopwatch) Elapsed() time.Duration {
	if !sw.IsRunning {
		return sw.ElapsedTime
	}
	return time.Since(sw.StartTime)
}

func (sw *Stopwatch) ElapsedString() string {
	return sw.Elapsed().String()
}

// TimeToSeconds converts t to floating point seconds since the Unix epoch.
func TimeToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// SecondsToTime is the inverse of TimeToSeconds (to within float64 precision).
func SecondsToTime(seconds float64) time.Time {
	return time.Unix(0, int64(seconds*float64(time.Second)))
}

// JSONify renders input as JSON, or as a <<<...>>> note if it cannot be marshaled.
func JSONify(input interface{}, indentify bool) (output string) {
	var (
		err             error
		inputJSON       bytes.Buffer
		inputJSONPacked []byte
	)

	inputJSONPacked, err = json.Marshal(input)
	if nil == err {
		if indentify {
			err = json.Indent(&inputJSON, inputJSONPacked, "", "\t")
			if nil == err {
				output = inputJSON.String()
			} else {
				output = fmt.Sprintf("<<<json.Indent failed: %v>>>", err)
			}
		} else {
			output = string(inputJSONPacked)
		}
	} else {
		output = fmt.Sprintf("<<<json.Marshall failed: %v>>>", err)
	}

	return
}
