// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/NVIDIA/fsstream/conf"
)

type globalsStruct struct {
	sync.Mutex
	logFile      *os.File    // == nil if [Logging]LogFilePath is empty
	logToConsole bool        //
	logTargets   []io.Writer // additional targets added via AddLogTarget()
}

var globals globalsStruct

func init() {
	globals.logToConsole = true
	log.SetFormatter(&log.TextFormatter{DisableColors: true})
	log.SetLevel(log.DebugLevel)
}

// Up configures logging from the [Logging] section of confMap.
//
// Every option is optional:
//
//   [Logging]
//   LogFilePath:       <path>           ; empty or missing means no log file
//   LogToConsole:      true|false       ; default true
//   TraceLevelLogging: <pkg> <pkg>...   ; or "none"
//   DebugLevelLogging: <pkg> <pkg>...   ; or "none"
//
func Up(confMap conf.ConfMap) (err error) {
	var (
		logFilePath  string
		logToConsole bool
	)

	globals.Lock()
	defer globals.Unlock()

	log.SetFormatter(&log.TextFormatter{DisableColors: true})

	logFilePath, _ = confMap.FetchOptionValueString("Logging", "LogFilePath")
	if "" != logFilePath {
		globals.logFile, err = os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if nil != err {
			log.Errorf("couldn't open log file: %v", err)
			return
		}
	}

	logToConsole, err = confMap.FetchOptionValueBool("Logging", "LogToConsole")
	if nil != err {
		logToConsole = true
	}
	globals.logToConsole = logToConsole

	resetOutputLocked()

	// NOTE: We always enable max logging in logrus and decide in this package
	//       whether a trace or debug log is actually emitted
	log.SetLevel(log.DebugLevel)

	traceConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "TraceLevelLogging")
	setTraceLoggingLevel(traceConfSlice)

	debugConfSlice, _ := confMap.FetchOptionValueStringSlice("Logging", "DebugLevelLogging")
	setDebugLoggingLevel(debugConfSlice)

	err = nil
	return
}

// Down closes the log file (if any) and reverts to logging on the console.
func Down() (err error) {
	globals.Lock()
	defer globals.Unlock()

	if nil != globals.logFile {
		err = globals.logFile.Close()
		globals.logFile = nil
	}

	globals.logToConsole = true
	globals.logTargets = nil

	resetOutputLocked()

	setTraceLoggingLevel([]string{"none"})
	setDebugLoggingLevel([]string{"none"})

	return
}

func resetOutputLocked() {
	var (
		writers []io.Writer
	)

	if nil != globals.logFile {
		writers = append(writers, globals.logFile)
	}
	if globals.logToConsole {
		writers = append(writers, os.Stderr)
	}
	writers = append(writers, globals.logTargets...)

	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
}

func addLogTarget(writer io.Writer) {
	globals.Lock()
	globals.logTargets = append(globals.logTargets, writer)
	resetOutputLocked()
	globals.Unlock()
}
