// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides logging wrappers
//
// These wrappers allow us to standardize logging while still using a third-party
// logging package.
//
// This package is currently implemented on top of the sirupsen/logrus package:
//   https://github.com/sirupsen/logrus
//
// The APIs here add package, calling function, and goroutine to all logs.
//
// Logging of trace and debug logs are enabled/disabled on a per package basis.
package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/NVIDIA/fsstream/utils"
)

type Level int

// Our logging levels
//
// We have more detailed logging levels than logrus. Trace logs are emitted
// at logrus.InfoLevel when enabled for the calling package.
const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	TraceLevel
	DebugLevel
)

func (level Level) String() string {
	switch level {
	case PanicLevel:
		return "panic"
	case FatalLevel:
		return "fatal"
	case ErrorLevel:
		return "error"
	case WarnLevel:
		return "warn"
	case InfoLevel:
		return "info"
	case TraceLevel:
		return "trace"
	case DebugLevel:
		return "debug"
	}
	return fmt.Sprintf("Level(%d)", int(level))
}

var settingsLock sync.RWMutex

// Enable/disable for trace and debug levels. Both default to disabled.
var traceLevelEnabled = false
var debugLevelEnabled = false

// packageTraceSettings controls whether tracing is enabled for particular packages.
//
// Note: In order to enable tracing for a package using the "Logging.TraceLevelLogging"
// config variable, the package must be in this map.
//
var packageTraceSettings = map[string]bool{
	"blunder":     false,
	"conf":        false,
	"halter":      false,
	"logger":      false,
	"main":        false,
	"memsampler":  false,
	"metrics":     false,
	"pace":        false,
	"resultstore": false,
	"runmgr":      false,
	"stream":      false,
}

var packageDebugSettings = map[string]bool{
	"memsampler":  false,
	"resultstore": false,
	"runmgr":      false,
	"stream":      false,
}

func setTraceLoggingLevel(confStrSlice []string) {
	settingsLock.Lock()
	defer settingsLock.Unlock()

	traceLevelEnabled = applyPackageSettings(packageTraceSettings, confStrSlice)
}

func setDebugLoggingLevel(confStrSlice []string) {
	settingsLock.Lock()
	defer settingsLock.Unlock()

	debugLevelEnabled = applyPackageSettings(packageDebugSettings, confStrSlice)
}

func applyPackageSettings(settings map[string]bool, confStrSlice []string) (anyEnabled bool) {
	for pkg := range settings {
		settings[pkg] = false
	}

	anyEnabled = false

HandlePkgs:
	for _, pkg := range confStrSlice {
		switch pkg {
		case "none":
			for p := range settings {
				settings[p] = false
			}
			anyEnabled = false
			break HandlePkgs
		default:
			if _, ok := settings[pkg]; ok {
				settings[pkg] = true
				anyEnabled = true
			}
		}
	}

	return
}

func packageEnabled(level Level, pkg string) bool {
	settingsLock.RLock()
	defer settingsLock.RUnlock()

	switch level {
	case TraceLevel:
		return traceLevelEnabled && packageTraceSettings[pkg]
	case DebugLevel:
		return debugLevelEnabled && packageDebugSettings[pkg]
	}
	return true
}

func levelMaybeEnabled(level Level) bool {
	settingsLock.RLock()
	defer settingsLock.RUnlock()

	switch level {
	case TraceLevel:
		return traceLevelEnabled
	case DebugLevel:
		return debugLevelEnabled
	}
	return true
}

// Log fields supported by logger:
const packageKey string = "package"
const functionKey string = "function"
const errorKey string = "error"
const gidKey string = "goroutine"

// FuncCtx holds the fields common to all logs issued from one function.
type FuncCtx struct {
	funcContext *log.Entry
}

func (ctx *FuncCtx) getPackage() string {
	pkg, ok := ctx.funcContext.Data[packageKey].(string)
	if ok {
		return pkg
	}
	return ""
}

func newFuncCtx(level int) (ctx *FuncCtx) {
	return newFuncCtxWithFields(level+1, make(log.Fields))
}

func newFuncCtxWithField(level int, key string, value interface{}) (ctx *FuncCtx) {
	return newFuncCtxWithFields(level+1, log.Fields{key: value})
}

func newFuncCtxWithFields(level int, fields log.Fields) (ctx *FuncCtx) {
	fn, pkg, gid := utils.GetFuncPackage(level + 1)

	fields[functionKey] = fn
	fields[packageKey] = pkg
	fields[gidKey] = gid

	ctx = &FuncCtx{funcContext: log.WithFields(fields)}
	return
}

var backtraceOneLevel int = 1

func Errorf(format string, args ...interface{}) {
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(ErrorLevel, fmt.Sprintf(format, args...))
}

func Fatalf(format string, args ...interface{}) {
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(FatalLevel, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...interface{}) {
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(InfoLevel, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...interface{}) {
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(WarnLevel, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...interface{}) {
	if !levelMaybeEnabled(TraceLevel) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(TraceLevel, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) {
	if !levelMaybeEnabled(DebugLevel) {
		return
	}
	ctx := newFuncCtx(backtraceOneLevel)
	ctx.log(DebugLevel, fmt.Sprintf(format, args...))
}

func ErrorfWithError(err error, format string, args ...interface{}) {
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(ErrorLevel, fmt.Sprintf(format, args...))
}

func FatalfWithError(err error, format string, args ...interface{}) {
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(FatalLevel, fmt.Sprintf(format, args...))
}

func InfofWithError(err error, format string, args ...interface{}) {
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(InfoLevel, fmt.Sprintf(format, args...))
}

func WarnfWithError(err error, format string, args ...interface{}) {
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(WarnLevel, fmt.Sprintf(format, args...))
}

func TracefWithError(err error, format string, args ...interface{}) {
	if !levelMaybeEnabled(TraceLevel) {
		return
	}
	ctx := newFuncCtxWithField(backtraceOneLevel, errorKey, err)
	ctx.log(TraceLevel, fmt.Sprintf(format, args...))
}

// InfofWithFields logs at InfoLevel with caller supplied fields added to the
// usual package/function/goroutine set.
func InfofWithFields(fields map[string]interface{}, format string, args ...interface{}) {
	logFields := make(log.Fields)
	for k, v := range fields {
		logFields[k] = v
	}
	ctx := newFuncCtxWithFields(backtraceOneLevel, logFields)
	ctx.log(InfoLevel, fmt.Sprintf(format, args...))
}

// log is the common low-level logging function used internal to this package.
//
// As in logrus.entry.go, this is not declared with a pointer receiver so that
// concurrent callers don't race on the entry.
//
func (ctx FuncCtx) log(level Level, args ...interface{}) {
	if !packageEnabled(level, ctx.getPackage()) {
		return
	}

	switch level {
	case PanicLevel:
		ctx.funcContext.Panic(args...)
	case FatalLevel:
		ctx.funcContext.Fatal(args...)
	case ErrorLevel:
		ctx.funcContext.Error(args...)
	case WarnLevel:
		ctx.funcContext.Warn(args...)
	case TraceLevel:
		ctx.funcContext.Info(args...)
	case InfoLevel:
		ctx.funcContext.Info(args...)
	case DebugLevel:
		ctx.funcContext.Debug(args...)
	}
}

// AddLogTarget adds another target for log messages to be written to. writer
// is called once for each log message.
//
func AddLogTarget(writer io.Writer) {
	addLogTarget(writer)
}

// LogBuffer captures the most recent log entries. Useful for writing test cases.
type LogBuffer struct {
	sync.Mutex
	LogEntries   []string // most recent log entry is [0]
	TotalEntries int      // count of all entries seen
}

type LogTarget struct {
	LogBuf *LogBuffer
}

// Init sets up a LogTarget to hold up to nEntry log entries.
//
func (target *LogTarget) Init(nEntry int) {
	target.LogBuf = &LogBuffer{TotalEntries: 0}
	target.LogBuf.LogEntries = make([]string, nEntry)
}

// Write is called by logger for each log entry.
//
func (target LogTarget) Write(p []byte) (n int, err error) {
	entry := strings.TrimRight(string(p), "\n")

	target.LogBuf.Lock()
	defer target.LogBuf.Unlock()

	if len(target.LogBuf.LogEntries) > 0 {
		copy(target.LogBuf.LogEntries[1:], target.LogBuf.LogEntries[:len(target.LogBuf.LogEntries)-1])
		target.LogBuf.LogEntries[0] = entry
	}
	target.LogBuf.TotalEntries++

	n = len(p)
	err = nil
	return
}

// Contains reports whether any captured entry contains every one of substrs.
func (target LogTarget) Contains(substrs ...string) bool {
	target.LogBuf.Lock()
	defer target.LogBuf.Unlock()

NextEntry:
	for _, entry := range target.LogBuf.LogEntries {
		if "" == entry {
			continue
		}
		for _, s := range substrs {
			if !strings.Contains(entry, s) {
				continue NextEntry
			}
		}
		return true
	}
	return false
}
