// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package runmgr runs a set of writers concurrently alongside a memory
// sampler and hands the collected results to a Sink.
package runmgr

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/memsampler"
	"github.com/NVIDIA/fsstream/stream"
	"github.com/NVIDIA/fsstream/utils"
)

// RunResult is everything one Execute() produced.
type RunResult struct {
	Name      string
	StartTime time.Time
	Duration  time.Duration
	Writers   map[string]stream.WriterResult
	Memory    []memsampler.MemorySample
}

// Sink persists a finished RunResult. Persist is called at most once per run.
type Sink interface {
	Persist(runResult RunResult) (err error)
}

type registrationStruct struct {
	name          string
	writer        stream.Writer
	resultChannel *stream.ResultChannel
}

type RunManager struct {
	sync.Mutex
	name                 string
	registrations        []*registrationStruct
	registrationsByName  map[string]*registrationStruct
	duration             time.Duration
	memorySampleInterval time.Duration
	memorySource         memsampler.MemorySource
	memoryObserver       memsampler.Observer
	writerObserver       stream.Observer
	sink                 Sink
	executing            bool
}

// DefaultRunName returns "<UTC timestamp>-<uuid>".
func DefaultRunName() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.New().String()
}

// New returns an empty RunManager. An empty name is replaced by DefaultRunName().
func New(name string) (runManager *RunManager) {
	if "" == name {
		name = DefaultRunName()
	}

	runManager = &RunManager{
		name:                 name,
		registrations:        make([]*registrationStruct, 0),
		registrationsByName:  make(map[string]*registrationStruct),
		memorySampleInterval: memsampler.DefaultInterval,
		memorySource:         memsampler.GopsutilSource{},
		memoryObserver:       memsampler.NopObserver{},
	}

	return
}

func (runManager *RunManager) Name() string {
	return runManager.name
}

// Duration returns the longest registered writer Duration.
func (runManager *RunManager) Duration() (duration time.Duration) {
	runManager.Lock()
	duration = runManager.duration
	runManager.Unlock()
	return
}

func (runManager *RunManager) SetSink(sink Sink) {
	runManager.Lock()
	runManager.sink = sink
	runManager.Unlock()
}

func (runManager *RunManager) SetMemorySampleInterval(interval time.Duration) {
	runManager.Lock()
	if 0 < interval {
		runManager.memorySampleInterval = interval
	}
	runManager.Unlock()
}

func (runManager *RunManager) SetMemorySource(memorySource memsampler.MemorySource) {
	runManager.Lock()
	runManager.memorySource = memorySource
	runManager.Unlock()
}

func (runManager *RunManager) SetMemoryObserver(memoryObserver memsampler.Observer) {
	runManager.Lock()
	runManager.memoryObserver = memoryObserver
	runManager.Unlock()
}

// SetWriterObserver installs writerObserver on every writer as it is started.
func (runManager *RunManager) SetWriterObserver(writerObserver stream.Observer) {
	runManager.Lock()
	runManager.writerObserver = writerObserver
	runManager.Unlock()
}

// Register adds writer to the run under name, which must be unique. The
// writer gets its own ResultChannel.
func (runManager *RunManager) Register(writer stream.Writer, name string) (err error) {
	var (
		registration *registrationStruct
	)

	runManager.Lock()
	defer runManager.Unlock()

	if runManager.executing {
		err = blunder.NewError(blunder.AlreadyRunningError, "run %s: cannot register %s after Execute()", runManager.name, name)
		return
	}
	if "" == name {
		err = blunder.NewError(blunder.InvalidArgError, "run %s: writer name must not be empty", runManager.name)
		return
	}
	if _, ok := runManager.registrationsByName[name]; ok {
		err = blunder.NewError(blunder.FileExistsError, "run %s: writer %s already registered", runManager.name, name)
		return
	}

	registration = &registrationStruct{
		name:          name,
		writer:        writer,
		resultChannel: stream.NewResultChannel(),
	}

	writer.AttachResultChannel(registration.resultChannel)

	runManager.registrations = append(runManager.registrations, registration)
	runManager.registrationsByName[name] = registration

	if writer.Config().Duration > runManager.duration {
		runManager.duration = writer.Config().Duration
	}

	err = nil
	return
}

// Execute runs every registered writer in its own goroutine while sampling
// memory for the run's Duration, then collects one result per writer, joins
// the writers, and persists the RunResult to the Sink (if any).
//
// Execute blocks until every writer has reported. It may only be called once.
func (runManager *RunManager) Execute() (runResult RunResult, err error) {
	var (
		registration   *registrationStruct
		registrations  []*registrationStruct
		runStopwatch   *utils.Stopwatch
		sampler        *memsampler.Sampler
		sink           Sink
		wg             sync.WaitGroup
		writerObserver stream.Observer
	)

	runManager.Lock()

	if runManager.executing {
		runManager.Unlock()
		err = blunder.NewError(blunder.AlreadyRunningError, "run %s: Execute() already called", runManager.name)
		return
	}
	if 0 == len(runManager.registrations) {
		runManager.Unlock()
		err = blunder.NewError(blunder.InvalidArgError, "run %s: no writers registered", runManager.name)
		return
	}

	runManager.executing = true

	registrations = runManager.registrations
	writerObserver = runManager.writerObserver
	sink = runManager.sink

	sampler = memsampler.New(runManager.duration, runManager.memorySampleInterval)
	sampler.Source = runManager.memorySource
	sampler.Observer = runManager.memoryObserver

	runStopwatch = utils.NewStopwatch()

	runResult = RunResult{
		Name:      runManager.name,
		StartTime: runStopwatch.StartTime,
		Duration:  runManager.duration,
		Writers:   make(map[string]stream.WriterResult),
	}

	runManager.Unlock()

	logger.Infof("run %s starting %d writer(s) for %v", runResult.Name, len(registrations), runResult.Duration)

	for _, registration = range registrations {
		if nil != writerObserver {
			registration.writer.SetObserver(writerObserver)
		}
		wg.Add(1)
		go runWriter(registration, &wg)
	}

	runResult.Memory = sampler.Run()

	for _, registration = range registrations {
		runResult.Writers[registration.name] = registration.resultChannel.Receive()
	}

	wg.Wait()

	logger.Infof("run %s finished after %s with %d memory samples", runResult.Name, runStopwatch.ElapsedString(), len(runResult.Memory))

	if nil != sink {
		err = sink.Persist(runResult)
		if nil != err {
			logger.ErrorfWithError(err, "run %s: persisting results failed", runResult.Name)
			return
		}
	}

	err = nil
	return
}

// runWriter is the goroutine boundary for one writer. A panic that escapes
// the writer, or a Run() that fails without reporting, still produces a
// (possibly empty) result so that Execute() is not left waiting.
func runWriter(registration *registrationStruct, wg *sync.WaitGroup) {
	defer wg.Done()

	defer func() {
		panicValue := recover()
		if nil != panicValue {
			err := blunder.NewError(blunder.WriterPanicError, "writer %s panicked: %v", registration.name, panicValue)
			logger.ErrorfWithError(err, "writer %s aborted", registration.name)
		}
		if !registration.resultChannel.Sent() {
			_ = registration.resultChannel.Send(fallbackResult(registration))
		}
	}()

	err := registration.writer.Run()
	if nil != err {
		logger.ErrorfWithError(err, "writer %s returned an error", registration.name)
	}
}

func fallbackResult(registration *registrationStruct) (result stream.WriterResult) {
	result = registration.writer.Result()
	if "" == result.Name {
		result.Name = registration.name
		result.Config = registration.writer.Config()
		result.Discipline = registration.writer.Discipline()
	}
	return
}
