// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
)

type writerState int

const (
	writerIdle writerState = iota
	writerRunning
	writerFinished
)

// lifecycle holds what both writer disciplines share: the Idle/Running/Finished
// state machine, the payload, and the one-time report.
type lifecycle struct {
	sync.Mutex
	state         writerState
	config        WriterConfig
	discipline    Discipline
	payload       []byte
	targetPath    string
	observer      Observer
	resultChannel *ResultChannel
	result        WriterResult
}

func (l *lifecycle) init(config WriterConfig, discipline Discipline) (err error) {
	l.config, err = config.normalize()
	if nil != err {
		return
	}

	l.payload, err = generatePayload(l.config.PayloadSize, l.config.PayloadKind)
	if nil != err {
		return
	}

	l.state = writerIdle
	l.discipline = discipline
	l.targetPath = filepath.Join(l.config.TargetDir, TargetFileName(l.config))
	l.observer = NopObserver{}
	l.result = WriterResult{Name: l.config.Name, Config: l.config, Discipline: discipline}

	err = nil
	return
}

func (l *lifecycle) Config() (config WriterConfig) {
	config = l.config
	return
}

func (l *lifecycle) Discipline() (discipline Discipline) {
	discipline = l.discipline
	return
}

// TargetPath returns the file this writer writes to.
func (l *lifecycle) TargetPath() string {
	return l.targetPath
}

func (l *lifecycle) Result() (result WriterResult) {
	l.Lock()
	result = l.result.Copy()
	l.Unlock()
	return
}

func (l *lifecycle) AttachResultChannel(resultChannel *ResultChannel) {
	l.Lock()
	l.resultChannel = resultChannel
	l.Unlock()
}

func (l *lifecycle) SetObserver(observer Observer) {
	l.Lock()
	if nil == observer {
		l.observer = NopObserver{}
	} else {
		l.observer = observer
	}
	l.Unlock()
}

func (l *lifecycle) currentObserver() (observer Observer) {
	l.Lock()
	observer = l.observer
	l.Unlock()
	return
}

// start moves Idle to Running. Any other state means Run was already called.
func (l *lifecycle) start() (err error) {
	l.Lock()
	defer l.Unlock()

	if writerIdle != l.state {
		err = blunder.NewError(blunder.AlreadyRunningError, "writer %s: Run() already called", l.config.Name)
		return
	}

	l.state = writerRunning

	err = nil
	return
}

// finish records the result and reports it. It is always reached through a
// deferred call so that a panic inside the run loop still produces a report;
// panicValue is whatever recover() returned.
func (l *lifecycle) finish(samples []Sample, bytesOffered uint64, panicValue interface{}) (err error) {
	var (
		observer      Observer
		resultChannel *ResultChannel
		sendErr       error
	)

	if nil != panicValue {
		err = blunder.NewError(blunder.WriterPanicError, "writer %s: panic during run: %v", l.config.Name, panicValue)
		logger.ErrorfWithError(err, "writer %s aborted after %d samples", l.config.Name, len(samples))
	}

	l.Lock()
	l.state = writerFinished
	l.result = WriterResult{
		Name:         l.config.Name,
		Config:       l.config,
		Discipline:   l.discipline,
		Samples:      samples,
		BytesOffered: bytesOffered,
	}
	observer = l.observer
	resultChannel = l.resultChannel
	l.Unlock()

	if nil != resultChannel {
		sendErr = resultChannel.Send(l.result)
		if nil != sendErr {
			logger.ErrorfWithError(sendErr, "writer %s: unable to report result", l.config.Name)
			if nil == err {
				err = sendErr
			}
		}
	}

	observer.WriterFinished(l.result.Copy())

	return
}

// removeTarget deletes the target file. Failures are logged and otherwise ignored.
func (l *lifecycle) removeTarget() {
	err := os.Remove(l.targetPath)
	if (nil != err) && !os.IsNotExist(err) {
		logger.WarnfWithError(blunder.FromSyscall(err), "writer %s: unable to remove %s", l.config.Name, l.targetPath)
	}
}
