// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package runmgr

import (
	"fmt"
	"io/ioutil"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/stream"
)

type testSink struct {
	sync.Mutex
	persisted []RunResult
	err       error
}

func (sink *testSink) Persist(runResult RunResult) (err error) {
	sink.Lock()
	sink.persisted = append(sink.persisted, runResult)
	err = sink.err
	sink.Unlock()
	return
}

type testMemorySource struct{}

func (testMemorySource) Used() (residentBytes uint64, swapBytes uint64, err error) {
	return 2e9, 0, nil
}

// testPanicWriter is a stream.Writer whose Run() panics without reporting.
type testPanicWriter struct {
	config stream.WriterConfig
}

func (writer *testPanicWriter) Run() (err error)                             { panic("boom") }
func (writer *testPanicWriter) Result() (result stream.WriterResult)         { return }
func (writer *testPanicWriter) Config() (config stream.WriterConfig)         { return writer.config }
func (writer *testPanicWriter) Discipline() (discipline stream.Discipline)   { return stream.DisciplineSync }
func (writer *testPanicWriter) AttachResultChannel(rc *stream.ResultChannel) {}
func (writer *testPanicWriter) SetObserver(observer stream.Observer)         {}

func testTempDir(t *testing.T) (tempDir string) {
	tempDir, err := ioutil.TempDir("", "runmgr_test")
	if nil != err {
		t.Fatalf("ioutil.TempDir() failed: %v", err)
	}
	return
}

func testSyncWriter(t *testing.T, tempDir string, name string, index int, duration time.Duration) stream.Writer {
	writer, err := stream.NewSyncRateWriter(stream.WriterConfig{
		Name:        name,
		Index:       index,
		TargetDir:   tempDir,
		PayloadSize: 4096,
		Period:      250 * time.Millisecond,
		Duration:    duration,
	})
	if nil != err {
		t.Fatalf("stream.NewSyncRateWriter(%s) failed: %v", name, err)
	}
	return writer
}

func TestExecute(t *testing.T) {
	assert := assert.New(t)

	tempDir := testTempDir(t)
	defer os.RemoveAll(tempDir)

	gcpWriter := testSyncWriter(t, tempDir, "gcp0", 0, 3*time.Second)

	boloWriter, err := stream.NewBufferedAsyncWriter(stream.WriterConfig{
		Name:        "bolo0",
		Index:       1,
		TargetDir:   tempDir,
		PayloadSize: 8192,
		Period:      500 * time.Millisecond,
		Duration:    5 * time.Second,
	})
	assert.Nil(err)

	sink := &testSink{}

	runManager := New("")
	assert.Regexp(regexp.MustCompile(`\A\d{8}T\d{6}Z-[0-9a-f-]{36}\z`), runManager.Name())

	runManager.SetSink(sink)
	runManager.SetMemorySource(testMemorySource{})

	assert.Nil(runManager.Register(gcpWriter, "gcp0"))
	assert.Nil(runManager.Register(boloWriter, "bolo0"))
	assert.Equal(5*time.Second, runManager.Duration())

	startTime := time.Now()
	runResult, err := runManager.Execute()
	assert.Nil(err)
	assert.True(time.Since(startTime) >= 5*time.Second)

	assert.Equal(2, len(runResult.Writers))
	assert.True(len(runResult.Memory) >= 5)
	assert.Equal(2.0, runResult.Memory[0].ResidentGB)

	gcpResult, ok := runResult.Writers["gcp0"]
	assert.True(ok)
	assert.Equal(stream.DisciplineSync, gcpResult.Discipline)
	assert.True(len(gcpResult.Samples) >= 11 && len(gcpResult.Samples) <= 12)

	boloResult, ok := runResult.Writers["bolo0"]
	assert.True(ok)
	assert.Equal(stream.DisciplineBuffered, boloResult.Discipline)
	assert.NotEqual(0, len(boloResult.Samples))

	assert.Equal(1, len(sink.persisted))
	assert.Equal(runResult.Name, sink.persisted[0].Name)

	_, err = runManager.Execute()
	assert.True(blunder.Is(err, blunder.AlreadyRunningError))
	assert.Equal(1, len(sink.persisted))

	err = runManager.Register(testSyncWriter(t, tempDir, "late", 2, time.Second), "late")
	assert.True(blunder.Is(err, blunder.AlreadyRunningError))
}

func TestRegister(t *testing.T) {
	assert := assert.New(t)

	tempDir := testTempDir(t)
	defer os.RemoveAll(tempDir)

	runManager := New("named")
	assert.Equal("named", runManager.Name())

	assert.Nil(runManager.Register(testSyncWriter(t, tempDir, "a", 0, time.Second), "a"))

	err := runManager.Register(testSyncWriter(t, tempDir, "a", 1, time.Second), "a")
	assert.True(blunder.Is(err, blunder.FileExistsError))

	err = runManager.Register(testSyncWriter(t, tempDir, "b", 2, time.Second), "")
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	_, err = New("empty").Execute()
	assert.True(blunder.Is(err, blunder.InvalidArgError))
}

func TestExecutePanickingWriter(t *testing.T) {
	assert := assert.New(t)

	tempDir := testTempDir(t)
	defer os.RemoveAll(tempDir)

	runManager := New("panic")
	runManager.SetMemorySource(testMemorySource{})
	runManager.SetMemorySampleInterval(100 * time.Millisecond)

	assert.Nil(runManager.Register(&testPanicWriter{config: stream.WriterConfig{Name: "boom", Duration: 300 * time.Millisecond}}, "boom"))
	assert.Nil(runManager.Register(testSyncWriter(t, tempDir, "ok", 0, 300*time.Millisecond), "ok"))

	runResult, err := runManager.Execute()
	assert.Nil(err)
	assert.Equal(2, len(runResult.Writers))
	assert.Equal("boom", runResult.Writers["boom"].Name)
	assert.Equal(0, len(runResult.Writers["boom"].Samples))
	assert.NotEqual(0, len(runResult.Writers["ok"].Samples))
	assert.Equal(3, len(runResult.Memory))
}

func TestExecuteNilMemorySource(t *testing.T) {
	assert := assert.New(t)

	tempDir := testTempDir(t)
	defer os.RemoveAll(tempDir)

	runManager := New("nilsource")
	runManager.SetMemorySource(nil)
	runManager.SetMemorySampleInterval(100 * time.Millisecond)

	assert.Nil(runManager.Register(testSyncWriter(t, tempDir, "w", 0, 300*time.Millisecond), "w"))

	runResult, err := runManager.Execute()
	assert.Nil(err)
	assert.Equal(1, len(runResult.Writers))
	assert.True(len(runResult.Memory) <= 3)
}

func TestExecuteSinkError(t *testing.T) {
	assert := assert.New(t)

	tempDir := testTempDir(t)
	defer os.RemoveAll(tempDir)

	sink := &testSink{err: fmt.Errorf("disk on fire")}

	runManager := New("sinkerr")
	runManager.SetSink(sink)
	runManager.SetMemorySource(testMemorySource{})
	runManager.SetMemorySampleInterval(100 * time.Millisecond)

	assert.Nil(runManager.Register(testSyncWriter(t, tempDir, "w", 0, 200*time.Millisecond), "w"))

	runResult, err := runManager.Execute()
	assert.NotNil(err)
	assert.Equal(1, len(runResult.Writers))
	assert.Equal(1, len(sink.persisted))
}
