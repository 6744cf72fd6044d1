// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/halter"
)

func TestBufferedAsyncWriterConservesBytes(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	assert := assert.New(t)

	config := WriterConfig{
		Name:        "bolo0",
		TargetDir:   testGlobals.tempDir,
		PayloadSize: 8192,
		Period:      100 * time.Millisecond,
		Duration:    time.Second,
		PayloadKind: PayloadFloat64,
	}

	writer, err := NewBufferedAsyncWriter(config)
	assert.Nil(err)

	observer := &testCountingObserver{}
	writer.SetObserver(observer)

	err = writer.Run()
	assert.Nil(err)

	result := writer.Result()
	assert.Equal(DisciplineBuffered, result.Discipline)

	var flushed uint64
	for _, sample := range result.Samples {
		assert.False(sample.Failed())
		assert.True(sample.End >= sample.Start)
		assert.Equal(uint64(0), sample.BytesWritten%config.PayloadSize)
		flushed += sample.BytesWritten
	}

	appends := result.BytesOffered / config.PayloadSize
	assert.Equal(result.BytesOffered, flushed)
	assert.True(appends >= 9 && appends <= 11, "appends == %d", appends)

	assert.Equal(len(result.Samples), observer.swapped)
	assert.Equal(1, observer.finished)

	// Target file deleted on completion
	assert.Equal(0, testDirEntries(t))
}

func TestBufferedAsyncWriterRejectsUnlimited(t *testing.T) {
	_, err := NewBufferedAsyncWriter(WriterConfig{
		Name:        "nolimit",
		TargetDir:   "/tmp",
		PayloadSize: 1024,
		Duration:    time.Second,
	})
	assert.True(t, blunder.Is(err, blunder.InvalidArgError))
}

func TestBufferedAsyncWriterOpenFailure(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	assert := assert.New(t)

	writer, err := NewBufferedAsyncWriter(WriterConfig{
		Name:        "nowhere",
		TargetDir:   filepath.Join(testGlobals.tempDir, "missing"),
		PayloadSize: 1024,
		Period:      50 * time.Millisecond,
		Duration:    300 * time.Millisecond,
	})
	assert.Nil(err)

	resultChannel := NewResultChannel()
	writer.AttachResultChannel(resultChannel)

	err = writer.Run()
	assert.Nil(err)

	result := resultChannel.Receive()
	assert.NotEqual(0, len(result.Samples))
	for _, sample := range result.Samples {
		assert.True(sample.Failed())
		assert.Equal(uint64(0), sample.BytesWritten)
	}
	assert.NotEqual(uint64(0), result.BytesOffered)
}

func TestBufferedAsyncWriterInjectedFlushFailure(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	assert := assert.New(t)

	err := halter.Arm("stream.AsyncFlush", 2)
	assert.Nil(err)

	writer, err := NewBufferedAsyncWriter(WriterConfig{
		Name:        "flaky",
		TargetDir:   testGlobals.tempDir,
		PayloadSize: 1024,
		Period:      50 * time.Millisecond,
		Duration:    500 * time.Millisecond,
	})
	assert.Nil(err)

	err = writer.Run()
	assert.Nil(err)

	samples := writer.Result().Samples
	assert.True(len(samples) >= 2)
	assert.False(samples[0].Failed())
	for _, sample := range samples[1:] {
		assert.True(sample.Failed())
	}
}

func TestBufferedAsyncWriterRunTwice(t *testing.T) {
	testSetup(t)
	defer testTeardown(t)

	writer, err := NewBufferedAsyncWriter(WriterConfig{
		Name:        "once",
		TargetDir:   testGlobals.tempDir,
		PayloadSize: 64,
		Period:      50 * time.Millisecond,
		Duration:    100 * time.Millisecond,
	})
	assert.Nil(t, err)

	assert.Nil(t, writer.Run())
	assert.True(t, blunder.Is(writer.Run(), blunder.AlreadyRunningError))
}
