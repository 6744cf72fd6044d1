// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/binary"
	"io/ioutil"
	"math"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/halter"
)

type testGlobalsStruct struct {
	tempDir string
}

var testGlobals *testGlobalsStruct

func testSetup(t *testing.T) {
	var (
		err error
	)

	testGlobals = &testGlobalsStruct{}

	testGlobals.tempDir, err = ioutil.TempDir("", "stream_test")
	if nil != err {
		t.Fatalf("ioutil.TempDir() failed: %v", err)
	}

	halter.DisarmAll()
}

func testTeardown(t *testing.T) {
	halter.DisarmAll()

	err := os.RemoveAll(testGlobals.tempDir)
	if nil != err {
		t.Fatalf("os.RemoveAll() failed: %v", err)
	}

	testGlobals = nil
}

func testDirEntries(t *testing.T) int {
	entries, err := ioutil.ReadDir(testGlobals.tempDir)
	if nil != err {
		t.Fatalf("ioutil.ReadDir() failed: %v", err)
	}
	return len(entries)
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	base := WriterConfig{
		Name:        "w0",
		TargetDir:   "/tmp",
		PayloadSize: 1000,
		Duration:    time.Second,
	}

	config := base
	config.Rate = 10000
	normalized, err := config.normalize()
	assert.Nil(err)
	assert.Equal(100*time.Millisecond, normalized.Period)
	assert.Equal(PayloadBytes, normalized.PayloadKind)
	assert.False(normalized.Unlimited())

	config = base
	config.Period = 250 * time.Millisecond
	normalized, err = config.normalize()
	assert.Nil(err)
	assert.Equal(4000.0, normalized.Rate)

	config = base
	normalized, err = config.normalize()
	assert.Nil(err)
	assert.True(normalized.Unlimited())
	assert.Equal(0.0, normalized.Rate)

	config = base
	config.Name = ""
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.PayloadSize = 0
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.Duration = 0
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.Rate = -1
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.Rate = math.Inf(1)
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.PayloadKind = PayloadFloat64
	config.PayloadSize = 1001
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	config = base
	config.PayloadKind = "doubles"
	_, err = config.normalize()
	assert.True(blunder.Is(err, blunder.InvalidArgError))
}

func TestParse(t *testing.T) {
	assert := assert.New(t)

	discipline, err := ParseDiscipline("buffered")
	assert.Nil(err)
	assert.Equal(DisciplineBuffered, discipline)

	_, err = ParseDiscipline("async")
	assert.True(blunder.Is(err, blunder.InvalidArgError))

	payloadKind, err := ParsePayloadKind("")
	assert.Nil(err)
	assert.Equal(PayloadBytes, payloadKind)

	payloadKind, err = ParsePayloadKind("float64")
	assert.Nil(err)
	assert.Equal(PayloadFloat64, payloadKind)
}

func TestTargetFileName(t *testing.T) {
	assert := assert.New(t)

	config := WriterConfig{Name: "bolo0", Index: 3, PayloadSize: 16384, Rate: 65536}

	name := TargetFileName(config)
	assert.Regexp(regexp.MustCompile(`\A16384_65536_3_[0-9A-F]{16}\z`), name)
	assert.Equal(name, TargetFileName(config))

	config.Name = "bolo1"
	assert.NotEqual(name, TargetFileName(config))

	config.Rate = 0.5
	assert.Regexp(regexp.MustCompile(`\A16384_0.5_3_`), TargetFileName(config))
}

func TestGeneratePayload(t *testing.T) {
	assert := assert.New(t)

	payload, err := generatePayload(4096, PayloadBytes)
	assert.Nil(err)
	assert.Equal(4096, len(payload))

	payload, err = generatePayload(800, PayloadFloat64)
	assert.Nil(err)
	assert.Equal(800, len(payload))
	for i := 0; i < len(payload); i += 8 {
		f := math.Float64frombits(binary.LittleEndian.Uint64(payload[i:]))
		assert.True(f >= 0.0 && f < 1.0, "payload float %v out of [0,1)", f)
	}

	_, err = generatePayload(8, "doubles")
	assert.NotNil(err)
}

func TestNewWriter(t *testing.T) {
	assert := assert.New(t)

	config := WriterConfig{Name: "w", TargetDir: "/tmp", PayloadSize: 64, Rate: 640, Duration: time.Second}

	writer, err := NewWriter(DisciplineSync, config)
	assert.Nil(err)
	assert.Equal(DisciplineSync, writer.Discipline())
	assert.Equal(100*time.Millisecond, writer.Config().Period)

	writer, err = NewWriter(DisciplineBuffered, config)
	assert.Nil(err)
	assert.Equal(DisciplineBuffered, writer.Discipline())

	_, err = NewWriter("other", config)
	assert.True(blunder.Is(err, blunder.InvalidArgError))
}

func TestSummarize(t *testing.T) {
	assert := assert.New(t)

	result := WriterResult{
		Name:       "w0",
		Discipline: DisciplineSync,
		Config:     WriterConfig{Duration: 2 * time.Second, Rate: 100},
		Samples: []Sample{
			{Start: 10.0, End: 10.5, BytesWritten: 100},
			{Start: 11.0, End: math.NaN(), BytesWritten: 0},
			{Start: 11.5, End: 11.75, BytesWritten: 100},
		},
		BytesOffered: 300,
	}

	summary := Summarize(result)
	assert.Equal(3, summary.Attempts)
	assert.Equal(1, summary.Failures)
	assert.Equal(uint64(200), summary.BytesWritten)
	assert.Equal(uint64(300), summary.BytesOffered)
	assert.Equal(1750*time.Millisecond, summary.Span)
	assert.Equal(100.0, summary.Throughput)
	assert.Equal(375*time.Millisecond, summary.MeanLatency)
	assert.Equal(500*time.Millisecond, summary.MaxLatency)
	assert.Contains(summary.String(), "w0 [sync] 3 attempts (1 failed)")

	empty := Summarize(WriterResult{Name: "none"})
	assert.Equal(0, empty.Attempts)
	assert.Equal(time.Duration(0), empty.Span)
	assert.Contains(empty.String(), "unlimited")
}

func TestSampleLatency(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(250*time.Millisecond, Sample{Start: 1.0, End: 1.25}.Latency())

	failed := Sample{Start: 1.0, End: math.NaN()}
	assert.True(failed.Failed())
	assert.Equal(time.Duration(0), failed.Latency())
	assert.Contains(failed.String(), "failed")
}

func TestResultCopy(t *testing.T) {
	assert := assert.New(t)

	result := WriterResult{Name: "w", Samples: []Sample{{Start: 1, End: 2, BytesWritten: 3}}}
	resultCopy := result.Copy()
	resultCopy.Samples[0].BytesWritten = 99

	assert.Equal(uint64(3), result.Samples[0].BytesWritten)
	assert.Nil(WriterResult{}.Copy().Samples)
}
