// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package memsampler

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/halter"
)

type testSource struct {
	sync.Mutex
	calls   int
	failOn  map[int]bool
	used    uint64
	swapped uint64
}

func (source *testSource) Used() (residentBytes uint64, swapBytes uint64, err error) {
	source.Lock()
	defer source.Unlock()

	source.calls++
	if source.failOn[source.calls] {
		err = fmt.Errorf("sample %d unavailable", source.calls)
		return
	}

	residentBytes = source.used
	swapBytes = source.swapped
	return
}

type testObserver struct {
	sampled int
	failed  int
}

func (observer *testObserver) MemorySampled(sample MemorySample) { observer.sampled++ }
func (observer *testObserver) MemorySampleFailed(err error)      { observer.failed++ }

func TestRun(t *testing.T) {
	assert := assert.New(t)

	source := &testSource{used: 3 * 1e9, swapped: 5e8}
	observer := &testObserver{}

	sampler := New(500*time.Millisecond, 100*time.Millisecond)
	sampler.Source = source
	sampler.Observer = observer

	samples := sampler.Run()

	assert.Equal(5, len(samples))
	for i, sample := range samples {
		assert.Equal(3.0, sample.ResidentGB)
		assert.Equal(0.5, sample.SwapGB)
		if i > 0 {
			assert.True(sample.Timestamp > samples[i-1].Timestamp)
		}
	}
	assert.Equal(5, observer.sampled)
	assert.Equal(0, observer.failed)
}

func TestRunSkipsFailures(t *testing.T) {
	assert := assert.New(t)

	source := &testSource{failOn: map[int]bool{2: true, 4: true}}
	observer := &testObserver{}

	sampler := New(500*time.Millisecond, 100*time.Millisecond)
	sampler.Source = source
	sampler.Observer = observer

	samples := sampler.Run()

	assert.Equal(5, source.calls)
	assert.Equal(3, len(samples))
	assert.Equal(2, observer.failed)
}

func TestRunInjectedFailure(t *testing.T) {
	assert := assert.New(t)

	halter.DisarmAll()
	defer halter.DisarmAll()

	assert.Nil(halter.Arm("memsampler.Sample", 4))

	source := &testSource{}
	sampler := New(500*time.Millisecond, 100*time.Millisecond)
	sampler.Source = source

	samples := sampler.Run()

	assert.Equal(3, len(samples))
	assert.Equal(3, source.calls)
}

func TestDefaultInterval(t *testing.T) {
	sampler := New(time.Second, 0)
	assert.Equal(t, DefaultInterval, sampler.Interval)
	assert.Equal(t, GopsutilSource{}, sampler.Source)
}

func TestGopsutilSource(t *testing.T) {
	residentBytes, _, err := GopsutilSource{}.Used()
	if nil != err {
		t.Skipf("host memory statistics unavailable: %v", err)
	}
	assert.NotZero(t, residentBytes)
}

func TestRunZeroValueSampler(t *testing.T) {
	assert := assert.New(t)

	observer := &testObserver{}

	// No Interval and no Source: Run uses DefaultInterval and GopsutilSource
	sampler := &Sampler{Duration: 500 * time.Millisecond, Observer: observer}

	start := time.Now()
	samples := sampler.Run()
	elapsed := time.Since(start)

	assert.True(elapsed >= DefaultInterval)
	assert.Equal(1, observer.sampled+observer.failed)
	assert.Equal(observer.sampled, len(samples))
}

func TestRunGrowsSamples(t *testing.T) {
	assert := assert.New(t)

	// A nominal count of Duration/Interval samples must not be reserved up front
	sampler := New(200*time.Millisecond, time.Nanosecond)
	sampler.Source = &testSource{used: 1e9}

	samples := sampler.Run()

	assert.NotEqual(0, len(samples))
	assert.True(cap(samples) < int(sampler.Duration/sampler.Interval))
}
