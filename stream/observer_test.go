// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
)

func TestMultiObserver(t *testing.T) {
	assert := assert.New(t)

	first := &testCountingObserver{}
	second := &testCountingObserver{}
	multiObserver := MultiObserver{first, NopObserver{}, second}

	multiObserver.WriteCompleted("w", Sample{Start: 1, End: 2, BytesWritten: 3})
	multiObserver.WriteFailed("w", Sample{Start: 1, End: math.NaN()}, fmt.Errorf("nope"))
	multiObserver.BufferSwapped("w", 3)
	multiObserver.WriterFinished(WriterResult{Name: "w"})

	for _, observer := range []*testCountingObserver{first, second} {
		assert.Equal(1, observer.completed)
		assert.Equal(1, observer.failed)
		assert.Equal(1, observer.swapped)
		assert.Equal(1, observer.finished)
	}
}

func TestLogObserverRateLimit(t *testing.T) {
	assert := assert.New(t)

	var logcopy logger.LogTarget
	logcopy.Init(100)
	logger.AddLogTarget(logcopy)

	logObserver := NewLogObserver(time.Hour, 2)

	writeErr := blunder.NewError(blunder.NoSpaceError, "disk full")
	for i := 0; i < 5; i++ {
		logObserver.WriteFailed("full", Sample{Start: float64(i), End: math.NaN()}, writeErr)
	}

	assert.Equal(uint64(3), logObserver.Suppressed())
	assert.True(logcopy.Contains("writer full write at", "ENOSPC"))

	logObserver.WriterFinished(WriterResult{Name: "full", Discipline: DisciplineSync})
	assert.True(logcopy.Contains("full [sync] 0 attempts"))
}
