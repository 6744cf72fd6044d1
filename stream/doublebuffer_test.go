// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDoubleBufferSwap(t *testing.T) {
	assert := assert.New(t)

	doubleBuffer := NewDoubleBuffer(16)

	assert.Nil(doubleBuffer.Swap())

	doubleBuffer.Append([]byte("abc"))
	doubleBuffer.Append([]byte("def"))
	assert.Equal(6, doubleBuffer.Len())

	drained := doubleBuffer.Swap()
	assert.Equal([]byte("abcdef"), drained)
	assert.Equal(0, doubleBuffer.Len())

	doubleBuffer.Append([]byte("ghi"))
	assert.Equal([]byte("ghi"), doubleBuffer.Swap())

	// The first buffer came back emptied
	doubleBuffer.Append([]byte("j"))
	assert.Equal([]byte("j"), doubleBuffer.Swap())

	assert.Equal(uint64(4), doubleBuffer.Appends())

	doubleBuffer.Release()
	assert.Nil(doubleBuffer.Swap())
}

// Concurrent producer and drainer: the drained stream must be exactly the
// produced stream, with nothing lost or repeated.
func TestDoubleBufferConcurrent(t *testing.T) {
	const (
		appendCount = 20000
	)

	var (
		drainedStream  bytes.Buffer
		producedStream bytes.Buffer
		producerDone   = make(chan struct{})
	)

	doubleBuffer := NewDoubleBuffer(64)
	rng := rand.New(rand.NewSource(1))

	chunks := make([][]byte, appendCount)
	for i := range chunks {
		chunk := make([]byte, 8+rng.Intn(56))
		binary.LittleEndian.PutUint64(chunk, uint64(i))
		_, _ = rng.Read(chunk[8:])
		chunks[i] = chunk
		producedStream.Write(chunk)
	}

	go func() {
		for i, chunk := range chunks {
			doubleBuffer.Append(chunk)
			if 0 == i%97 {
				runtime.Gosched()
			}
		}
		close(producerDone)
	}()

	draining := true
	for draining {
		select {
		case <-producerDone:
			draining = false
		default:
		}
		drained := doubleBuffer.Swap()
		if nil != drained {
			drainedStream.Write(drained)
		} else {
			runtime.Gosched()
		}
	}

	// final drain
	drained := doubleBuffer.Swap()
	if nil != drained {
		drainedStream.Write(drained)
	}

	assert.Equal(t, uint64(appendCount), doubleBuffer.Appends())
	assert.Equal(t, producedStream.Len(), drainedStream.Len())
	assert.True(t, bytes.Equal(producedStream.Bytes(), drainedStream.Bytes()))
}
