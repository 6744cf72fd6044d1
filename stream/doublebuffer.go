// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"sync"
)

// DoubleBuffer is a pair of byte buffers of which one (the active one) takes
// appends while the other is drained. The mutex covers only Append and Swap;
// draining happens outside it.
type DoubleBuffer struct {
	sync.Mutex
	buffers [2][]byte
	active  int
	appends uint64
}

func NewDoubleBuffer(capacity int) (doubleBuffer *DoubleBuffer) {
	doubleBuffer = &DoubleBuffer{}
	doubleBuffer.buffers[0] = make([]byte, 0, capacity)
	doubleBuffer.buffers[1] = make([]byte, 0, capacity)
	return
}

// Append copies p onto the end of the active buffer.
func (doubleBuffer *DoubleBuffer) Append(p []byte) {
	doubleBuffer.Lock()
	doubleBuffer.buffers[doubleBuffer.active] = append(doubleBuffer.buffers[doubleBuffer.active], p...)
	doubleBuffer.appends++
	doubleBuffer.Unlock()
}

// Swap makes the other buffer active (emptied) and returns what had
// accumulated in the previously active one, or nil if nothing had.
//
// The returned slice is owned by the caller only until the next Swap, at
// which point it becomes the active buffer again. Swap must therefore be
// called from a single drainer.
func (doubleBuffer *DoubleBuffer) Swap() (drained []byte) {
	doubleBuffer.Lock()
	defer doubleBuffer.Unlock()

	if 0 == len(doubleBuffer.buffers[doubleBuffer.active]) {
		drained = nil
		return
	}

	drained = doubleBuffer.buffers[doubleBuffer.active]
	doubleBuffer.active = 1 - doubleBuffer.active
	doubleBuffer.buffers[doubleBuffer.active] = doubleBuffer.buffers[doubleBuffer.active][:0]

	return
}

// Len returns the number of bytes waiting in the active buffer.
func (doubleBuffer *DoubleBuffer) Len() (n int) {
	doubleBuffer.Lock()
	n = len(doubleBuffer.buffers[doubleBuffer.active])
	doubleBuffer.Unlock()
	return
}

// Appends returns the number of Append calls so far.
func (doubleBuffer *DoubleBuffer) Appends() (appends uint64) {
	doubleBuffer.Lock()
	appends = doubleBuffer.appends
	doubleBuffer.Unlock()
	return
}

// Release drops both buffers.
func (doubleBuffer *DoubleBuffer) Release() {
	doubleBuffer.Lock()
	doubleBuffer.buffers[0] = nil
	doubleBuffer.buffers[1] = nil
	doubleBuffer.Unlock()
}
