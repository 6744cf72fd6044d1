// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"sync/atomic"

	"github.com/NVIDIA/fsstream/blunder"
)

// ResultChannel carries exactly one WriterResult from a writer to whoever is
// waiting on it. What crosses is a deep copy; nothing is shared with the
// sending writer afterwards.
type ResultChannel struct {
	ch   chan WriterResult
	sent uint32
}

func NewResultChannel() (resultChannel *ResultChannel) {
	resultChannel = &ResultChannel{
		ch: make(chan WriterResult, 1),
	}
	return
}

// Send hands a copy of result to the receiver without blocking. Only the
// first Send succeeds; later ones fail with ChannelUsedError.
func (resultChannel *ResultChannel) Send(result WriterResult) (err error) {
	if !atomic.CompareAndSwapUint32(&resultChannel.sent, 0, 1) {
		err = blunder.NewError(blunder.ChannelUsedError, "result for writer %s already sent", result.Name)
		return
	}

	resultChannel.ch <- result.Copy()

	err = nil
	return
}

// Receive blocks until the result has been sent.
func (resultChannel *ResultChannel) Receive() (result WriterResult) {
	result = <-resultChannel.ch
	return
}

// Sent reports whether Send has already succeeded.
func (resultChannel *ResultChannel) Sent() bool {
	return 1 == atomic.LoadUint32(&resultChannel.sent)
}
