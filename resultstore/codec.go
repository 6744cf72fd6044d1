// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package resultstore

import (
	"math"

	"github.com/NVIDIA/cstruct"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/memsampler"
	"github.com/NVIDIA/fsstream/stream"
)

type sampleRowStruct struct {
	TStart       uint64 // math.Float64bits(seconds)
	TEnd         uint64 // math.Float64bits(seconds or NaN)
	BytesWritten uint64
}

type memoryRowStruct struct {
	Timestamp  uint64 // math.Float64bits(seconds)
	ResidentGB uint64 // math.Float64bits(GB)
	SwapGB     uint64 // math.Float64bits(GB)
}

func packRowKey(index uint64) (key []byte, err error) {
	key, err = cstruct.Pack(index, cstruct.BigEndian)
	if nil != err {
		err = blunder.AddError(err, blunder.PackError)
	}
	return
}

func packSample(sample stream.Sample) (value []byte, err error) {
	row := sampleRowStruct{
		TStart:       math.Float64bits(sample.Start),
		TEnd:         math.Float64bits(sample.End),
		BytesWritten: sample.BytesWritten,
	}

	value, err = cstruct.Pack(row, cstruct.LittleEndian)
	if nil != err {
		err = blunder.AddError(err, blunder.PackError)
	}
	return
}

func unpackSample(value []byte) (sample stream.Sample, err error) {
	var (
		row sampleRowStruct
	)

	_, err = cstruct.Unpack(value, &row, cstruct.LittleEndian)
	if nil != err {
		err = blunder.AddError(err, blunder.UnpackError)
		return
	}

	sample = stream.Sample{
		Start:        math.Float64frombits(row.TStart),
		End:          math.Float64frombits(row.TEnd),
		BytesWritten: row.BytesWritten,
	}
	return
}

func packMemorySample(memorySample memsampler.MemorySample) (value []byte, err error) {
	row := memoryRowStruct{
		Timestamp:  math.Float64bits(memorySample.Timestamp),
		ResidentGB: math.Float64bits(memorySample.ResidentGB),
		SwapGB:     math.Float64bits(memorySample.SwapGB),
	}

	value, err = cstruct.Pack(row, cstruct.LittleEndian)
	if nil != err {
		err = blunder.AddError(err, blunder.PackError)
	}
	return
}

func unpackMemorySample(value []byte) (memorySample memsampler.MemorySample, err error) {
	var (
		row memoryRowStruct
	)

	_, err = cstruct.Unpack(value, &row, cstruct.LittleEndian)
	if nil != err {
		err = blunder.AddError(err, blunder.UnpackError)
		return
	}

	memorySample = memsampler.MemorySample{
		Timestamp:  math.Float64frombits(row.Timestamp),
		ResidentGB: math.Float64frombits(row.ResidentGB),
		SwapGB:     math.Float64frombits(row.SwapGB),
	}
	return
}
