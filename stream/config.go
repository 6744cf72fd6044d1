// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/conf"
)

// WriterSectionPrefix prefixes each writer's conf section name.
const WriterSectionPrefix = "Writer:"

// FetchWriterConfig reads the [Writer:<name>] section of confMap.
//
//   [Writer:<name>]
//   Discipline:  sync | buffered   ; default sync
//   PayloadSize: <byte size>       ; required
//   Rate:        <byte size>       ; per second; empty with empty Period -> unlimited
//   Period:      <duration>        ; alternative to Rate
//   Duration:    <duration>        ; required
//   PayloadKind: bytes | float64   ; default bytes
//   SyncWrites:  true | false      ; default false
//   TargetDir:   <path>            ; default defaultTargetDir
//
func FetchWriterConfig(confMap conf.ConfMap, name string, index int, defaultTargetDir string) (discipline Discipline, config WriterConfig, err error) {
	var (
		disciplineString  string
		payloadKindString string
		rateBytes         uint64
		sectionName       string
	)

	sectionName = WriterSectionPrefix + name

	if _, ok := confMap[sectionName]; !ok {
		err = blunder.NewError(blunder.NotFoundError, "[%s] missing", sectionName)
		return
	}

	config = WriterConfig{Name: name, Index: index, TargetDir: defaultTargetDir}

	discipline = DisciplineSync
	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "Discipline") {
		disciplineString, err = confMap.FetchOptionValueString(sectionName, "Discipline")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		discipline, err = ParseDiscipline(disciplineString)
		if nil != err {
			return
		}
	}

	config.PayloadSize, err = confMap.FetchOptionValueByteSize(sectionName, "PayloadSize")
	if nil != err {
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}

	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "Rate") {
		rateBytes, err = confMap.FetchOptionValueByteSize(sectionName, "Rate")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		config.Rate = float64(rateBytes)
	}

	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "Period") {
		config.Period, err = confMap.FetchOptionValueDuration(sectionName, "Period")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
	}

	config.Duration, err = confMap.FetchOptionValueDuration(sectionName, "Duration")
	if nil != err {
		err = blunder.AddError(err, blunder.InvalidArgError)
		return
	}

	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "PayloadKind") {
		payloadKindString, err = confMap.FetchOptionValueString(sectionName, "PayloadKind")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
		config.PayloadKind, err = ParsePayloadKind(payloadKindString)
		if nil != err {
			return
		}
	} else {
		config.PayloadKind = PayloadBytes
	}

	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "SyncWrites") {
		config.SyncWrites, err = confMap.FetchOptionValueBool(sectionName, "SyncWrites")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
	}

	if !confMap.IsOptionValueEmptyOrMissing(sectionName, "TargetDir") {
		config.TargetDir, err = confMap.FetchOptionValueString(sectionName, "TargetDir")
		if nil != err {
			err = blunder.AddError(err, blunder.InvalidArgError)
			return
		}
	}

	err = nil
	return
}
