// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package resultstore

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
	"github.com/NVIDIA/fsstream/memsampler"
	"github.com/NVIDIA/fsstream/runmgr"
	"github.com/NVIDIA/fsstream/stream"
	"github.com/NVIDIA/fsstream/utils"
)

// Persist writes runResult as a new group named runResult.Name. A group of
// that name already present fails with GroupExistsError and leaves the
// database unchanged.
func (store *Store) Persist(runResult runmgr.RunResult) (err error) {
	if "" == runResult.Name {
		err = blunder.NewError(blunder.InvalidArgError, "resultstore.Persist() requires a group name")
		return
	}

	err = store.db.Update(func(tx *bolt.Tx) (txErr error) {
		var (
			groupBucket *bolt.Bucket
			writerNames []string
		)

		if nil != tx.Bucket([]byte(rootBucketName)).Bucket([]byte(runResult.Name)) {
			txErr = blunder.NewError(blunder.GroupExistsError, "group %s already exists in %s", runResult.Name, store.path)
			return
		}

		groupBucket, txErr = tx.Bucket([]byte(rootBucketName)).CreateBucket([]byte(runResult.Name))
		if nil != txErr {
			return
		}

		txErr = putAttrs(groupBucket, map[string]string{
			startTimeAttr: runResult.StartTime.UTC().Format(time.RFC3339Nano),
			durationAttr:  runResult.Duration.String(),
		})
		if nil != txErr {
			return
		}

		txErr = putMemory(groupBucket, runResult.Memory)
		if nil != txErr {
			return
		}

		writerNames = make([]string, 0, len(runResult.Writers))
		for writerName := range runResult.Writers {
			writerNames = append(writerNames, writerName)
		}
		sort.Strings(writerNames)

		for _, writerName := range writerNames {
			txErr = putWriter(groupBucket, writerName, runResult.Writers[writerName])
			if nil != txErr {
				return
			}
		}

		return
	})
	if nil != err {
		if blunder.Is(err, blunder.GroupExistsError) {
			return
		}
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	logger.Infof("persisted group %s (%d writers, %d memory samples) to %s", runResult.Name, len(runResult.Writers), len(runResult.Memory), store.path)

	err = nil
	return
}

func putAttrs(parent *bolt.Bucket, attrs map[string]string) (err error) {
	var (
		attrsBucket *bolt.Bucket
	)

	attrsBucket, err = parent.CreateBucket([]byte(attrsBucketName))
	if nil != err {
		return
	}

	for key, value := range attrs {
		err = attrsBucket.Put([]byte(key), []byte(value))
		if nil != err {
			return
		}
	}

	return
}

func putMemory(groupBucket *bolt.Bucket, memory []memsampler.MemorySample) (err error) {
	var (
		key          []byte
		memoryBucket *bolt.Bucket
		rowsBucket   *bolt.Bucket
		value        []byte
	)

	memoryBucket, err = groupBucket.CreateBucket([]byte(memoryBucketName))
	if nil != err {
		return
	}

	err = putAttrs(memoryBucket, map[string]string{
		columnsAttr: memoryColumns,
		unitsAttr:   memoryUnits,
	})
	if nil != err {
		return
	}

	rowsBucket, err = memoryBucket.CreateBucket([]byte(rowsBucketName))
	if nil != err {
		return
	}

	for index, memorySample := range memory {
		key, err = packRowKey(uint64(index))
		if nil != err {
			return
		}
		value, err = packMemorySample(memorySample)
		if nil != err {
			return
		}
		err = rowsBucket.Put(key, value)
		if nil != err {
			return
		}
	}

	return
}

func putWriter(groupBucket *bolt.Bucket, writerName string, result stream.WriterResult) (err error) {
	var (
		key          []byte
		rowsBucket   *bolt.Bucket
		value        []byte
		writerBucket *bolt.Bucket
	)

	writerBucket, err = groupBucket.CreateBucket([]byte(writerBucketPfx + writerName))
	if nil != err {
		return
	}

	err = putAttrs(writerBucket, map[string]string{
		columnsAttr:      writerColumns,
		unitsAttr:        writerUnits,
		disciplineAttr:   result.Discipline.String(),
		bytesOfferedAttr: strconv.FormatUint(result.BytesOffered, 10),
		configAttr:       utils.JSONify(result.Config, false),
	})
	if nil != err {
		return
	}

	rowsBucket, err = writerBucket.CreateBucket([]byte(rowsBucketName))
	if nil != err {
		return
	}

	for index, sample := range result.Samples {
		key, err = packRowKey(uint64(index))
		if nil != err {
			return
		}
		value, err = packSample(sample)
		if nil != err {
			return
		}
		err = rowsBucket.Put(key, value)
		if nil != err {
			return
		}
	}

	return
}

// Groups lists every persisted group, ordered by name.
func (store *Store) Groups() (groups []GroupInfo, err error) {
	groups = make([]GroupInfo, 0)

	err = store.db.View(func(tx *bolt.Tx) (txErr error) {
		txErr = tx.Bucket([]byte(rootBucketName)).ForEach(func(k []byte, v []byte) (forEachErr error) {
			var (
				groupInfo GroupInfo
			)

			if nil != v {
				return // not a bucket
			}

			groupInfo, forEachErr = fetchGroupInfo(tx.Bucket([]byte(rootBucketName)).Bucket(k), string(k))
			if nil != forEachErr {
				return
			}

			groups = append(groups, groupInfo)
			return
		})
		return
	})
	if nil != err {
		if blunder.Is(err, blunder.UnpackError) {
			return
		}
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	err = nil
	return
}

func fetchGroupInfo(groupBucket *bolt.Bucket, groupName string) (groupInfo GroupInfo, err error) {
	var (
		attrs map[string]string
	)

	groupInfo = GroupInfo{Name: groupName, Writers: make([]string, 0)}

	attrs = fetchAttrs(groupBucket)

	groupInfo.StartTime, err = time.Parse(time.RFC3339Nano, attrs[startTimeAttr])
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "group %s: bad %s %q: %v", groupName, startTimeAttr, attrs[startTimeAttr], err)
		return
	}

	groupInfo.Duration, err = time.ParseDuration(attrs[durationAttr])
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "group %s: bad %s %q: %v", groupName, durationAttr, attrs[durationAttr], err)
		return
	}

	if memoryBucket := groupBucket.Bucket([]byte(memoryBucketName)); nil != memoryBucket {
		if rowsBucket := memoryBucket.Bucket([]byte(rowsBucketName)); nil != rowsBucket {
			groupInfo.MemorySamples = rowsBucket.Stats().KeyN
		}
	}

	err = groupBucket.ForEach(func(k []byte, v []byte) error {
		if (nil == v) && strings.HasPrefix(string(k), writerBucketPfx) {
			groupInfo.Writers = append(groupInfo.Writers, strings.TrimPrefix(string(k), writerBucketPfx))
		}
		return nil
	})

	return
}

func fetchAttrs(parent *bolt.Bucket) (attrs map[string]string) {
	attrs = make(map[string]string)

	attrsBucket := parent.Bucket([]byte(attrsBucketName))
	if nil == attrsBucket {
		return
	}

	_ = attrsBucket.ForEach(func(k []byte, v []byte) error {
		attrs[string(k)] = string(v)
		return nil
	})

	return
}

// Load reads back the group named groupName.
func (store *Store) Load(groupName string) (runResult runmgr.RunResult, err error) {
	err = store.db.View(func(tx *bolt.Tx) (txErr error) {
		var (
			groupBucket *bolt.Bucket
			groupInfo   GroupInfo
		)

		groupBucket = tx.Bucket([]byte(rootBucketName)).Bucket([]byte(groupName))
		if nil == groupBucket {
			txErr = blunder.NewError(blunder.GroupNotFoundError, "group %s not found in %s", groupName, store.path)
			return
		}

		groupInfo, txErr = fetchGroupInfo(groupBucket, groupName)
		if nil != txErr {
			return
		}

		runResult = runmgr.RunResult{
			Name:      groupName,
			StartTime: groupInfo.StartTime,
			Duration:  groupInfo.Duration,
			Writers:   make(map[string]stream.WriterResult),
			Memory:    make([]memsampler.MemorySample, 0, groupInfo.MemorySamples),
		}

		runResult.Memory, txErr = fetchMemory(groupBucket, runResult.Memory)
		if nil != txErr {
			return
		}

		for _, writerName := range groupInfo.Writers {
			runResult.Writers[writerName], txErr = fetchWriter(groupBucket, writerName)
			if nil != txErr {
				return
			}
		}

		return
	})

	return
}

func fetchMemory(groupBucket *bolt.Bucket, memory []memsampler.MemorySample) (memoryOut []memsampler.MemorySample, err error) {
	var (
		memorySample memsampler.MemorySample
	)

	memoryOut = memory

	memoryBucket := groupBucket.Bucket([]byte(memoryBucketName))
	if nil == memoryBucket {
		return
	}
	rowsBucket := memoryBucket.Bucket([]byte(rowsBucketName))
	if nil == rowsBucket {
		return
	}

	// Big-endian keys iterate in index order
	err = rowsBucket.ForEach(func(k []byte, v []byte) (forEachErr error) {
		memorySample, forEachErr = unpackMemorySample(v)
		if nil == forEachErr {
			memoryOut = append(memoryOut, memorySample)
		}
		return
	})

	return
}

func fetchWriter(groupBucket *bolt.Bucket, writerName string) (result stream.WriterResult, err error) {
	var (
		attrs        map[string]string
		sample       stream.Sample
		writerBucket *bolt.Bucket
	)

	writerBucket = groupBucket.Bucket([]byte(writerBucketPfx + writerName))
	attrs = fetchAttrs(writerBucket)

	result = stream.WriterResult{
		Name:       writerName,
		Discipline: stream.Discipline(attrs[disciplineAttr]),
		Samples:    make([]stream.Sample, 0),
	}

	err = json.Unmarshal([]byte(attrs[configAttr]), &result.Config)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "writer %s: bad %s: %v", writerName, configAttr, err)
		return
	}

	result.BytesOffered, err = strconv.ParseUint(attrs[bytesOfferedAttr], 10, 64)
	if nil != err {
		err = blunder.NewError(blunder.UnpackError, "writer %s: bad %s %q: %v", writerName, bytesOfferedAttr, attrs[bytesOfferedAttr], err)
		return
	}

	rowsBucket := writerBucket.Bucket([]byte(rowsBucketName))
	if nil == rowsBucket {
		return
	}

	err = rowsBucket.ForEach(func(k []byte, v []byte) (forEachErr error) {
		sample, forEachErr = unpackSample(v)
		if nil == forEachErr {
			result.Samples = append(result.Samples, sample)
		}
		return
	})

	return
}
