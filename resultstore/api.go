// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package resultstore persists RunResults in a bbolt database.
//
// Each run is a group bucket under the root "runs" bucket:
//
//   runs/
//     <group>/
//       attrs/            start_time, duration
//       memory/
//         attrs/          columns, units
//         rows/           <big-endian index> -> {timestamp, resident_gb, swap_gb}
//       writer:<name>/
//         attrs/          columns, units, discipline, bytes_offered, config (JSON)
//         rows/           <big-endian index> -> {t_start, t_end, bytes_written}
//
// Rows are cstruct packed little-endian; float columns are stored as their
// IEEE 754 bit patterns so a failed write's NaN t_end survives the round trip.
// A database may accumulate many groups across invocations but a group name
// can only be written once.
package resultstore

import (
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/NVIDIA/fsstream/blunder"
	"github.com/NVIDIA/fsstream/logger"
)

const (
	rootBucketName   = "runs"
	attrsBucketName  = "attrs"
	rowsBucketName   = "rows"
	memoryBucketName = "memory"
	writerBucketPfx  = "writer:"

	startTimeAttr    = "start_time"
	durationAttr     = "duration"
	columnsAttr      = "columns"
	unitsAttr        = "units"
	disciplineAttr   = "discipline"
	bytesOfferedAttr = "bytes_offered"
	configAttr       = "config"

	memoryColumns = "timestamp,resident_gb,swap_gb"
	memoryUnits   = "seconds,GB,GB"
	writerColumns = "t_start,t_end,bytes_written"
	writerUnits   = "seconds,seconds,bytes"
)

// Store is an open result database.
type Store struct {
	db   *bolt.DB
	path string
}

// GroupInfo describes one persisted run without loading its rows.
type GroupInfo struct {
	Name          string
	StartTime     time.Time
	Duration      time.Duration
	Writers       []string
	MemorySamples int
}

// Open opens (creating if necessary) the database at path.
func Open(path string) (store *Store, err error) {
	var (
		db *bolt.DB
	)

	db, err = bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	err = db.Update(func(tx *bolt.Tx) (txErr error) {
		_, txErr = tx.CreateBucketIfNotExists([]byte(rootBucketName))
		return
	})
	if nil != err {
		_ = db.Close()
		err = blunder.AddError(err, blunder.IOError)
		return
	}

	store = &Store{db: db, path: path}

	logger.Tracef("opened result store %s", path)

	err = nil
	return
}

func (store *Store) Path() string {
	return store.path
}

func (store *Store) Close() (err error) {
	err = store.db.Close()
	if nil != err {
		err = blunder.AddError(err, blunder.IOError)
	}
	return
}
