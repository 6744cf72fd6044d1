// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/fsstream/conf"
)

func testNestedFunc() {
	Infof("from nested func")
}

func TestAPI(t *testing.T) {
	assert := assert.New(t)

	confMap, err := conf.MakeConfMapFromStrings([]string{
		"Logging.LogToConsole=false",
		"Logging.TraceLevelLogging=logger",
		"Logging.DebugLevelLogging=none",
	})
	assert.Nil(err)

	err = Up(confMap)
	assert.Nil(err)

	var logcopy LogTarget
	logcopy.Init(50)
	AddLogTarget(logcopy)

	Tracef("hello there!")
	assert.True(logcopy.Contains("hello there!", "function=TestAPI", "package=logger"))

	Debugf("not emitted")
	assert.False(logcopy.Contains("not emitted"))

	err = fmt.Errorf("this is the error")
	ErrorfWithError(err, "we had an error!")
	assert.True(logcopy.Contains("we had an error!", "this is the error", "level=error"))

	testNestedFunc()
	assert.True(logcopy.Contains("from nested func", "function=testNestedFunc"))

	InfofWithFields(map[string]interface{}{"writer": "w0"}, "field test")
	assert.True(logcopy.Contains("field test", "writer=w0"))

	err = Down()
	assert.Nil(err)

	Tracef("after down")
	assert.False(logcopy.Contains("after down"))
}

func TestLogFile(t *testing.T) {
	assert := assert.New(t)

	dir, err := ioutil.TempDir("", "logger_test")
	assert.Nil(err)
	defer os.RemoveAll(dir)

	logFilePath := filepath.Join(dir, "fsstream.log")

	confMap, err := conf.MakeConfMapFromStrings([]string{
		"Logging.LogFilePath=" + logFilePath,
		"Logging.LogToConsole=false",
	})
	assert.Nil(err)

	err = Up(confMap)
	assert.Nil(err)

	Warnf("to the file %d", 42)

	err = Down()
	assert.Nil(err)

	buf, err := ioutil.ReadFile(logFilePath)
	assert.Nil(err)
	assert.Contains(string(buf), "to the file 42")
	assert.Contains(string(buf), "level=warning")
}

func TestLogBufferWrap(t *testing.T) {
	var logcopy LogTarget
	logcopy.Init(2)

	for i := 0; i < 5; i++ {
		_, _ = logcopy.Write([]byte(fmt.Sprintf("entry %d\n", i)))
	}

	assert.Equal(t, 5, logcopy.LogBuf.TotalEntries)
	assert.Equal(t, []string{"entry 4", "entry 3"}, logcopy.LogBuf.LogEntries)
}
