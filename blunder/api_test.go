// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

package blunder

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestValues(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(int(unix.EPERM), NotPermError.Value())
	assert.Equal(int(unix.EEXIST), GroupExistsError.Value())
	assert.Equal("EINVAL", InvalidArgError.String())
	assert.Equal("UnpackError", UnpackError.String())
}

func TestDefaultErrno(t *testing.T) {
	assert := assert.New(t)

	var err error

	assert.Equal(successErrno, Errno(err))
	assert.True(IsSuccess(err))

	err = fmt.Errorf("plain error")
	assert.Equal(failureErrno, Errno(err))
	assert.True(IsNotSuccess(err))
	assert.Equal("plain error", ErrorString(err))
}

func TestNewError(t *testing.T) {
	assert := assert.New(t)

	err := NewError(InvalidArgError, "bad rate %v", -1.0)
	assert.Equal("bad rate -1", err.Error())
	assert.True(Is(err, InvalidArgError))
	assert.True(IsNot(err, NotFoundError))
	assert.Contains(ErrorString(err), "EINVAL")

	file, line := Location(err)
	assert.Contains(file, "api_test.go")
	assert.NotZero(line)
}

func TestAddError(t *testing.T) {
	assert := assert.New(t)

	err := AddError(nil, IOError)
	assert.True(Is(err, IOError))

	err = AddError(fmt.Errorf("write failed"), NoSpaceError)
	assert.True(Is(err, NoSpaceError))
	assert.Equal("write failed", err.Error())

	err = AddError(err, IOError)
	assert.True(Is(err, IOError))
}

func TestFromSyscall(t *testing.T) {
	assert := assert.New(t)

	assert.Nil(FromSyscall(nil))

	dir, err := ioutil.TempDir("", "blunder_test")
	assert.Nil(err)
	defer os.RemoveAll(dir)

	_, err = os.Open(filepath.Join(dir, "missing"))
	assert.NotNil(err)
	assert.True(Is(FromSyscall(err), NotFoundError))

	_, err = os.OpenFile(dir, os.O_WRONLY, 0)
	assert.NotNil(err)
	assert.True(Is(FromSyscall(err), IsDirError))

	err = NewError(TryAgainError, "already classified")
	assert.True(Is(FromSyscall(err), TryAgainError))

	assert.True(Is(FromSyscall(fmt.Errorf("opaque")), IOError))
}
