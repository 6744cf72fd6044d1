// Copyright (c) 2015-2021, NVIDIA CORPORATION.
// SPDX-License-Identifier: Apache-2.0

// Package blunder provides error-handling wrappers
//
// These wrappers allow callers to provide additional information in Go errors
// while still conforming to the Go error interface.
//
// This package provides APIs to add errno information to regular Go errors.
//
// This package is currently implemented on top of the ansel1/merry package:
//   https://github.com/ansel1/merry
//
//   From merry godoc:
//     You can add any context information to an error with `e = merry.WithValue(e, "code", 12345)`
//     You can retrieve that value with `v, _ := merry.Value(e, "code").(int)`
//
package blunder

import (
	"errors"
	"fmt"
	"os"

	"github.com/ansel1/merry"
	"golang.org/x/sys/unix"

	"github.com/NVIDIA/fsstream/logger"
)

// FsError is an errno-valued classification attached to errors.
//
// NOTE: unix.Errno is used here because they are errno constants that exist in Go-land.
//
type FsError int

const (
	NotPermError          FsError = FsError(int(unix.EPERM))        // Operation not permitted
	NotFoundError         FsError = FsError(int(unix.ENOENT))       // No such file or directory
	IOError               FsError = FsError(int(unix.EIO))          // I/O error
	ReadOnlyError         FsError = FsError(int(unix.EROFS))        // Read-only file system
	BadFileError          FsError = FsError(int(unix.EBADF))        // Bad file number
	TryAgainError         FsError = FsError(int(unix.EAGAIN))       // Try again
	OutOfMemoryError      FsError = FsError(int(unix.ENOMEM))       // Out of memory
	PermDeniedError       FsError = FsError(int(unix.EACCES))       // Permission denied
	DevBusyError          FsError = FsError(int(unix.EBUSY))        // Device or resource busy
	FileExistsError       FsError = FsError(int(unix.EEXIST))       // File exists
	NotDirError           FsError = FsError(int(unix.ENOTDIR))      // Not a directory
	IsDirError            FsError = FsError(int(unix.EISDIR))       // Is a directory
	InvalidArgError       FsError = FsError(int(unix.EINVAL))       // Invalid argument
	TooManyOpenFilesError FsError = FsError(int(unix.EMFILE))       // Too many open files
	FileTooLargeError     FsError = FsError(int(unix.EFBIG))        // File too large
	NoSpaceError          FsError = FsError(int(unix.ENOSPC))       // No space left on device
	NameTooLongError      FsError = FsError(int(unix.ENAMETOOLONG)) // File name too long
	NotImplementedError   FsError = FsError(int(unix.ENOSYS))       // Function not implemented
	NotSupportedError     FsError = FsError(int(unix.ENOTSUP))      // Operation not supported
	NoDataError           FsError = FsError(int(unix.ENODATA))      // No data available
	QuotaExceededError    FsError = FsError(int(unix.EDQUOT))       // Quota exceeded
	TimedOut              FsError = FsError(int(unix.ETIMEDOUT))    // Connection Timed Out
)

// Errors that map to constants already defined above
const (
	AlreadyRunningError FsError = DevBusyError
	ChannelUsedError    FsError = FileExistsError
	GroupExistsError    FsError = FileExistsError
	GroupNotFoundError  FsError = NotFoundError
	InjectedError       FsError = IOError
)

// Success error
const SuccessError FsError = 0

const ( // reset iota to 0
	// Errors that are internal/specific to fsstream
	UnpackError FsError = 1000 + iota
	PackError
	WriterPanicError
)

// Default errno values for success and failure
const successErrno = 0
const failureErrno = -1

// Value returns the int value for the specified FsError constant
func (err FsError) Value() int {
	return int(err)
}

func (err FsError) String() string {
	switch err {
	case SuccessError:
		return "SuccessError"
	case UnpackError:
		return "UnpackError"
	case PackError:
		return "PackError"
	case WriterPanicError:
		return "WriterPanicError"
	}
	name := unix.ErrnoName(unix.Errno(err))
	if "" == name {
		return fmt.Sprintf("FsError(%d)", int(err))
	}
	return name
}

// NewError creates a new merry/blunder.FsError-annotated error using the given
// format string and arguments.
func NewError(errValue FsError, format string, a ...interface{}) error {
	return merry.WrapSkipping(fmt.Errorf(format, a...), 1).WithValue("errno", int(errValue))
}

// AddError is used to add FS error detail to a Go error.
//
// NOTE: by default merry will replace the old value with the new.
//
func AddError(e error, errValue FsError) error {
	if e == nil {
		return merry.New("regular error").WithValue("errno", int(errValue))
	}

	prevValue := Errno(e)
	if prevValue != successErrno && prevValue != failureErrno && prevValue != int(errValue) {
		logger.Warnf("replacing error value %v with value %v for error %v", prevValue, int(errValue), e)
	}

	return merry.WrapSkipping(e, 1).WithValue("errno", int(errValue))
}

// FromSyscall annotates e with the errno found inside it, if any.
//
// Errors from the os package wrap a syscall.Errno; that value is surfaced
// so callers can use Is() against the constants above. Errors already
// carrying an errno are returned unchanged. Anything else is an IOError.
//
func FromSyscall(e error) error {
	var (
		errno unix.Errno
	)

	if nil == e {
		return nil
	}
	if hasErrnoValue(e) {
		return e
	}

	if errors.As(e, &errno) {
		return merry.WrapSkipping(e, 1).WithValue("errno", int(errno))
	}
	if errors.Is(e, os.ErrNotExist) {
		return merry.WrapSkipping(e, 1).WithValue("errno", int(NotFoundError))
	}
	if errors.Is(e, os.ErrExist) {
		return merry.WrapSkipping(e, 1).WithValue("errno", int(FileExistsError))
	}
	if errors.Is(e, os.ErrPermission) {
		return merry.WrapSkipping(e, 1).WithValue("errno", int(PermDeniedError))
	}

	return merry.WrapSkipping(e, 1).WithValue("errno", int(IOError))
}

func hasErrnoValue(e error) bool {
	return nil != merry.Value(e, "errno")
}

// Errno extracts errno from the error, if it was previously wrapped.
// Otherwise a default value is returned.
//
func Errno(e error) int {
	if e == nil {
		return successErrno
	}

	var errno = failureErrno
	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errno = tmp.(int)
	}

	return errno
}

func ErrorString(e error) string {
	if e == nil {
		return ""
	}

	errPlusVal := e.Error()

	tmp := merry.Value(e, "errno")
	if tmp != nil {
		errPlusVal = fmt.Sprintf("%s. Error Value: %v", errPlusVal, FsError(tmp.(int)))
	}

	return errPlusVal
}

// Is checks if an error matches a particular FsError.
//
// NOTE: Because the value of the underlying errno is used to do this check, one cannot
//       use this API to distinguish between FsErrors that use the same errno value.
//
func Is(e error, theError FsError) bool {
	return Errno(e) == theError.Value()
}

func IsNot(e error, theError FsError) bool {
	return Errno(e) != theError.Value()
}

func IsSuccess(e error) bool {
	return Errno(e) == successErrno
}

func IsNotSuccess(e error) bool {
	return Errno(e) != successErrno
}

// Location returns the file and line number of the code that generated the error.
// Returns zero values if e has no stacktrace.
func Location(e error) (file string, line int) {
	file, line = merry.Location(e)
	return
}

// SourceLine returns the string representation of Location's result
func SourceLine(e error) string {
	return merry.SourceLine(e)
}

// Details wraps merry.Details, which returns all error details including stacktrace in a string.
func Details(e error) string {
	return merry.Details(e)
}
