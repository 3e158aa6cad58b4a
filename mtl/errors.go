package mtl

import (
	"fmt"
	"io"

	"github.com/gomlx/gomtl/handles"
	"github.com/pkg/errors"
)

// ErrorKind classifies the failures of the registry operations.
type ErrorKind int

//go:generate go tool enumer -type=ErrorKind errors.go

const (
	// UnknownError is returned by KindOf for errors not created by this package.
	UnknownError ErrorKind = iota

	// InvalidHandle: a stale, wrong-kind, or never-issued handle was given, or a handle to an object of another
	// device than the one it is used with.
	InvalidHandle

	// InvalidIndex: device enumeration index out of range.
	InvalidIndex

	// CompileError: the library source failed to compile. The message holds the compiler diagnostic.
	CompileError

	// SymbolNotFound: the named function is not in the library.
	SymbolNotFound

	// PipelineBuildError: the device rejected the pipeline, or the function doesn't belong to the device.
	PipelineBuildError

	// OutOfBounds: a host<->device copy is larger than the buffer.
	OutOfBounds

	// SubmissionError: the device failed to allocate, execute, or complete the work.
	SubmissionError

	// InvalidState: the call is out of order, e.g. binding after EndEncoding or waiting before Commit.
	InvalidState
)

// Error is returned by all Registry operations that fail.
type Error struct {
	Kind ErrorKind
	err  error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.err)
}

// Unwrap returns the underlying error, with its stack trace.
func (e *Error) Unwrap() error {
	return e.err
}

// Format implements fmt.Formatter: "%+v" includes the stack trace of where the error was created.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s: %+v", e.Kind, e.err)
		return
	}
	_, _ = io.WriteString(s, e.Error())
}

// KindOf returns the ErrorKind of err, or UnknownError if it was not created by this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return UnknownError
}

// errorf creates an error of the given kind and counts it in the registry metrics.
func (r *Registry) errorf(kind ErrorKind, format string, args ...any) error {
	r.errorCounts[kind].Add(1)
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// wrapf wraps err with a message, as an error of the given kind.
func (r *Registry) wrapf(kind ErrorKind, err error, format string, args ...any) error {
	r.errorCounts[kind].Add(1)
	if _, ok := err.(interface{ StackTrace() errors.StackTrace }); !ok {
		err = errors.WithStack(err)
	}
	return &Error{Kind: kind, err: errors.WithMessagef(err, format, args...)}
}

// invalidHandle converts a failed lookup into an InvalidHandle error.
func (r *Registry) invalidHandle(err error, op string) error {
	var invalidErr *handles.InvalidHandleError
	if errors.As(err, &invalidErr) {
		return r.wrapf(InvalidHandle, err, "%s", op)
	}
	return r.wrapf(UnknownError, err, "%s", op)
}
