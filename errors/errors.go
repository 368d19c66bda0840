// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package errors wraps pkg/errors and adds error codes. Every failure surfaced
// by the storage engine carries one of the codes below so callers can decide
// how to react with Is() instead of matching on messages.
package errors

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error. For
// example, see the Is() method.
type Code string

const (
	// ErrNullParameter reports a missing or invalid argument. It is always
	// returned before any I/O is attempted.
	ErrNullParameter Code = "NullParameter"

	// ErrDataError reports semantically invalid input: unknown type tags,
	// mismatched array geometry, unsupported calendars.
	ErrDataError Code = "DataError"

	// ErrServerError reports a backend connection, statement or execution
	// failure.
	ErrServerError Code = "ServerError"

	// ErrBufferOverflow reports a rendered statement (or value) which exceeds
	// its configured maximum size.
	ErrBufferOverflow Code = "BufferOverflow"

	// ErrOutOfMemory reports an allocation which could not be satisfied.
	ErrOutOfMemory Code = "OutOfMemory"

	// ErrTimeParsing reports a malformed or missing calendar or base time.
	ErrTimeParsing Code = "TimeParsingError"

	// ErrUnknownType reports a type tag outside the supported set.
	ErrUnknownType Code = "UnknownType"

	// ErrInvalidBuffer reports a nil, empty or short buffer.
	ErrInvalidBuffer Code = "InvalidBuffer"

	ErrUncoded Code = "Uncoded"
)

// New returns a coded error carrying a stack trace.
func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

// Newf is New with a format string.
func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
}

// CodeOf returns the code of the first coded error in err's chain, or
// ErrUncoded.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// codedError is the fundamental type used by this package to provide coded
// errors. When it wraps a cause, Unwrap exposes it so that errors.Is against
// sentinel values (io.EOF, context.Canceled) keeps working.
type codedError struct {
	Code    Code
	Message string
	cause   error
}

func (ce codedError) Error() string {
	if ce.cause != nil {
		return ce.Message + ": " + ce.cause.Error()
	}
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}

func (ce codedError) Unwrap() error { return ce.cause }

// MarshalJSON lets coded errors be reported by the CLI in machine-readable
// form.
func (ce codedError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	}{
		Code:    ce.Code,
		Message: ce.Error(),
	})
}

// WithCode attaches code to err. The resulting error matches both the code
// (via Is) and err's own chain.
func WithCode(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
		cause:   err,
	})
}

// The following are helper functions for constructing coded errors containing
// relevant information about the specific error.

func NewErrNullParameter(name string) error {
	return New(ErrNullParameter, fmt.Sprintf("null or invalid parameter '%s'", name))
}

func NewErrDataError(format string, args ...interface{}) error {
	return New(ErrDataError, fmt.Sprintf(format, args...))
}

// NewErrServerError wraps a backend failure raised while running op.
func NewErrServerError(op string, err error) error {
	if err == nil {
		return New(ErrServerError, op)
	}
	return WithCode(err, ErrServerError, op)
}

func NewErrBufferOverflow(what string, size, max int) error {
	return New(ErrBufferOverflow, fmt.Sprintf("%s of %d bytes exceeds maximum of %d bytes", what, size, max))
}

func NewErrOutOfMemory(size int64) error {
	return New(ErrOutOfMemory, fmt.Sprintf("unable to allocate %d bytes", size))
}

func NewErrTimeParsing(format string, args ...interface{}) error {
	return New(ErrTimeParsing, fmt.Sprintf(format, args...))
}
