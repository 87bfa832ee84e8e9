// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package xstools

import (
	"errors"
	"fmt"
)

// ErrorSeverity ranks how badly an operation went wrong. Severities are
// ordered so that combining two errors keeps the worse one.
type ErrorSeverity int

const (
	SeverityNone  ErrorSeverity = 0 // successful completion
	SeverityMinor ErrorSeverity = 1 // recoverable I/O fault, caller may retry
	SeverityMajor ErrorSeverity = 2 // protocol invariant violated, process can continue
	SeverityFatal ErrorSeverity = 3 // unrecoverable, aborts the request
)

func (s ErrorSeverity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityFatal:
		return "fatal"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// XsErrorCode identifies the fault class of an XsError.
type XsErrorCode int

const (
	CodeNone XsErrorCode = iota
	CodeNotFound
	CodeBusy
	CodeOpenFailed
	CodeTimeout
	CodeShortRead
	CodeShortWrite
	CodeShortResult
	CodeProtocol
)

// XsError carries a severity and fault class along with its message.
type XsError struct {
	severity ErrorSeverity
	code     XsErrorCode
	msg      string
}

func NewXsError(severity ErrorSeverity, code XsErrorCode, msg string) *XsError {
	return &XsError{severity: severity, code: code, msg: msg}
}

func MinorError(code XsErrorCode, msg string) *XsError {
	return NewXsError(SeverityMinor, code, msg)
}

func MajorError(code XsErrorCode, msg string) *XsError {
	return NewXsError(SeverityMajor, code, msg)
}

func FatalError(msg string) *XsError {
	return NewXsError(SeverityFatal, CodeProtocol, msg)
}

func (e *XsError) Error() string {
	return e.msg
}

func (e *XsError) Severity() ErrorSeverity {
	return e.severity
}

func (e *XsError) Code() XsErrorCode {
	return e.code
}

// SeverityOf classifies any error value. Errors from outside this package
// count as major faults since they violated some expectation but left the
// process intact.
func SeverityOf(err error) ErrorSeverity {
	if err == nil {
		return SeverityNone
	}

	var xsErr *XsError
	if errors.As(err, &xsErr) {
		return xsErr.severity
	}

	return SeverityMajor
}

// CodeOf extracts the fault class of an error, CodeProtocol for foreign
// error values.
func CodeOf(err error) XsErrorCode {
	if err == nil {
		return CodeNone
	}

	var xsErr *XsError
	if errors.As(err, &xsErr) {
		return xsErr.code
	}

	return CodeProtocol
}

// OrErrors combines two error values. The result keeps the highest severity
// of the two and chains the messages so no diagnostic is lost.
func OrErrors(a error, b error) error {
	if a == nil {
		return b
	}

	if b == nil {
		return a
	}

	severity := SeverityOf(a)
	code := CodeOf(a)

	if SeverityOf(b) > severity {
		severity = SeverityOf(b)
		code = CodeOf(b)
	}

	return NewXsError(severity, code, a.Error()+"\n- AND -\n"+b.Error())
}
