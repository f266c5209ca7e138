// Package errs defines the error kinds shared by the contracts, the ledger
// platform and the gateway.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeInvalidState         Code = "INVALID_STATE"
	CodeUnauthorized         Code = "UNAUTHORIZED"
	CodeAlreadyActioned      Code = "ALREADY_ACTIONED"
	CodeExpired              Code = "EXPIRED"
	CodeHashMismatch         Code = "HASH_MISMATCH"
	CodeCrossContractFailure Code = "CROSS_CONTRACT_FAILURE"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeMVCCConflict         Code = "MVCC_CONFLICT"
	CodeInternal             Code = "INTERNAL"
)

// Error is the domain error type.
type Error struct {
	Code     Code              // Machine-readable kind
	Message  string            // Human readable, identifies the violated precondition
	Metadata map[string]string // Optional context (ids, states)
	Cause    error             // Wrapped underlying error
}

func (e *Error) Error() string {
	switch {
	case e.Cause == nil:
		return e.Message
	case e.Message == "":
		return e.Cause.Error()
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound             = New(CodeNotFound, "not found")
	ErrAlreadyExists        = New(CodeAlreadyExists, "already exists")
	ErrInvalidState         = New(CodeInvalidState, "invalid state")
	ErrUnauthorized         = New(CodeUnauthorized, "unauthorized")
	ErrAlreadyActioned      = New(CodeAlreadyActioned, "already actioned")
	ErrExpired              = New(CodeExpired, "expired")
	ErrCrossContractFailure = New(CodeCrossContractFailure, "cross-contract invocation failed")
	ErrInvalidArgument      = New(CodeInvalidArgument, "invalid argument")
	ErrMVCCConflict         = New(CodeMVCCConflict, "mvcc read conflict")
)

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when there is none.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Status maps a code to the response status used by contract responses and
// the HTTP gateway.
func Status(code Code) int {
	switch code {
	case "":
		return http.StatusOK
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyExists, CodeAlreadyActioned, CodeInvalidState, CodeMVCCConflict:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeExpired:
		return http.StatusGone
	case CodeInvalidArgument, CodeHashMismatch:
		return http.StatusBadRequest
	case CodeCrossContractFailure:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus reconstructs a code from a response status. It is lossy for
// statuses shared by several codes; callers should prefer an explicit code.
func FromStatus(status int) Code {
	switch status {
	case http.StatusOK:
		return ""
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeInvalidState
	case http.StatusForbidden:
		return CodeUnauthorized
	case http.StatusGone:
		return CodeExpired
	case http.StatusBadRequest:
		return CodeInvalidArgument
	case http.StatusFailedDependency:
		return CodeCrossContractFailure
	default:
		return CodeInternal
	}
}
