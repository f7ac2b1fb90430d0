// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed error handling with rich context for Aegis.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Aegis errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeConfig indicates the run could not start (missing credentials,
	// unknown provider). Never retried.
	CodeConfig ErrorCode = "CONFIG_ERROR"

	// CodeAborted indicates the run was halted by the global abort flag or
	// the oversight kill switch.
	CodeAborted ErrorCode = "ABORTED"

	// CodeOversightRejection indicates a human rejected the tool call. This
	// is a normal negative outcome, not a crash.
	CodeOversightRejection ErrorCode = "OVERSIGHT_REJECTION"

	// CodeRuntime indicates an unknown skill, a loop-limit breach, or an
	// unexpected failure that terminates the run.
	CodeRuntime ErrorCode = "RUNTIME_ERROR"

	// CodeRateLimit indicates the provider signalled throttling or a hard
	// daily quota was exceeded. A Governor penalty is recorded as a side
	// effect; the run is not retried internally.
	CodeRateLimit ErrorCode = "RATE_LIMIT"

	// CodeNotFound indicates a referenced entity (oversight entry, agent)
	// does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// AegisError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type AegisError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *AegisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AegisError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *AegisError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         errString(e.Err),
		Recoverable: e.Recoverable,
		Context:     e.Context,
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// New creates a new AegisError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AegisError {
	return &AegisError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *AegisError) WithContext(key string, value interface{}) *AegisError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *AegisError) WithRecoverable(recoverable bool) *AegisError {
	e.Recoverable = recoverable
	return e
}

// AsAegisError attempts to convert an error to an AegisError.
// Returns the error as AegisError if it is one, or wraps it otherwise.
func AsAegisError(err error) *AegisError {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*AegisError); ok {
		return ae
	}
	return New(CodeRuntime, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeRuntime for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ae, ok := err.(*AegisError); ok {
		return ae.Code
	}
	return CodeRuntime
}
