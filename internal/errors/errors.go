// Package errors provides structured error handling for reconwave operations.
// It defines error codes, error types, and utilities for creating and
// inspecting errors carrying scan context.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	// Input errors. These are rejected synchronously, before any job exists.
	CodeTargetInvalid       ErrorCode = "TARGET_INVALID"
	CodePortInvalid         ErrorCode = "PORT_INVALID"
	CodeNoValidPorts        ErrorCode = "NO_VALID_PORTS"
	CodeGrammarUnrecognized ErrorCode = "GRAMMAR_UNRECOGNIZED"
	CodeGrammarUnsupported  ErrorCode = "GRAMMAR_UNSUPPORTED_TYPE"

	// Policy errors. Callers may retry (concurrency) or must resubmit
	// with changes (conscience).
	CodeConscienceRejected ErrorCode = "CONSCIENCE_REJECTED"
	CodeConcurrencyLimit   ErrorCode = "CONCURRENCY_LIMIT_EXCEEDED"
	CodeGateUnavailable    ErrorCode = "GATE_UNAVAILABLE"

	// Runtime errors. Recorded on the job, never raised to StartScan callers.
	CodeScanFailed  ErrorCode = "SCAN_FAILED"
	CodeProbeFailed ErrorCode = "PROBE_FAILED"

	// Lookup errors.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// ScanError represents an error raised by the scanning engine.
type ScanError struct {
	Code    ErrorCode
	Message string
	Target  string
	Details []string
	Cause   error
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s (target: %s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches advisory detail lines to the error.
func (e *ScanError) WithDetails(details ...string) *ScanError {
	e.Details = append(e.Details, details...)
	return e
}

// NewScanError creates a new scan error with the specified code and message.
func NewScanError(code ErrorCode, message string) *ScanError {
	return &ScanError{Code: code, Message: message}
}

// WrapScanError wraps an existing error as a scan error.
func WrapScanError(code ErrorCode, message string, err error) *ScanError {
	return &ScanError{Code: code, Message: message, Cause: err}
}

// GateError represents a conscience gate rejection. Violations are the
// reasons the gate refused the request; warnings are advisory only and
// never appear here.
type GateError struct {
	Violations []string
}

// Error implements the error interface.
func (e *GateError) Error() string {
	if len(e.Violations) == 0 {
		return fmt.Sprintf("[%s] scan request rejected by conscience gate", CodeConscienceRejected)
	}
	return fmt.Sprintf("[%s] scan request rejected: %s",
		CodeConscienceRejected, strings.Join(e.Violations, "; "))
}

// Utility functions for common error operations

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// GetCode extracts the error code from an error if it has one.
func GetCode(err error) ErrorCode {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Code
	}
	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return CodeConscienceRejected
	}
	return CodeUnknown
}

// IsNotFound reports whether the error is a lookup miss.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// IsInputError reports whether the error belongs to the input taxonomy:
// rejected before a job was created, never retried automatically.
func IsInputError(err error) bool {
	switch GetCode(err) {
	case CodeTargetInvalid, CodePortInvalid, CodeNoValidPorts,
		CodeGrammarUnrecognized, CodeGrammarUnsupported, CodeValidation:
		return true
	default:
		return false
	}
}

// Common error creation functions

// ErrInvalidTarget creates an error for invalid scan targets.
func ErrInvalidTarget(target string, cause error) *ScanError {
	return &ScanError{
		Code:    CodeTargetInvalid,
		Message: "invalid target specification",
		Target:  target,
		Cause:   cause,
	}
}

// ErrInvalidPort creates an error for an unusable port specification.
func ErrInvalidPort(spec string, cause error) *ScanError {
	return &ScanError{
		Code:    CodePortInvalid,
		Message: fmt.Sprintf("invalid port specification %q", spec),
		Cause:   cause,
	}
}

// ErrNoValidPorts creates an error for a port specification in which no
// token parsed as a port.
func ErrNoValidPorts(spec string) *ScanError {
	return &ScanError{
		Code:    CodeNoValidPorts,
		Message: fmt.Sprintf("no valid ports in specification %q", spec),
	}
}

// ErrConscienceRejected creates an error for a gate rejection.
func ErrConscienceRejected(violations []string) *GateError {
	return &GateError{Violations: violations}
}

// ErrConcurrencyLimit creates an error for the scan admission limit.
func ErrConcurrencyLimit(limit int) *ScanError {
	return &ScanError{
		Code:    CodeConcurrencyLimit,
		Message: fmt.Sprintf("maximum of %d concurrent scans already running", limit),
	}
}

// ErrScanNotFound creates an error for an unknown scan ID.
func ErrScanNotFound(scanID string) *ScanError {
	return &ScanError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("no scan with ID %s", scanID),
	}
}

// ErrGrammarUnrecognized creates an error for command text that does not
// match the scan command form.
func ErrGrammarUnrecognized(text string) *ScanError {
	return &ScanError{
		Code:    CodeGrammarUnrecognized,
		Message: fmt.Sprintf("unrecognized command %q", text),
	}
}

// ErrUnsupportedScanType creates an error for an unknown scan type word.
func ErrUnsupportedScanType(word string) *ScanError {
	return &ScanError{
		Code:    CodeGrammarUnsupported,
		Message: fmt.Sprintf("unsupported scan type %q", word),
	}
}

// ErrGateUnavailable creates an error for a conscience gate that could not
// be consulted.
func ErrGateUnavailable(err error) *ScanError {
	return WrapScanError(CodeGateUnavailable, "conscience gate unavailable", err)
}
