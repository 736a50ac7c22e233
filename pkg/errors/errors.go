// Package errors provides structured error handling for lakeseed.
// It implements errors with codes, context, and stack traces.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Input errors (1xx)
	CodeSourceNotFound   Code = "E101"
	CodeInvalidDate      Code = "E102"
	CodeWorkbookParse    Code = "E103"
	CodeMissingColumn    Code = "E104"
	CodeInvalidTimestamp Code = "E105"

	// Encoding errors (2xx)
	CodeEncodeFailed    Code = "E201"
	CodeDecodeFailed    Code = "E202"
	CodeUnsupportedKind Code = "E203"

	// Sink errors (3xx)
	CodeBucketFailed Code = "E301"
	CodePutFailed    Code = "E302"
	CodeGetFailed    Code = "E303"
	CodeListFailed   Code = "E304"

	// Cursor errors (4xx)
	CodeCursorRead      Code = "E401"
	CodeCursorAdvance   Code = "E402"
	CodeCursorRegressed Code = "E403"

	// System errors (5xx)
	CodeContextCanceled Code = "E501"
	CodeDownloadFailed  Code = "E502"
	CodeInspectFailed   Code = "E503"

	// Unknown
	CodeUnknown Code = "E999"
)

// LakeseedError is the base error type for all lakeseed errors.
type LakeseedError struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *LakeseedError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *LakeseedError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *LakeseedError) Is(target error) bool {
	if t, ok := target.(*LakeseedError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *LakeseedError) WithContext(key string, value interface{}) *LakeseedError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new LakeseedError.
func New(code Code, message string) *LakeseedError {
	return &LakeseedError{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new LakeseedError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *LakeseedError {
	return &LakeseedError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *LakeseedError {
	if err == nil {
		return nil
	}

	return &LakeseedError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *LakeseedError) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// SourceNotFound creates a missing source file error.
func SourceNotFound(path string) *LakeseedError {
	return New(CodeSourceNotFound, "source file not found").WithContext("path", path)
}

// InvalidDate creates a malformed date argument error.
func InvalidDate(value string) *LakeseedError {
	return New(CodeInvalidDate, "invalid date, expected YYYY-MM-DD").
		WithContext("value", value)
}

// MissingColumn creates a missing timestamp column error.
// This is the degraded per-sheet path: the sheet yields an empty batch
// and sibling sheets continue.
func MissingColumn(sheet, column string, available []string) *LakeseedError {
	return New(CodeMissingColumn, "timestamp column not found").
		WithContext("sheet", sheet).
		WithContext("column", column).
		WithContext("available", available)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(sheet, value string, row int) *LakeseedError {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("sheet", sheet).
		WithContext("value", value).
		WithContext("row", row)
}

// CursorRegressed creates a backward cursor movement error.
func CursorRegressed(current, proposed string) *LakeseedError {
	return New(CodeCursorRegressed, "cursor may only move forward").
		WithContext("current", current).
		WithContext("proposed", proposed)
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *LakeseedError {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var lsErr *LakeseedError
	if errors.As(err, &lsErr) {
		return lsErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var lsErr *LakeseedError
	if errors.As(err, &lsErr) {
		return lsErr.Code
	}
	return CodeUnknown
}

// Stack returns the captured stack trace of err, or empty when err
// carries none.
func Stack(err error) string {
	var lsErr *LakeseedError
	if errors.As(err, &lsErr) {
		return lsErr.FormatStack()
	}
	return ""
}

// IsDegraded returns true for errors that are recovered locally rather
// than aborting a run. The only such case is a sheet missing its
// timestamp column.
func IsDegraded(err error) bool {
	return IsCode(err, CodeMissingColumn)
}

// IsInput returns true if the error is an input/configuration error
// for which no state was mutated.
func IsInput(err error) bool {
	switch GetCode(err) {
	case CodeSourceNotFound, CodeInvalidDate, CodeWorkbookParse, CodeInvalidTimestamp:
		return true
	default:
		return false
	}
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
