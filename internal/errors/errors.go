// Package errors provides a lightweight structured error type (BuildError)
// for category-based classification across the scanner, scheduler and CLI.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a cybuild error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig  ErrorCategory = "config"
	CategoryPattern ErrorCategory = "pattern"

	// Discovery and cache errors
	CategoryScan  ErrorCategory = "scan"
	CategoryCache ErrorCategory = "cache"

	// Compilation errors
	CategoryCompile       ErrorCategory = "compile"
	CategoryMissingModule ErrorCategory = "missing_module"

	// Runtime and infrastructure errors
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
)

// BuildError is a structured error with category, retryability, and context
type BuildError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for BuildError
type ContextFields map[string]any

// Error implements the error interface
func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// IsFatal reports whether the error should abort the run.
func (e *BuildError) IsFatal() bool {
	return e.Severity == SeverityFatal
}

// New creates a new BuildError
func New(category ErrorCategory, severity ErrorSeverity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BuildError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a new retryable BuildError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *BuildError {
	return &BuildError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// CategoryOf extracts the category from an error chain, or CategoryInternal
// when the error carries no classification.
func CategoryOf(err error) ErrorCategory {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Category
	}
	return CategoryInternal
}

// IsRetryable reports whether any error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be.Retryable
	}
	return false
}
