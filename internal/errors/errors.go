// Package errors provides structured error types for metatables.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across components.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryIO         ErrorCategory = "IO"
	ErrCategoryMetadata   ErrorCategory = "METADATA"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryExpression ErrorCategory = "EXPRESSION"
	ErrCategoryPlanning   ErrorCategory = "PLANNING"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidSchema     = "INVALID_SCHEMA"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidTransform  = "INVALID_TRANSFORM"

	// Storage codes
	CodeReadFailed     = "READ_FAILED"
	CodeWriteFailed    = "WRITE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// IO codes
	CodeCloseFailed = "CLOSE_FAILED"

	// Metadata codes
	CodeCorruptMetadata  = "CORRUPT_METADATA"
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"
	CodeDecodeFailed     = "DECODE_FAILED"

	// Catalog codes
	CodeTableNotFound      = "TABLE_NOT_FOUND"
	CodeTableAlreadyExists = "TABLE_ALREADY_EXISTS"
	CodeCommitConflict     = "COMMIT_CONFLICT"

	// Expression codes
	CodeParseError   = "PARSE_ERROR"
	CodeUnknownField = "UNKNOWN_FIELD"
	CodeInvalidValue = "INVALID_VALUE"

	// Planning codes
	CodeUnknownMetadataTable = "UNKNOWN_METADATA_TABLE"
	CodePoolClosed           = "POOL_CLOSED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// MetaError is the structured error type used throughout the system.
type MetaError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *MetaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *MetaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *MetaError) Is(target error) bool {
	var t *MetaError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new MetaError.
func New(category ErrorCategory, code, message string) *MetaError {
	return &MetaError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new MetaError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *MetaError {
	return &MetaError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *MetaError) WithDetails(details map[string]interface{}) *MetaError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a MetaError.
func GetCategory(err error) ErrorCategory {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a MetaError.
func GetCode(err error) string {
	var me *MetaError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeReadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeWriteFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeCommitConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *MetaError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

// NewIOError wraps a resource failure such as a failed close.
func NewIOError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewMetadataError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryMetadata, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewExpressionError(code, message string) *MetaError {
	return New(ErrCategoryExpression, code, message)
}

func NewPlanningError(code, message string, cause error) *MetaError {
	return Wrap(ErrCategoryPlanning, code, message, cause)
}

func NewInternalError(message string, cause error) *MetaError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
