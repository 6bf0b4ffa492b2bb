// Package errors provides the error kinds used across atlas.
//
// This file provides:
// - Sentinel errors for the four build failure kinds
// - Consistency sub-kinds that wrap ErrConsistency
// - InstrumentError for location-carrying failures
// - Error category checking functions
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Build failure kinds
	ErrConfiguration = errors.New("configuration error")
	ErrIO            = errors.New("io error")
	ErrParse         = errors.New("parse error")
	ErrConsistency   = errors.New("consistency error")

	// Lookup errors
	ErrNotFound   = errors.New("not found")
	ErrOutOfRange = errors.New("index out of range")
)

// Consistency sub-kinds. Each one satisfies errors.Is(err, ErrConsistency).
var (
	ErrSchemaMismatch  = fmt.Errorf("schema mismatch: %w", ErrConsistency)
	ErrUnordered       = fmt.Errorf("timestamps not strictly increasing: %w", ErrConsistency)
	ErrMissingClose    = fmt.Errorf("close column not found: %w", ErrConsistency)
	ErrNotContiguous   = fmt.Errorf("timestamps not a contiguous run of the timeline: %w", ErrConsistency)
	ErrDuplicateColumn = fmt.Errorf("duplicate column: %w", ErrConsistency)
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsConfiguration returns true if err is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsIO returns true if err is an I/O error.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO)
}

// IsParse returns true if err is a parse error.
func IsParse(err error) bool {
	return errors.Is(err, ErrParse)
}

// IsConsistency returns true if err is a consistency error of any sub-kind.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsOutOfRange returns true if err is an index error.
func IsOutOfRange(err error) bool {
	return errors.Is(err, ErrOutOfRange)
}

// Kind returns a short name for the failure kind of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsConfiguration(err):
		return "configuration"
	case IsIO(err):
		return "io"
	case IsParse(err):
		return "parse"
	case IsConsistency(err):
		return "consistency"
	case IsNotFound(err):
		return "not_found"
	case IsOutOfRange(err):
		return "out_of_range"
	default:
		return "unknown"
	}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewConfiguration creates a configuration error with context.
func NewConfiguration(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfiguration)
}

// NewIO wraps an underlying I/O failure for path.
func NewIO(path string, err error) error {
	return fmt.Errorf("%s: %w: %w", path, ErrIO, err)
}

// NewNotFound creates a not-found error with context.
func NewNotFound(entityType, identifier string) error {
	return fmt.Errorf("%s '%s': %w", entityType, identifier, ErrNotFound)
}

// NewOutOfRange creates an index error with context.
func NewOutOfRange(what string, index, length int) error {
	return fmt.Errorf("%s %d not in [0,%d): %w", what, index, length, ErrOutOfRange)
}

// ============================================================================
// Instrument errors
// ============================================================================

// InstrumentError locates a build failure within one instrument.
// Row is the 1-based data row (0 when not applicable) and Column the
// header name (empty when not applicable).
type InstrumentError struct {
	Instrument string
	Path       string
	Row        int
	Column     string
	Err        error
}

// Error implements the error interface.
func (e *InstrumentError) Error() string {
	var b strings.Builder
	b.WriteString("instrument ")
	b.WriteString(e.Instrument)
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *InstrumentError) Unwrap() error {
	return e.Err
}

// NewInstrument creates an InstrumentError without row or column.
func NewInstrument(instrument, path string, err error) error {
	return &InstrumentError{Instrument: instrument, Path: path, Err: err}
}

// NewCell creates an InstrumentError that points at a row and column.
func NewCell(instrument, path string, row int, column string, err error) error {
	return &InstrumentError{Instrument: instrument, Path: path, Row: row, Column: column, Err: err}
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, fmt.Errorf("invalid %s: %s: %w", field, reason, ErrConfiguration))
}

// HasErrors returns true if there are any errors.
func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns the collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
