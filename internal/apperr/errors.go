// Package apperr defines the error taxonomy shared by the detection pipeline.
//
// ConfigurationError and ValidationErrors are caller mistakes and are never
// retried. DataQualityError is fatal for the batch being processed.
// ErrEmptyResult is a warning: the batch is skipped, not failed.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult is returned when filtering leaves nothing to analyse.
var ErrEmptyResult = errors.New("selected parameters filtered out every record")

// ConfigurationError reports an invalid parameter.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// Configf builds a ConfigurationError for field.
func Configf(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ValidationErrors collects every problem found while validating parameters,
// so the caller can report them all at once.
type ValidationErrors struct {
	Errors []*ConfigurationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Add appends a field error.
func (e *ValidationErrors) Add(field, format string, args ...interface{}) {
	e.Errors = append(e.Errors, Configf(field, format, args...))
}

// Fields lists the offending field names in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

// ErrOrNil returns e when it holds at least one error, nil otherwise.
func (e *ValidationErrors) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// As lets errors.As match *ConfigurationError against a ValidationErrors
// carrying at least one entry.
func (e *ValidationErrors) As(target interface{}) bool {
	if t, ok := target.(**ConfigurationError); ok && len(e.Errors) > 0 {
		*t = e.Errors[0]
		return true
	}
	return false
}

// DataQualityError reports input that cannot be analysed: a missing column or
// an unparseable value in a required field.
type DataQualityError struct {
	Source string // file name or table
	Row    int    // 1-based data row, 0 when not row specific
	Column string
	Err    error
}

func (e *DataQualityError) Error() string {
	var b strings.Builder
	b.WriteString("data quality error")
	if e.Source != "" {
		b.WriteString(" in ")
		b.WriteString(e.Source)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DataQualityError) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a configuration or validation error.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsDataQuality reports whether err is a data quality error.
func IsDataQuality(err error) bool {
	var de *DataQualityError
	return errors.As(err, &de)
}
