package domain

import (
	"errors"
	"fmt"
)

// ErrWouldBlock reports that the source CSV is share-locked by a
// concurrent writer.  The run fails rather than retrying; the external
// scheduler owns retry policy.
var ErrWouldBlock = errors.New("another process holds a lock on the source file")

// ErrAnomalyVeto reports that one or more courses tripped the
// enrollment-drop guard.  It vetoes the database phase for the whole
// run, not just the offending courses.
var ErrAnomalyVeto = errors.New("enrollment anomaly detected; database phase vetoed")

// ReferenceDataError marks a failure to load the reference data a run
// is driven by (course list, mappings, enrollment counts), so the CLI
// can exit with the database code rather than the validation code.
type ReferenceDataError struct {
	Err error
}

func (e *ReferenceDataError) Error() string { return e.Err.Error() }

func (e *ReferenceDataError) Unwrap() error { return e.Err }

// SchemaError reports a row with the wrong field count.
type SchemaError struct {
	Line     int
	Got      int
	Expected int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("row %d has %d columns, %d expected", e.Line, e.Got, e.Expected)
}

// FieldValidationError reports a row failing one per-field format rule.
// Only the first failing rule is reported.
type FieldValidationError struct {
	Line  int
	Field string
	Value string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("row %d failed validation for %s %q", e.Line, e.Field, e.Value)
}
