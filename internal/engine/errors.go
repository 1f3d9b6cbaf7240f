// Package engine implements the pass-based extraction/normalization pipeline:
// row classification, rule-scored column mapping, the fused
// transform/validate/write loop, and output finalization, all coordinated by
// a per-job state machine that records every decision into the run artifact.
package engine

import "fmt"

// The engine's failure taxonomy. Only a document ReadError (see the document
// package) and failures of the row-iteration control loop itself are fatal to
// a job. Everything below is isolated and recorded:
//
//   - StructureError degrades to a synthetic header
//   - MappingError leaves one column/target pair unmapped
//   - TransformError passes the original value through for one cell
//
// Validation findings are not errors at all; they are artifact issue records.

// StructureError reports that no row in the search window cleared the header
// threshold. The classifier recovers by fabricating a synthetic header.
type StructureError struct {
	Sheet  string
	Window int
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("sheet %q: no header found in first %d rows", e.Sheet, e.Window)
}

// MappingError reports a column detector failure. The affected column/target
// pair is disqualified; the run continues.
type MappingError struct {
	Column int
	Target string
	Err    error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping column %d to %q: %v", e.Column, e.Target, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// TransformError reports a transform rule failure for one cell. The original
// value passes through to output; the failure is recorded as an issue at the
// cell's address.
type TransformError struct {
	Cell string
	Rule string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s at %s: %v", e.Rule, e.Cell, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }
