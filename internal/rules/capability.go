// Package rules defines the rule capability contract and the per-run registry.
//
// A configuration package references rules by catalog name; the registry
// resolves every reference once, before any pass runs, into one of four
// fixed-signature capabilities:
//
//   - RowDetector: scores a row toward one or more labels (pass 1)
//   - ColumnDetector: scores a raw column toward one target field (pass 2)
//   - Transform: normalizes a mapped cell value (pass 3)
//   - Validator: checks the post-transform value (pass 4)
//
// Nothing is resolved or reflected per call; the hot loops see concrete
// interface values bound at registry build time. Rules referenced anywhere in
// a run's artifact therefore always pre-exist in its registry.
package rules

// Label names used by row detectors and the classifier.
const (
	LabelHeader = "header"
	LabelData   = "data"
	LabelBlank  = "blank"
)

// Issue severities. These are the only values a validator may emit.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityMissing = "missing"
)

// RowContext describes one row presented to row detectors.
type RowContext struct {
	// Index is the 1-based row number within the sheet.
	Index int

	// Cells are the row's raw values in positional order.
	Cells []string

	// SheetName is the owning sheet's name.
	SheetName string
}

// LabelDelta is a signed contribution toward one row label.
type LabelDelta struct {
	Label string
	Delta float64
}

// ColumnContext describes one raw column presented to column detectors.
type ColumnContext struct {
	// Index is the 1-based absolute column number within the sheet.
	Index int

	// Header is the column's raw header label ("" under a synthetic header).
	Header string

	// Samples is a bounded sample of the column's non-empty data values.
	Samples []string
}

// ValueContext locates the cell a transform or validator is running against.
type ValueContext struct {
	// Row and Col are 1-based absolute sheet coordinates.
	Row int
	Col int

	// Field is the canonical target field the cell is mapped to.
	Field string
}

// Issue is a validation finding. Issues never halt execution and never
// mutate the value they were raised against.
type Issue struct {
	Code     string
	Severity string
	Message  string
}

// RowDetector scores a row toward candidate labels. A nil or empty result
// means no opinion.
type RowDetector interface {
	DetectRow(rc RowContext) []LabelDelta
}

// ColumnDetector returns a raw signal in [0, 1] for how strongly a column
// resembles the detector's target field. The bound rule weight scales it.
type ColumnDetector interface {
	DetectColumn(cc ColumnContext) float64
}

// Transform normalizes a raw cell value. An error isolates to that cell:
// the original value passes through and the failure is recorded as an issue.
type Transform interface {
	Apply(value string, vc ValueContext) (string, error)
}

// Validator checks a post-transform value and returns zero or more findings.
type Validator interface {
	Validate(value string, vc ValueContext) []Issue
}
