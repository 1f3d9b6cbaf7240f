// Package artifact defines the append-only decision trail for one run.
//
// The artifact is the single JSON document every pass writes into exactly
// once. Its structure is an external, versioned contract consumed by audit
// and UI tooling downstream; field names and nesting here must not drift.
//
// Mutation is funneled through the Accumulator (see accumulator.go), which
// hands each pass a scoped write window onto its own subtree. No section is
// ever rewritten once its owning pass has sealed it.
package artifact

import "time"

// Version is the artifact_version value this engine emits.
const Version = "1"

// Artifact is the root aggregate for one run.
type Artifact struct {
	ArtifactVersion string       `json:"artifact_version"`
	Job             JobInfo      `json:"job"`
	Engine          EngineInfo   `json:"engine"`
	Rules           []RuleInfo   `json:"rules"`
	Sheets          []*Sheet     `json:"sheets"`
	Output          *Output      `json:"output,omitempty"`
	Summary         *Summary     `json:"summary,omitempty"`
	PassHistory     []PassRecord `json:"pass_history"`
}

// JobInfo identifies the run and its outcome.
type JobInfo struct {
	ID           string    `json:"id"`
	DocumentType string    `json:"document_type"`
	Input        string    `json:"input"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at,omitzero"`
	Status       string    `json:"status"`
	FailedPass   string    `json:"failed_pass,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// EngineInfo names the engine build that produced the artifact.
type EngineInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RuleInfo records one registry rule: every rule id referenced anywhere else
// in the artifact appears here.
type RuleInfo struct {
	ID      string `json:"id"`
	Impl    string `json:"impl"`
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

// Sheet records one input sheet: its per-row classification and the tables
// detected within it.
type Sheet struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Classification []RowClassification `json:"classification"`
	Tables         []*Table            `json:"tables"`
}

// RowClassification records one row's label and score breakdown. Rows beyond
// the classification window carry a label and density score but no
// contributor list.
type RowClassification struct {
	RowIndex     int                `json:"row_index"`
	Label        string             `json:"label"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Contributors []Contribution     `json:"contributors,omitempty"`
}

// Contribution is one rule's signed delta toward a label or target field.
type Contribution struct {
	Rule  string  `json:"rule"`
	Label string  `json:"label,omitempty"`
	Delta float64 `json:"delta"`
}

// Header describes a table's header row. A synthetic header is fabricated
// when no row clears the header threshold; its RowIndex is zero.
type Header struct {
	Kind         string   `json:"kind"` // "raw" or "synthetic"
	RowIndex     int      `json:"row_index,omitempty"`
	SourceHeader []string `json:"source_header"`
}

// Column is one raw column of a table, identity fixed at detection time.
type Column struct {
	ColumnID     string `json:"column_id"`
	Index        int    `json:"index"` // 1-based absolute sheet column
	SourceHeader string `json:"source_header"`
}

// Table records one detected table and everything later passes appended to it.
type Table struct {
	ID         string             `json:"id"`
	Range      string             `json:"range"`
	DataRange  string             `json:"data_range"`
	Header     Header             `json:"header"`
	Columns    []Column           `json:"columns"`
	Mapping    []MappingRecord    `json:"mapping,omitempty"`
	Transforms []TransformSummary `json:"transforms,omitempty"`
	Validation *ValidationResult  `json:"validation,omitempty"`
}

// MappingRecord records one raw column's mapping decision. TargetField is
// nil for unmapped columns; Score and Contributors still carry the column's
// best-scoring candidacy for audit.
type MappingRecord struct {
	ColumnID     string         `json:"column_id"`
	TargetField  *string        `json:"target_field"`
	Score        float64        `json:"score"`
	Contributors []Contribution `json:"contributors,omitempty"`
}

// TransformSummary is the per-field transform tally. Rule is nil when the
// field has no transform configured.
type TransformSummary struct {
	TargetField string  `json:"target_field"`
	Rule        *string `json:"rule"`
	Changed     int     `json:"changed"`
	Total       int     `json:"total"`
}

// ValidationIssue is one recorded finding, located by A1 cell address.
type ValidationIssue struct {
	Cell        string `json:"cell"`
	RowIndex    int    `json:"row_index"`
	TargetField string `json:"target_field,omitempty"`
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	Rule        string `json:"rule,omitempty"`
}

// ValidationResult aggregates a table's issues with severity tallies.
type ValidationResult struct {
	Issues   []ValidationIssue `json:"issues"`
	Errors   int               `json:"errors"`
	Warnings int               `json:"warnings"`
	Missing  int               `json:"missing"`
}

// Output records the output workbook plan.
type Output struct {
	Path    string         `json:"path"`
	Columns []OutputColumn `json:"columns"`
}

// OutputColumn is one planned output column. Mapped columns carry Field;
// appended unmapped columns carry SourceHeader instead.
type OutputColumn struct {
	Field        string `json:"field,omitempty"`
	SourceHeader string `json:"source_header,omitempty"`
	Header       string `json:"header"`
	Order        int    `json:"order"`
}

// Summary holds the run's closing counts.
type Summary struct {
	RowsWritten    int `json:"rows_written"`
	ColumnsWritten int `json:"columns_written"`
	IssuesFound    int `json:"issues_found"`
}

// PassRecord is one completed pass in pass_history.
type PassRecord struct {
	Pass        int       `json:"pass"`
	Name        string    `json:"name"`
	CompletedAt time.Time `json:"completed_at"`
}
