package artifact

// accumulator.go enforces the append-only discipline structurally. Each pass
// acquires the write window for its own subtree, appends through it, and
// seals it; a window can be acquired once, and a sealed window rejects every
// further write. The accumulator is the only shared mutable state during a
// run and is owned by exactly one in-flight job.

import (
	"encoding/json"
	"fmt"
	"time"
)

// Accumulator owns the artifact for one run.
type Accumulator struct {
	artifact *Artifact
	tables   map[string]*Table
	acquired map[string]bool
	lastPass int
	sealed   bool
}

// NewAccumulator starts an artifact for one job. The rules section is written
// immediately: the registry is complete before any pass runs, and every rule
// id referenced later must already appear in it.
func NewAccumulator(job JobInfo, engine EngineInfo, rules []RuleInfo) *Accumulator {
	if rules == nil {
		rules = []RuleInfo{}
	}
	return &Accumulator{
		artifact: &Artifact{
			ArtifactVersion: Version,
			Job:             job,
			Engine:          engine,
			Rules:           rules,
			Sheets:          []*Sheet{},
			PassHistory:     []PassRecord{},
		},
		tables:   make(map[string]*Table),
		acquired: make(map[string]bool),
	}
}

// Artifact exposes the accumulated document for reading. Callers must not
// mutate it; all writes go through windows.
func (a *Accumulator) Artifact() *Artifact { return a.artifact }

func (a *Accumulator) acquire(window string) error {
	if a.sealed {
		return fmt.Errorf("artifact already sealed")
	}
	if a.acquired[window] {
		return fmt.Errorf("window %q already acquired", window)
	}
	a.acquired[window] = true
	return nil
}

// CompletePass appends a pass_history entry. Passes must complete in
// ascending order; re-recording a pass is an invariant violation.
func (a *Accumulator) CompletePass(pass int, name string) error {
	if a.sealed {
		return fmt.Errorf("artifact already sealed")
	}
	if pass <= a.lastPass {
		return fmt.Errorf("pass %d recorded after pass %d", pass, a.lastPass)
	}
	a.lastPass = pass
	a.artifact.PassHistory = append(a.artifact.PassHistory, PassRecord{
		Pass:        pass,
		Name:        name,
		CompletedAt: time.Now().UTC(),
	})
	return nil
}

// Complete marks the job finished successfully.
func (a *Accumulator) Complete() {
	a.artifact.Job.Status = "completed"
	a.artifact.Job.CompletedAt = time.Now().UTC()
}

// Fail marks the job failed at the named pass, preserving everything
// accumulated so far for diagnosis.
func (a *Accumulator) Fail(pass string, err error) {
	a.artifact.Job.Status = "failed"
	a.artifact.Job.FailedPass = pass
	a.artifact.Job.Error = err.Error()
	a.artifact.Job.CompletedAt = time.Now().UTC()
}

// Seal serializes the artifact and closes it to further writes. It is called
// exactly once per run, on success or failure.
func (a *Accumulator) Seal() ([]byte, error) {
	a.sealed = true
	return json.MarshalIndent(a.artifact, "", "  ")
}

// --- Pass 1: structure ---

// StructureWindow is pass 1's write window: sheets, row classification, and
// table structure.
type StructureWindow struct {
	acc    *Accumulator
	sealed bool
}

// Structure acquires the pass 1 window.
func (a *Accumulator) Structure() (*StructureWindow, error) {
	if err := a.acquire("structure"); err != nil {
		return nil, err
	}
	return &StructureWindow{acc: a}, nil
}

// AddSheet appends a sheet record and returns its per-sheet handle.
func (w *StructureWindow) AddSheet(name string) (*SheetWindow, error) {
	if w.sealed {
		return nil, fmt.Errorf("structure window sealed")
	}
	sheet := &Sheet{
		ID:             fmt.Sprintf("s%d", len(w.acc.artifact.Sheets)+1),
		Name:           name,
		Classification: []RowClassification{},
		Tables:         []*Table{},
	}
	w.acc.artifact.Sheets = append(w.acc.artifact.Sheets, sheet)
	return &SheetWindow{window: w, sheet: sheet}, nil
}

// Seal closes the window; later passes may only append to the subtrees they
// own, never revisit structure.
func (w *StructureWindow) Seal() { w.sealed = true }

// SheetWindow appends classification rows and tables to one sheet.
type SheetWindow struct {
	window *StructureWindow
	sheet  *Sheet
}

// ID returns the sheet's artifact id.
func (s *SheetWindow) ID() string { return s.sheet.ID }

// RecordRow appends one row classification record.
func (s *SheetWindow) RecordRow(rc RowClassification) error {
	if s.window.sealed {
		return fmt.Errorf("structure window sealed")
	}
	s.sheet.Classification = append(s.sheet.Classification, rc)
	return nil
}

// AddTable appends a detected table. Structural fields (range, header,
// columns) are fixed here; mapping, transforms, and validation are appended
// by later passes through their own windows.
func (s *SheetWindow) AddTable(rng, dataRange string, header Header, columns []Column) (string, error) {
	if s.window.sealed {
		return "", fmt.Errorf("structure window sealed")
	}
	table := &Table{
		ID:        fmt.Sprintf("%s.t%d", s.sheet.ID, len(s.sheet.Tables)+1),
		Range:     rng,
		DataRange: dataRange,
		Header:    header,
		Columns:   columns,
	}
	s.sheet.Tables = append(s.sheet.Tables, table)
	s.window.acc.tables[table.ID] = table
	return table.ID, nil
}

// --- Pass 2: mapping ---

// MappingWindow is pass 2's write window: per-table mapping records.
type MappingWindow struct {
	acc    *Accumulator
	sealed bool
}

// Mapping acquires the pass 2 window.
func (a *Accumulator) Mapping() (*MappingWindow, error) {
	if err := a.acquire("mapping"); err != nil {
		return nil, err
	}
	return &MappingWindow{acc: a}, nil
}

// Append appends one mapping record to a table created in pass 1.
func (w *MappingWindow) Append(tableID string, rec MappingRecord) error {
	if w.sealed {
		return fmt.Errorf("mapping window sealed")
	}
	table, ok := w.acc.tables[tableID]
	if !ok {
		return fmt.Errorf("unknown table %q", tableID)
	}
	table.Mapping = append(table.Mapping, rec)
	return nil
}

// Seal closes the window.
func (w *MappingWindow) Seal() { w.sealed = true }

// --- Passes 3-4: transforms and validation ---

// WriteWindow is the fused write loop's window: per-table transform
// summaries and validation issues.
type WriteWindow struct {
	acc    *Accumulator
	sealed bool
}

// Writing acquires the passes 3-4 window.
func (a *Accumulator) Writing() (*WriteWindow, error) {
	if err := a.acquire("writing"); err != nil {
		return nil, err
	}
	return &WriteWindow{acc: a}, nil
}

// AppendIssue appends one validation issue, maintaining the severity tallies.
func (w *WriteWindow) AppendIssue(tableID string, issue ValidationIssue) error {
	if w.sealed {
		return fmt.Errorf("write window sealed")
	}
	table, ok := w.acc.tables[tableID]
	if !ok {
		return fmt.Errorf("unknown table %q", tableID)
	}
	if table.Validation == nil {
		table.Validation = &ValidationResult{Issues: []ValidationIssue{}}
	}
	table.Validation.Issues = append(table.Validation.Issues, issue)
	switch issue.Severity {
	case "error":
		table.Validation.Errors++
	case "warning":
		table.Validation.Warnings++
	case "missing":
		table.Validation.Missing++
	}
	return nil
}

// SetTransforms records a table's transform summaries, once.
func (w *WriteWindow) SetTransforms(tableID string, summaries []TransformSummary) error {
	if w.sealed {
		return fmt.Errorf("write window sealed")
	}
	table, ok := w.acc.tables[tableID]
	if !ok {
		return fmt.Errorf("unknown table %q", tableID)
	}
	if table.Transforms != nil {
		return fmt.Errorf("transforms already recorded for table %q", tableID)
	}
	table.Transforms = summaries
	return nil
}

// Seal closes the window.
func (w *WriteWindow) Seal() { w.sealed = true }

// --- Pass 5: output ---

// OutputWindow is pass 5's window: the output plan and summary counts.
type OutputWindow struct {
	acc    *Accumulator
	sealed bool
}

// Output acquires the pass 5 window.
func (a *Accumulator) Output() (*OutputWindow, error) {
	if err := a.acquire("output"); err != nil {
		return nil, err
	}
	return &OutputWindow{acc: a}, nil
}

// SetOutput records the output plan, once.
func (w *OutputWindow) SetOutput(out Output) error {
	if w.sealed {
		return fmt.Errorf("output window sealed")
	}
	if w.acc.artifact.Output != nil {
		return fmt.Errorf("output already recorded")
	}
	w.acc.artifact.Output = &out
	return nil
}

// SetSummary records the closing counts, once.
func (w *OutputWindow) SetSummary(s Summary) error {
	if w.sealed {
		return fmt.Errorf("output window sealed")
	}
	if w.acc.artifact.Summary != nil {
		return fmt.Errorf("summary already recorded")
	}
	w.acc.artifact.Summary = &s
	return nil
}

// Seal closes the window.
func (w *OutputWindow) Seal() { w.sealed = true }
