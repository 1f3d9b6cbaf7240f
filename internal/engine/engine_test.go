package engine

// Shared fixtures for the engine tests: an in-memory workbook, a roster
// manifest, and a quiet logger.

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/document"
	"github.com/rowforge/rowforge/internal/manifest"
	"github.com/rowforge/rowforge/internal/rules"
)

const rosterYAML = `
document_type: roster
version: "2024.1"
header:
  search_window: 10
  score_threshold: 1.0
mapping_score_threshold: 1.0
row_detectors:
  - rule: text_density
    weight: 0.5
  - rule: header_keywords
    params:
      keywords: [employee, name, department, start]
  - rule: numeric_density
  - rule: blank_row
target_fields:
  - field: employee_id
    label: Employee ID
    detectors:
      - rule: header_pattern
        params:
          patterns: ["employee*", "emp id", "staff id"]
    transform:
      rule: trim
    validate:
      - rule: require
  - field: full_name
    label: Full Name
    detectors:
      - rule: header_synonyms
        params:
          synonyms: [name, full name]
  - field: department
    label: Department
    detectors:
      - rule: header_synonyms
        params:
          synonyms: [department, dept]
  - field: start_date
    label: Start Date
    detectors:
      - rule: header_synonyms
        params:
          synonyms: [start date, hire date]
      - rule: date_signature
    transform:
      rule: normalize_date
    validate:
      - rule: valid_date
writer:
  sheet: Canonical
  append_unmapped: true
`

func buildRoster(t *testing.T) (*manifest.Manifest, *rules.Registry) {
	t.Helper()
	m, err := manifest.Parse([]byte(rosterYAML))
	if err != nil {
		t.Fatalf("Parse manifest: %v", err)
	}
	reg, err := rules.Build(m)
	if err != nil {
		t.Fatalf("Build registry: %v", err)
	}
	return m, reg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccumulator() *artifact.Accumulator {
	return artifact.NewAccumulator(
		artifact.JobInfo{
			ID:           "job-test",
			DocumentType: "roster",
			Input:        "in.csv",
			StartedAt:    time.Now().UTC(),
			Status:       "running",
		},
		artifact.EngineInfo{Name: "rowforge", Version: "test"},
		nil,
	)
}

// memWorkbook is an in-memory Workbook for exercising passes without files.
type memWorkbook struct {
	order  []string
	sheets map[string][][]string
}

func newMemWorkbook() *memWorkbook {
	return &memWorkbook{sheets: map[string][][]string{}}
}

func (m *memWorkbook) add(name string, rows [][]string) *memWorkbook {
	m.order = append(m.order, name)
	m.sheets[name] = rows
	return m
}

func (m *memWorkbook) SheetNames() []string { return m.order }

func (m *memWorkbook) Rows(sheet string) (document.RowIterator, error) {
	rows, ok := m.sheets[sheet]
	if !ok {
		return nil, fmt.Errorf("no sheet %q", sheet)
	}
	return &memIterator{rows: rows}, nil
}

func (m *memWorkbook) Close() error { return nil }

type memIterator struct {
	rows [][]string
	i    int
}

func (it *memIterator) Next() bool {
	if it.i >= len(it.rows) {
		return false
	}
	it.i++
	return true
}

func (it *memIterator) Row() []string { return it.rows[it.i-1] }

func (it *memIterator) Err() error { return nil }

func (it *memIterator) Close() error { return nil }

// memSheet captures written rows.
type memSheet struct {
	rows [][]string
}

func (s *memSheet) WriteRow(values []string) error {
	s.rows = append(s.rows, append([]string(nil), values...))
	return nil
}
