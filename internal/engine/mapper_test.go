package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/manifest"
	"github.com/rowforge/rowforge/internal/rules"
)

// registerTable runs a TableBounds fixture through the structure window so
// the accumulator knows the table, then opens the mapping window.
func registerTable(t *testing.T, acc *artifact.Accumulator, b *TableBounds) *artifact.MappingWindow {
	t.Helper()
	structure, err := acc.Structure()
	if err != nil {
		t.Fatalf("Structure: %v", err)
	}
	sw, err := structure.AddSheet(b.SheetName)
	if err != nil {
		t.Fatalf("AddSheet: %v", err)
	}
	id, err := sw.AddTable("A1:A1", "A1:A1", artifact.Header{Kind: b.HeaderKind, RowIndex: b.HeaderRow, SourceHeader: b.SourceHeader}, b.Columns)
	if err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	b.TableID = id
	structure.Seal()

	mw, err := acc.Mapping()
	if err != nil {
		t.Fatalf("Mapping: %v", err)
	}
	return mw
}

func headerBounds(headers []string, firstData, lastData int) TableBounds {
	b := TableBounds{
		SheetName:    "Sheet1",
		HeaderKind:   "raw",
		HeaderRow:    1,
		SourceHeader: headers,
		StartCol:     1,
		EndCol:       len(headers),
		FirstDataRow: firstData,
		LastDataRow:  lastData,
	}
	for i, h := range headers {
		b.Columns = append(b.Columns, artifact.Column{ColumnID: fmt.Sprintf("c%d", i+1), Index: i + 1, SourceHeader: h})
	}
	return b
}

func TestMapTableAssignsFields(t *testing.T) {
	_, reg := buildRoster(t)
	rows := [][]string{
		{"Employee ID", "Name", "Department", "Start Date", "Badge Color"},
		{"E-1", "Alice", "Eng", "2021-01-05", "red"},
		{"E-2", "Bob", "Ops", "2021-02-10", "blue"},
	}
	b := headerBounds(rows[0], 2, 3)
	acc := testAccumulator()
	mw := registerTable(t, acc, &b)
	wb := newMemWorkbook().add("Sheet1", rows)

	m := NewMapper(reg, Settings{}, testLogger())
	mappings, err := m.MapTable(context.Background(), wb, b, mw)
	if err != nil {
		t.Fatalf("MapTable: %v", err)
	}

	want := map[string]string{
		"Employee ID": "employee_id",
		"Name":        "full_name",
		"Department":  "department",
		"Start Date":  "start_date",
		"Badge Color": "",
	}
	for _, cm := range mappings {
		if cm.TargetField != want[cm.SourceHeader] {
			t.Errorf("column %q mapped to %q, want %q", cm.SourceHeader, cm.TargetField, want[cm.SourceHeader])
		}
	}

	records := acc.Artifact().Sheets[0].Tables[0].Mapping
	if len(records) != 5 {
		t.Fatalf("got %d mapping records, want 5", len(records))
	}
	for _, rec := range records {
		if rec.TargetField == nil {
			continue
		}
		if rec.Score < 1.0 {
			t.Errorf("mapped column %s score = %v, want >= 1.0", rec.ColumnID, rec.Score)
		}
		if len(rec.Contributors) == 0 {
			t.Errorf("mapped column %s has no contributors", rec.ColumnID)
		}
	}
}

func TestMapTableTieBreakLowerIndex(t *testing.T) {
	_, reg := buildRoster(t)
	rows := [][]string{
		{"X", "Department", "Y", "Dept"},
		{"1", "Eng", "2", "Ops"},
	}
	b := headerBounds(rows[0], 2, 2)
	acc := testAccumulator()
	mw := registerTable(t, acc, &b)
	wb := newMemWorkbook().add("Sheet1", rows)

	m := NewMapper(reg, Settings{}, testLogger())
	mappings, err := m.MapTable(context.Background(), wb, b, mw)
	if err != nil {
		t.Fatalf("MapTable: %v", err)
	}

	if mappings[1].TargetField != "department" {
		t.Errorf("column 2 mapped to %q, want department", mappings[1].TargetField)
	}
	loser := mappings[3]
	if loser.TargetField != "" {
		t.Errorf("column 4 mapped to %q, want unmapped", loser.TargetField)
	}
	// The losing column keeps its candidacy for audit.
	if loser.Score != 1.0 || len(loser.Contributors) == 0 {
		t.Errorf("losing column audit = score %v contributors %v", loser.Score, loser.Contributors)
	}
}

func TestMapTableClaimedColumnExcluded(t *testing.T) {
	// Both fields score both columns identically; the first field claims
	// column 1, forcing the second onto column 2.
	m, err := manifest.Parse([]byte(`
document_type: overlap
version: "1"
row_detectors:
  - rule: text_density
target_fields:
  - field: first
    detectors:
      - rule: value_regex
        params: {pattern: "^[0-9]+$"}
  - field: second
    detectors:
      - rule: value_regex
        params: {pattern: "^[0-9]+$"}
writer: {}
`))
	if err != nil {
		t.Fatalf("Parse manifest: %v", err)
	}
	reg, err := rules.Build(m)
	if err != nil {
		t.Fatalf("Build registry: %v", err)
	}

	rows := [][]string{
		{"A", "B"},
		{"11", "22"},
		{"33", "44"},
	}
	b := headerBounds(rows[0], 2, 3)
	acc := testAccumulator()
	mw := registerTable(t, acc, &b)
	wb := newMemWorkbook().add("Sheet1", rows)

	mappings, err := NewMapper(reg, Settings{}, testLogger()).MapTable(context.Background(), wb, b, mw)
	if err != nil {
		t.Fatalf("MapTable: %v", err)
	}
	if mappings[0].TargetField != "first" {
		t.Errorf("column 1 mapped to %q, want first", mappings[0].TargetField)
	}
	if mappings[1].TargetField != "second" {
		t.Errorf("column 2 mapped to %q, want second", mappings[1].TargetField)
	}
}

func TestMapTableSyntheticHeaderUsesValues(t *testing.T) {
	_, reg := buildRoster(t)
	rows := [][]string{
		{"2021-01-05", "red"},
		{"2021-02-10", "blue"},
		{"2021-03-15", "green"},
	}
	b := TableBounds{
		SheetName:    "Sheet1",
		HeaderKind:   "synthetic",
		SourceHeader: []string{"Column 1", "Column 2"},
		StartCol:     1,
		EndCol:       2,
		FirstDataRow: 1,
		LastDataRow:  3,
		Columns: []artifact.Column{
			{ColumnID: "c1", Index: 1, SourceHeader: "Column 1"},
			{ColumnID: "c2", Index: 2, SourceHeader: "Column 2"},
		},
	}
	acc := testAccumulator()
	mw := registerTable(t, acc, &b)
	wb := newMemWorkbook().add("Sheet1", rows)

	m := NewMapper(reg, Settings{}, testLogger())
	mappings, err := m.MapTable(context.Background(), wb, b, mw)
	if err != nil {
		t.Fatalf("MapTable: %v", err)
	}
	if mappings[0].TargetField != "start_date" {
		t.Errorf("date column mapped to %q, want start_date", mappings[0].TargetField)
	}
	if mappings[1].TargetField != "" {
		t.Errorf("color column mapped to %q, want unmapped", mappings[1].TargetField)
	}
}

func TestMapTableSamplesAreBounded(t *testing.T) {
	_, reg := buildRoster(t)
	rows := [][]string{{"Start Date"}}
	for i := 0; i < 50; i++ {
		rows = append(rows, []string{"2021-01-05"})
	}
	b := headerBounds(rows[0], 2, 51)
	acc := testAccumulator()
	mw := registerTable(t, acc, &b)
	wb := newMemWorkbook().add("Sheet1", rows)

	m := NewMapper(reg, Settings{MappingSampleRows: 5}, testLogger())
	mappings, err := m.MapTable(context.Background(), wb, b, mw)
	if err != nil {
		t.Fatalf("MapTable: %v", err)
	}
	// A 5-row sample is plenty for a clean date column.
	if mappings[0].TargetField != "start_date" {
		t.Errorf("column mapped to %q, want start_date", mappings[0].TargetField)
	}
	if len(mappings[0].Contributors) == 0 {
		t.Error("no contributors recorded")
	}
}
