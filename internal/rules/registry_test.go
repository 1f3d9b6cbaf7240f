package rules

import (
	"strings"
	"testing"

	"github.com/rowforge/rowforge/internal/manifest"
)

func rosterManifest(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(`
document_type: roster
mapping_score_threshold: 0.6
row_detectors:
  - rule: text_density
  - rule: blank_row
target_fields:
  - field: member_id
    detectors:
      - rule: header_pattern
        weight: 1.2
        params:
          patterns: ["member*id"]
    transform:
      rule: trim
    validate:
      - rule: require
  - field: start_date
    detectors:
      - rule: date_signature
    transform:
      rule: normalize_date
`))
	if err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	return m
}

func TestBuild(t *testing.T) {
	reg, err := Build(rosterManifest(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := len(reg.RowDetectors()); got != 2 {
		t.Errorf("row detectors = %d, want 2", got)
	}

	fields := reg.Fields()
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(fields))
	}
	if fields[0].Field != "member_id" || fields[1].Field != "start_date" {
		t.Errorf("field order = %s, %s; want manifest order", fields[0].Field, fields[1].Field)
	}
	if fields[0].Transform == nil || fields[0].Transform.ID != "member_id.trim" {
		t.Errorf("transform = %+v", fields[0].Transform)
	}
	if len(fields[0].Validators) != 1 || fields[0].Validators[0].ID != "member_id.require" {
		t.Errorf("validators = %+v", fields[0].Validators)
	}
	if fields[0].Detectors[0].Weight != 1.2 {
		t.Errorf("detector weight = %v, want 1.2", fields[0].Detectors[0].Weight)
	}

	wantIDs := []string{
		"row.text_density", "row.blank_row",
		"member_id.header_pattern", "member_id.trim", "member_id.require",
		"start_date.date_signature", "start_date.normalize_date",
	}
	descs := reg.Descriptors()
	if len(descs) != len(wantIDs) {
		t.Fatalf("descriptors = %d, want %d", len(descs), len(wantIDs))
	}
	for i, want := range wantIDs {
		if descs[i].ID != want {
			t.Errorf("descriptors[%d].ID = %q, want %q", i, descs[i].ID, want)
		}
		if descs[i].Version == "" || len(descs[i].Version) != 12 {
			t.Errorf("descriptors[%d].Version = %q, want 12 hex chars", i, descs[i].Version)
		}
		if !reg.Has(want) {
			t.Errorf("Has(%q) = false", want)
		}
	}
}

func TestBuildDeterministicVersions(t *testing.T) {
	a, err := Build(rosterManifest(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := Build(rosterManifest(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i := range a.Descriptors() {
		if a.Descriptors()[i].Version != b.Descriptors()[i].Version {
			t.Errorf("version hash for %s not deterministic", a.Descriptors()[i].ID)
		}
	}
}

func TestVersionHashVariesWithParams(t *testing.T) {
	a := versionHash(KindColumnDetector, "header_pattern", map[string]any{"patterns": []any{"a*"}})
	b := versionHash(KindColumnDetector, "header_pattern", map[string]any{"patterns": []any{"b*"}})
	if a == b {
		t.Error("different params produced identical version hash")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name: "unknown rule",
			yaml: `
document_type: x
target_fields:
  - field: a
    detectors: [{rule: no_such_rule}]
`,
			wantMsg: "unknown rule",
		},
		{
			name: "kind mismatch",
			yaml: `
document_type: x
target_fields:
  - field: a
    detectors: [{rule: trim}]
`,
			wantMsg: "not a column_detector",
		},
		{
			name: "bad params",
			yaml: `
document_type: x
target_fields:
  - field: a
    detectors:
      - rule: header_pattern
`,
			wantMsg: "missing parameter",
		},
		{
			name: "duplicate explicit id",
			yaml: `
document_type: x
target_fields:
  - field: a
    detectors:
      - {id: dup, rule: numeric_signature}
      - {id: dup, rule: date_signature}
`,
			wantMsg: "duplicate rule id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := manifest.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse manifest: %v", err)
			}
			_, err = Build(m)
			if err == nil {
				t.Fatal("Build succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestBoundRowDetectorAppliesWeight(t *testing.T) {
	reg, err := Build(rosterManifest(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	det := reg.Fields()[0].Detectors[0] // header_pattern, weight 1.2
	score, err := det.Detect(ColumnContext{Header: "Member ID"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if score != 1.2 {
		t.Errorf("weighted score = %v, want 1.2", score)
	}
}

// panicDetector exercises panic isolation in the bound wrappers.
type panicDetector struct{}

func (panicDetector) DetectColumn(ColumnContext) float64 { panic("boom") }

func (panicDetector) DetectRow(RowContext) []LabelDelta { panic("boom") }

type panicTransform struct{}

func (panicTransform) Apply(string, ValueContext) (string, error) { panic("boom") }

func TestBoundWrappersRecoverPanics(t *testing.T) {
	col := BoundColumnDetector{ID: "t.panic", Weight: 1, impl: panicDetector{}}
	if _, err := col.Detect(ColumnContext{}); err == nil {
		t.Error("column detector panic not converted to error")
	}

	row := BoundRowDetector{ID: "row.panic", Weight: 1, impl: panicDetector{}}
	if _, err := row.Detect(RowContext{}); err == nil {
		t.Error("row detector panic not converted to error")
	}

	tr := BoundTransform{ID: "t.panic", impl: panicTransform{}}
	if _, err := tr.Apply("x", ValueContext{}); err == nil {
		t.Error("transform panic not converted to error")
	}
}
