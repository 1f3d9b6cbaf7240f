package rules

import (
	"testing"
)

func mustBuild(t *testing.T, name string, params map[string]any) any {
	t.Helper()
	entry, ok := catalog[name]
	if !ok {
		t.Fatalf("rule %q not in catalog", name)
	}
	impl, err := entry.build(params)
	if err != nil {
		t.Fatalf("build %q: %v", name, err)
	}
	return impl
}

func deltaFor(deltas []LabelDelta, label string) (float64, bool) {
	for _, d := range deltas {
		if d.Label == label {
			return d.Delta, true
		}
	}
	return 0, false
}

func TestTextDensity(t *testing.T) {
	det := mustBuild(t, "text_density", nil).(RowDetector)

	tests := []struct {
		name       string
		cells      []string
		wantHeader float64
		wantData   float64
	}{
		{name: "all text", cells: []string{"Employee ID", "Name"}, wantHeader: 1, wantData: 0},
		{name: "all numeric", cells: []string{"100", "2.5"}, wantHeader: 0, wantData: 1},
		{name: "half and half", cells: []string{"Alice", "30"}, wantHeader: 0.5, wantData: 0.5},
		{name: "empties ignored", cells: []string{"", "Alice", ""}, wantHeader: 1, wantData: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deltas := det.DetectRow(RowContext{Index: 1, Cells: tt.cells})
			if got, _ := deltaFor(deltas, LabelHeader); got != tt.wantHeader {
				t.Errorf("header delta = %v, want %v", got, tt.wantHeader)
			}
			if got, _ := deltaFor(deltas, LabelData); got != tt.wantData {
				t.Errorf("data delta = %v, want %v", got, tt.wantData)
			}
		})
	}
}

func TestTextDensityBlankRow(t *testing.T) {
	det := mustBuild(t, "text_density", nil).(RowDetector)
	deltas := det.DetectRow(RowContext{Index: 1, Cells: []string{"", "  "}})
	if got, ok := deltaFor(deltas, LabelBlank); !ok || got != 1 {
		t.Errorf("blank delta = %v (%v), want 1", got, ok)
	}
}

func TestHeaderKeywords(t *testing.T) {
	det := mustBuild(t, "header_keywords", map[string]any{
		"keywords": []any{"id", "name", "date"},
	}).(RowDetector)

	deltas := det.DetectRow(RowContext{Cells: []string{"Employee ID", "Name", "Salary"}})
	if got, _ := deltaFor(deltas, LabelHeader); got != 2 {
		t.Errorf("header delta = %v, want 2 (ID + Name)", got)
	}

	if deltas := det.DetectRow(RowContext{Cells: []string{"100", "200"}}); deltas != nil {
		t.Errorf("numeric row deltas = %v, want nil", deltas)
	}
}

func TestBlankRow(t *testing.T) {
	det := mustBuild(t, "blank_row", nil).(RowDetector)

	deltas := det.DetectRow(RowContext{Cells: []string{" ", ""}})
	if got, _ := deltaFor(deltas, LabelHeader); got != -1 {
		t.Errorf("header delta = %v, want -1", got)
	}
	if det.DetectRow(RowContext{Cells: []string{"x"}}) != nil {
		t.Error("non-blank row produced deltas")
	}
}

func TestHeaderPattern(t *testing.T) {
	det := mustBuild(t, "header_pattern", map[string]any{
		"patterns": []any{"member*id", "{employee,staff} id"},
	}).(ColumnDetector)

	tests := []struct {
		header string
		want   float64
	}{
		{header: "Member ID", want: 1},
		{header: "member_id", want: 1},
		{header: "Employee ID", want: 1},
		{header: "Staff ID", want: 1},
		{header: "Department", want: 0},
		{header: "", want: 0},
	}

	for _, tt := range tests {
		got := det.DetectColumn(ColumnContext{Header: tt.header})
		if got != tt.want {
			t.Errorf("DetectColumn(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestHeaderPatternRejectsBadGlob(t *testing.T) {
	_, err := catalog["header_pattern"].build(map[string]any{"patterns": []any{"[unclosed"}})
	if err == nil {
		t.Fatal("invalid glob accepted")
	}
}

func TestHeaderSynonyms(t *testing.T) {
	det := mustBuild(t, "header_synonyms", map[string]any{
		"synonyms": []any{"department", "dept", "Org  Unit"},
	}).(ColumnDetector)

	if got := det.DetectColumn(ColumnContext{Header: "  DEPT "}); got != 1 {
		t.Errorf("synonym match = %v, want 1", got)
	}
	if got := det.DetectColumn(ColumnContext{Header: "org unit"}); got != 1 {
		t.Errorf("whitespace-normalized synonym = %v, want 1", got)
	}
	if got := det.DetectColumn(ColumnContext{Header: "departments"}); got != 0 {
		t.Errorf("near miss = %v, want 0 (exact match only)", got)
	}
}

func TestValueRegex(t *testing.T) {
	det := mustBuild(t, "value_regex", map[string]any{
		"pattern": `^E-\d+$`,
	}).(ColumnDetector)

	got := det.DetectColumn(ColumnContext{Samples: []string{"E-1", "E-22", "bogus", "E-303"}})
	if got != 0.75 {
		t.Errorf("match fraction = %v, want 0.75", got)
	}
	if det.DetectColumn(ColumnContext{}) != 0 {
		t.Error("no samples should score 0")
	}
}

func TestNumericSignature(t *testing.T) {
	det := mustBuild(t, "numeric_signature", nil).(ColumnDetector)

	got := det.DetectColumn(ColumnContext{Samples: []string{"1", "$2,000", "(3.5)", "abc"}})
	if got != 0.75 {
		t.Errorf("numeric fraction = %v, want 0.75", got)
	}
}

func TestDateSignature(t *testing.T) {
	det := mustBuild(t, "date_signature", nil).(ColumnDetector)

	got := det.DetectColumn(ColumnContext{Samples: []string{"2024-01-15", "1/15/24", "soon", "never"}})
	if got != 0.5 {
		t.Errorf("date fraction = %v, want 0.5", got)
	}
}

func TestTransforms(t *testing.T) {
	tests := []struct {
		rule    string
		in      string
		want    string
		wantErr bool
	}{
		{rule: "trim", in: "  a b  ", want: "a b"},
		{rule: "collapse_whitespace", in: " a \t b ", want: "a b"},
		{rule: "uppercase", in: " ab ", want: "AB"},
		{rule: "lowercase", in: " AB ", want: "ab"},
		{rule: "normalize_date", in: "1/15/2024", want: "2024-01-15"},
		{rule: "normalize_date", in: "Jan 15, 2024", want: "2024-01-15"},
		{rule: "normalize_date", in: "", want: ""},
		{rule: "normalize_date", in: "not a date", wantErr: true},
		{rule: "digits_only", in: "E-12 34", want: "1234"},
		{rule: "strip_currency", in: "$1,234.50", want: "1234.50"},
		{rule: "strip_currency", in: "(12.50)", want: "-12.50"},
		{rule: "strip_currency", in: "", want: ""},
		{rule: "strip_currency", in: "n/a", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.in, func(t *testing.T) {
			tr := mustBuild(t, tt.rule, nil).(Transform)
			got, err := tr.Apply(tt.in, ValueContext{})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Apply(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Apply(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name       string
		rule       string
		params     map[string]any
		value      string
		wantCode   string
		wantSev    string
		wantIssues int
	}{
		{name: "require empty", rule: "require", value: " ", wantIssues: 1, wantCode: "required", wantSev: SeverityMissing},
		{name: "require present", rule: "require", value: "x", wantIssues: 0},
		{name: "one_of match", rule: "one_of", params: map[string]any{"values": []any{"HR", "Eng"}}, value: "hr", wantIssues: 0},
		{name: "one_of miss", rule: "one_of", params: map[string]any{"values": []any{"HR", "Eng"}}, value: "Sales", wantIssues: 1, wantCode: "enum", wantSev: SeverityError},
		{name: "one_of skips empty", rule: "one_of", params: map[string]any{"values": []any{"HR"}}, value: "", wantIssues: 0},
		{name: "regex match", rule: "match_regex", params: map[string]any{"pattern": `^\d+$`}, value: "42", wantIssues: 0},
		{name: "regex miss", rule: "match_regex", params: map[string]any{"pattern": `^\d+$`}, value: "x42", wantIssues: 1, wantCode: "pattern", wantSev: SeverityError},
		{name: "regex warning severity", rule: "match_regex", params: map[string]any{"pattern": `^\d+$`, "severity": "warning"}, value: "x", wantIssues: 1, wantCode: "pattern", wantSev: SeverityWarning},
		{name: "range ok", rule: "numeric_range", params: map[string]any{"min": 0, "max": 100}, value: "50", wantIssues: 0},
		{name: "range low", rule: "numeric_range", params: map[string]any{"min": 0}, value: "-1", wantIssues: 1, wantCode: "range", wantSev: SeverityError},
		{name: "range not numeric", rule: "numeric_range", params: map[string]any{}, value: "abc", wantIssues: 1, wantCode: "numeric", wantSev: SeverityError},
		{name: "date ok", rule: "valid_date", value: "2024-02-29", wantIssues: 0},
		{name: "date bad", rule: "valid_date", value: "yesterday", wantIssues: 1, wantCode: "date", wantSev: SeverityError},
		{name: "length ok", rule: "max_length", params: map[string]any{"limit": 3}, value: "abc", wantIssues: 0},
		{name: "length over", rule: "max_length", params: map[string]any{"limit": 3}, value: "abcd", wantIssues: 1, wantCode: "length", wantSev: SeverityWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustBuild(t, tt.rule, tt.params).(Validator)
			issues := v.Validate(tt.value, ValueContext{Field: "f"})
			if len(issues) != tt.wantIssues {
				t.Fatalf("got %d issues %v, want %d", len(issues), issues, tt.wantIssues)
			}
			if tt.wantIssues == 0 {
				return
			}
			if issues[0].Code != tt.wantCode {
				t.Errorf("code = %q, want %q", issues[0].Code, tt.wantCode)
			}
			if issues[0].Severity != tt.wantSev {
				t.Errorf("severity = %q, want %q", issues[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestFactoryParamErrors(t *testing.T) {
	tests := []struct {
		rule   string
		params map[string]any
	}{
		{rule: "header_keywords", params: nil},
		{rule: "header_pattern", params: map[string]any{"patterns": []any{}}},
		{rule: "header_synonyms", params: map[string]any{"synonyms": "dept"}},
		{rule: "value_regex", params: map[string]any{"pattern": "("}},
		{rule: "match_regex", params: map[string]any{"pattern": `\d`, "severity": "fatal"}},
		{rule: "numeric_range", params: map[string]any{"min": 10, "max": 1}},
		{rule: "max_length", params: map[string]any{"limit": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			if _, err := catalog[tt.rule].build(tt.params); err == nil {
				t.Errorf("build(%q, %v) succeeded, want error", tt.rule, tt.params)
			}
		})
	}
}

func TestCleanNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "1234", want: "1234", ok: true},
		{in: "$1,234.50", want: "1234.50", ok: true},
		{in: "(12.5)", want: "-12.5", ok: true},
		{in: "€99", want: "99", ok: true},
		{in: "12%", want: "12", ok: true},
		{in: "1.2e3", want: "1.2e3", ok: true},
		{in: "", ok: false},
		{in: "abc", ok: false},
		{in: "1.2.3", ok: false},
	}

	for _, tt := range tests {
		got, ok := cleanNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("cleanNumber(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	if got := normalizeLabel("  Employee \t ID "); got != "employee id" {
		t.Errorf("normalizeLabel = %q, want %q", got, "employee id")
	}
}

func TestParseDateTwoDigitYearPivot(t *testing.T) {
	got, ok := parseDate("1/15/99")
	if !ok {
		t.Fatal("parseDate(1/15/99) failed")
	}
	if got.Year() != 1999 {
		t.Errorf("year = %d, want 1999 (pivot rollback)", got.Year())
	}
}

func TestCatalogCoverage(t *testing.T) {
	// Every catalog entry must build with a minimal valid parameter set.
	valid := map[string]map[string]any{
		"header_keywords": {"keywords": []any{"id"}},
		"header_pattern":  {"patterns": []any{"x*"}},
		"header_synonyms": {"synonyms": []any{"x"}},
		"value_regex":     {"pattern": "x"},
		"one_of":          {"values": []any{"x"}},
		"match_regex":     {"pattern": "x"},
		"max_length":      {"limit": 10},
	}

	for name, entry := range catalog {
		impl, err := entry.build(valid[name])
		if err != nil {
			t.Errorf("catalog rule %q failed to build: %v", name, err)
			continue
		}
		var okKind bool
		switch entry.kind {
		case KindRowDetector:
			_, okKind = impl.(RowDetector)
		case KindColumnDetector:
			_, okKind = impl.(ColumnDetector)
		case KindTransform:
			_, okKind = impl.(Transform)
		case KindValidator:
			_, okKind = impl.(Validator)
		}
		if !okKind {
			t.Errorf("catalog rule %q does not implement its declared kind %s", name, entry.kind)
		}
	}
	if len(catalog) < 20 {
		t.Errorf("catalog has %d rules, expected the full builtin set", len(catalog))
	}
}
