// Package manifest loads the per-document-type configuration manifest.
//
// A configuration package declares, for one document type, the canonical
// target fields (in output order), the scoring rules that classify rows and
// map columns, per-field transform and validate rules, score thresholds, and
// writer options. The manifest is YAML; rule implementations are referenced
// by catalog name and resolved once at registry build time.
package manifest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultUnmappedPrefix is prepended to the source header of unmapped columns
// appended to the output.
const DefaultUnmappedPrefix = "raw_"

// Manifest is the root of a configuration package's manifest file.
type Manifest struct {
	// DocumentType identifies the document type this configuration handles.
	DocumentType string `yaml:"document_type"`

	// Version is the configuration package version string.
	Version string `yaml:"version"`

	// Header holds row-classification settings.
	Header HeaderSettings `yaml:"header"`

	// MappingScoreThreshold is the minimum aggregate score for a column to
	// map to a target field. Columns below it remain unmapped.
	MappingScoreThreshold float64 `yaml:"mapping_score_threshold"`

	// RowDetectors are the row-type scoring rules applied during
	// classification, in declared order.
	RowDetectors []RuleRef `yaml:"row_detectors"`

	// TargetFields are the canonical output columns, in output order.
	TargetFields []TargetField `yaml:"target_fields"`

	// Writer holds output workbook options.
	Writer WriterSettings `yaml:"writer"`
}

// HeaderSettings controls header detection in pass 1.
type HeaderSettings struct {
	// SearchWindow is the number of leading rows scanned for a header.
	// Zero means the engine default applies.
	SearchWindow int `yaml:"search_window"`

	// ScoreThreshold is the minimum header score a row must reach. If no row
	// clears it a synthetic header is fabricated.
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// RuleRef references a rule implementation from the builtin catalog.
type RuleRef struct {
	// ID optionally overrides the generated rule identifier.
	ID string `yaml:"id"`

	// Rule is the catalog name of the implementation, e.g. "header_pattern".
	Rule string `yaml:"rule"`

	// Weight scales the rule's signal. Zero is treated as 1.0.
	Weight float64 `yaml:"weight"`

	// Params are implementation-specific parameters, checked once at
	// registry build time.
	Params map[string]any `yaml:"params"`
}

// EffectiveWeight returns the weight with the 1.0 default applied.
func (r RuleRef) EffectiveWeight() float64 {
	if r.Weight == 0 {
		return 1.0
	}
	return r.Weight
}

// TargetField declares one canonical output column and its rules.
type TargetField struct {
	// Field is the canonical field name, unique within the manifest.
	Field string `yaml:"field"`

	// Label is the output header label. Defaults to Field.
	Label string `yaml:"label"`

	// Detectors score raw columns toward this field.
	Detectors []RuleRef `yaml:"detectors"`

	// Transform optionally normalizes mapped values before validation.
	Transform *RuleRef `yaml:"transform"`

	// Validators run against the post-transform value.
	Validators []RuleRef `yaml:"validate"`
}

// OutputLabel returns the header label with the field-name default applied.
func (t TargetField) OutputLabel() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Field
}

// WriterSettings holds output workbook options.
type WriterSettings struct {
	// Sheet names the output sheet for the first table. Defaults to "Sheet1".
	Sheet string `yaml:"sheet"`

	// AppendUnmapped controls whether unmapped source columns are appended
	// after the mapped target columns.
	AppendUnmapped bool `yaml:"append_unmapped"`

	// UnmappedPrefix is prepended to appended unmapped headers.
	// Defaults to DefaultUnmappedPrefix.
	UnmappedPrefix string `yaml:"unmapped_prefix"`
}

// SheetName returns the output sheet name with the default applied.
func (w WriterSettings) SheetName() string {
	if w.Sheet == "" {
		return "Sheet1"
	}
	return w.Sheet
}

// Prefix returns the unmapped-column prefix with the default applied.
func (w WriterSettings) Prefix() string {
	if w.UnmappedPrefix == "" {
		return DefaultUnmappedPrefix
	}
	return w.UnmappedPrefix
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates manifest YAML.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks structural requirements. It does not resolve rule names;
// the registry build does that against the catalog.
func (m *Manifest) Validate() error {
	if m.DocumentType == "" {
		return fmt.Errorf("document_type is required")
	}
	if m.MappingScoreThreshold < 0 {
		return fmt.Errorf("mapping_score_threshold must not be negative")
	}
	if m.Header.SearchWindow < 0 {
		return fmt.Errorf("header.search_window must not be negative")
	}
	if m.Header.ScoreThreshold < 0 {
		return fmt.Errorf("header.score_threshold must not be negative")
	}
	if len(m.TargetFields) == 0 {
		return fmt.Errorf("at least one target field is required")
	}

	seen := make(map[string]bool, len(m.TargetFields))
	for i, tf := range m.TargetFields {
		if tf.Field == "" {
			return fmt.Errorf("target_fields[%d]: field is required", i)
		}
		if seen[tf.Field] {
			return fmt.Errorf("duplicate target field %q", tf.Field)
		}
		seen[tf.Field] = true

		if len(tf.Detectors) == 0 {
			return fmt.Errorf("target field %q: at least one detector is required", tf.Field)
		}
		for j, d := range tf.Detectors {
			if d.Rule == "" {
				return fmt.Errorf("target field %q: detectors[%d]: rule is required", tf.Field, j)
			}
		}
		if tf.Transform != nil && tf.Transform.Rule == "" {
			return fmt.Errorf("target field %q: transform rule is required when set", tf.Field)
		}
		for j, v := range tf.Validators {
			if v.Rule == "" {
				return fmt.Errorf("target field %q: validate[%d]: rule is required", tf.Field, j)
			}
		}
	}

	for i, d := range m.RowDetectors {
		if d.Rule == "" {
			return fmt.Errorf("row_detectors[%d]: rule is required", i)
		}
	}

	return nil
}
