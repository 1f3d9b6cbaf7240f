package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rowforge/rowforge/internal/manifest"
)

// Descriptor identifies one bound rule in the registry catalog: its short id
// (as referenced throughout the artifact), the catalog implementation name,
// its kind, and a deterministic version hash.
type Descriptor struct {
	ID      string `json:"id"`
	Impl    string `json:"impl"`
	Kind    Kind   `json:"kind"`
	Version string `json:"version"`
}

// BoundRowDetector is a row detector bound to its id and manifest weight.
type BoundRowDetector struct {
	ID     string
	Weight float64
	impl   RowDetector
}

// Detect runs the detector with its weight applied. A panicking rule is
// reported as an error, never propagated; the caller isolates it.
func (b BoundRowDetector) Detect(rc RowContext) (deltas []LabelDelta, err error) {
	defer func() {
		if r := recover(); r != nil {
			deltas = nil
			err = fmt.Errorf("row detector %s panicked: %v", b.ID, r)
		}
	}()

	raw := b.impl.DetectRow(rc)
	if len(raw) == 0 {
		return nil, nil
	}
	deltas = make([]LabelDelta, len(raw))
	for i, d := range raw {
		deltas[i] = LabelDelta{Label: d.Label, Delta: d.Delta * b.Weight}
	}
	return deltas, nil
}

// BoundColumnDetector is a column detector bound to its id and weight.
type BoundColumnDetector struct {
	ID     string
	Weight float64
	impl   ColumnDetector
}

// Detect runs the detector with its weight applied, recovering panics.
func (b BoundColumnDetector) Detect(cc ColumnContext) (delta float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			delta = 0
			err = fmt.Errorf("column detector %s panicked: %v", b.ID, r)
		}
	}()
	return b.impl.DetectColumn(cc) * b.Weight, nil
}

// BoundTransform is a transform bound to its id.
type BoundTransform struct {
	ID   string
	impl Transform
}

// Apply runs the transform, recovering panics into ordinary errors so a bad
// rule is isolated to the cell it ran against.
func (b BoundTransform) Apply(value string, vc ValueContext) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = fmt.Errorf("transform %s panicked: %v", b.ID, r)
		}
	}()
	return b.impl.Apply(value, vc)
}

// BoundValidator is a validator bound to its id.
type BoundValidator struct {
	ID   string
	impl Validator
}

// Validate runs the validator, recovering panics.
func (b BoundValidator) Validate(value string, vc ValueContext) (issues []Issue, err error) {
	defer func() {
		if r := recover(); r != nil {
			issues = nil
			err = fmt.Errorf("validator %s panicked: %v", b.ID, r)
		}
	}()
	return b.impl.Validate(value, vc), nil
}

// FieldRules bundles the bound rules for one target field, in manifest order.
type FieldRules struct {
	Field      string
	Label      string
	Detectors  []BoundColumnDetector
	Transform  *BoundTransform
	Validators []BoundValidator
}

// Registry is the immutable per-run rule catalog. It is built once from the
// manifest before any pass and shared read-only across all passes of the run.
type Registry struct {
	descriptors []Descriptor
	ids         map[string]bool
	rowDets     []BoundRowDetector
	fields      []FieldRules
}

// Build resolves every rule the manifest references against the builtin
// catalog. Unknown names, kind mismatches, and bad parameters all fail here,
// before a single row is read.
func Build(m *manifest.Manifest) (*Registry, error) {
	r := &Registry{ids: make(map[string]bool)}

	for i, ref := range m.RowDetectors {
		impl, err := r.resolve(ref, "row", KindRowDetector)
		if err != nil {
			return nil, fmt.Errorf("row_detectors[%d]: %w", i, err)
		}
		r.rowDets = append(r.rowDets, BoundRowDetector{
			ID:     r.descriptors[len(r.descriptors)-1].ID,
			Weight: ref.EffectiveWeight(),
			impl:   impl.(RowDetector),
		})
	}

	for _, tf := range m.TargetFields {
		fr := FieldRules{Field: tf.Field, Label: tf.OutputLabel()}

		for j, ref := range tf.Detectors {
			impl, err := r.resolve(ref, tf.Field, KindColumnDetector)
			if err != nil {
				return nil, fmt.Errorf("target field %q: detectors[%d]: %w", tf.Field, j, err)
			}
			fr.Detectors = append(fr.Detectors, BoundColumnDetector{
				ID:     r.descriptors[len(r.descriptors)-1].ID,
				Weight: ref.EffectiveWeight(),
				impl:   impl.(ColumnDetector),
			})
		}

		if tf.Transform != nil {
			impl, err := r.resolve(*tf.Transform, tf.Field, KindTransform)
			if err != nil {
				return nil, fmt.Errorf("target field %q: transform: %w", tf.Field, err)
			}
			fr.Transform = &BoundTransform{
				ID:   r.descriptors[len(r.descriptors)-1].ID,
				impl: impl.(Transform),
			}
		}

		for j, ref := range tf.Validators {
			impl, err := r.resolve(ref, tf.Field, KindValidator)
			if err != nil {
				return nil, fmt.Errorf("target field %q: validate[%d]: %w", tf.Field, j, err)
			}
			fr.Validators = append(fr.Validators, BoundValidator{
				ID:   r.descriptors[len(r.descriptors)-1].ID,
				impl: impl.(Validator),
			})
		}

		r.fields = append(r.fields, fr)
	}

	return r, nil
}

// resolve builds one rule from the catalog, assigns its id, and records its
// descriptor. The built capability is returned for binding.
func (r *Registry) resolve(ref manifest.RuleRef, scope string, want Kind) (any, error) {
	entry, ok := catalog[ref.Rule]
	if !ok {
		return nil, fmt.Errorf("unknown rule %q", ref.Rule)
	}
	if entry.kind != want {
		return nil, fmt.Errorf("rule %q is a %s, not a %s", ref.Rule, entry.kind, want)
	}

	impl, err := entry.build(ref.Params)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", ref.Rule, err)
	}

	id := ref.ID
	if id == "" {
		id = scope + "." + ref.Rule
		for n := 2; r.ids[id]; n++ {
			id = fmt.Sprintf("%s.%s#%d", scope, ref.Rule, n)
		}
	} else if r.ids[id] {
		return nil, fmt.Errorf("duplicate rule id %q", id)
	}
	r.ids[id] = true

	r.descriptors = append(r.descriptors, Descriptor{
		ID:      id,
		Impl:    ref.Rule,
		Kind:    entry.kind,
		Version: versionHash(entry.kind, ref.Rule, ref.Params),
	})
	return impl, nil
}

// versionHash is a deterministic digest of a rule's identity: kind, catalog
// name, and canonical JSON parameter encoding. Identical configuration always
// hashes identically across runs and hosts.
func versionHash(kind Kind, name string, params map[string]any) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", params))
	}
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + name + "\x00" + string(canonical)))
	return hex.EncodeToString(sum[:])[:12]
}

// Descriptors returns all bound rule descriptors in resolution order.
func (r *Registry) Descriptors() []Descriptor { return r.descriptors }

// RowDetectors returns the bound row detectors in manifest order.
func (r *Registry) RowDetectors() []BoundRowDetector { return r.rowDets }

// Fields returns the bound per-field rules in manifest order.
func (r *Registry) Fields() []FieldRules { return r.fields }

// Has reports whether a rule id exists in the registry.
func (r *Registry) Has(id string) bool { return r.ids[id] }
