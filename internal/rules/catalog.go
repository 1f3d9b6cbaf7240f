package rules

// catalog.go is the builtin rule catalog. A manifest references these
// implementations by name; each factory checks its parameters once, at
// registry build time, so the hot loops never see a misconfigured rule.

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind distinguishes the four rule capabilities.
type Kind string

const (
	KindRowDetector    Kind = "row_detector"
	KindColumnDetector Kind = "column_detector"
	KindTransform      Kind = "transform"
	KindValidator      Kind = "validate"
)

// catalogEntry binds a catalog name to its kind and factory. The factory
// returns exactly one of the four capability interfaces.
type catalogEntry struct {
	kind  Kind
	build func(params map[string]any) (any, error)
}

var catalog = map[string]catalogEntry{
	// Row detectors.
	"text_density":    {KindRowDetector, buildTextDensity},
	"header_keywords": {KindRowDetector, buildHeaderKeywords},
	"numeric_density": {KindRowDetector, buildNumericDensity},
	"blank_row":       {KindRowDetector, buildBlankRow},

	// Column detectors.
	"header_pattern":    {KindColumnDetector, buildHeaderPattern},
	"header_synonyms":   {KindColumnDetector, buildHeaderSynonyms},
	"value_regex":       {KindColumnDetector, buildValueRegex},
	"numeric_signature": {KindColumnDetector, buildNumericSignature},
	"date_signature":    {KindColumnDetector, buildDateSignature},

	// Transforms.
	"trim":                {KindTransform, buildTrim},
	"collapse_whitespace": {KindTransform, buildCollapseWhitespace},
	"uppercase":           {KindTransform, buildUppercase},
	"lowercase":           {KindTransform, buildLowercase},
	"normalize_date":      {KindTransform, buildNormalizeDate},
	"digits_only":         {KindTransform, buildDigitsOnly},
	"strip_currency":      {KindTransform, buildStripCurrency},

	// Validators.
	"require":       {KindValidator, buildRequire},
	"one_of":        {KindValidator, buildOneOf},
	"match_regex":   {KindValidator, buildMatchRegex},
	"numeric_range": {KindValidator, buildNumericRange},
	"valid_date":    {KindValidator, buildValidDate},
	"max_length":    {KindValidator, buildMaxLength},
}

// Param decoding helpers. YAML hands us map[string]any with []any slices.

func stringSliceParam(params map[string]any, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok {
		return nil, fmt.Errorf("missing parameter %q", key)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a list of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parameter %q must not be empty", key)
	}
	return out, nil
}

func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalFloatParam(params map[string]any, key string) (float64, bool, error) {
	raw, ok := params[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("parameter %q must be a number", key)
	}
}

func optionalIntParam(params map[string]any, key string) (int, bool, error) {
	f, ok, err := optionalFloatParam(params, key)
	return int(f), ok, err
}

func optionalStringParam(params map[string]any, key, fallback string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return fallback, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return s, nil
}

// --- Row detectors ---

// textDensity pushes text-heavy rows toward "header" and numeric-leaning
// rows toward "data", proportional to the cell mix.
type textDensity struct{}

func buildTextDensity(map[string]any) (any, error) { return textDensity{}, nil }

func (textDensity) DetectRow(rc RowContext) []LabelDelta {
	nonEmpty, numeric := 0, 0
	for _, cell := range rc.Cells {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		nonEmpty++
		if isNumeric(cell) {
			numeric++
		}
	}
	if nonEmpty == 0 {
		return []LabelDelta{{Label: LabelBlank, Delta: 1}}
	}

	textFrac := float64(nonEmpty-numeric) / float64(nonEmpty)
	return []LabelDelta{
		{Label: LabelHeader, Delta: textFrac},
		{Label: LabelData, Delta: 1 - textFrac},
	}
}

// headerKeywords scores a row toward "header" for each cell containing one of
// the configured keywords.
type headerKeywords struct {
	keywords []string
}

func buildHeaderKeywords(params map[string]any) (any, error) {
	kw, err := stringSliceParam(params, "keywords")
	if err != nil {
		return nil, err
	}
	normalized := make([]string, len(kw))
	for i, k := range kw {
		normalized[i] = normalizeLabel(k)
	}
	return headerKeywords{keywords: normalized}, nil
}

func (d headerKeywords) DetectRow(rc RowContext) []LabelDelta {
	matched := 0
	for _, cell := range rc.Cells {
		label := normalizeLabel(cell)
		if label == "" {
			continue
		}
		for _, kw := range d.keywords {
			if strings.Contains(label, kw) {
				matched++
				break
			}
		}
	}
	if matched == 0 {
		return nil
	}
	return []LabelDelta{{Label: LabelHeader, Delta: float64(matched)}}
}

// numericDensity scores a row toward "data" by its fraction of numeric cells.
type numericDensity struct{}

func buildNumericDensity(map[string]any) (any, error) { return numericDensity{}, nil }

func (numericDensity) DetectRow(rc RowContext) []LabelDelta {
	nonEmpty, numeric := 0, 0
	for _, cell := range rc.Cells {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		nonEmpty++
		if isNumeric(cell) || okDate(cell) {
			numeric++
		}
	}
	if nonEmpty == 0 {
		return nil
	}
	return []LabelDelta{{Label: LabelData, Delta: float64(numeric) / float64(nonEmpty)}}
}

func okDate(s string) bool {
	_, ok := parseDate(s)
	return ok
}

// blankRow pushes empty rows away from both header and data.
type blankRow struct{}

func buildBlankRow(map[string]any) (any, error) { return blankRow{}, nil }

func (blankRow) DetectRow(rc RowContext) []LabelDelta {
	for _, cell := range rc.Cells {
		if strings.TrimSpace(cell) != "" {
			return nil
		}
	}
	return []LabelDelta{
		{Label: LabelHeader, Delta: -1},
		{Label: LabelData, Delta: -1},
		{Label: LabelBlank, Delta: 1},
	}
}

// --- Column detectors ---

// headerPattern matches the normalized header label against glob patterns.
// doublestar supports {a,b} alternation, which plain path matching lacks.
type headerPattern struct {
	patterns []string
}

func buildHeaderPattern(params map[string]any) (any, error) {
	patterns, err := stringSliceParam(params, "patterns")
	if err != nil {
		return nil, err
	}
	for i, p := range patterns {
		p = normalizeLabel(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", patterns[i])
		}
		patterns[i] = p
	}
	return headerPattern{patterns: patterns}, nil
}

func (d headerPattern) DetectColumn(cc ColumnContext) float64 {
	label := normalizeLabel(cc.Header)
	if label == "" {
		return 0
	}
	for _, p := range d.patterns {
		if ok, err := doublestar.Match(p, label); err == nil && ok {
			return 1
		}
	}
	return 0
}

// headerSynonyms matches the normalized header label exactly against a
// synonym list.
type headerSynonyms struct {
	synonyms []string
}

func buildHeaderSynonyms(params map[string]any) (any, error) {
	syn, err := stringSliceParam(params, "synonyms")
	if err != nil {
		return nil, err
	}
	normalized := make([]string, len(syn))
	for i, s := range syn {
		normalized[i] = normalizeLabel(s)
	}
	return headerSynonyms{synonyms: normalized}, nil
}

func (d headerSynonyms) DetectColumn(cc ColumnContext) float64 {
	label := normalizeLabel(cc.Header)
	if label == "" {
		return 0
	}
	for _, s := range d.synonyms {
		if label == s {
			return 1
		}
	}
	return 0
}

// valueRegex scores by the fraction of sampled values matching a pattern.
type valueRegex struct {
	re *regexp.Regexp
}

func buildValueRegex(params map[string]any) (any, error) {
	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	return valueRegex{re: re}, nil
}

func (d valueRegex) DetectColumn(cc ColumnContext) float64 {
	if len(cc.Samples) == 0 {
		return 0
	}
	matched := 0
	for _, v := range cc.Samples {
		if d.re.MatchString(strings.TrimSpace(v)) {
			matched++
		}
	}
	return float64(matched) / float64(len(cc.Samples))
}

// numericSignature scores by the fraction of sampled values parseable as
// numbers.
type numericSignature struct{}

func buildNumericSignature(map[string]any) (any, error) { return numericSignature{}, nil }

func (numericSignature) DetectColumn(cc ColumnContext) float64 {
	if len(cc.Samples) == 0 {
		return 0
	}
	numeric := 0
	for _, v := range cc.Samples {
		if isNumeric(v) {
			numeric++
		}
	}
	return float64(numeric) / float64(len(cc.Samples))
}

// dateSignature scores by the fraction of sampled values parseable as dates.
type dateSignature struct{}

func buildDateSignature(map[string]any) (any, error) { return dateSignature{}, nil }

func (dateSignature) DetectColumn(cc ColumnContext) float64 {
	if len(cc.Samples) == 0 {
		return 0
	}
	dates := 0
	for _, v := range cc.Samples {
		if okDate(v) {
			dates++
		}
	}
	return float64(dates) / float64(len(cc.Samples))
}

// --- Transforms ---

type trimTransform struct{}

func buildTrim(map[string]any) (any, error) { return trimTransform{}, nil }

func (trimTransform) Apply(value string, _ ValueContext) (string, error) {
	return strings.TrimSpace(value), nil
}

type collapseWhitespace struct{}

func buildCollapseWhitespace(map[string]any) (any, error) { return collapseWhitespace{}, nil }

func (collapseWhitespace) Apply(value string, _ ValueContext) (string, error) {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(value), " "), nil
}

type uppercaseTransform struct{}

func buildUppercase(map[string]any) (any, error) { return uppercaseTransform{}, nil }

func (uppercaseTransform) Apply(value string, _ ValueContext) (string, error) {
	return strings.ToUpper(strings.TrimSpace(value)), nil
}

type lowercaseTransform struct{}

func buildLowercase(map[string]any) (any, error) { return lowercaseTransform{}, nil }

func (lowercaseTransform) Apply(value string, _ ValueContext) (string, error) {
	return strings.ToLower(strings.TrimSpace(value)), nil
}

// normalizeDate rewrites any supported date layout to ISO 8601 (2006-01-02).
// Unparseable non-empty input is an error, which the executor isolates to
// the cell.
type normalizeDate struct{}

func buildNormalizeDate(map[string]any) (any, error) { return normalizeDate{}, nil }

func (normalizeDate) Apply(value string, _ ValueContext) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	t, ok := parseDate(trimmed)
	if !ok {
		return "", fmt.Errorf("unrecognized date %q", trimmed)
	}
	return t.Format("2006-01-02"), nil
}

// digitsOnly strips every non-digit character.
type digitsOnly struct{}

func buildDigitsOnly(map[string]any) (any, error) { return digitsOnly{}, nil }

func (digitsOnly) Apply(value string, _ ValueContext) (string, error) {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

// stripCurrency normalizes money text to a bare number, turning accounting
// negatives "(12.50)" into "-12.50". Non-numeric non-empty input is an error.
type stripCurrency struct{}

func buildStripCurrency(map[string]any) (any, error) { return stripCurrency{}, nil }

func (stripCurrency) Apply(value string, _ ValueContext) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", nil
	}
	cleaned, ok := cleanNumber(trimmed)
	if !ok {
		return "", fmt.Errorf("not a monetary amount: %q", trimmed)
	}
	return cleaned, nil
}

// --- Validators ---

// requireValidator flags empty values with severity "missing".
type requireValidator struct{}

func buildRequire(map[string]any) (any, error) { return requireValidator{}, nil }

func (requireValidator) Validate(value string, vc ValueContext) []Issue {
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return []Issue{{
		Code:     "required",
		Severity: SeverityMissing,
		Message:  fmt.Sprintf("required field %q is empty", vc.Field),
	}}
}

// oneOf flags values outside an allowed list. Empty values are skipped;
// combine with "require" to forbid them.
type oneOf struct {
	values []string
}

func buildOneOf(params map[string]any) (any, error) {
	values, err := stringSliceParam(params, "values")
	if err != nil {
		return nil, err
	}
	return oneOf{values: values}, nil
}

func (v oneOf) Validate(value string, vc ValueContext) []Issue {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	for _, allowed := range v.values {
		if strings.EqualFold(trimmed, allowed) {
			return nil
		}
	}
	return []Issue{{
		Code:     "enum",
		Severity: SeverityError,
		Message:  fmt.Sprintf("%q is not one of: %s", trimmed, strings.Join(v.values, ", ")),
	}}
}

// matchRegex flags values not matching a pattern. Severity is configurable
// and defaults to "error".
type matchRegex struct {
	re       *regexp.Regexp
	severity string
}

func buildMatchRegex(params map[string]any) (any, error) {
	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	severity, err := optionalStringParam(params, "severity", SeverityError)
	if err != nil {
		return nil, err
	}
	switch severity {
	case SeverityError, SeverityWarning:
	default:
		return nil, fmt.Errorf("severity must be %q or %q", SeverityError, SeverityWarning)
	}
	return matchRegex{re: re, severity: severity}, nil
}

func (v matchRegex) Validate(value string, _ ValueContext) []Issue {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || v.re.MatchString(trimmed) {
		return nil
	}
	return []Issue{{
		Code:     "pattern",
		Severity: v.severity,
		Message:  fmt.Sprintf("%q does not match %s", trimmed, v.re.String()),
	}}
}

// numericRange flags non-numeric values, and numeric values outside the
// optional min/max bounds.
type numericRange struct {
	min, max       float64
	hasMin, hasMax bool
}

func buildNumericRange(params map[string]any) (any, error) {
	min, hasMin, err := optionalFloatParam(params, "min")
	if err != nil {
		return nil, err
	}
	max, hasMax, err := optionalFloatParam(params, "max")
	if err != nil {
		return nil, err
	}
	if hasMin && hasMax && min > max {
		return nil, fmt.Errorf("min %v exceeds max %v", min, max)
	}
	return numericRange{min: min, max: max, hasMin: hasMin, hasMax: hasMax}, nil
}

func (v numericRange) Validate(value string, _ ValueContext) []Issue {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	n, ok := parseNumber(trimmed)
	if !ok {
		return []Issue{{
			Code:     "numeric",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%q is not a number", trimmed),
		}}
	}
	if (v.hasMin && n < v.min) || (v.hasMax && n > v.max) {
		return []Issue{{
			Code:     "range",
			Severity: SeverityError,
			Message:  fmt.Sprintf("%v is out of range", n),
		}}
	}
	return nil
}

// validDate flags non-empty values that do not parse as dates.
type validDate struct{}

func buildValidDate(map[string]any) (any, error) { return validDate{}, nil }

func (validDate) Validate(value string, _ ValueContext) []Issue {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || okDate(trimmed) {
		return nil
	}
	return []Issue{{
		Code:     "date",
		Severity: SeverityError,
		Message:  fmt.Sprintf("%q is not a recognized date", trimmed),
	}}
}

// maxLength flags values longer than a rune budget, as a warning.
type maxLength struct {
	limit int
}

func buildMaxLength(params map[string]any) (any, error) {
	limit, ok, err := optionalIntParam(params, "limit")
	if err != nil {
		return nil, err
	}
	if !ok || limit <= 0 {
		return nil, fmt.Errorf("parameter \"limit\" must be a positive number")
	}
	return maxLength{limit: limit}, nil
}

func (v maxLength) Validate(value string, _ ValueContext) []Issue {
	if len([]rune(value)) <= v.limit {
		return nil
	}
	return []Issue{{
		Code:     "length",
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("value exceeds %d characters", v.limit),
	}}
}
