package rules

// values.go holds the value-parsing helpers shared by detectors, transforms,
// and validators. They tolerate the messy reality of spreadsheet data:
// currency symbols and thousands separators in numbers, accounting-style
// negatives, many date layouts, and 2-digit years.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericPattern matches integers, decimals, and scientific notation after
// cleanup.
var numericPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// twoDigitYearPivot controls 2-digit year interpretation: parsed years more
// than this many years in the future roll back a century.
const twoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// cleanNumber strips currency symbols, thousands separators, and accounting
// parentheses, returning the bare numeric text and whether it looks numeric.
func cleanNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.TrimLeft(s, "$€£¥ ")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")

	if !numericPattern.MatchString(s) {
		return "", false
	}
	if negative && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s, true
}

// parseNumber parses a cell value as a float after cleanup.
func parseNumber(s string) (float64, bool) {
	cleaned, ok := cleanNumber(s)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isNumeric reports whether a cell value parses as a number after cleanup.
func isNumeric(s string) bool {
	_, ok := parseNumber(s)
	return ok
}

// parseDate parses a cell value against the supported date layouts.
// 4-digit-year layouts are tried first since they are unambiguous.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivot := time.Now().Year() + twoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// normalizeLabel canonicalizes a header label for matching: lowercase,
// trimmed, internal whitespace collapsed to single spaces.
func normalizeLabel(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
