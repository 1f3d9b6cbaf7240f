// Package cellref provides A1-style cell and range references.
//
// Every location the engine reports (table range, data range, issue address)
// uses native spreadsheet notation: 1-indexed column letters plus row numbers,
// e.g. "B4" or "B4:G159". Conversions delegate to excelize so the engine and
// the workbook writer agree on addressing.
package cellref

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Cell returns the A1 reference for a 1-indexed column and row, e.g. (2, 4) -> "B4".
func Cell(col, row int) (string, error) {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", fmt.Errorf("cell reference (%d, %d): %w", col, row, err)
	}
	return name, nil
}

// Range returns the A1 range reference spanning two 1-indexed coordinates,
// e.g. (2, 4, 7, 159) -> "B4:G159". A single-cell span collapses to one reference.
func Range(startCol, startRow, endCol, endRow int) (string, error) {
	start, err := Cell(startCol, startRow)
	if err != nil {
		return "", err
	}
	end, err := Cell(endCol, endRow)
	if err != nil {
		return "", err
	}
	if start == end {
		return start, nil
	}
	return start + ":" + end, nil
}

// ColumnName returns the letter name for a 1-indexed column, e.g. 28 -> "AB".
func ColumnName(col int) (string, error) {
	name, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return "", fmt.Errorf("column name %d: %w", col, err)
	}
	return name, nil
}

// MustCell is Cell for coordinates already known to be valid (>= 1).
// It panics on invalid input and exists for call sites that derive
// coordinates from bounds the engine itself established.
func MustCell(col, row int) string {
	name, err := Cell(col, row)
	if err != nil {
		panic(err)
	}
	return name
}

// MustRange is Range for coordinates already known to be valid.
func MustRange(startCol, startRow, endCol, endRow int) string {
	name, err := Range(startCol, startRow, endCol, endRow)
	if err != nil {
		panic(err)
	}
	return name
}
