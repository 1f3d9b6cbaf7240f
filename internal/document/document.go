// Package document provides lazy, forward-only access to spreadsheet files.
//
// A document is presented as a Workbook: an ordered set of named sheets, each
// of which can produce a fresh forward-only row iterator. Iterators never
// materialize a whole sheet; memory stays flat regardless of file size. An
// iterator is not restartable - callers that need a second pass over a sheet
// request a new iterator, which re-reads from the underlying file.
//
// Two formats are supported, selected by file extension:
//
//   - .xlsx via excelize's streaming Rows API
//   - .csv as a single-sheet workbook, with BOM skipping and UTF-8
//     sanitization applied on the fly (see streaming.go)
package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Workbook is a handle on an open spreadsheet document.
type Workbook interface {
	// SheetNames returns sheet names in document order.
	SheetNames() []string

	// Rows returns a fresh forward-only iterator over the named sheet.
	// Each call starts from the first row.
	Rows(sheet string) (RowIterator, error)

	// Close releases the underlying file handle.
	Close() error
}

// RowIterator walks a sheet one row at a time. Each row is a positional list
// of raw cell values; trailing blank cells may be absent.
type RowIterator interface {
	// Next advances to the next row. It returns false at end of sheet or on
	// error; check Err after a false return.
	Next() bool

	// Row returns the current row. Valid only after a true Next.
	Row() []string

	// Err returns the first error encountered while iterating.
	Err() error

	// Close releases iterator resources. Safe to call more than once.
	Close() error
}

// ReadError indicates a document could not be opened or parsed. It is fatal:
// it occurs before any pass runs and aborts the job.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Open opens a spreadsheet document, selecting the reader by file extension.
// Unsupported or corrupt input yields a *ReadError.
func Open(path string) (Workbook, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return openXLSX(path)
	case ".csv":
		return openCSV(path)
	default:
		return nil, &ReadError{Path: path, Err: fmt.Errorf("unsupported file extension %q", filepath.Ext(path))}
	}
}

// sheetStem derives a sheet name from a file path: base name without extension.
func sheetStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
