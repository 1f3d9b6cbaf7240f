package document

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// csvWorkbook presents a CSV file as a single-sheet workbook. The sheet is
// named after the file stem. Each Rows call reopens the file, giving every
// pass an independent forward-only iterator.
type csvWorkbook struct {
	path  string
	sheet string
}

func openCSV(path string) (Workbook, error) {
	// Open eagerly so corrupt/missing input surfaces before any pass runs.
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	f.Close()

	return &csvWorkbook{path: path, sheet: sheetStem(path)}, nil
}

func (w *csvWorkbook) SheetNames() []string { return []string{w.sheet} }

func (w *csvWorkbook) Rows(sheet string) (RowIterator, error) {
	if sheet != w.sheet {
		return nil, fmt.Errorf("unknown sheet %q", sheet)
	}

	f, err := os.Open(w.path)
	if err != nil {
		return nil, &ReadError{Path: w.path, Err: err}
	}

	r := csv.NewReader(sanitizeForCSV(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = false

	return &csvRowIterator{file: f, reader: r}, nil
}

func (w *csvWorkbook) Close() error { return nil }

type csvRowIterator struct {
	file   *os.File
	reader *csv.Reader
	row    []string
	err    error
	done   bool
}

func (it *csvRowIterator) Next() bool {
	if it.done {
		return false
	}

	record, err := it.reader.Read()
	if err == io.EOF {
		it.done = true
		return false
	}
	if err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.row = record
	return true
}

func (it *csvRowIterator) Row() []string { return it.row }

func (it *csvRowIterator) Err() error { return it.err }

func (it *csvRowIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.done = true
	return err
}
