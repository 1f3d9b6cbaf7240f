package document

import (
	"github.com/xuri/excelize/v2"
)

// xlsxWorkbook wraps an open excelize file. excelize's Rows API streams rows
// from the underlying XML without loading the sheet, which is what keeps
// memory flat for large workbooks.
type xlsxWorkbook struct {
	file *excelize.File
	path string
}

func openXLSX(path string) (Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	return &xlsxWorkbook{file: f, path: path}, nil
}

func (w *xlsxWorkbook) SheetNames() []string { return w.file.GetSheetList() }

func (w *xlsxWorkbook) Rows(sheet string) (RowIterator, error) {
	rows, err := w.file.Rows(sheet)
	if err != nil {
		return nil, &ReadError{Path: w.path, Err: err}
	}
	return &xlsxRowIterator{rows: rows}, nil
}

func (w *xlsxWorkbook) Close() error { return w.file.Close() }

type xlsxRowIterator struct {
	rows *excelize.Rows
	row  []string
	err  error
}

func (it *xlsxRowIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Error()
		return false
	}

	cols, err := it.rows.Columns()
	if err != nil {
		it.err = err
		return false
	}
	it.row = cols
	return true
}

func (it *xlsxRowIterator) Row() []string { return it.row }

func (it *xlsxRowIterator) Err() error { return it.err }

func (it *xlsxRowIterator) Close() error { return it.rows.Close() }
