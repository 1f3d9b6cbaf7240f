package document

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RowWriter writes one output sheet a row at a time, in ascending row order.
// Rows already written are never revisited; an abort mid-stream leaves prior
// rows intact (no rollback).
type RowWriter interface {
	// WriteRow appends the next row.
	WriteRow(values []string) error
}

// WorkbookWriter writes an output workbook sheet by sheet. Sheets are
// written strictly in sequence: starting a new sheet finishes the previous
// one, and nothing is readable until Close.
type WorkbookWriter interface {
	// Sheet starts the next output sheet and returns its row writer.
	Sheet(name string) (RowWriter, error)

	// Close flushes buffered rows and finishes the file.
	Close() error
}

// NewWriter creates a workbook writer for the given output path, selecting
// the format by file extension.
func NewWriter(path string) (WorkbookWriter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return newXLSXWriter(path), nil
	case ".csv":
		return newCSVWriter(path)
	default:
		return nil, fmt.Errorf("unsupported output extension %q", filepath.Ext(path))
	}
}

// xlsxWriter streams rows through excelize's StreamWriter, which spools row
// XML to temporary storage instead of holding the sheet in memory.
type xlsxWriter struct {
	file   *excelize.File
	stream *excelize.StreamWriter
	path   string
	sheets int
}

func newXLSXWriter(path string) *xlsxWriter {
	return &xlsxWriter{file: excelize.NewFile(), path: path}
}

func (w *xlsxWriter) Sheet(name string) (RowWriter, error) {
	if w.stream != nil {
		if err := w.stream.Flush(); err != nil {
			return nil, fmt.Errorf("flush stream writer: %w", err)
		}
	}

	if w.sheets == 0 {
		// Rename the workbook's default sheet rather than leaving it empty.
		if name != "Sheet1" {
			if err := w.file.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("rename output sheet: %w", err)
			}
		}
	} else {
		if _, err := w.file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add output sheet %q: %w", name, err)
		}
	}
	w.sheets++

	sw, err := w.file.NewStreamWriter(name)
	if err != nil {
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	w.stream = sw
	return &xlsxSheet{stream: sw}, nil
}

func (w *xlsxWriter) Close() error {
	if w.stream != nil {
		if err := w.stream.Flush(); err != nil {
			w.file.Close()
			return fmt.Errorf("flush stream writer: %w", err)
		}
	}
	if err := w.file.SaveAs(w.path); err != nil {
		w.file.Close()
		return fmt.Errorf("save %s: %w", w.path, err)
	}
	return w.file.Close()
}

type xlsxSheet struct {
	stream *excelize.StreamWriter
	row    int
}

func (s *xlsxSheet) WriteRow(values []string) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}

	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return s.stream.SetRow(cell, cells)
}

// csvWriter flattens the workbook into one CSV stream, separating sheets
// with a single blank record.
type csvWriter struct {
	file   *os.File
	writer *csv.Writer
	sheets int
}

func newCSVWriter(path string) (*csvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &csvWriter{file: f, writer: csv.NewWriter(f)}, nil
}

func (w *csvWriter) Sheet(name string) (RowWriter, error) {
	if w.sheets > 0 {
		if err := w.writer.Write([]string{""}); err != nil {
			return nil, err
		}
	}
	w.sheets++
	return w, nil
}

func (w *csvWriter) WriteRow(values []string) error {
	return w.writer.Write(values)
}

func (w *csvWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
