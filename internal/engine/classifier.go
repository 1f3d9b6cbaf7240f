package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/cellref"
	"github.com/rowforge/rowforge/internal/document"
	"github.com/rowforge/rowforge/internal/rules"
)

// TableBounds is the classifier's verdict on one detected table: its header,
// column extent, and data row span. Later passes address the sheet through
// these bounds only.
type TableBounds struct {
	SheetName    string
	TableID      string
	HeaderKind   string
	HeaderRow    int // 0 for synthetic headers
	SourceHeader []string
	StartCol     int
	EndCol       int
	FirstDataRow int
	LastDataRow  int
	Columns      []artifact.Column
}

// Width is the table's column count.
func (b TableBounds) Width() int { return b.EndCol - b.StartCol + 1 }

// Classifier labels rows and detects table boundaries in one streaming pass.
// Only the leading header-search window is buffered; every row beyond it is
// classified by cell density and discarded.
type Classifier struct {
	detectors []rules.BoundRowDetector
	settings  Settings
	logger    *slog.Logger
}

func NewClassifier(reg *rules.Registry, settings Settings, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		detectors: reg.RowDetectors(),
		settings:  settings.withDefaults(),
		logger:    logger,
	}
}

type windowRow struct {
	index        int
	cells        []string
	label        string
	scores       map[string]float64
	contributors []artifact.Contribution
	headerScore  float64
}

// Classify consumes the sheet's row iterator once, records every row's
// classification into the structure window, and returns the detected tables
// in top-to-bottom order.
func (c *Classifier) Classify(ctx context.Context, it document.RowIterator, sheetName string, sw *artifact.SheetWindow) ([]TableBounds, error) {
	window := make([]windowRow, 0, c.settings.HeaderSearchWindow)
	rowNum := 0
	for len(window) < c.settings.HeaderSearchWindow && it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNum++
		cells := append([]string(nil), it.Row()...)
		wr := c.scoreRow(rowNum, cells, sheetName)
		window = append(window, wr)
		if err := sw.RecordRow(artifact.RowClassification{
			RowIndex:     wr.index,
			Label:        wr.label,
			Scores:       wr.scores,
			Contributors: wr.contributors,
		}); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	scan := &tableScanner{
		sheetName: sheetName,
		settings:  c.settings,
		sw:        sw,
	}
	scan.chooseHeader(window)
	if scan.headerRow == 0 && len(window) > 0 {
		c.logger.Warn("falling back to synthetic header",
			"sheet", sheetName,
			"error", &StructureError{Sheet: sheetName, Window: c.settings.HeaderSearchWindow})
	}

	for _, wr := range window {
		if err := scan.feed(wr.index, wr.cells); err != nil {
			return nil, err
		}
	}
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNum++
		cells := it.Row()
		nonEmpty, _, _ := rowExtent(cells)
		rc := artifact.RowClassification{RowIndex: rowNum, Label: rules.LabelData}
		if nonEmpty == 0 {
			rc.Label = rules.LabelBlank
		} else {
			rc.Scores = map[string]float64{rules.LabelData: float64(nonEmpty) / float64(len(cells))}
		}
		if err := sw.RecordRow(rc); err != nil {
			return nil, err
		}
		if err := scan.feed(rowNum, cells); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return scan.finish()
}

// scoreRow runs every row detector against one window row and reduces the
// weighted deltas to a label. A failing detector is skipped for that row.
func (c *Classifier) scoreRow(index int, cells []string, sheetName string) windowRow {
	wr := windowRow{index: index, cells: cells}
	rc := rules.RowContext{Index: index, Cells: cells, SheetName: sheetName}
	scores := map[string]float64{}
	for _, det := range c.detectors {
		deltas, err := det.Detect(rc)
		if err != nil {
			c.logger.Warn("row detector failed", "rule", det.ID, "row", index, "error", err)
			continue
		}
		for _, d := range deltas {
			scores[d.Label] += d.Delta
			wr.contributors = append(wr.contributors, artifact.Contribution{
				Rule:  det.ID,
				Label: d.Label,
				Delta: d.Delta,
			})
		}
	}
	if len(scores) > 0 {
		wr.scores = scores
	}
	wr.headerScore = scores[rules.LabelHeader]
	wr.label = pickLabel(cells, scores, c.settings.HeaderScoreThreshold)
	return wr
}

// pickLabel reduces a score map to a single label. An empty row is always
// blank; the header label needs its threshold-clearing score to beat every
// other label; otherwise the highest positive score wins and a non-empty row
// with no positive score defaults to data.
func pickLabel(cells []string, scores map[string]float64, headerThreshold float64) string {
	nonEmpty, _, _ := rowExtent(cells)
	if nonEmpty == 0 {
		return rules.LabelBlank
	}
	best := rules.LabelData
	bestScore := 0.0
	for _, label := range []string{rules.LabelData, rules.LabelBlank} {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}
	if h := scores[rules.LabelHeader]; h >= headerThreshold && h > bestScore {
		return rules.LabelHeader
	}
	return best
}

func rowExtent(cells []string) (nonEmpty, first, last int) {
	for i, cell := range cells {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		nonEmpty++
		if first == 0 {
			first = i + 1
		}
		last = i + 1
	}
	return nonEmpty, first, last
}

// tableScanner walks the sheet's rows in order and cuts them into tables:
// contiguous data runs after the header, each terminated when the blank run
// reaches the limit. The first run sits under the sheet's header (raw or
// synthetic); any later run gets a synthetic header of its own extent.
type tableScanner struct {
	sheetName  string
	settings   Settings
	sw         *artifact.SheetWindow
	headerRow int // 0 when no row cleared the threshold
	cur       *tableAccum
	tables    []TableBounds
}

type tableAccum struct {
	headerRow    int // 0 for synthetic
	headerCells  []string
	startCol     int
	endCol       int
	firstDataRow int
	lastDataRow  int
	blankRun     int
}

// chooseHeader picks the sheet's header row: the window row with the highest
// header score at or above the threshold, earliest row on ties.
func (ts *tableScanner) chooseHeader(window []windowRow) {
	best := 0.0
	for _, wr := range window {
		if wr.headerScore < ts.settings.HeaderScoreThreshold {
			continue
		}
		if ts.headerRow == 0 || wr.headerScore > best {
			ts.headerRow = wr.index
			best = wr.headerScore
		}
	}
}

func (ts *tableScanner) feed(index int, cells []string) error {
	if index == ts.headerRow && ts.headerRow > 0 {
		nonEmpty, first, last := rowExtent(cells)
		if nonEmpty == 0 {
			return nil
		}
		ts.cur = &tableAccum{
			headerRow:   index,
			headerCells: append([]string(nil), cells...),
			startCol:    first,
			endCol:      last,
		}
		return nil
	}

	nonEmpty, first, last := rowExtent(cells)
	if ts.cur == nil {
		// Rows above the header are preamble.
		if ts.headerRow > 0 && index < ts.headerRow {
			return nil
		}
		if nonEmpty == 0 {
			return nil
		}
		ts.cur = &tableAccum{
			startCol:     first,
			endCol:       last,
			firstDataRow: index,
			lastDataRow:  index,
		}
		return nil
	}

	sparse := false
	if ts.cur.headerRow > 0 && nonEmpty > 0 {
		width := ts.cur.endCol - ts.cur.startCol + 1
		sparse = float64(nonEmpty) < math.Ceil(ts.settings.SparseRowRatio*float64(width))
	}
	if nonEmpty == 0 || sparse {
		ts.cur.blankRun++
		if ts.cur.blankRun >= ts.settings.BlankRunLimit {
			return ts.flush()
		}
		return nil
	}

	ts.cur.blankRun = 0
	if ts.cur.firstDataRow == 0 {
		ts.cur.firstDataRow = index
	}
	ts.cur.lastDataRow = index
	if ts.cur.headerRow == 0 {
		// Synthetic tables widen to their data extent; raw headers fix it.
		if first < ts.cur.startCol {
			ts.cur.startCol = first
		}
		if last > ts.cur.endCol {
			ts.cur.endCol = last
		}
	}
	return nil
}

// flush closes the open table, if any. A header with no data rows under it
// produces no table.
func (ts *tableScanner) flush() error {
	cur := ts.cur
	ts.cur = nil
	if cur == nil || cur.firstDataRow == 0 {
		return nil
	}

	width := cur.endCol - cur.startCol + 1
	labels := make([]string, width)
	if cur.headerRow > 0 {
		for i := range labels {
			col := cur.startCol + i
			if col <= len(cur.headerCells) {
				labels[i] = strings.TrimSpace(cur.headerCells[col-1])
			}
		}
	} else {
		for i := range labels {
			labels[i] = fmt.Sprintf("Column %d", i+1)
		}
	}

	columns := make([]artifact.Column, width)
	for i := range columns {
		columns[i] = artifact.Column{
			ColumnID:     fmt.Sprintf("c%d", i+1),
			Index:        cur.startCol + i,
			SourceHeader: labels[i],
		}
	}

	header := artifact.Header{Kind: "synthetic", SourceHeader: labels}
	topRow := cur.firstDataRow
	if cur.headerRow > 0 {
		header.Kind = "raw"
		header.RowIndex = cur.headerRow
		topRow = cur.headerRow
	}
	rng := cellref.MustRange(cur.startCol, topRow, cur.endCol, cur.lastDataRow)
	dataRange := cellref.MustRange(cur.startCol, cur.firstDataRow, cur.endCol, cur.lastDataRow)

	id, err := ts.sw.AddTable(rng, dataRange, header, columns)
	if err != nil {
		return err
	}
	ts.tables = append(ts.tables, TableBounds{
		SheetName:    ts.sheetName,
		TableID:      id,
		HeaderKind:   header.Kind,
		HeaderRow:    cur.headerRow,
		SourceHeader: labels,
		StartCol:     cur.startCol,
		EndCol:       cur.endCol,
		FirstDataRow: cur.firstDataRow,
		LastDataRow:  cur.lastDataRow,
		Columns:      columns,
	})
	return nil
}

func (ts *tableScanner) finish() ([]TableBounds, error) {
	if err := ts.flush(); err != nil {
		return nil, err
	}
	return ts.tables, nil
}
