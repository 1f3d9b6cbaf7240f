package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/document"
	"github.com/rowforge/rowforge/internal/rules"
)

// ColumnMapping is pass 2's verdict on one raw column. TargetField is empty
// for unmapped columns; Score and Contributors then carry the column's
// best-scoring candidacy for audit.
type ColumnMapping struct {
	ColumnID     string
	Index        int
	SourceHeader string
	TargetField  string
	Score        float64
	Contributors []artifact.Contribution
}

// Mapper scores raw columns against the manifest's target fields and
// resolves assignments. Fields claim columns in manifest order; a claimed
// column is out of contention for every later field.
type Mapper struct {
	fields   []rules.FieldRules
	settings Settings
	logger   *slog.Logger
}

func NewMapper(reg *rules.Registry, settings Settings, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mapper{fields: reg.Fields(), settings: settings.withDefaults(), logger: logger}
}

// MapTable maps one table's columns, appending a record per column to the
// mapping window. A detector failure disqualifies that single column/field
// pair and the run continues.
func (m *Mapper) MapTable(ctx context.Context, wb document.Workbook, b TableBounds, mw *artifact.MappingWindow) ([]ColumnMapping, error) {
	samples, err := m.sampleColumns(ctx, wb, b)
	if err != nil {
		return nil, err
	}

	width := b.Width()
	type pairScore struct {
		score        float64
		contributors []artifact.Contribution
		failed       bool
	}
	scores := make([][]pairScore, len(m.fields))
	for fi, field := range m.fields {
		scores[fi] = make([]pairScore, width)
		for ci := 0; ci < width; ci++ {
			cc := rules.ColumnContext{
				Index:   b.StartCol + ci,
				Header:  b.Columns[ci].SourceHeader,
				Samples: samples[ci],
			}
			if b.HeaderKind == "synthetic" {
				cc.Header = ""
			}
			ps := &scores[fi][ci]
			for _, det := range field.Detectors {
				delta, derr := det.Detect(cc)
				if derr != nil {
					ps.failed = true
					merr := &MappingError{Column: cc.Index, Target: field.Field, Err: derr}
					m.logger.Warn("column detector failed", "rule", det.ID, "error", merr)
					break
				}
				ps.score += delta
				ps.contributors = append(ps.contributors, artifact.Contribution{Rule: det.ID, Delta: delta})
			}
		}
	}

	// Fields resolve in manifest order; within a field, the highest-scoring
	// unclaimed column at or above the threshold wins, lowest index on ties.
	assigned := make([]int, len(m.fields)) // column offset per field, -1 if none
	claimed := make([]bool, width)
	for fi := range m.fields {
		assigned[fi] = -1
		best := m.settings.MappingScoreThreshold
		for ci := 0; ci < width; ci++ {
			ps := scores[fi][ci]
			if claimed[ci] || ps.failed {
				continue
			}
			if ps.score > best || (assigned[fi] == -1 && ps.score == best) {
				best = ps.score
				assigned[fi] = ci
			}
		}
		if ci := assigned[fi]; ci >= 0 {
			claimed[ci] = true
		}
	}

	fieldByColumn := make([]int, width)
	for ci := range fieldByColumn {
		fieldByColumn[ci] = -1
	}
	for fi, ci := range assigned {
		if ci >= 0 {
			fieldByColumn[ci] = fi
		}
	}

	mappings := make([]ColumnMapping, width)
	for ci := 0; ci < width; ci++ {
		cm := ColumnMapping{
			ColumnID:     b.Columns[ci].ColumnID,
			Index:        b.Columns[ci].Index,
			SourceHeader: b.Columns[ci].SourceHeader,
		}
		if fi := fieldByColumn[ci]; fi >= 0 {
			cm.TargetField = m.fields[fi].Field
			cm.Score = scores[fi][ci].score
			cm.Contributors = scores[fi][ci].contributors
		} else {
			// Keep the best losing candidacy so the artifact explains why
			// the column stayed unmapped.
			for fi := range m.fields {
				ps := scores[fi][ci]
				if ps.failed {
					continue
				}
				if ps.score > cm.Score {
					cm.Score = ps.score
					cm.Contributors = ps.contributors
				}
			}
		}
		mappings[ci] = cm

		rec := artifact.MappingRecord{
			ColumnID:     cm.ColumnID,
			Score:        cm.Score,
			Contributors: cm.Contributors,
		}
		if cm.TargetField != "" {
			field := cm.TargetField
			rec.TargetField = &field
		}
		if err := mw.Append(b.TableID, rec); err != nil {
			return nil, err
		}
	}
	return mappings, nil
}

// sampleColumns streams the table's leading data rows once and collects a
// bounded sample of non-empty values per column.
func (m *Mapper) sampleColumns(ctx context.Context, wb document.Workbook, b TableBounds) ([][]string, error) {
	samples := make([][]string, b.Width())
	it, err := wb.Rows(b.SheetName)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	rowNum := 0
	sampled := 0
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rowNum++
		if rowNum < b.FirstDataRow {
			continue
		}
		if rowNum > b.LastDataRow || sampled >= m.settings.MappingSampleRows {
			break
		}
		sampled++
		cells := it.Row()
		for ci := range samples {
			col := b.StartCol + ci
			if col > len(cells) {
				continue
			}
			if v := strings.TrimSpace(cells[col-1]); v != "" {
				samples[ci] = append(samples[ci], v)
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}
