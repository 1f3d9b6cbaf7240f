package engine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/cellref"
	"github.com/rowforge/rowforge/internal/document"
	"github.com/rowforge/rowforge/internal/rules"
)

// Issue codes the executor itself emits, as opposed to codes raised by
// validator rules.
const (
	codeTransformFailed = "transform_failed"
	codeRuleFailure     = "rule_failure"
)

// TableResult is the fused write loop's outcome for one table.
type TableResult struct {
	RowsWritten int
	Issues      int
}

// Executor runs the fused transform/validate/write loop: each data row is
// read once, transformed, validated, and appended to the output sheet before
// the next row is touched. Transform failures isolate to their cell; the
// original value passes through. Validation findings are recorded and never
// halt the row.
type Executor struct {
	logger *slog.Logger
}

func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Execute writes one table: the plan's header row first, then every data row
// within the table's bounds. Only a read failure or context cancellation is
// fatal; rows already written stay written.
func (e *Executor) Execute(ctx context.Context, wb document.Workbook, b TableBounds, plan []planColumn, out document.RowWriter, ww *artifact.WriteWindow) (TableResult, error) {
	var res TableResult
	if err := out.WriteRow(planHeaders(plan)); err != nil {
		return res, err
	}

	type tally struct {
		field   *rules.FieldRules
		changed int
		total   int
	}
	var tallies []*tally
	tallyByCol := make(map[int]*tally, len(plan))
	for i, pc := range plan {
		if pc.field == nil {
			continue
		}
		tl := &tally{field: pc.field}
		tallies = append(tallies, tl)
		tallyByCol[i] = tl
	}

	it, err := wb.Rows(b.SheetName)
	if err != nil {
		return res, err
	}
	defer it.Close()

	rowNum := 0
	outRow := make([]string, len(plan))
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		rowNum++
		if rowNum < b.FirstDataRow {
			continue
		}
		if rowNum > b.LastDataRow {
			break
		}
		cells := it.Row()

		for i, pc := range plan {
			raw := ""
			if pc.sourceCol <= len(cells) {
				raw = cells[pc.sourceCol-1]
			}
			if pc.field == nil {
				outRow[i] = raw
				continue
			}

			vc := rules.ValueContext{Row: rowNum, Col: pc.sourceCol, Field: pc.field.Field}
			value := raw
			tl := tallyByCol[i]
			tl.total++

			if tr := pc.field.Transform; tr != nil {
				transformed, terr := tr.Apply(raw, vc)
				if terr != nil {
					ferr := &TransformError{Cell: cellref.MustCell(vc.Col, vc.Row), Rule: tr.ID, Err: terr}
					if err := ww.AppendIssue(b.TableID, artifact.ValidationIssue{
						Cell:        ferr.Cell,
						RowIndex:    vc.Row,
						TargetField: pc.field.Field,
						Code:        codeTransformFailed,
						Severity:    rules.SeverityError,
						Message:     terr.Error(),
						Rule:        tr.ID,
					}); err != nil {
						return res, err
					}
					res.Issues++
				} else {
					if transformed != raw {
						tl.changed++
					}
					value = transformed
				}
			}

			for _, v := range pc.field.Validators {
				issues, verr := v.Validate(value, vc)
				if verr != nil {
					// A broken validator is reported once per cell and the
					// remaining validators still run.
					if err := ww.AppendIssue(b.TableID, artifact.ValidationIssue{
						Cell:        cellref.MustCell(vc.Col, vc.Row),
						RowIndex:    vc.Row,
						TargetField: pc.field.Field,
						Code:        codeRuleFailure,
						Severity:    rules.SeverityWarning,
						Message:     verr.Error(),
						Rule:        v.ID,
					}); err != nil {
						return res, err
					}
					res.Issues++
					continue
				}
				for _, issue := range issues {
					if err := ww.AppendIssue(b.TableID, artifact.ValidationIssue{
						Cell:        cellref.MustCell(vc.Col, vc.Row),
						RowIndex:    vc.Row,
						TargetField: pc.field.Field,
						Code:        issue.Code,
						Severity:    issue.Severity,
						Message:     issue.Message,
						Rule:        v.ID,
					}); err != nil {
						return res, err
					}
					res.Issues++
				}
			}

			outRow[i] = value
		}

		if err := out.WriteRow(outRow); err != nil {
			return res, err
		}
		res.RowsWritten++
	}
	if err := it.Err(); err != nil {
		return res, err
	}

	summaries := make([]artifact.TransformSummary, len(tallies))
	for i, tl := range tallies {
		summaries[i] = artifact.TransformSummary{
			TargetField: tl.field.Field,
			Changed:     tl.changed,
			Total:       tl.total,
		}
		if tr := tl.field.Transform; tr != nil {
			id := tr.ID
			summaries[i].Rule = &id
		}
	}
	if err := ww.SetTransforms(b.TableID, summaries); err != nil {
		return res, err
	}
	return res, nil
}

// sheetTitle names an output sheet: the configured name for the first table,
// a numbered variant for each additional one.
func sheetTitle(base string, index int) string {
	if index == 0 {
		return base
	}
	return strings.TrimSpace(base) + " " + strconv.Itoa(index+1)
}
