package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rowforge/rowforge/internal/artifact"
	"github.com/rowforge/rowforge/internal/document"
	"github.com/rowforge/rowforge/internal/manifest"
	"github.com/rowforge/rowforge/internal/rules"
)

const (
	engineName    = "rowforge"
	engineVersion = "0.4.0"
)

// State is a job lifecycle state. Transitions are strictly linear; Failed is
// terminal and reachable from any non-terminal state.
type State string

const (
	StateCreated     State = "created"
	StateReading     State = "reading"
	StateClassifying State = "classifying"
	StateMapping     State = "mapping"
	StateWriting     State = "writing"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

var nextState = map[State]State{
	StateCreated:     StateReading,
	StateReading:     StateClassifying,
	StateClassifying: StateMapping,
	StateMapping:     StateWriting,
	StateWriting:     StateFinalizing,
	StateFinalizing:  StateCompleted,
}

// Options configures one job.
type Options struct {
	// Input is the source workbook path (.xlsx or .csv).
	Input string

	// Output is the normalized workbook path.
	Output string

	// Manifest is the loaded document-type configuration.
	Manifest *manifest.Manifest

	// Registry is the immutable rule registry built from Manifest.
	Registry *rules.Registry

	// Settings tunes the pipeline; manifest header and mapping settings
	// override the matching fields.
	Settings Settings

	Logger *slog.Logger
}

// Result is a finished job's outcome. Artifact holds the sealed artifact
// JSON and is populated on failure too, covering every pass that ran.
type Result struct {
	JobID    string
	State    State
	Summary  artifact.Summary
	Artifact []byte
}

// Job runs the five-pass pipeline for one input document. A Job is
// single-use: Run may be called once.
type Job struct {
	id       string
	state    State
	opts     Options
	settings Settings
	logger   *slog.Logger
}

func NewJob(opts Options) (*Job, error) {
	if opts.Input == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Output == "" {
		return nil, fmt.Errorf("output path is required")
	}
	if opts.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	settings := opts.Settings.withDefaults()
	if m := opts.Manifest; m.Header.SearchWindow > 0 {
		settings.HeaderSearchWindow = m.Header.SearchWindow
	}
	if m := opts.Manifest; m.Header.ScoreThreshold > 0 {
		settings.HeaderScoreThreshold = m.Header.ScoreThreshold
	}
	if m := opts.Manifest; m.MappingScoreThreshold > 0 {
		settings.MappingScoreThreshold = m.MappingScoreThreshold
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Job{
		id:       id,
		state:    StateCreated,
		opts:     opts,
		settings: settings,
		logger:   logger.With("job", id),
	}, nil
}

func (j *Job) ID() string { return j.id }

func (j *Job) State() State { return j.state }

func (j *Job) advance(to State) error {
	if nextState[j.state] != to {
		return fmt.Errorf("invalid job transition %s -> %s", j.state, to)
	}
	j.state = to
	j.logger.Debug("job state changed", "state", to)
	return nil
}

// Run executes all five passes. The returned error is non-nil only for fatal
// failures (unreadable input, output write failure, cancellation); the
// Result always carries the sealed artifact for whatever passes completed.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	acc := artifact.NewAccumulator(
		artifact.JobInfo{
			ID:           j.id,
			DocumentType: j.opts.Manifest.DocumentType,
			Input:        j.opts.Input,
			StartedAt:    time.Now().UTC(),
			Status:       "running",
		},
		artifact.EngineInfo{Name: engineName, Version: engineVersion},
		ruleInfos(j.opts.Registry),
	)

	fail := func(pass string, err error) (*Result, error) {
		j.state = StateFailed
		j.logger.Error("job failed", "pass", pass, "error", err)
		acc.Fail(pass, err)
		data, serr := acc.Seal()
		if serr != nil {
			j.logger.Error("sealing failed artifact", "error", serr)
		}
		return &Result{JobID: j.id, State: StateFailed, Artifact: data}, err
	}

	// Read.
	if err := j.advance(StateReading); err != nil {
		return fail("read", err)
	}
	wb, err := document.Open(j.opts.Input)
	if err != nil {
		return fail("read", err)
	}
	defer wb.Close()

	// Pass 1: classify rows and detect tables, sheet by sheet.
	if err := j.advance(StateClassifying); err != nil {
		return fail("classify", err)
	}
	structure, err := acc.Structure()
	if err != nil {
		return fail("classify", err)
	}
	classifier := NewClassifier(j.opts.Registry, j.settings, j.logger)
	var tables []TableBounds
	for _, sheetName := range wb.SheetNames() {
		sw, err := structure.AddSheet(sheetName)
		if err != nil {
			return fail("classify", err)
		}
		it, err := wb.Rows(sheetName)
		if err != nil {
			return fail("classify", err)
		}
		bounds, cerr := classifier.Classify(ctx, it, sheetName, sw)
		it.Close()
		if cerr != nil {
			return fail("classify", cerr)
		}
		tables = append(tables, bounds...)
	}
	structure.Seal()
	if err := acc.CompletePass(1, "classify"); err != nil {
		return fail("classify", err)
	}
	j.logger.Info("classification complete", "sheets", len(wb.SheetNames()), "tables", len(tables))

	// Pass 2: map columns to target fields.
	if err := j.advance(StateMapping); err != nil {
		return fail("map", err)
	}
	mw, err := acc.Mapping()
	if err != nil {
		return fail("map", err)
	}
	mapper := NewMapper(j.opts.Registry, j.settings, j.logger)
	mappings := make([][]ColumnMapping, len(tables))
	for i, b := range tables {
		ms, merr := mapper.MapTable(ctx, wb, b, mw)
		if merr != nil {
			return fail("map", merr)
		}
		mappings[i] = ms
	}
	mw.Seal()
	if err := acc.CompletePass(2, "map"); err != nil {
		return fail("map", err)
	}

	// Passes 3-4: the fused transform/validate/write loop, one output sheet
	// per table.
	if err := j.advance(StateWriting); err != nil {
		return fail("write", err)
	}
	writer, err := document.NewWriter(j.opts.Output)
	if err != nil {
		return fail("write", err)
	}
	ww, err := acc.Writing()
	if err != nil {
		return fail("write", err)
	}
	exec := NewExecutor(j.logger)
	cfg := j.opts.Manifest.Writer
	plans := make([][]planColumn, len(tables))
	var rowsWritten, issues int
	for i, b := range tables {
		plans[i] = buildPlan(j.opts.Registry.Fields(), mappings[i], cfg.AppendUnmapped, cfg.Prefix())
		rw, serr := writer.Sheet(sheetTitle(cfg.SheetName(), i))
		if serr != nil {
			writer.Close()
			return fail("write", serr)
		}
		res, xerr := exec.Execute(ctx, wb, b, plans[i], rw, ww)
		rowsWritten += res.RowsWritten
		issues += res.Issues
		if xerr != nil {
			writer.Close()
			return fail("write", xerr)
		}
	}
	ww.Seal()
	if err := acc.CompletePass(3, "transform"); err != nil {
		return fail("write", err)
	}
	if err := acc.CompletePass(4, "validate"); err != nil {
		return fail("write", err)
	}
	j.logger.Info("write complete", "rows", rowsWritten, "issues", issues)

	// Pass 5: finish the output workbook and record the plan.
	if err := j.advance(StateFinalizing); err != nil {
		return fail("finalize", err)
	}
	if err := writer.Close(); err != nil {
		return fail("finalize", err)
	}
	ow, err := acc.Output()
	if err != nil {
		return fail("finalize", err)
	}
	var outCols []artifact.OutputColumn
	if len(plans) > 0 {
		outCols = outputColumns(plans[0])
	}
	if err := ow.SetOutput(artifact.Output{Path: j.opts.Output, Columns: outCols}); err != nil {
		return fail("finalize", err)
	}
	summary := artifact.Summary{
		RowsWritten:    rowsWritten,
		ColumnsWritten: len(outCols),
		IssuesFound:    issues,
	}
	if err := ow.SetSummary(summary); err != nil {
		return fail("finalize", err)
	}
	ow.Seal()
	if err := acc.CompletePass(5, "finalize"); err != nil {
		return fail("finalize", err)
	}

	if err := j.advance(StateCompleted); err != nil {
		return fail("finalize", err)
	}
	acc.Complete()
	data, err := acc.Seal()
	if err != nil {
		return nil, err
	}
	j.logger.Info("job completed", "rows_written", summary.RowsWritten, "issues_found", summary.IssuesFound)
	return &Result{JobID: j.id, State: StateCompleted, Summary: summary, Artifact: data}, nil
}

func ruleInfos(reg *rules.Registry) []artifact.RuleInfo {
	descriptors := reg.Descriptors()
	infos := make([]artifact.RuleInfo, len(descriptors))
	for i, d := range descriptors {
		infos[i] = artifact.RuleInfo{ID: d.ID, Impl: d.Impl, Kind: string(d.Kind), Version: d.Version}
	}
	return infos
}
