package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rowforge/rowforge/internal/config"
	"github.com/rowforge/rowforge/internal/engine"
	"github.com/rowforge/rowforge/internal/logging"
	"github.com/rowforge/rowforge/internal/manifest"
	"github.com/rowforge/rowforge/internal/rules"
)

func main() {
	var (
		inputPath    = flag.String("input", "", "source workbook (.xlsx or .csv)")
		manifestPath = flag.String("manifest", "", "document-type manifest (.yaml)")
		outputPath   = flag.String("output", "", "normalized output workbook (default: <input>.normalized.<ext>)")
		artifactPath = flag.String("artifact", "", "run artifact JSON (default: <output>.artifact.json)")
	)
	flag.Parse()

	if *inputPath == "" || *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: rowforge -input <workbook> -manifest <manifest.yaml> [-output <path>] [-artifact <path>]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *outputPath == "" {
		*outputPath = defaultOutputPath(*inputPath)
	}
	if *artifactPath == "" {
		*artifactPath = *outputPath + ".artifact.json"
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err == nil {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"header_search_window", cfg.Engine.HeaderSearchWindow,
		"mapping_sample_rows", cfg.Engine.MappingSampleRows,
		"job_timeout", cfg.Engine.JobTimeout,
	)

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		slog.Error("failed to load manifest", "path", *manifestPath, "error", err)
		os.Exit(1)
	}
	slog.Info("manifest loaded",
		"document_type", m.DocumentType,
		"version", m.Version,
		"target_fields", len(m.TargetFields),
	)

	reg, err := rules.Build(m)
	if err != nil {
		slog.Error("failed to build rule registry", "error", err)
		os.Exit(1)
	}
	slog.Info("rule registry built", "rules", len(reg.Descriptors()))

	job, err := engine.NewJob(engine.Options{
		Input:    *inputPath,
		Output:   *outputPath,
		Manifest: m,
		Registry: reg,
		Settings: engine.Settings{
			HeaderSearchWindow:    cfg.Engine.HeaderSearchWindow,
			HeaderScoreThreshold:  cfg.Engine.HeaderScoreThreshold,
			MappingScoreThreshold: cfg.Engine.MappingScoreThreshold,
			MappingSampleRows:     cfg.Engine.MappingSampleRows,
			BlankRunLimit:         cfg.Engine.BlankRunLimit,
			SparseRowRatio:        cfg.Engine.SparseRowRatio,
		},
	})
	if err != nil {
		slog.Error("failed to create job", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.JobTimeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logging.WithJob(ctx, job.ID())
	logger := logging.FromContext(ctx)
	logger.Info("starting job", "input", *inputPath, "output", *outputPath)

	res, runErr := job.Run(ctx)

	// The artifact documents failed runs too; write whatever was sealed.
	if res != nil && len(res.Artifact) > 0 {
		if err := os.WriteFile(*artifactPath, res.Artifact, 0o644); err != nil {
			logger.Error("failed to write artifact", "path", *artifactPath, "error", err)
			os.Exit(1)
		}
		logger.Info("artifact written", "path", *artifactPath)
	}

	if runErr != nil {
		logger.Error("job failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("job completed",
		"rows_written", res.Summary.RowsWritten,
		"columns_written", res.Summary.ColumnsWritten,
		"issues_found", res.Summary.IssuesFound,
	)
}

// defaultOutputPath derives an output path next to the input, keeping its
// extension: data.xlsx -> data.normalized.xlsx.
func defaultOutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".normalized" + ext
}
