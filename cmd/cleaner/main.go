package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"aqcli/internal/cleaning"
	"aqcli/internal/config"
	"aqcli/internal/exporter"
	"aqcli/internal/infrastructure"
	"aqcli/internal/operations"
)

func main() {
	inPath := flag.String("in", "", "input CSV or XLSX file with ambient air quality measurements (required)")
	outDir := flag.String("out", "", "base data directory for processed output and reports (defaults to configured base dir)")
	threshold := flag.Float64("threshold", 0, "missingness threshold for city dropout in [0,1] (defaults to configured value)")
	neighbors := flag.Int("k", 0, "number of neighbors for KNN imputation (defaults to configured value)")
	steps := flag.String("steps", "", "comma-separated step IDs to run (defaults to the full pipeline)")
	timeout := flag.Duration("timeout", 0, "overall pipeline timeout (defaults to configured value)")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing required flag: -in")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.Paths.BaseDir = *outDir
	}

	paths, err := config.GetPaths(cfg.Paths.BaseDir)
	if err != nil {
		slog.Error("Failed to initialize paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create directories", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	registry := operations.NewRegistry()
	if err := operations.RegisterPipelineSteps(registry, exporter.NewWriter(paths), logger); err != nil {
		logger.Error("failed to register pipeline steps", "error", err)
		os.Exit(1)
	}

	opTimeout := cfg.Pipeline.Timeout
	if *timeout > 0 {
		opTimeout = *timeout
	}
	manager := operations.NewManager(registry, logger, opTimeout)

	req := operations.Request{
		InputPath: *inPath,
		Threshold: *threshold,
		Neighbors: *neighbors,
	}
	if req.Threshold == 0 {
		req.Threshold = cfg.Pipeline.MissingnessThreshold
	}
	if req.Neighbors == 0 {
		req.Neighbors = cfg.Pipeline.Neighbors
	}
	if *steps != "" {
		for _, id := range strings.Split(*steps, ",") {
			if id = strings.TrimSpace(id); id != "" {
				req.Steps = append(req.Steps, id)
			}
		}
	}

	start := time.Now()
	state, err := manager.Execute(context.Background(), req)
	if err != nil {
		logger.Error("pipeline failed", "error", err)
		os.Exit(1)
	}

	printReport(state, paths, time.Since(start))
}

// printReport writes the run summary to stdout for interactive use. The
// structured log already carries the same numbers.
func printReport(state *operations.OperationState, paths *config.Paths, elapsed time.Duration) {
	fmt.Printf("Operation %s %s in %s\n", state.ID, state.Status, elapsed.Round(time.Millisecond))

	if v, ok := state.GetContext(operations.ContextKeyReport); ok {
		if report, ok := v.(*cleaning.Report); ok {
			fmt.Printf("  rows:          %d -> %d\n", report.RowsIn, report.RowsOut)
			if report.Filter != nil {
				fmt.Printf("  cities dropped: %d\n", report.Filter.CitiesDropped)
			}
			fmt.Printf("  cells filled:  %d (temporal %d, regional %d, knn %d)\n",
				report.CellsFilled(),
				fillCount(report.Temporal),
				fillCount(report.Regional),
				fillCount(report.KNN))
			fmt.Printf("  missing cells: %d -> %d\n", report.MissingBefore, report.MissingAfter)
		}
	}

	fmt.Println("Artifacts:")
	printArtifacts(paths)
}

// fillCount tolerates passes skipped by a -steps subset.
func fillCount(fill *cleaning.FillReport) int {
	if fill == nil {
		return 0
	}
	return fill.CellsFilled
}

func printArtifacts(paths *config.Paths) {
	for _, p := range []string{
		paths.ProcessedCSV,
		paths.CleaningSummaryCSV,
		paths.MissingnessJSON,
		paths.KPISnapshotJSON,
	} {
		if config.FileExists(p) {
			fmt.Printf("  %s\n", p)
		}
	}
}
