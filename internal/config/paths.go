package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains all the application paths.
// This is the single source of truth for file locations used by the pipeline.
type Paths struct {
	BaseDir      string
	DataDir      string
	RawDir       string
	ProcessedDir string
	ReportsDir   string
	LogsDir      string

	// Well-known output files
	ProcessedCSV       string
	CleaningSummaryCSV string
	MissingnessJSON    string
	KPISnapshotJSON    string
}

// GetPaths returns the application paths rooted at baseDir. When baseDir is
// empty the directory containing the executable is used, so the tools behave
// the same whether run from a checkout or an installed location.
//
// Directory structure:
//
//	base/
//	  ├── data/
//	  │   ├── raw/         (WHO database downloads, .csv or .xlsx)
//	  │   ├── processed/   (cleaned dataset)
//	  │   └── reports/     (cleaning summaries, missingness and KPI reports)
//	  └── logs/
func GetPaths(baseDir string) (*Paths, error) {
	if baseDir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to get executable path: %w", err)
		}
		exe, err = filepath.EvalSymlinks(exe)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
		}
		baseDir = filepath.Dir(exe)
	}

	dataDir := filepath.Join(baseDir, "data")
	processedDir := filepath.Join(dataDir, "processed")
	reportsDir := filepath.Join(dataDir, "reports")

	paths := &Paths{
		BaseDir:      baseDir,
		DataDir:      dataDir,
		RawDir:       filepath.Join(dataDir, "raw"),
		ProcessedDir: processedDir,
		ReportsDir:   reportsDir,
		LogsDir:      filepath.Join(baseDir, "logs"),

		ProcessedCSV:       filepath.Join(processedDir, "processed.csv"),
		CleaningSummaryCSV: filepath.Join(reportsDir, "cleaning_summary.csv"),
		MissingnessJSON:    filepath.Join(reportsDir, "missingness.json"),
		KPISnapshotJSON:    filepath.Join(reportsDir, "kpi_snapshot.json"),
	}

	return paths, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.ProcessedDir,
		p.ReportsDir,
		p.LogsDir,
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// GetRawPath returns the path for a file in the raw data directory
func (p *Paths) GetRawPath(filename string) string {
	return filepath.Join(p.RawDir, filename)
}

// GetProcessedPath returns the path for a file in the processed directory
func (p *Paths) GetProcessedPath(filename string) string {
	return filepath.Join(p.ProcessedDir, filename)
}

// GetReportPath returns the path for a file in the reports directory
func (p *Paths) GetReportPath(filename string) string {
	return filepath.Join(p.ReportsDir, filename)
}

// GetLogPath returns the path for a file in the logs directory
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists at the given path
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
