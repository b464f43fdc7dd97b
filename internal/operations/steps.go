package operations

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"aqcli/internal/analytics"
	"aqcli/internal/cleaning"
	"aqcli/internal/dataset"
	"aqcli/internal/exporter"
)

// Step IDs for the cleaning pipeline.
const (
	StepIDLoad     = "load"
	StepIDFilter   = "filter"
	StepIDTemporal = "temporal"
	StepIDRegional = "regional"
	StepIDKNN      = "knn"
	StepIDExport   = "export"
)

// Config keys recognized by the pipeline steps.
const (
	ConfigKeyThreshold = "threshold"
	ConfigKeyNeighbors = "neighbors"
)

// getDataset pulls the working dataset out of the operation context.
func getDataset(state *OperationState) (*dataset.Dataset, error) {
	v, ok := state.GetContext(ContextKeyDataset)
	if !ok {
		return nil, NewValidationError("", "no dataset in operation context")
	}
	ds, ok := v.(*dataset.Dataset)
	if !ok {
		return nil, NewValidationError("", "operation context holds unexpected dataset type")
	}
	return ds, nil
}

// getReport pulls the accumulating cleaning report out of the context.
func getReport(state *OperationState) (*cleaning.Report, error) {
	v, ok := state.GetContext(ContextKeyReport)
	if !ok {
		return nil, NewValidationError("", "no cleaning report in operation context")
	}
	report, ok := v.(*cleaning.Report)
	if !ok {
		return nil, NewValidationError("", "operation context holds unexpected report type")
	}
	return report, nil
}

func getThreshold(state *OperationState) float64 {
	if v, ok := state.GetConfig(ConfigKeyThreshold); ok {
		if threshold, ok := v.(float64); ok {
			return threshold
		}
	}
	return cleaning.DefaultThreshold
}

func getNeighbors(state *OperationState) int {
	if v, ok := state.GetConfig(ConfigKeyNeighbors); ok {
		if k, ok := v.(int); ok {
			return k
		}
	}
	return cleaning.DefaultNeighbors
}

// LoadStep reads the input dataset from CSV or the WHO Excel workbook.
type LoadStep struct {
	BaseStep
	logger *slog.Logger
}

// NewLoadStep creates the load step
func NewLoadStep(logger *slog.Logger) *LoadStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadStep{
		BaseStep: NewBaseStep(StepIDLoad, "Load dataset", nil),
		logger:   logger,
	}
}

// Validate checks that an input path was configured
func (s *LoadStep) Validate(state *OperationState) error {
	v, ok := state.GetContext(ContextKeyInputPath)
	if !ok {
		return NewValidationError(s.ID(), "input path not set")
	}
	if path, ok := v.(string); !ok || path == "" {
		return NewValidationError(s.ID(), "input path must be a non-empty string")
	}
	return nil
}

// Execute loads the dataset and stores it in the operation context
func (s *LoadStep) Execute(ctx context.Context, state *OperationState) error {
	v, _ := state.GetContext(ContextKeyInputPath)
	path := v.(string)

	var (
		ds  *dataset.Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		ds, err = dataset.ReadXLSXFile(path)
	default:
		ds, err = dataset.ReadCSVFile(path)
	}
	if err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	s.logger.InfoContext(ctx, "dataset loaded",
		slog.String("path", path),
		slog.Int("rows", ds.Len()),
		slog.Int("missing_cells", ds.MissingCells()))

	state.SetContext(ContextKeyDataset, ds)
	state.SetContext(ContextKeyReport, &cleaning.Report{
		RowsIn:        ds.Len(),
		MissingBefore: ds.MissingCells(),
	})

	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("rows", ds.Len())
		step.SetMetadata("missing_cells", ds.MissingCells())
	}
	return nil
}

// FilterStep drops cities above the missingness threshold.
type FilterStep struct {
	BaseStep
}

// NewFilterStep creates the missingness filter step
func NewFilterStep() *FilterStep {
	return &FilterStep{BaseStep: NewBaseStep(StepIDFilter, "Missingness filter", []string{StepIDLoad})}
}

// Execute runs the filter pass
func (s *FilterStep) Execute(ctx context.Context, state *OperationState) error {
	ds, err := getDataset(state)
	if err != nil {
		return err
	}

	out, report, err := cleaning.FilterCities(ds, getThreshold(state))
	if err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	state.SetContext(ContextKeyDataset, out)
	if agg, err := getReport(state); err == nil {
		agg.Filter = report
	}
	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("cities_dropped", report.CitiesDropped)
		step.SetMetadata("rows_dropped", report.RowsDropped)
	}
	return nil
}

// TemporalStep interpolates each city's time series.
type TemporalStep struct {
	BaseStep
}

// NewTemporalStep creates the temporal fill step
func NewTemporalStep() *TemporalStep {
	return &TemporalStep{BaseStep: NewBaseStep(StepIDTemporal, "Temporal fill", []string{StepIDFilter})}
}

// Execute runs the temporal fill pass
func (s *TemporalStep) Execute(ctx context.Context, state *OperationState) error {
	ds, err := getDataset(state)
	if err != nil {
		return err
	}

	out, report := cleaning.TemporalFill(ds)

	state.SetContext(ContextKeyDataset, out)
	if agg, err := getReport(state); err == nil {
		agg.Temporal = report
	}
	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("cells_filled", report.CellsFilled)
	}
	return nil
}

// RegionalStep applies the country-year then country mean fallback.
type RegionalStep struct {
	BaseStep
}

// NewRegionalStep creates the regional fallback step
func NewRegionalStep() *RegionalStep {
	return &RegionalStep{BaseStep: NewBaseStep(StepIDRegional, "Regional fallback fill", []string{StepIDTemporal})}
}

// Execute runs the regional fill pass
func (s *RegionalStep) Execute(ctx context.Context, state *OperationState) error {
	ds, err := getDataset(state)
	if err != nil {
		return err
	}

	out, report := cleaning.RegionalFill(ds)

	state.SetContext(ContextKeyDataset, out)
	if agg, err := getReport(state); err == nil {
		agg.Regional = report
	}
	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("cells_filled", report.CellsFilled)
	}
	return nil
}

// KNNStep imputes the residual missing cells.
type KNNStep struct {
	BaseStep
}

// NewKNNStep creates the KNN imputation step
func NewKNNStep() *KNNStep {
	return &KNNStep{BaseStep: NewBaseStep(StepIDKNN, "KNN imputation", []string{StepIDRegional})}
}

// Execute runs the KNN pass and verifies the pipeline guarantees
func (s *KNNStep) Execute(ctx context.Context, state *OperationState) error {
	ds, err := getDataset(state)
	if err != nil {
		return err
	}

	out, report, err := cleaning.KNNFill(ds, getNeighbors(state))
	if err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	if err := cleaning.Verify(out, getThreshold(state)); err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	state.SetContext(ContextKeyDataset, out)
	if agg, err := getReport(state); err == nil {
		agg.KNN = report
		agg.RowsOut = out.Len()
		agg.MissingAfter = out.MissingCells()
	}
	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("cells_filled", report.CellsFilled)
		step.SetMetadata("missing_after", out.MissingCells())
	}
	return nil
}

// ExportStep writes the cleaned dataset and its summary artifacts.
type ExportStep struct {
	BaseStep
	writer *exporter.Writer
	logger *slog.Logger
}

// NewExportStep creates the export step
func NewExportStep(writer *exporter.Writer, logger *slog.Logger) *ExportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStep{
		BaseStep: NewBaseStep(StepIDExport, "Export processed dataset", []string{StepIDKNN}),
		writer:   writer,
		logger:   logger,
	}
}

// Validate checks the writer is configured
func (s *ExportStep) Validate(state *OperationState) error {
	if s.writer == nil {
		return NewValidationError(s.ID(), "export writer not configured")
	}
	return nil
}

// Execute writes processed.csv, the cleaning summary, and the missingness report
func (s *ExportStep) Execute(ctx context.Context, state *OperationState) error {
	ds, err := getDataset(state)
	if err != nil {
		return err
	}

	report, err := getReport(state)
	if err != nil {
		return err
	}

	result, err := s.writer.WriteAll(ds, report)
	if err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	snapshotPath := s.writer.Paths().KPISnapshotJSON
	if err := analytics.WriteSnapshotFile(snapshotPath, ds, s.logger); err != nil {
		return NewExecutionError(s.ID(), err, false)
	}

	s.logger.InfoContext(ctx, "processed dataset exported",
		slog.String("path", result.ProcessedCSV),
		slog.Int("rows", ds.Len()))

	if step := state.GetStep(s.ID()); step != nil {
		step.SetMetadata("processed_csv", result.ProcessedCSV)
		step.SetMetadata("summary_csv", result.SummaryCSV)
		step.SetMetadata("missingness_json", result.MissingnessJSON)
		step.SetMetadata("kpi_snapshot_json", snapshotPath)
		step.SetMetadata("rows", ds.Len())
	}
	return nil
}

// RegisterPipelineSteps registers the full cleaning pipeline on the registry.
func RegisterPipelineSteps(registry *Registry, writer *exporter.Writer, logger *slog.Logger) error {
	steps := []Step{
		NewLoadStep(logger),
		NewFilterStep(),
		NewTemporalStep(),
		NewRegionalStep(),
		NewKNNStep(),
		NewExportStep(writer, logger),
	}
	for _, step := range steps {
		if err := registry.Register(step); err != nil {
			return fmt.Errorf("failed to register step %s: %w", step.ID(), err)
		}
	}
	return nil
}
