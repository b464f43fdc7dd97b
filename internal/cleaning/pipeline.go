package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// DefaultThreshold is the default missingness threshold for city dropout.
const DefaultThreshold = 0.70

// Options configures a pipeline run.
type Options struct {
	// Threshold is the maximum average missing fraction a city may have
	// before all of its rows are dropped.
	Threshold float64

	// Neighbors is the k for the KNN pass.
	Neighbors int
}

// DefaultOptions returns the standard pipeline configuration.
func DefaultOptions() Options {
	return Options{
		Threshold: DefaultThreshold,
		Neighbors: DefaultNeighbors,
	}
}

// Report aggregates the per-pass change reports of a pipeline run.
type Report struct {
	RowsIn        int           `json:"rows_in"`
	RowsOut       int           `json:"rows_out"`
	MissingBefore int           `json:"missing_before"`
	MissingAfter  int           `json:"missing_after"`
	Filter        *FilterReport `json:"filter"`
	Temporal      *FillReport   `json:"temporal"`
	Regional      *FillReport   `json:"regional"`
	KNN           *FillReport   `json:"knn"`
	Duration      time.Duration `json:"duration_ns"`
}

// CellsFilled returns the total cells filled across the fill passes.
// Passes that did not run count as zero.
func (r *Report) CellsFilled() int {
	total := 0
	for _, fill := range []*FillReport{r.Temporal, r.Regional, r.KNN} {
		if fill != nil {
			total += fill.CellsFilled
		}
	}
	return total
}

// Pipeline runs the four cleaning passes in order.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
}

// New creates a pipeline, applying defaults for zero-valued options.
func New(opts Options, logger *slog.Logger) *Pipeline {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Neighbors == 0 {
		opts.Neighbors = DefaultNeighbors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{opts: opts, logger: logger.With(slog.String("component", "cleaning_pipeline"))}
}

// Options returns the effective pipeline options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run executes the full pipeline on the dataset and returns the cleaned
// copy with its report. The input dataset is not modified. Cancellation is
// checked between passes.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset) (*dataset.Dataset, *Report, error) {
	start := time.Now()
	report := &Report{
		RowsIn:        ds.Len(),
		MissingBefore: ds.MissingCells(),
	}

	p.logger.InfoContext(ctx, "pipeline starting",
		slog.Int("rows", report.RowsIn),
		slog.Int("missing_cells", report.MissingBefore),
		slog.Float64("threshold", p.opts.Threshold),
		slog.Int("neighbors", p.opts.Neighbors))

	filtered, filterReport, err := FilterCities(ds, p.opts.Threshold)
	if err != nil {
		return nil, nil, err
	}
	report.Filter = filterReport

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	interpolated, temporalReport := TemporalFill(filtered)
	report.Temporal = temporalReport

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	regional, regionalReport := RegionalFill(interpolated)
	report.Regional = regionalReport

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	imputed, knnReport, err := KNNFill(regional, p.opts.Neighbors)
	if err != nil {
		return nil, nil, err
	}
	report.KNN = knnReport

	report.RowsOut = imputed.Len()
	report.MissingAfter = imputed.MissingCells()
	report.Duration = time.Since(start)

	p.logger.InfoContext(ctx, "pipeline complete",
		slog.Int("rows_out", report.RowsOut),
		slog.Int("cells_filled", report.CellsFilled()),
		slog.Int("missing_after", report.MissingAfter),
		slog.Duration("duration", report.Duration))

	return imputed, report, nil
}

// Verify checks the cleaned dataset against the pipeline's guarantees:
// every retained city is within the missingness threshold, and every
// measurement column that had at least one observed value anywhere is fully
// imputed. A column with no observed value globally cannot be filled and is
// allowed to remain missing.
func Verify(ds *dataset.Dataset, threshold float64) error {
	for key, fraction := range ds.CityMissingFraction() {
		if fraction > threshold {
			return apperrors.NewImputationError(
				fmt.Sprintf("city %s (%s) has missing fraction %.3f above threshold %.2f", key.City, key.Country, fraction, threshold), nil)
		}
	}

	counts := ds.MissingByColumn()
	for _, c := range dataset.MeasurementColumns {
		missing := counts[c]
		if missing == 0 {
			continue
		}
		if missing < ds.Len() {
			return apperrors.NewImputationError(
				fmt.Sprintf("column %s still has %d missing cells", c, missing), nil).
				WithContext("column", c.String()).
				WithContext("missing", missing)
		}
		// Whole column unobserved: nothing could fill it.
	}

	return nil
}
