package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"aqcli/internal/cleaning"
	"aqcli/internal/config"
	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// Writer produces the pipeline's output artifacts at the configured paths.
type Writer struct {
	paths *config.Paths
	csv   *CSVWriter
}

// NewWriter creates a writer for the given paths
func NewWriter(paths *config.Paths) *Writer {
	return &Writer{
		paths: paths,
		csv:   NewCSVWriter(),
	}
}

// Paths returns the output locations this writer targets.
func (w *Writer) Paths() *config.Paths {
	return w.paths
}

// Result lists the files a WriteAll call produced.
type Result struct {
	ProcessedCSV    string `json:"processed_csv"`
	SummaryCSV      string `json:"summary_csv"`
	MissingnessJSON string `json:"missingness_json"`
}

// WriteAll writes the processed dataset plus both summary artifacts.
func (w *Writer) WriteAll(ds *dataset.Dataset, report *cleaning.Report) (*Result, error) {
	if err := w.WriteProcessed(ds); err != nil {
		return nil, err
	}
	if err := w.WriteSummary(report); err != nil {
		return nil, err
	}
	if err := w.WriteMissingness(report); err != nil {
		return nil, err
	}
	return &Result{
		ProcessedCSV:    w.paths.ProcessedCSV,
		SummaryCSV:      w.paths.CleaningSummaryCSV,
		MissingnessJSON: w.paths.MissingnessJSON,
	}, nil
}

// WriteProcessed writes the cleaned dataset to processed.csv using the
// streaming writer, sorted by country, city, year.
func (w *Writer) WriteProcessed(ds *dataset.Dataset) error {
	sorted := ds.Clone()
	sorted.Sort()

	stream, err := w.csv.CreateStreamWriter(w.paths.ProcessedCSV, dataset.Header())
	if err != nil {
		return apperrors.NewStorageError("failed to create processed csv", err)
	}

	for i := range sorted.Rows {
		if err := stream.WriteRecord(sorted.Rows[i].Record()); err != nil {
			stream.Close()
			return apperrors.NewStorageError("failed to write processed csv record", err)
		}
	}

	if err := stream.Close(); err != nil {
		return apperrors.NewStorageError("failed to finalize processed csv", err)
	}
	return nil
}

// WriteSummary writes the per-pass cleaning summary CSV. Partial runs
// leave some pass reports nil; those rows report zero.
func (w *Writer) WriteSummary(report *cleaning.Report) error {
	headers := []string{"pass", "cells_filled", "rows_dropped", "detail"}

	filter := report.Filter
	if filter == nil {
		filter = &cleaning.FilterReport{}
	}

	records := [][]string{
		{
			"missingness_filter",
			"0",
			strconv.Itoa(filter.RowsDropped),
			fmt.Sprintf("threshold=%.2f cities_dropped=%d", filter.Threshold, filter.CitiesDropped),
		},
		summaryRecord("temporal_fill", report.Temporal),
		summaryRecord("regional_fill", report.Regional),
		summaryRecord("knn_fill", report.KNN),
		{
			"total",
			strconv.Itoa(report.CellsFilled()),
			strconv.Itoa(filter.RowsDropped),
			fmt.Sprintf("rows_in=%d rows_out=%d missing_before=%d missing_after=%d",
				report.RowsIn, report.RowsOut, report.MissingBefore, report.MissingAfter),
		},
	}

	if err := w.csv.WriteSimpleCSV(w.paths.CleaningSummaryCSV, headers, records); err != nil {
		return apperrors.NewStorageError("failed to write cleaning summary", err)
	}
	return nil
}

func summaryRecord(pass string, fill *cleaning.FillReport) []string {
	if fill == nil {
		fill = &cleaning.FillReport{}
	}
	detail := ""
	for _, c := range dataset.MeasurementColumns {
		if detail != "" {
			detail += " "
		}
		detail += fmt.Sprintf("%s=%d", c, fill.FilledByColumn[c.String()])
	}
	return []string{pass, strconv.Itoa(fill.CellsFilled), "0", detail}
}

// CountryMissingness is one country's entry in the missingness report.
type CountryMissingness struct {
	Country         string   `json:"country"`
	Cities          int      `json:"cities"`
	MissingFraction float64  `json:"missing_fraction"`
	DroppedCities   []string `json:"dropped_cities,omitempty"`
}

// MissingnessReport is the JSON report of pre-cleaning missingness.
type MissingnessReport struct {
	Threshold float64              `json:"threshold"`
	Countries []CountryMissingness `json:"countries"`
}

// WriteMissingness writes the per-country missingness JSON, built from the
// city fractions the filter pass observed before any fill ran. When the
// filter pass did not run the report is empty.
func (w *Writer) WriteMissingness(report *cleaning.Report) error {
	filter := report.Filter
	if filter == nil {
		filter = &cleaning.FilterReport{}
	}

	byCountry := make(map[string][]float64)
	for key, fraction := range filter.FractionByKey {
		byCountry[key.Country] = append(byCountry[key.Country], fraction)
	}

	droppedByCountry := make(map[string][]string)
	for _, key := range filter.DroppedCities {
		droppedByCountry[key.Country] = append(droppedByCountry[key.Country], key.City)
	}

	out := &MissingnessReport{Threshold: filter.Threshold}
	for country, fractions := range byCountry {
		sum := 0.0
		for _, f := range fractions {
			sum += f
		}
		dropped := droppedByCountry[country]
		sort.Strings(dropped)
		out.Countries = append(out.Countries, CountryMissingness{
			Country:         country,
			Cities:          len(fractions),
			MissingFraction: sum / float64(len(fractions)),
			DroppedCities:   dropped,
		})
	}
	sort.Slice(out.Countries, func(i, j int) bool {
		return out.Countries[i].Country < out.Countries[j].Country
	})

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to encode missingness report", err)
	}

	dir := filepath.Dir(w.paths.MissingnessJSON)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewStorageError("failed to create reports directory", err)
	}
	if err := os.WriteFile(w.paths.MissingnessJSON, data, 0644); err != nil {
		return apperrors.NewStorageError("failed to write missingness report", err)
	}
	return nil
}
