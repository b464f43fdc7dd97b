package cleaning

import (
	"fmt"
	"log/slog"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// FilterReport summarizes a missingness filter pass.
type FilterReport struct {
	Threshold     float64                     `json:"threshold"`
	CitiesBefore  int                         `json:"cities_before"`
	CitiesDropped int                         `json:"cities_dropped"`
	RowsBefore    int                         `json:"rows_before"`
	RowsDropped   int                         `json:"rows_dropped"`
	DroppedCities []dataset.CityKey           `json:"dropped_cities,omitempty"`
	FractionByKey map[dataset.CityKey]float64 `json:"-"`
}

// FilterCities drops every row of any city whose average missing fraction
// across the measurement columns exceeds the threshold. An empty dataset
// passes through unchanged.
func FilterCities(ds *dataset.Dataset, threshold float64) (*dataset.Dataset, *FilterReport, error) {
	if threshold < 0 || threshold > 1 {
		return nil, nil, apperrors.NewAppValidationError(fmt.Sprintf("threshold must be between 0 and 1, got %v", threshold))
	}

	fractions := ds.CityMissingFraction()
	keys, groups := ds.CityGroups()

	report := &FilterReport{
		Threshold:     threshold,
		CitiesBefore:  len(keys),
		RowsBefore:    ds.Len(),
		FractionByKey: fractions,
	}

	out := dataset.New()
	for _, key := range keys {
		if fractions[key] > threshold {
			report.CitiesDropped++
			report.RowsDropped += len(groups[key])
			report.DroppedCities = append(report.DroppedCities, key)
			continue
		}
		for _, i := range groups[key] {
			out.Append(ds.Rows[i])
		}
	}

	slog.Info("missingness filter complete",
		slog.Float64("threshold", threshold),
		slog.Int("cities_before", report.CitiesBefore),
		slog.Int("cities_dropped", report.CitiesDropped),
		slog.Int("rows_dropped", report.RowsDropped))

	return out, report, nil
}
