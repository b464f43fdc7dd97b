package cleaning

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"aqcli/internal/dataset"
)

type countryYear struct {
	country string
	year    int
}

// RegionalFill fills cells that are still missing after the temporal pass
// using the mean of observed values for the same country and year, falling
// back to the overall country mean. Means are computed from the values
// observed before the pass. A country with no observed value in a column
// receives no fill for that column.
func RegionalFill(ds *dataset.Dataset) (*dataset.Dataset, *FillReport) {
	out := ds.Clone()
	report := newFillReport()

	countryYearMeans := make(map[dataset.Column]map[countryYear]float64, dataset.NumColumns)
	countryMeans := make(map[dataset.Column]map[string]float64, dataset.NumColumns)

	for _, c := range dataset.MeasurementColumns {
		byCountryYear := make(map[countryYear][]float64)
		byCountry := make(map[string][]float64)
		for i := range out.Rows {
			row := &out.Rows[i]
			if row.IsMissing(c) {
				continue
			}
			key := countryYear{country: row.Country, year: row.Year}
			byCountryYear[key] = append(byCountryYear[key], row.Value(c))
			byCountry[row.Country] = append(byCountry[row.Country], row.Value(c))
		}

		countryYearMeans[c] = make(map[countryYear]float64, len(byCountryYear))
		for key, values := range byCountryYear {
			countryYearMeans[c][key] = stat.Mean(values, nil)
		}
		countryMeans[c] = make(map[string]float64, len(byCountry))
		for country, values := range byCountry {
			countryMeans[c][country] = stat.Mean(values, nil)
		}
	}

	for i := range out.Rows {
		row := &out.Rows[i]
		for _, c := range dataset.MeasurementColumns {
			if !row.IsMissing(c) {
				continue
			}
			if mean, ok := countryYearMeans[c][countryYear{country: row.Country, year: row.Year}]; ok && !math.IsNaN(mean) {
				row.SetValue(c, mean)
				report.record(c)
				continue
			}
			if mean, ok := countryMeans[c][row.Country]; ok && !math.IsNaN(mean) {
				row.SetValue(c, mean)
				report.record(c)
			}
		}
	}

	slog.Info("regional fill complete", slog.Int("cells_filled", report.CellsFilled))

	return out, report
}
