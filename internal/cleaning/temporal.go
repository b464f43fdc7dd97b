package cleaning

import (
	"log/slog"
	"sort"

	"aqcli/internal/dataset"
)

// FillReport summarizes a fill pass.
type FillReport struct {
	CellsFilled    int            `json:"cells_filled"`
	FilledByColumn map[string]int `json:"filled_by_column"`
}

func newFillReport() *FillReport {
	report := &FillReport{FilledByColumn: make(map[string]int, dataset.NumColumns)}
	for _, c := range dataset.MeasurementColumns {
		report.FilledByColumn[c.String()] = 0
	}
	return report
}

func (r *FillReport) record(c dataset.Column) {
	r.CellsFilled++
	r.FilledByColumn[c.String()]++
}

// knownPoint is an observed value on a city-column time series.
type knownPoint struct {
	year  int
	value float64
}

// TemporalFill fills each city-column time series by linear interpolation on
// the year axis between observed values, then forward/backward fill at the
// series boundaries. Interpolation always reads the values observed before
// the pass, so fills never cascade. A city-column with no observed value is
// left untouched.
func TemporalFill(ds *dataset.Dataset) (*dataset.Dataset, *FillReport) {
	out := ds.Clone()
	out.Sort()
	report := newFillReport()

	_, groups := out.CityGroups()
	for _, indices := range groups {
		// Rows are sorted, but keep the group's own year order explicit.
		sort.SliceStable(indices, func(a, b int) bool {
			return out.Rows[indices[a]].Year < out.Rows[indices[b]].Year
		})

		for _, c := range dataset.MeasurementColumns {
			fillSeries(out, indices, c, report)
		}
	}

	slog.Info("temporal fill complete", slog.Int("cells_filled", report.CellsFilled))

	return out, report
}

func fillSeries(ds *dataset.Dataset, indices []int, c dataset.Column, report *FillReport) {
	known := make([]knownPoint, 0, len(indices))
	for _, i := range indices {
		if !ds.Rows[i].IsMissing(c) {
			known = append(known, knownPoint{year: ds.Rows[i].Year, value: ds.Rows[i].Value(c)})
		}
	}
	if len(known) == 0 {
		return
	}

	for _, i := range indices {
		if !ds.Rows[i].IsMissing(c) {
			continue
		}
		ds.Rows[i].SetValue(c, interpolateAt(known, ds.Rows[i].Year))
		report.record(c)
	}
}

// interpolateAt evaluates the series at the given year: linear between the
// two nearest observed years, clamped to the first/last observed value
// outside the observed range.
func interpolateAt(known []knownPoint, year int) float64 {
	if year <= known[0].year {
		return known[0].value
	}
	last := known[len(known)-1]
	if year >= last.year {
		return last.value
	}

	// Find the first known point at or after the target year.
	hi := sort.Search(len(known), func(i int) bool {
		return known[i].year >= year
	})
	lo := hi - 1

	y0, v0 := known[lo].year, known[lo].value
	y1, v1 := known[hi].year, known[hi].value
	if y1 == y0 {
		return v0
	}
	return v0 + (v1-v0)*float64(year-y0)/float64(y1-y0)
}
