package cleaning

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqcli/internal/dataset"
)

func findRow(t *testing.T, ds *dataset.Dataset, city string, year int) *dataset.Observation {
	t.Helper()
	for i := range ds.Rows {
		if ds.Rows[i].City == city && ds.Rows[i].Year == year {
			return &ds.Rows[i]
		}
	}
	t.Fatalf("row not found: %s %d", city, year)
	return nil
}

func TestTemporalFill_LinearInterpolation(t *testing.T) {
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2016, map[dataset.Column]float64{dataset.ColPM25: 10}))
	ds.Append(buildObservation("Spain", "Madrid", 2017, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2019, map[dataset.Column]float64{dataset.ColPM25: 16}))

	out, report := TemporalFill(ds)

	assert.InDelta(t, 12.0, findRow(t, out, "Madrid", 2017).Value(dataset.ColPM25), 1e-9)
	assert.InDelta(t, 14.0, findRow(t, out, "Madrid", 2018).Value(dataset.ColPM25), 1e-9)
	assert.Equal(t, 2, report.CellsFilled)
	assert.Equal(t, 2, report.FilledByColumn[dataset.ColPM25.String()])
}

func TestTemporalFill_YearAxisNotRowIndex(t *testing.T) {
	// A gap in years: 2015 observed 10, 2019 observed 18, 2018 missing.
	// Interpolating on the year axis gives 16, not the midpoint 14.
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2015, map[dataset.Column]float64{dataset.ColPM25: 10}))
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2019, map[dataset.Column]float64{dataset.ColPM25: 18}))

	out, _ := TemporalFill(ds)

	assert.InDelta(t, 16.0, findRow(t, out, "Madrid", 2018).Value(dataset.ColPM25), 1e-9)
}

func TestTemporalFill_BoundaryFill(t *testing.T) {
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2015, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2016, map[dataset.Column]float64{dataset.ColNO2: 30}))
	ds.Append(buildObservation("Spain", "Madrid", 2017, map[dataset.Column]float64{dataset.ColNO2: 40}))
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))

	out, _ := TemporalFill(ds)

	// Backward fill before the first observation, forward fill after the last.
	assert.InDelta(t, 30.0, findRow(t, out, "Madrid", 2015).Value(dataset.ColNO2), 1e-9)
	assert.InDelta(t, 40.0, findRow(t, out, "Madrid", 2018).Value(dataset.ColNO2), 1e-9)
}

func TestTemporalFill_AllMissingSeriesUntouched(t *testing.T) {
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2019, nil))

	out, report := TemporalFill(ds)

	assert.Equal(t, 0, report.CellsFilled)
	assert.True(t, math.IsNaN(findRow(t, out, "Madrid", 2018).Value(dataset.ColPM25)))
}

func TestTemporalFill_CitiesAreIndependent(t *testing.T) {
	// Paris values must never leak into Madrid's series.
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))
	ds.Append(buildObservation("France", "Paris", 2018, map[dataset.Column]float64{dataset.ColPM25: 99}))

	out, report := TemporalFill(ds)

	assert.True(t, math.IsNaN(findRow(t, out, "Madrid", 2018).Value(dataset.ColPM25)))
	assert.Equal(t, 0, report.CellsFilled)
}

func TestTemporalFill_SameCityNameDifferentCountries(t *testing.T) {
	ds := dataset.New()
	ds.Append(buildObservation("Canada", "Springfield", 2018, map[dataset.Column]float64{dataset.ColPM25: 5}))
	ds.Append(buildObservation("United States of America", "Springfield", 2018, nil))

	out, _ := TemporalFill(ds)

	for i := range out.Rows {
		if out.Rows[i].Country == "United States of America" {
			assert.True(t, math.IsNaN(out.Rows[i].Value(dataset.ColPM25)))
		}
	}
}

func TestTemporalFill_UsesPrePassValuesOnly(t *testing.T) {
	// An interpolated value must not feed later interpolation: 2017 and 2018
	// both interpolate from the 2016/2019 endpoints.
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2016, map[dataset.Column]float64{dataset.ColPM10: 20}))
	ds.Append(buildObservation("Spain", "Madrid", 2017, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))
	ds.Append(buildObservation("Spain", "Madrid", 2019, map[dataset.Column]float64{dataset.ColPM10: 26}))

	out, _ := TemporalFill(ds)

	assert.InDelta(t, 22.0, findRow(t, out, "Madrid", 2017).Value(dataset.ColPM10), 1e-9)
	assert.InDelta(t, 24.0, findRow(t, out, "Madrid", 2018).Value(dataset.ColPM10), 1e-9)
}

func TestInterpolateAt(t *testing.T) {
	known := []knownPoint{{year: 2015, value: 10}, {year: 2018, value: 16}, {year: 2020, value: 10}}

	tests := []struct {
		name     string
		year     int
		expected float64
	}{
		{name: "before first", year: 2013, expected: 10},
		{name: "at first", year: 2015, expected: 10},
		{name: "interior", year: 2016, expected: 12},
		{name: "at known", year: 2018, expected: 16},
		{name: "interior descending", year: 2019, expected: 13},
		{name: "after last", year: 2022, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, interpolateAt(known, tt.year), 1e-9)
		})
	}
}

func TestTemporalFill_DoesNotModifyInput(t *testing.T) {
	ds := dataset.New()
	ds.Append(buildObservation("Spain", "Madrid", 2016, map[dataset.Column]float64{dataset.ColPM25: 10}))
	ds.Append(buildObservation("Spain", "Madrid", 2018, nil))

	_, report := TemporalFill(ds)
	require.Equal(t, 1, report.CellsFilled)

	assert.True(t, findRow(t, ds, "Madrid", 2018).IsMissing(dataset.ColPM25))
}
