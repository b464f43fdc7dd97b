package cleaning

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqcli/internal/dataset"
)

// buildSyntheticDataset produces a dataset with a deterministic mix of
// observed and missing cells across several countries and years.
func buildSyntheticDataset(t *testing.T) *dataset.Dataset {
	t.Helper()

	rng := rand.New(rand.NewSource(42))
	ds := dataset.New()

	countries := map[string][]string{
		"Spain":  {"Madrid", "Barcelona", "Valencia"},
		"France": {"Paris", "Lyon"},
		"India":  {"Delhi", "Mumbai"},
	}

	for country, cities := range countries {
		for _, city := range cities {
			for year := 2015; year <= 2020; year++ {
				obs := dataset.NewObservation("", "", country, city, year)
				for _, c := range dataset.MeasurementColumns {
					if rng.Float64() < 0.65 {
						obs.SetValue(c, 5+rng.Float64()*50)
					}
				}
				ds.Append(obs)
			}
		}
	}

	// One city with almost everything missing, to be dropped by the filter.
	for year := 2015; year <= 2020; year++ {
		ds.Append(dataset.NewObservation("", "", "France", "Nice", year))
	}

	return ds
}

func TestPipeline_Run(t *testing.T) {
	ds := buildSyntheticDataset(t)
	missingBefore := ds.MissingCells()

	p := New(DefaultOptions(), nil)
	out, report, err := p.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, ds.Len(), report.RowsIn)
	assert.Equal(t, out.Len(), report.RowsOut)
	assert.Equal(t, missingBefore, report.MissingBefore)
	assert.Equal(t, 0, report.MissingAfter)
	assert.Equal(t, 0, out.MissingCells())

	// The fully missing city is gone.
	for i := range out.Rows {
		assert.NotEqual(t, "Nice", out.Rows[i].City)
	}

	// The input is untouched.
	assert.Equal(t, missingBefore, ds.MissingCells())

	require.NoError(t, Verify(out, p.Options().Threshold))
}

func TestPipeline_RunEmptyDataset(t *testing.T) {
	p := New(DefaultOptions(), nil)
	out, report, err := p.Run(context.Background(), dataset.New())
	require.NoError(t, err)

	assert.Equal(t, 0, out.Len())
	assert.Equal(t, 0, report.CellsFilled())
}

func TestPipeline_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(DefaultOptions(), nil)
	_, _, err := p.Run(ctx, buildSyntheticDataset(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_DefaultsApplied(t *testing.T) {
	p := New(Options{}, nil)
	assert.Equal(t, DefaultThreshold, p.Options().Threshold)
	assert.Equal(t, DefaultNeighbors, p.Options().Neighbors)
}

func TestReport_CellsFilledSkipsMissingPasses(t *testing.T) {
	report := &Report{Temporal: &FillReport{CellsFilled: 3}}
	assert.Equal(t, 3, report.CellsFilled())
	assert.Equal(t, 0, (&Report{}).CellsFilled())
}

func TestPipeline_InvalidThreshold(t *testing.T) {
	p := New(Options{Threshold: 2, Neighbors: 5}, nil)
	_, _, err := p.Run(context.Background(), dataset.New())
	assert.Error(t, err)
}

func TestPipeline_AcceptanceProperties(t *testing.T) {
	ds := buildSyntheticDataset(t)
	threshold := 0.70

	// (a) post-filter, no retained city exceeds the threshold.
	filtered, _, err := FilterCities(ds, threshold)
	require.NoError(t, err)
	for key, fraction := range filtered.CityMissingFraction() {
		assert.LessOrEqual(t, fraction, threshold, "city %v", key)
	}

	// (b) post-temporal, no gap remains in a city-column with any
	// observed value.
	interpolated, _ := TemporalFill(filtered)
	_, groups := interpolated.CityGroups()
	for key, indices := range groups {
		for _, c := range dataset.MeasurementColumns {
			observed, missing := 0, 0
			for _, i := range indices {
				if interpolated.Rows[i].IsMissing(c) {
					missing++
				} else {
					observed++
				}
			}
			if observed > 0 {
				assert.Equal(t, 0, missing, "city %v column %s", key, c)
			}
		}
	}

	// (c) post-regional, no missing cell remains in a country-column with
	// any observed value.
	regional, _ := RegionalFill(interpolated)
	_, countryGroups := regional.CountryGroups()
	for country, indices := range countryGroups {
		for _, c := range dataset.MeasurementColumns {
			observed, missing := 0, 0
			for _, i := range indices {
				if regional.Rows[i].IsMissing(c) {
					missing++
				} else {
					observed++
				}
			}
			if observed > 0 {
				assert.Equal(t, 0, missing, "country %s column %s", country, c)
			}
		}
	}

	// (d) post-KNN, nothing is missing.
	imputed, _, err := KNNFill(regional, DefaultNeighbors)
	require.NoError(t, err)
	assert.Equal(t, 0, imputed.MissingCells())
}

func TestVerify(t *testing.T) {
	t.Run("clean dataset passes", func(t *testing.T) {
		ds := dataset.New()
		ds.Append(buildObservation("Spain", "Madrid", 2019, fullValues(10)))
		assert.NoError(t, Verify(ds, DefaultThreshold))
	})

	t.Run("globally empty column allowed", func(t *testing.T) {
		ds := dataset.New()
		obs := buildObservation("Spain", "Madrid", 2019, map[dataset.Column]float64{
			dataset.ColPM25: 10, dataset.ColPM10: 20, dataset.ColNO2: 30,
			dataset.ColPM25Cov: 90, dataset.ColPM10Cov: 90,
		})
		ds.Append(obs)
		// 1 of 6 missing per row, fraction ~0.17, under threshold; the
		// no2_tempcov column is empty everywhere so it is tolerated.
		assert.NoError(t, Verify(ds, DefaultThreshold))
	})

	t.Run("partially missing column fails", func(t *testing.T) {
		ds := dataset.New()
		ds.Append(buildObservation("Spain", "Madrid", 2019, fullValues(10)))
		ds.Append(buildObservation("Spain", "Madrid", 2020, map[dataset.Column]float64{
			dataset.ColPM25: 10, dataset.ColPM10: 20, dataset.ColNO2: 30,
			dataset.ColPM25Cov: 90, dataset.ColPM10Cov: 90,
		}))
		assert.Error(t, Verify(ds, DefaultThreshold))
	})

	t.Run("city above threshold fails", func(t *testing.T) {
		ds := dataset.New()
		ds.Append(buildObservation("France", "Paris", 2019, nil))
		assert.Error(t, Verify(ds, DefaultThreshold))
	})
}
