package analytics

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// obsRow creates a fully observed row where pm10 and no2 are derived
// from the pm25 value so each test only needs to track one number.
func obsRow(region, iso3, country, city string, year int, pm25 float64) dataset.Observation {
	obs := dataset.NewObservation(region, iso3, country, city, year)
	obs.SetValue(dataset.ColPM25, pm25)
	obs.SetValue(dataset.ColPM10, pm25+10)
	obs.SetValue(dataset.ColNO2, pm25/2)
	obs.SetValue(dataset.ColPM25Cov, 100)
	obs.SetValue(dataset.ColPM10Cov, 100)
	obs.SetValue(dataset.ColNO2Cov, 100)
	return obs
}

// kpiDataset builds three countries across two regions:
// Spain (median pm25 5), France (30) and India (70).
func kpiDataset() *dataset.Dataset {
	ds := dataset.New()
	ds.Append(obsRow("4_Eur", "ESP", "Spain", "Madrid", 2018, 4))
	ds.Append(obsRow("4_Eur", "ESP", "Spain", "Madrid", 2019, 6))
	ds.Append(obsRow("4_Eur", "FRA", "France", "Paris", 2018, 20))
	ds.Append(obsRow("4_Eur", "FRA", "France", "Paris", 2019, 40))
	ds.Append(obsRow("3_Sear", "IND", "India", "Delhi", 2018, 60))
	ds.Append(obsRow("3_Sear", "IND", "India", "Delhi", 2019, 80))
	return ds
}

func newTestEngine(t *testing.T, ds *dataset.Dataset) *Engine {
	t.Helper()
	engine, err := NewEngine(ds, testLogger())
	require.NoError(t, err)
	return engine
}

func TestRiskBand(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		pollutant Pollutant
		want      string
	}{
		{"pm25 at limit", 5, PollutantPM25, BandSafe},
		{"pm25 moderate", 15, PollutantPM25, BandModerate},
		{"pm25 high", 35, PollutantPM25, BandHigh},
		{"pm25 very high", 35.1, PollutantPM25, BandVeryHigh},
		{"pm10 safe", 15, PollutantPM10, BandSafe},
		{"pm10 moderate", 30, PollutantPM10, BandModerate},
		{"pm10 high", 50, PollutantPM10, BandHigh},
		{"pm10 very high", 51, PollutantPM10, BandVeryHigh},
		{"no2 safe", 10, PollutantNO2, BandSafe},
		{"no2 moderate", 20, PollutantNO2, BandModerate},
		{"no2 high", 40, PollutantNO2, BandHigh},
		{"no2 very high", 41, PollutantNO2, BandVeryHigh},
		{"missing value", math.NaN(), PollutantPM25, BandNA},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskBand(tt.value, tt.pollutant))
		})
	}
}

func TestExceedanceBand(t *testing.T) {
	assert.Equal(t, ExceedLow, ExceedanceBand(0))
	assert.Equal(t, ExceedLow, ExceedanceBand(24.9))
	assert.Equal(t, ExceedMixed, ExceedanceBand(25))
	assert.Equal(t, ExceedMixed, ExceedanceBand(75))
	assert.Equal(t, ExceedWidespread, ExceedanceBand(75.1))
	assert.Equal(t, BandNA, ExceedanceBand(math.NaN()))
}

func TestParsePollutant(t *testing.T) {
	for input, want := range map[string]Pollutant{
		"pm25":  PollutantPM25,
		"PM2.5": PollutantPM25,
		"pm10":  PollutantPM10,
		" no2 ": PollutantNO2,
	} {
		got, err := ParsePollutant(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := ParsePollutant("ozone")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeValidation, appErr.Type)
}

func TestEngineCompute_Global(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	kpi, err := engine.Compute(Query{Pollutant: "pm25"})
	require.NoError(t, err)

	assert.Equal(t, "pm25", kpi.Pollutant)
	assert.Equal(t, "Global", kpi.Region)
	assert.Equal(t, 6, kpi.Rows)
	assert.Equal(t, LimitPM25, kpi.Limit)

	// Values 4,6,20,40,60,80: median is 30.
	assert.InDelta(t, 30, kpi.AnnualMedian, 1e-9)
	assert.Equal(t, BandHigh, kpi.MedianBand)
	assert.InDelta(t, 6, kpi.TimesAbove, 1e-9)

	// Country medians 5, 30, 70: France and India exceed the limit of 5.
	assert.InDelta(t, 100.0*2/3, kpi.PctExceeding, 1e-9)
	assert.Equal(t, ExceedMixed, kpi.ExceedBand)
	assert.Equal(t, 3, kpi.CountryCount)

	require.NotNil(t, kpi.Worst)
	assert.Equal(t, "IND", kpi.Worst.ISO3)
	assert.Equal(t, "India", kpi.Worst.Country)
	assert.Equal(t, 2019, kpi.Worst.Year)
	assert.InDelta(t, 80, kpi.Worst.Value, 1e-9)
	assert.Equal(t, BandVeryHigh, kpi.Worst.Band)

	require.NotNil(t, kpi.Best)
	assert.Equal(t, "ESP", kpi.Best.ISO3)
	assert.Equal(t, 2018, kpi.Best.Year)
	assert.InDelta(t, 4, kpi.Best.Value, 1e-9)
	assert.Equal(t, BandSafe, kpi.Best.Band)

	assert.InDelta(t, 80, kpi.MaxObserved, 1e-9)
	assert.InDelta(t, 4, kpi.MinObserved, 1e-9)
}

func TestEngineCompute_RegionFilter(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	kpi, err := engine.Compute(Query{Pollutant: "pm25", Region: "4_Eur"})
	require.NoError(t, err)

	assert.Equal(t, "4_Eur", kpi.Region)
	assert.Equal(t, 4, kpi.Rows)
	// Values 4,6,20,40: median is 13.
	assert.InDelta(t, 13, kpi.AnnualMedian, 1e-9)
	assert.Equal(t, BandModerate, kpi.MedianBand)
	// Country medians 5 and 30: only France exceeds.
	assert.InDelta(t, 50, kpi.PctExceeding, 1e-9)
	assert.Equal(t, "FRA", kpi.Worst.ISO3)
	assert.InDelta(t, 40, kpi.Worst.Value, 1e-9)
}

func TestEngineCompute_YearFilter(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	kpi, err := engine.Compute(Query{Pollutant: "pm25", Years: []int{2018}})
	require.NoError(t, err)

	assert.Equal(t, 3, kpi.Rows)
	// Values 4,20,60: median is 20.
	assert.InDelta(t, 20, kpi.AnnualMedian, 1e-9)
	assert.Equal(t, 2018, kpi.Worst.Year)
	assert.InDelta(t, 60, kpi.Worst.Value, 1e-9)
}

func TestEngineCompute_OtherPollutants(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	pm10, err := engine.Compute(Query{Pollutant: "pm10"})
	require.NoError(t, err)
	// pm10 values are pm25+10: median 40.
	assert.InDelta(t, 40, pm10.AnnualMedian, 1e-9)
	assert.Equal(t, LimitPM10, pm10.Limit)

	no2, err := engine.Compute(Query{Pollutant: "no2"})
	require.NoError(t, err)
	// no2 values are pm25/2: median 15.
	assert.InDelta(t, 15, no2.AnnualMedian, 1e-9)
	assert.Equal(t, BandModerate, no2.MedianBand)
}

func TestEngineCompute_InvalidQuery(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	_, err := engine.Compute(Query{Pollutant: "ozone"})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeValidation, appErr.Type)

	_, err = engine.Compute(Query{})
	require.Error(t, err)
}

func TestEngineCompute_EmptyScope(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	_, err := engine.Compute(Query{Pollutant: "pm25", Region: "2_Amr"})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeNotFound, appErr.Type)
}

func TestEngineCompute_SkipsMissingValues(t *testing.T) {
	ds := dataset.New()
	ds.Append(obsRow("4_Eur", "ESP", "Spain", "Madrid", 2018, 10))
	ds.Append(obsRow("4_Eur", "FRA", "France", "Paris", 2018, 30))
	missing := dataset.NewObservation("4_Eur", "ITA", "Italy", "Rome", 2018)
	ds.Append(missing)

	engine := newTestEngine(t, ds)
	kpi, err := engine.Compute(Query{Pollutant: "pm25"})
	require.NoError(t, err)

	// Rome has no observed pm25: median over 10 and 30 only, and Italy
	// does not count toward the exceedance share.
	assert.InDelta(t, 20, kpi.AnnualMedian, 1e-9)
	assert.Equal(t, 2, kpi.CountryCount)
	assert.Equal(t, "FRA", kpi.Worst.ISO3)
	assert.Equal(t, "ESP", kpi.Best.ISO3)
}

func TestNewEngine_RetainsAllRows(t *testing.T) {
	// A single-row dataset must survive the dataframe load intact; the
	// first observation is data, not column names.
	ds := dataset.New()
	ds.Append(obsRow("4_Eur", "ESP", "Spain", "Madrid", 2018, 10))

	engine := newTestEngine(t, ds)
	assert.Equal(t, 1, engine.Rows())
	assert.Equal(t, []int{2018}, engine.Years())
	assert.Equal(t, []string{"4_Eur"}, engine.Regions())
}

func TestNewEngine_EmptyDataset(t *testing.T) {
	_, err := NewEngine(dataset.New(), testLogger())
	require.Error(t, err)
}

func TestEngine_YearsAndRegions(t *testing.T) {
	engine := newTestEngine(t, kpiDataset())

	assert.Equal(t, []int{2018, 2019}, engine.Years())
	assert.Equal(t, []string{"3_Sear", "4_Eur"}, engine.Regions())
}

func TestWriteSnapshotFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "kpi_snapshot.json")

	require.NoError(t, WriteSnapshotFile(path, kpiDataset(), testLogger()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, 6, snap.Rows)
	assert.Equal(t, []int{2018, 2019}, snap.Years)
	require.Len(t, snap.Pollutants, 3)
	assert.Equal(t, "pm25", snap.Pollutants[0].Pollutant)
	assert.InDelta(t, 30, snap.Pollutants[0].AnnualMedian, 1e-9)
	assert.False(t, snap.GeneratedAt.IsZero())
}
