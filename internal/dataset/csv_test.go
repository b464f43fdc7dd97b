package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"who_region,iso3,country_name,city,year,pm25_concentration,pm10_concentration,no2_concentration,pm25_tempcov,pm10_tempcov,no2_tempcov",
		"4_Eur,ESP,Spain,Madrid,2019,10.5,22.1,35.2,95,90,88",
		"4_Eur,ESP,Spain,Madrid,2020,,21.0,,96,91,",
	}, "\n")

	ds, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	first := ds.Rows[0]
	assert.Equal(t, "4_Eur", first.WHORegion)
	assert.Equal(t, "ESP", first.ISO3)
	assert.Equal(t, "Spain", first.Country)
	assert.Equal(t, "Madrid", first.City)
	assert.Equal(t, 2019, first.Year)
	assert.Equal(t, 10.5, first.Value(ColPM25))
	assert.Equal(t, 88.0, first.Value(ColNO2Cov))

	second := ds.Rows[1]
	assert.True(t, second.IsMissing(ColPM25))
	assert.Equal(t, 21.0, second.Value(ColPM10))
	assert.True(t, second.IsMissing(ColNO2))
	assert.True(t, second.IsMissing(ColNO2Cov))
}

func TestReadCSV_BOMAndReorderedColumns(t *testing.T) {
	input := "\xEF\xBB\xBF" + strings.Join([]string{
		"year,city,country_name,iso3,who_region,pm25_concentration",
		"2019,Paris,France,FRA,4_Eur,11.2",
	}, "\n")

	ds, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	obs := ds.Rows[0]
	assert.Equal(t, "France", obs.Country)
	assert.Equal(t, 2019, obs.Year)
	assert.Equal(t, 11.2, obs.Value(ColPM25))
	// Columns absent from the file load as missing.
	assert.True(t, obs.IsMissing(ColPM10))
}

func TestReadCSV_NaNLiteralsAndFloatYears(t *testing.T) {
	input := strings.Join([]string{
		"who_region,iso3,country_name,city,year,pm25_concentration,pm10_concentration,no2_concentration,pm25_tempcov,pm10_tempcov,no2_tempcov",
		"4_Eur,ESP,Spain,Madrid,2019.0,NaN,nan,15.5,,,",
	}, "\n")

	ds, err := ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())

	obs := ds.Rows[0]
	assert.Equal(t, 2019, obs.Year)
	assert.True(t, obs.IsMissing(ColPM25))
	assert.True(t, obs.IsMissing(ColPM10))
	assert.Equal(t, 15.5, obs.Value(ColNO2))
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "missing required column",
			input: "who_region,iso3,country_name,year\n4_Eur,ESP,Spain,2019",
		},
		{
			name:  "bad year",
			input: "country_name,city,year\nSpain,Madrid,abc",
		},
		{
			name:  "empty city",
			input: "country_name,city,year\nSpain,,2019",
		},
		{
			name:  "bad measurement",
			input: "country_name,city,year,pm25_concentration\nSpain,Madrid,2019,oops",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	obs := NewObservation("4_Eur", "ESP", "Spain", "Madrid", 2019)
	obs.SetValue(ColPM25, 10.5)
	obs.SetValue(ColNO2Cov, 88.0)

	record := obs.Record()
	require.Len(t, record, len(Header()))
	assert.Equal(t, "10.5", record[5])
	assert.Equal(t, "", record[6]) // missing pm10
	assert.Equal(t, "88", record[10])
}

func TestReadCSVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "processed.csv")

	content := strings.Join([]string{
		"country_name,city,year,pm25_concentration",
		"Spain,Madrid,2019,10.5",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ds, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	_, err = ReadCSVFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(math.NaN()))
	assert.Equal(t, "12.25", formatCell(12.25))
	assert.Equal(t, "0", formatCell(0))
}
