package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	apperrors "aqcli/internal/errors"
)

// CSV header names for the identity columns.
const (
	headerRegion  = "who_region"
	headerISO3    = "iso3"
	headerCountry = "country_name"
	headerCity    = "city"
	headerYear    = "year"
)

// Header returns the canonical CSV header row.
func Header() []string {
	header := []string{headerRegion, headerISO3, headerCountry, headerCity, headerYear}
	for _, c := range MeasurementColumns {
		header = append(header, c.String())
	}
	return header
}

// Record converts an observation to a CSV record. Missing cells become
// empty strings.
func (o *Observation) Record() []string {
	record := []string{
		o.WHORegion,
		o.ISO3,
		o.Country,
		o.City,
		strconv.Itoa(o.Year),
	}
	for _, c := range MeasurementColumns {
		record = append(record, formatCell(o.Values[c]))
	}
	return record
}

// Records converts the whole dataset to CSV records, without the header.
func (d *Dataset) Records() [][]string {
	records := make([][]string, 0, len(d.Rows))
	for i := range d.Rows {
		records = append(records, d.Rows[i].Record())
	}
	return records
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadCSV parses a dataset from a CSV stream. Columns are located by header
// name, so extra columns and reordering are tolerated.
func ReadCSV(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)

	// Strip a UTF-8 BOM if present. Files we exported for Excel carry one.
	if peek, err := br.Peek(3); err == nil && peek[0] == 0xEF && peek[1] == 0xBB && peek[2] == 0xBF {
		br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read csv header", err)
	}

	columnMap := make(map[string]int, len(header))
	for i, name := range header {
		columnMap[strings.ToLower(strings.TrimSpace(name))] = i
	}

	required := []string{headerCountry, headerCity, headerYear}
	for _, name := range required {
		if _, ok := columnMap[name]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("missing required column: %s", name), nil)
		}
	}

	ds := New()
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read csv record at line %d", line), err)
		}

		obs, err := parseRecord(record, columnMap)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("invalid record at line %d", line), err)
		}
		ds.Append(obs)
	}

	return ds, nil
}

// ReadCSVFile reads a dataset from a CSV file on disk.
func ReadCSVFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func parseRecord(record []string, columnMap map[string]int) (Observation, error) {
	cell := func(name string) string {
		if idx, ok := columnMap[name]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	yearText := cell(headerYear)
	year, err := strconv.Atoi(yearText)
	if err != nil {
		// WHO exports sometimes carry years as floats ("2019.0").
		if f, ferr := strconv.ParseFloat(yearText, 64); ferr == nil {
			year = int(f)
		} else {
			return Observation{}, fmt.Errorf("invalid year %q: %w", yearText, err)
		}
	}

	obs := NewObservation(cell(headerRegion), cell(headerISO3), cell(headerCountry), cell(headerCity), year)
	if obs.Country == "" || obs.City == "" {
		return Observation{}, fmt.Errorf("country and city must not be empty")
	}

	for _, c := range MeasurementColumns {
		text := cell(c.String())
		v, err := parseCell(text)
		if err != nil {
			return Observation{}, fmt.Errorf("invalid %s value %q: %w", c, text, err)
		}
		obs.SetValue(c, v)
	}

	return obs, nil
}

func parseCell(text string) (float64, error) {
	if text == "" || strings.EqualFold(text, "nan") || strings.EqualFold(text, "na") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(text, ",", ""), 64)
}
