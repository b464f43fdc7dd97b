package dataset

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "aqcli/internal/errors"
)

// ReadXLSXFile reads a dataset from a WHO ambient air quality Excel export.
// The database sheet is located by name first, then by probing headers, since
// WHO releases have renamed it between versions.
func ReadXLSXFile(path string) (*Dataset, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to open %s", path), err)
	}
	defer f.Close()

	rows, sheetName, err := findDataSheet(f)
	if err != nil {
		return nil, err
	}

	slog.Info("found air quality data sheet",
		slog.String("sheet_name", sheetName),
		slog.Int("total_rows", len(rows)))

	headerRow, columnMap := findHeaderRow(rows)
	if headerRow == -1 {
		return nil, apperrors.NewParsingError("could not find header row in air quality sheet", nil)
	}

	required := []string{headerCountry, headerCity, headerYear}
	for _, name := range required {
		if _, ok := columnMap[name]; !ok {
			return nil, apperrors.NewParsingError(fmt.Sprintf("missing required column: %s", name), nil)
		}
	}

	ds := New()
	skipped := 0
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		if isEmptyRow(row, columnMap) {
			continue
		}

		obs, err := parseRecord(row, columnMap)
		if err != nil {
			// WHO sheets carry footnote rows after the data. Skip rows that
			// do not parse rather than failing the whole load.
			skipped++
			continue
		}
		ds.Append(obs)
	}

	if skipped > 0 {
		slog.Warn("skipped unparseable rows", slog.Int("count", skipped))
	}
	slog.Info("excel load complete", slog.Int("rows", ds.Len()))

	return ds, nil
}

// findDataSheet locates the sheet holding the measurement table.
func findDataSheet(f *excelize.File) ([][]string, string, error) {
	possibleNames := []string{"AAP_2024_city_v9", "Update 2024", "AAP_2022_city_v9", "Update 2022", "data", "Data"}

	for _, name := range possibleNames {
		if rows, err := f.GetRows(name); err == nil && len(rows) > 1 {
			return rows, name, nil
		}
	}

	// Probe every sheet for the identity columns.
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil || len(rows) < 2 {
			continue
		}
		limit := len(rows)
		if limit > 10 {
			limit = 10
		}
		for _, row := range rows[:limit] {
			rowText := strings.ToLower(strings.Join(row, " "))
			if strings.Contains(rowText, "city") && strings.Contains(rowText, "year") &&
				(strings.Contains(rowText, "pm25") || strings.Contains(rowText, "pm2.5")) {
				return rows, name, nil
			}
		}
	}

	return nil, "", apperrors.NewParsingError("could not find air quality data sheet in file", nil)
}

// findHeaderRow locates the header row and maps canonical column names to
// their positions. WHO spellings vary between releases, so matching is fuzzy.
func findHeaderRow(rows [][]string) (int, map[string]int) {
	limit := len(rows)
	if limit > 20 {
		limit = 20
	}

	for i := 0; i < limit; i++ {
		row := rows[i]
		if len(row) < 5 {
			continue
		}

		rowText := strings.ToLower(strings.Join(row, " "))
		if !strings.Contains(rowText, "city") || !strings.Contains(rowText, "year") {
			continue
		}

		columnMap := make(map[string]int)
		for j, header := range row {
			h := strings.ToLower(strings.TrimSpace(header))
			switch {
			case h == headerRegion || strings.Contains(h, "who region"):
				columnMap[headerRegion] = j
			case h == headerISO3 || h == "iso 3" || strings.Contains(h, "iso3"):
				columnMap[headerISO3] = j
			case strings.Contains(h, "country"):
				columnMap[headerCountry] = j
			case h == headerCity || strings.Contains(h, "city or locality") || strings.Contains(h, "city/town"):
				columnMap[headerCity] = j
			case h == headerYear || h == "measurement year":
				columnMap[headerYear] = j
			case matchesMeasurement(h, "pm25", "pm2.5") && strings.Contains(h, "cov"):
				columnMap[ColPM25Cov.String()] = j
			case matchesMeasurement(h, "pm10") && strings.Contains(h, "cov"):
				columnMap[ColPM10Cov.String()] = j
			case matchesMeasurement(h, "no2") && strings.Contains(h, "cov"):
				columnMap[ColNO2Cov.String()] = j
			case matchesMeasurement(h, "pm25", "pm2.5"):
				columnMap[ColPM25.String()] = j
			case matchesMeasurement(h, "pm10"):
				columnMap[ColPM10.String()] = j
			case matchesMeasurement(h, "no2"):
				columnMap[ColNO2.String()] = j
			}
		}

		if len(columnMap) >= 5 {
			return i, columnMap
		}
	}

	return -1, nil
}

func matchesMeasurement(header string, names ...string) bool {
	for _, name := range names {
		if strings.Contains(header, name) {
			return true
		}
	}
	return false
}

func isEmptyRow(row []string, columnMap map[string]int) bool {
	for _, idx := range columnMap {
		if idx < len(row) && strings.TrimSpace(row[idx]) != "" {
			return false
		}
	}
	return true
}
