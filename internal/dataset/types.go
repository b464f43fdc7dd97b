package dataset

import (
	"math"
	"sort"
)

// Column identifies one of the six measurement columns subject to cleaning.
type Column int

const (
	ColPM25 Column = iota
	ColPM10
	ColNO2
	ColPM25Cov
	ColPM10Cov
	ColNO2Cov
)

// MeasurementColumns lists the cleanable columns in canonical order.
var MeasurementColumns = []Column{ColPM25, ColPM10, ColNO2, ColPM25Cov, ColPM10Cov, ColNO2Cov}

// NumColumns is the number of measurement columns per observation.
const NumColumns = 6

// String returns the CSV header name for the column.
func (c Column) String() string {
	switch c {
	case ColPM25:
		return "pm25_concentration"
	case ColPM10:
		return "pm10_concentration"
	case ColNO2:
		return "no2_concentration"
	case ColPM25Cov:
		return "pm25_tempcov"
	case ColPM10Cov:
		return "pm10_tempcov"
	case ColNO2Cov:
		return "no2_tempcov"
	default:
		return "unknown"
	}
}

// Observation is a single city-year row of the WHO database.
type Observation struct {
	WHORegion string
	ISO3      string
	Country   string
	City      string
	Year      int

	// Measurement values indexed by Column. NaN marks a missing cell.
	Values [NumColumns]float64
}

// NewObservation creates an observation with all measurement cells missing.
func NewObservation(region, iso3, country, city string, year int) Observation {
	o := Observation{
		WHORegion: region,
		ISO3:      iso3,
		Country:   country,
		City:      city,
		Year:      year,
	}
	for i := range o.Values {
		o.Values[i] = math.NaN()
	}
	return o
}

// Value returns the measurement for the given column.
func (o *Observation) Value(c Column) float64 {
	return o.Values[c]
}

// SetValue sets the measurement for the given column.
func (o *Observation) SetValue(c Column, v float64) {
	o.Values[c] = v
}

// IsMissing reports whether the cell for the given column is missing.
func (o *Observation) IsMissing(c Column) bool {
	return math.IsNaN(o.Values[c])
}

// MissingCount returns how many of the measurement cells are missing.
func (o *Observation) MissingCount() int {
	n := 0
	for _, v := range o.Values {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// CityKey identifies a city within a country. City names repeat across
// countries, so grouping is always done on the pair.
type CityKey struct {
	Country string
	City    string
}

// Dataset holds the full table of observations.
type Dataset struct {
	Rows []Observation
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{}
}

// Append adds an observation to the dataset.
func (d *Dataset) Append(o Observation) {
	d.Rows = append(d.Rows, o)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Rows: make([]Observation, len(d.Rows))}
	copy(out.Rows, d.Rows)
	return out
}

// Sort orders rows by country, city, then year. Cleaning passes that walk a
// city's time series rely on this ordering.
func (d *Dataset) Sort() {
	sort.SliceStable(d.Rows, func(i, j int) bool {
		a, b := d.Rows[i], d.Rows[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.City != b.City {
			return a.City < b.City
		}
		return a.Year < b.Year
	})
}

// CityGroups returns row indices grouped by (country, city), with keys in
// sorted order. Indices within a group follow the dataset's row order.
func (d *Dataset) CityGroups() ([]CityKey, map[CityKey][]int) {
	groups := make(map[CityKey][]int)
	for i, row := range d.Rows {
		key := CityKey{Country: row.Country, City: row.City}
		groups[key] = append(groups[key], i)
	}

	keys := make([]CityKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Country != keys[j].Country {
			return keys[i].Country < keys[j].Country
		}
		return keys[i].City < keys[j].City
	})

	return keys, groups
}

// CountryGroups returns row indices grouped by country, with countries in
// sorted order.
func (d *Dataset) CountryGroups() ([]string, map[string][]int) {
	groups := make(map[string][]int)
	for i, row := range d.Rows {
		groups[row.Country] = append(groups[row.Country], i)
	}

	countries := make([]string, 0, len(groups))
	for country := range groups {
		countries = append(countries, country)
	}
	sort.Strings(countries)

	return countries, groups
}

// MissingCells returns the number of missing measurement cells.
func (d *Dataset) MissingCells() int {
	total := 0
	for i := range d.Rows {
		total += d.Rows[i].MissingCount()
	}
	return total
}

// TotalCells returns the number of measurement cells, missing or not.
func (d *Dataset) TotalCells() int {
	return len(d.Rows) * NumColumns
}

// MissingByColumn returns per-column missing cell counts.
func (d *Dataset) MissingByColumn() map[Column]int {
	counts := make(map[Column]int, NumColumns)
	for _, c := range MeasurementColumns {
		counts[c] = 0
	}
	for i := range d.Rows {
		for _, c := range MeasurementColumns {
			if d.Rows[i].IsMissing(c) {
				counts[c]++
			}
		}
	}
	return counts
}

// CityMissingFraction computes, per city, the fraction of measurement cells
// that are missing across all of the city's rows.
func (d *Dataset) CityMissingFraction() map[CityKey]float64 {
	_, groups := d.CityGroups()
	out := make(map[CityKey]float64, len(groups))
	for key, indices := range groups {
		missing := 0
		for _, i := range indices {
			missing += d.Rows[i].MissingCount()
		}
		out[key] = float64(missing) / float64(len(indices)*NumColumns)
	}
	return out
}

// Years returns the sorted distinct years present in the dataset.
func (d *Dataset) Years() []int {
	seen := make(map[int]bool)
	for i := range d.Rows {
		seen[d.Rows[i].Year] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
