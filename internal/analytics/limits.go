package analytics

import (
	"fmt"
	"math"
	"strings"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// Pollutant identifies one of the three concentration measurements the
// KPIs are computed for.
type Pollutant string

const (
	PollutantPM25 Pollutant = "pm25"
	PollutantPM10 Pollutant = "pm10"
	PollutantNO2  Pollutant = "no2"
)

// Pollutants lists all supported pollutants in display order.
var Pollutants = []Pollutant{PollutantPM25, PollutantPM10, PollutantNO2}

// WHO annual guideline limits in µg/m³ (2021 global air quality guidelines).
const (
	LimitPM25 = 5.0
	LimitPM10 = 15.0
	LimitNO2  = 10.0
)

// ParsePollutant maps a request string to a Pollutant.
func ParsePollutant(s string) (Pollutant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pm25", "pm2.5":
		return PollutantPM25, nil
	case "pm10":
		return PollutantPM10, nil
	case "no2":
		return PollutantNO2, nil
	default:
		return "", apperrors.NewAppValidationError(
			fmt.Sprintf("unknown pollutant %q (want pm25, pm10 or no2)", s))
	}
}

// Column returns the dataset column holding this pollutant's concentrations.
func (p Pollutant) Column() dataset.Column {
	switch p {
	case PollutantPM10:
		return dataset.ColPM10
	case PollutantNO2:
		return dataset.ColNO2
	default:
		return dataset.ColPM25
	}
}

// Label returns the display name used in reports.
func (p Pollutant) Label() string {
	switch p {
	case PollutantPM10:
		return "PM10"
	case PollutantNO2:
		return "NO2"
	default:
		return "PM2.5"
	}
}

// Limit returns the WHO annual guideline for this pollutant.
func (p Pollutant) Limit() float64 {
	switch p {
	case PollutantPM10:
		return LimitPM10
	case PollutantNO2:
		return LimitNO2
	default:
		return LimitPM25
	}
}

// Risk band labels.
const (
	BandSafe     = "Safe"
	BandModerate = "Moderate"
	BandHigh     = "High"
	BandVeryHigh = "Very high"
	BandNA       = "N/A"
)

// RiskBand maps an annual concentration to a qualitative band. The band
// edges follow the WHO interim targets per pollutant: PM2.5 5/15/35,
// PM10 15/30/50, NO2 10/20/40 µg/m³.
func RiskBand(value float64, p Pollutant) string {
	if math.IsNaN(value) {
		return BandNA
	}
	var moderate, high float64
	switch p {
	case PollutantPM10:
		moderate, high = 30, 50
	case PollutantNO2:
		moderate, high = 20, 40
	default:
		moderate, high = 15, 35
	}
	switch {
	case value <= p.Limit():
		return BandSafe
	case value <= moderate:
		return BandModerate
	case value <= high:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// Exceedance band labels for the share of countries above the guideline.
const (
	ExceedLow        = "Low"
	ExceedMixed      = "Mixed"
	ExceedWidespread = "Widespread"
)

// ExceedanceBand maps a percentage of countries above the WHO limit to a
// qualitative band: below 25% is Low, up to 75% Mixed, above that
// Widespread.
func ExceedanceBand(pct float64) string {
	switch {
	case math.IsNaN(pct):
		return BandNA
	case pct < 25:
		return ExceedLow
	case pct <= 75:
		return ExceedMixed
	default:
		return ExceedWidespread
	}
}

// TimesAboveLimit reports how many multiples of the WHO guideline a
// concentration represents.
func TimesAboveLimit(value float64, p Pollutant) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	return value / p.Limit()
}
