package analytics

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/go-playground/validator/v10"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// Query scopes a KPI computation. An empty Years slice means all years;
// an empty or "Global" Region means no region filter.
type Query struct {
	Pollutant string `json:"pollutant" validate:"required,oneof=pm25 pm2.5 pm10 no2"`
	Years     []int  `json:"years,omitempty" validate:"omitempty,dive,gte=1900,lte=2100"`
	Region    string `json:"region,omitempty" validate:"omitempty,max=64"`
}

// Performer identifies the country holding an extreme concentration.
type Performer struct {
	ISO3    string  `json:"iso3"`
	Country string  `json:"country"`
	Value   float64 `json:"value"`
	Year    int     `json:"year"`
	Band    string  `json:"band"`
}

// KPISet is the full set of dashboard metrics for one pollutant scope.
type KPISet struct {
	Pollutant     string     `json:"pollutant"`
	Label         string     `json:"label"`
	Region        string     `json:"region"`
	Years         []int      `json:"years,omitempty"`
	Limit         float64    `json:"who_limit"`
	Rows          int        `json:"rows"`
	AnnualMedian  float64    `json:"annual_median"`
	MedianBand    string     `json:"median_band"`
	TimesAbove    float64    `json:"times_above_limit"`
	PctExceeding  float64    `json:"pct_exceeding"`
	ExceedBand    string     `json:"exceedance_band"`
	Worst         *Performer `json:"worst_performer,omitempty"`
	Best          *Performer `json:"best_performer,omitempty"`
	MaxObserved   float64    `json:"max_observed"`
	MaxBand       string     `json:"max_band"`
	MinObserved   float64    `json:"min_observed"`
	MinBand       string     `json:"min_band"`
	CountryCount  int        `json:"country_count"`
}

// Engine computes KPIs over a cleaned dataset. The dataset is loaded
// once into a dataframe; queries filter and aggregate views of it.
type Engine struct {
	df       dataframe.DataFrame
	validate *validator.Validate
	logger   *slog.Logger
}

// NewEngine builds an engine over the given dataset.
func NewEngine(ds *dataset.Dataset, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ds == nil || ds.Len() == 0 {
		return nil, apperrors.NewAppValidationError("dataset is empty")
	}

	types := map[string]series.Type{"year": series.Int}
	for _, c := range dataset.MeasurementColumns {
		types[c.String()] = series.Float
	}
	// gota takes the first record as the column names.
	records := append([][]string{dataset.Header()}, ds.Records()...)
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(types),
	)
	if df.Err != nil {
		return nil, apperrors.NewParsingError("failed to load dataset into dataframe", df.Err)
	}

	return &Engine{
		df:       df,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "analytics")),
	}, nil
}

// Rows returns the number of observations the engine was built over.
func (e *Engine) Rows() int {
	return e.df.Nrow()
}

// Years returns the distinct years present, ascending.
func (e *Engine) Years() []int {
	seen := make(map[int]bool)
	for _, v := range e.df.Col("year").Records() {
		var y int
		if _, err := fmt.Sscanf(v, "%d", &y); err == nil {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Regions returns the distinct WHO regions present, sorted.
func (e *Engine) Regions() []string {
	seen := make(map[string]bool)
	for _, r := range e.df.Col("who_region").Records() {
		if r != "" {
			seen[r] = true
		}
	}
	regions := make([]string, 0, len(seen))
	for r := range seen {
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// Compute evaluates the KPI set for one query. It returns a not-found
// error when the scope selects no rows or no observed values.
func (e *Engine) Compute(q Query) (*KPISet, error) {
	if err := e.validate.Struct(q); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation, "invalid KPI query", err)
	}
	pollutant, err := ParsePollutant(q.Pollutant)
	if err != nil {
		return nil, err
	}

	dff := e.scope(q)
	if dff.Err != nil {
		return nil, apperrors.NewParsingError("failed to filter dataset", dff.Err)
	}
	if dff.Nrow() == 0 {
		return nil, apperrors.NewNotFoundError("observations for " + scopeDescription(q))
	}

	col := pollutant.Column().String()
	vals := dff.Col(col).Float()

	median := nanMedian(vals)
	if math.IsNaN(median) {
		return nil, apperrors.NewNotFoundError("observed values for " + scopeDescription(q))
	}

	pctExceed, countries := e.pctExceeding(dff, col, pollutant.Limit())

	idxMax, idxMin := argExtremes(vals)
	worst := e.performerAt(dff, pollutant, idxMax)
	best := e.performerAt(dff, pollutant, idxMin)

	kpi := &KPISet{
		Pollutant:    string(pollutant),
		Label:        pollutant.Label(),
		Region:       regionOrGlobal(q.Region),
		Years:        q.Years,
		Limit:        pollutant.Limit(),
		Rows:         dff.Nrow(),
		AnnualMedian: median,
		MedianBand:   RiskBand(median, pollutant),
		TimesAbove:   TimesAboveLimit(median, pollutant),
		PctExceeding: pctExceed,
		ExceedBand:   ExceedanceBand(pctExceed),
		Worst:        worst,
		Best:         best,
		MaxObserved:  worst.Value,
		MaxBand:      worst.Band,
		MinObserved:  best.Value,
		MinBand:      best.Band,
		CountryCount: countries,
	}

	e.logger.Debug("computed KPI set",
		slog.String("pollutant", string(pollutant)),
		slog.String("region", kpi.Region),
		slog.Int("rows", kpi.Rows),
		slog.Float64("annual_median", median))
	return kpi, nil
}

// scope applies the query's year and region filters.
func (e *Engine) scope(q Query) dataframe.DataFrame {
	dff := e.df
	if q.Region != "" && q.Region != "Global" {
		dff = dff.Filter(dataframe.F{
			Colname:    "who_region",
			Comparator: series.Eq,
			Comparando: q.Region,
		})
	}
	if len(q.Years) > 0 {
		dff = dff.Filter(dataframe.F{
			Colname:    "year",
			Comparator: series.In,
			Comparando: q.Years,
		})
	}
	return dff
}

// pctExceeding aggregates per-country medians over the scoped rows and
// reports the percentage of countries whose median exceeds the limit,
// plus the number of countries with any observed value.
func (e *Engine) pctExceeding(dff dataframe.DataFrame, col string, limit float64) (float64, int) {
	groups := dff.GroupBy("country_name")
	if groups.Err != nil {
		return math.NaN(), 0
	}
	var total, above int
	for _, g := range groups.GetGroups() {
		med := nanMedian(g.Col(col).Float())
		if math.IsNaN(med) {
			continue
		}
		total++
		if med > limit {
			above++
		}
	}
	if total == 0 {
		return math.NaN(), 0
	}
	return 100 * float64(above) / float64(total), total
}

// performerAt builds the performer record for the row at idx, or nil
// when no observed value exists.
func (e *Engine) performerAt(dff dataframe.DataFrame, p Pollutant, idx int) *Performer {
	if idx < 0 {
		return nil
	}
	value := dff.Col(p.Column().String()).Elem(idx).Float()
	year, _ := dff.Col("year").Elem(idx).Int()
	return &Performer{
		ISO3:    dff.Col("iso3").Elem(idx).String(),
		Country: dff.Col("country_name").Elem(idx).String(),
		Value:   value,
		Year:    year,
		Band:    RiskBand(value, p),
	}
}

// argExtremes returns the indices of the largest and smallest observed
// values, or -1 when every value is missing.
func argExtremes(vals []float64) (idxMax, idxMin int) {
	idxMax, idxMin = -1, -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if idxMax < 0 || v > vals[idxMax] {
			idxMax = i
		}
		if idxMin < 0 || v < vals[idxMin] {
			idxMin = i
		}
	}
	return idxMax, idxMin
}

// nanMedian computes the median of the observed values, NaN when none.
func nanMedian(vals []float64) float64 {
	observed := make([]float64, 0, len(vals))
	for _, v := range vals {
		if !math.IsNaN(v) {
			observed = append(observed, v)
		}
	}
	if len(observed) == 0 {
		return math.NaN()
	}
	sort.Float64s(observed)
	n := len(observed)
	if n%2 == 1 {
		return observed[n/2]
	}
	return (observed[n/2-1] + observed[n/2]) / 2
}

func regionOrGlobal(region string) string {
	if region == "" {
		return "Global"
	}
	return region
}

func scopeDescription(q Query) string {
	return fmt.Sprintf("%s/%s", q.Pollutant, regionOrGlobal(q.Region))
}
