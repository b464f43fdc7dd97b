package cleaning

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// DefaultNeighbors is the default k for the KNN pass.
const DefaultNeighbors = 5

// KNNFill imputes the cells still missing after the regional pass using
// k-nearest-neighbor means over the six measurement columns. Distances are
// NaN-aware Euclidean: squared differences over the dimensions both rows
// observe, scaled up by the fraction of dimensions used, matching the usual
// treatment of partially observed vectors. Neighbors are drawn from the
// values observed before the pass. Cells in columns where no neighbor has an
// observed value fall back to the column mean of observed values.
func KNNFill(ds *dataset.Dataset, k int) (*dataset.Dataset, *FillReport, error) {
	if k < 1 {
		return nil, nil, apperrors.NewAppValidationError("neighbor count must be at least 1")
	}

	out := ds.Clone()
	report := newFillReport()

	// Snapshot of the observed values; fills never become neighbor input.
	snapshot := make([][dataset.NumColumns]float64, len(out.Rows))
	for i := range out.Rows {
		snapshot[i] = out.Rows[i].Values
	}

	columnMeans := computeColumnMeans(snapshot)

	for i := range out.Rows {
		row := &out.Rows[i]
		if row.MissingCount() == 0 {
			continue
		}

		neighbors := nearestNeighbors(snapshot, i)

		for _, c := range dataset.MeasurementColumns {
			if !row.IsMissing(c) {
				continue
			}

			if v, ok := neighborMean(snapshot, neighbors, c, k); ok {
				row.SetValue(c, v)
				report.record(c)
				continue
			}

			// Degenerate case: no neighbor observes this column.
			if mean, ok := columnMeans[c]; ok {
				row.SetValue(c, mean)
				report.record(c)
			}
		}
	}

	slog.Info("knn fill complete",
		slog.Int("neighbors", k),
		slog.Int("cells_filled", report.CellsFilled))

	return out, report, nil
}

type neighbor struct {
	index    int
	distance float64
}

// nearestNeighbors returns all comparable rows sorted by distance to the
// target row. Rows sharing no observed dimension with the target are not
// comparable and are omitted.
func nearestNeighbors(snapshot [][dataset.NumColumns]float64, target int) []neighbor {
	neighbors := make([]neighbor, 0, len(snapshot)-1)
	for j := range snapshot {
		if j == target {
			continue
		}
		d, ok := nanEuclidean(snapshot[target], snapshot[j])
		if !ok {
			continue
		}
		neighbors = append(neighbors, neighbor{index: j, distance: d})
	}

	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].distance < neighbors[b].distance
	})
	return neighbors
}

// nanEuclidean computes the Euclidean distance over mutually observed
// dimensions, scaled by sqrt(total/observed) so rows with few shared
// dimensions are not artificially close. Returns false when the rows share
// no observed dimension.
func nanEuclidean(a, b [dataset.NumColumns]float64) (float64, bool) {
	sum := 0.0
	observed := 0
	for i := 0; i < dataset.NumColumns; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		diff := a[i] - b[i]
		sum += diff * diff
		observed++
	}
	if observed == 0 {
		return 0, false
	}
	return math.Sqrt(sum * float64(dataset.NumColumns) / float64(observed)), true
}

// neighborMean averages the column over the k nearest neighbors that observe
// it. Neighbors missing the column are skipped, not counted toward k.
func neighborMean(snapshot [][dataset.NumColumns]float64, neighbors []neighbor, c dataset.Column, k int) (float64, bool) {
	values := make([]float64, 0, k)
	for _, n := range neighbors {
		v := snapshot[n.index][c]
		if math.IsNaN(v) {
			continue
		}
		values = append(values, v)
		if len(values) == k {
			break
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return stat.Mean(values, nil), true
}

// computeColumnMeans returns the mean of observed values per column. Columns
// with no observed value anywhere have no entry.
func computeColumnMeans(snapshot [][dataset.NumColumns]float64) map[dataset.Column]float64 {
	means := make(map[dataset.Column]float64, dataset.NumColumns)
	for _, c := range dataset.MeasurementColumns {
		var values []float64
		for i := range snapshot {
			if !math.IsNaN(snapshot[i][c]) {
				values = append(values, snapshot[i][c])
			}
		}
		if len(values) > 0 {
			means[c] = stat.Mean(values, nil)
		}
	}
	return means
}
