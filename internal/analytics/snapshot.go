package analytics

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// Snapshot is the global KPI summary written alongside the cleaned
// dataset. It covers every pollutant over the full year range with no
// region filter.
type Snapshot struct {
	GeneratedAt time.Time `json:"generated_at"`
	Rows        int       `json:"rows"`
	Years       []int     `json:"years"`
	Regions     []string  `json:"regions"`
	Pollutants  []KPISet  `json:"pollutants"`
}

// Snapshot computes the global snapshot. Pollutants with no observed
// values are omitted rather than failing the whole snapshot.
func (e *Engine) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{
		GeneratedAt: time.Now().UTC(),
		Rows:        e.Rows(),
		Years:       e.Years(),
		Regions:     e.Regions(),
	}
	for _, p := range Pollutants {
		kpi, err := e.Compute(Query{Pollutant: string(p)})
		if err != nil {
			var appErr *apperrors.AppError
			if errors.As(err, &appErr) && appErr.Type == apperrors.ErrTypeNotFound {
				e.logger.Warn("skipping pollutant with no observed values",
					slog.String("pollutant", string(p)))
				continue
			}
			return nil, err
		}
		snap.Pollutants = append(snap.Pollutants, *kpi)
	}
	return snap, nil
}

// WriteSnapshotFile computes the global KPI snapshot for ds and writes
// it as indented JSON to path.
func WriteSnapshotFile(path string, ds *dataset.Dataset, logger *slog.Logger) error {
	engine, err := NewEngine(ds, logger)
	if err != nil {
		return err
	}
	snap, err := engine.Snapshot()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to encode kpi snapshot", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create reports directory", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewStorageError("failed to write kpi snapshot", err)
	}
	return nil
}
