package http

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"aqcli/internal/analytics"
	"aqcli/internal/config"
	"aqcli/internal/dataset"
	apperrors "aqcli/internal/errors"
)

// DataService serves queries over the cleaned dataset.
type DataService interface {
	Summary(ctx context.Context) (*analytics.Snapshot, error)
	KPI(ctx context.Context, q analytics.Query) (*analytics.KPISet, error)
	ArtifactPath(filename string) (string, error)
	Invalidate()
}

// dataService loads the processed dataset lazily and caches the
// analytics engine until Invalidate is called after a pipeline run.
type dataService struct {
	paths  *config.Paths
	logger *slog.Logger

	mu     sync.Mutex
	engine *analytics.Engine
}

// NewDataService creates a data service over the configured output paths.
func NewDataService(paths *config.Paths, logger *slog.Logger) DataService {
	return &dataService{
		paths:  paths,
		logger: logger.With(slog.String("component", "data_service")),
	}
}

func (s *dataService) getEngine() (*analytics.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		return s.engine, nil
	}
	if !config.FileExists(s.paths.ProcessedCSV) {
		return nil, apperrors.ErrDatasetNotFound
	}

	ds, err := dataset.ReadCSVFile(s.paths.ProcessedCSV)
	if err != nil {
		return nil, err
	}
	engine, err := analytics.NewEngine(ds, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("loaded processed dataset",
		slog.String("path", s.paths.ProcessedCSV),
		slog.Int("rows", ds.Len()))
	s.engine = engine
	return engine, nil
}

// Invalidate drops the cached engine so the next query reloads the
// processed dataset from disk.
func (s *dataService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = nil
}

func (s *dataService) Summary(ctx context.Context) (*analytics.Snapshot, error) {
	engine, err := s.getEngine()
	if err != nil {
		return nil, err
	}
	return engine.Snapshot()
}

func (s *dataService) KPI(ctx context.Context, q analytics.Query) (*analytics.KPISet, error) {
	engine, err := s.getEngine()
	if err != nil {
		return nil, err
	}
	return engine.Compute(q)
}

// ArtifactPath maps a requested filename to the configured artifact
// path. Anything outside the known artifact set is rejected.
func (s *dataService) ArtifactPath(filename string) (string, error) {
	artifacts := map[string]string{
		filepath.Base(s.paths.ProcessedCSV):        s.paths.ProcessedCSV,
		filepath.Base(s.paths.CleaningSummaryCSV):  s.paths.CleaningSummaryCSV,
		filepath.Base(s.paths.MissingnessJSON):     s.paths.MissingnessJSON,
		filepath.Base(s.paths.KPISnapshotJSON):     s.paths.KPISnapshotJSON,
	}

	path, ok := artifacts[filename]
	if !ok {
		return "", apperrors.ErrValidation("filename", "unknown artifact: "+filename)
	}
	if !config.FileExists(path) {
		return "", apperrors.NotFoundError("artifact " + filename)
	}
	return path, nil
}

// ServeArtifact writes the named artifact to the response.
func ServeArtifact(w http.ResponseWriter, r *http.Request, path string) {
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}
