package operations

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aqcli/internal/cleaning"
	"aqcli/internal/config"
	"aqcli/internal/dataset"
	"aqcli/internal/exporter"
)

func writeInputCSV(t *testing.T) string {
	t.Helper()

	lines := []string{
		"who_region,iso3,country_name,city,year,pm25_concentration,pm10_concentration,no2_concentration,pm25_tempcov,pm10_tempcov,no2_tempcov",
		"4_Eur,ESP,Spain,Madrid,2017,10,20,30,95,95,95",
		"4_Eur,ESP,Spain,Madrid,2018,,22,32,95,95,95",
		"4_Eur,ESP,Spain,Madrid,2019,14,24,,95,95,95",
		"4_Eur,ESP,Spain,Barcelona,2018,12,21,31,90,90,90",
		"4_Eur,ESP,Spain,Barcelona,2019,13,,33,90,90,90",
		// Nice is almost entirely missing and gets dropped.
		"4_Eur,FRA,France,Nice,2018,,,,,,",
		"4_Eur,FRA,France,Nice,2019,,,,,,",
	}

	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644))
	return path
}

func newPipelineManager(t *testing.T) (*Manager, *config.Paths) {
	t.Helper()

	paths, err := config.GetPaths(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, paths.EnsureDirectories())

	registry := NewRegistry()
	require.NoError(t, RegisterPipelineSteps(registry, exporter.NewWriter(paths), testLogger()))
	require.NoError(t, registry.ValidateDependencies())

	return NewManager(registry, testLogger(), time.Minute), paths
}

func TestPipelineSteps_FullRun(t *testing.T) {
	m, paths := newPipelineManager(t)

	state, err := m.Execute(context.Background(), Request{
		InputPath: writeInputCSV(t),
		Threshold: 0.70,
		Neighbors: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, OperationStatusCompleted, state.Status)

	for _, id := range []string{StepIDLoad, StepIDFilter, StepIDTemporal, StepIDRegional, StepIDKNN, StepIDExport} {
		step := state.GetStep(id)
		require.NotNil(t, step, "step %s", id)
		assert.Equal(t, StepStatusCompleted, step.Status, "step %s", id)
	}

	// Dropped city metadata from the filter pass.
	assert.Equal(t, 1, state.GetStep(StepIDFilter).Metadata["cities_dropped"])

	// The exported file is complete and fully imputed.
	ds, err := dataset.ReadCSVFile(paths.ProcessedCSV)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, 0, ds.MissingCells())
	for i := range ds.Rows {
		assert.NotEqual(t, "Nice", ds.Rows[i].City)
	}

	assert.FileExists(t, paths.CleaningSummaryCSV)
	assert.FileExists(t, paths.MissingnessJSON)
	assert.FileExists(t, paths.KPISnapshotJSON)
}

func TestPipelineSteps_PartialRunExports(t *testing.T) {
	m, paths := newPipelineManager(t)

	state, err := m.Execute(context.Background(), Request{
		InputPath: writeInputCSV(t),
		Steps:     []string{StepIDLoad, StepIDFilter, StepIDExport},
	})
	require.NoError(t, err)
	assert.Equal(t, OperationStatusCompleted, state.Status)

	// Skipped passes have no step state and count zero cells filled.
	assert.Nil(t, state.GetStep(StepIDTemporal))
	v, ok := state.GetContext(ContextKeyReport)
	require.True(t, ok)
	report := v.(*cleaning.Report)
	assert.Equal(t, 0, report.CellsFilled())
	assert.Nil(t, report.Temporal)

	// The export still writes every artifact; the unfilled cells remain.
	ds, err := dataset.ReadCSVFile(paths.ProcessedCSV)
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())
	assert.Greater(t, ds.MissingCells(), 0)

	assert.FileExists(t, paths.CleaningSummaryCSV)
	assert.FileExists(t, paths.MissingnessJSON)
	assert.FileExists(t, paths.KPISnapshotJSON)
}

func TestPipelineSteps_MissingInputFails(t *testing.T) {
	m, _ := newPipelineManager(t)

	state, err := m.Execute(context.Background(), Request{
		InputPath: filepath.Join(t.TempDir(), "absent.csv"),
	})
	require.Error(t, err)
	assert.Equal(t, OperationStatusFailed, state.Status)
	assert.Equal(t, StepStatusFailed, state.GetStep(StepIDLoad).Status)
}

func TestPipelineSteps_NilLoggerDefaults(t *testing.T) {
	assert.NotNil(t, NewLoadStep(nil).logger)
	assert.NotNil(t, NewExportStep(nil, nil).logger)
}

func TestPipelineSteps_ValidateWithoutInputPath(t *testing.T) {
	step := NewLoadStep(testLogger())
	state := NewOperationState("op")

	assert.Error(t, step.Validate(state))

	state.SetContext(ContextKeyInputPath, "")
	assert.Error(t, step.Validate(state))

	state.SetContext(ContextKeyInputPath, "data.csv")
	assert.NoError(t, step.Validate(state))
}

func TestPipelineSteps_FilterWithoutDatasetFails(t *testing.T) {
	step := NewFilterStep()
	state := NewOperationState("op")
	state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))

	err := step.Execute(context.Background(), state)
	require.Error(t, err)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, ErrorTypeValidation, opErr.Type)
}

func TestPipelineSteps_XLSXInput(t *testing.T) {
	// The load step routes .xlsx inputs through the workbook reader; a
	// missing file surfaces the storage error.
	step := NewLoadStep(testLogger())
	state := NewOperationState("op")
	state.SetStep(step.ID(), NewStepState(step.ID(), step.Name()))
	state.SetContext(ContextKeyInputPath, filepath.Join(t.TempDir(), "absent.xlsx"))

	err := step.Execute(context.Background(), state)
	assert.Error(t, err)
}
