package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApplication(t *testing.T) *Application {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AQ_PATHS_BASE_DIR", dir)
	t.Setenv("AQ_LOGGING_OUTPUT", "file")
	t.Setenv("AQ_LOGGING_FILE_PATH", filepath.Join(dir, "logs", "app.log"))

	app, err := NewApplication()
	require.NoError(t, err)
	return app
}

func TestNewApplication(t *testing.T) {
	app := newTestApplication(t)

	assert.NotNil(t, app.Manager)
	assert.NotNil(t, app.DataService)
	assert.NotNil(t, app.Server)
	assert.Equal(t, app.Paths.BaseDir, app.Config.Paths.BaseDir)
	assert.DirExists(t, app.Paths.ReportsDir)
}

func TestApplication_RouterServesHealth(t *testing.T) {
	app := newTestApplication(t)

	rec := httptest.NewRecorder()
	app.Server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestApplication_Stop(t *testing.T) {
	app := newTestApplication(t)

	// Stopping without a started listener still shuts down cleanly.
	require.NoError(t, app.Stop(context.Background()))
}
