package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "aqcli/internal/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 0.70, cfg.Pipeline.MissingnessThreshold)
	assert.Equal(t, 5, cfg.Pipeline.Neighbors)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default is valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = -1 },
			wantErr: "invalid server port",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Pipeline.MissingnessThreshold = 1.5 },
			wantErr: "missingness threshold",
		},
		{
			name:    "zero neighbors",
			mutate:  func(c *Config) { c.Pipeline.Neighbors = 0 },
			wantErr: "neighbors must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadInvalidConfigReportsConfigError(t *testing.T) {
	t.Setenv("AQ_PIPELINE_NEIGHBORS", "0")

	_, err := Load()
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrTypeConfig, appErr.Type)
}

func TestConfigValidateNormalizesLogging(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "text"
	cfg.Logging.Output = "syslog"
	cfg.Logging.FilePath = ""

	require.NoError(t, cfg.validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "both", cfg.Logging.Output)
	assert.Equal(t, "logs/app.log", cfg.Logging.FilePath)
}

func TestMergeConfigs(t *testing.T) {
	fileCfg := *Default()
	fileCfg.Server.Port = 9090
	fileCfg.Pipeline.Neighbors = 7

	var envCfg Config // zero values everywhere
	merged := mergeConfigs(fileCfg, envCfg)

	assert.Equal(t, 9090, merged.Server.Port)
	assert.Equal(t, 7, merged.Pipeline.Neighbors)

	// env values win when set
	envCfg.Server.Port = 7070
	merged = mergeConfigs(fileCfg, envCfg)
	assert.Equal(t, 7070, merged.Server.Port)
}
