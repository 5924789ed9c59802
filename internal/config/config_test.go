package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "automl", cfg.Database.Database)
	assert.Equal(t, 0.2, cfg.Pipeline.DefaultTestSize)
	assert.Equal(t, 5, cfg.Pipeline.CrossValidationFolds)
	assert.Equal(t, 3, cfg.Pipeline.IterationRounds)
	assert.False(t, cfg.Oracle.Enabled)
	assert.True(t, cfg.Monitoring.Enabled)
}

func TestLoadFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server:\n  port: 9999\npipeline:\n  iteration_rounds: 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Pipeline.IterationRounds)
	// untouched keys keep their defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Pipeline.DefaultTestSize = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pipeline.DefaultTestSize = 0.6
	cfg.Pipeline.DefaultValidationSize = 0.5
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Pipeline.CrossValidationFolds = 1
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Oracle.Enabled = true
	assert.Error(t, cfg.Validate(), "enabled oracle needs an endpoint")
	cfg.Oracle.Endpoint = "http://localhost:9000"
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, Username: "u", Password: "p",
		Database: "automl", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=automl sslmode=disable", c.DSN())
}
