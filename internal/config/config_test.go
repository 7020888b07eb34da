package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rnadiff/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "wald", c.Analysis.Test)
	assert.Equal(t, 0.05, c.Analysis.Alpha)
	assert.True(t, c.Analysis.CooksCutoff)
	assert.Equal(t, "ratio", c.Analysis.SizeFactors)
	assert.Equal(t, 10*time.Minute, c.Search.Timeout)
	assert.Equal(t, "sqlite3", c.Store.Driver)
	assert.Equal(t, "blastn", c.SearchParams().Program)
	assert.Equal(t, 50, c.SearchParams().HitListSize)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rnadiff.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analysis:
  test: lrt
  min_base_mean: 5
search:
  program: megablast
  timeout: 2m
store:
  driver: postgres
  dsn: postgres://localhost/rnadiff
`), 0o644))
	t.Setenv("RNADIFF_ANALYSIS_WORKERS", "3")
	t.Setenv("RNADIFF_SERVER_PORT", "9090")

	c, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "lrt", c.Analysis.Test)
	assert.Equal(t, 5.0, c.Analysis.MinBaseMean)
	assert.Equal(t, 3, c.Analysis.Workers)
	assert.Equal(t, "megablast", c.Search.Program)
	assert.Equal(t, 2*time.Minute, c.Search.Timeout)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "9090", c.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"workers", func(c *Config) { c.Analysis.Workers = 0 }},
		{"test", func(c *Config) { c.Analysis.Test = "score" }},
		{"alpha", func(c *Config) { c.Analysis.Alpha = 1 }},
		{"min mean", func(c *Config) { c.Analysis.MinBaseMean = -1 }},
		{"size factors", func(c *Config) { c.Analysis.SizeFactors = "upper-quartile" }},
		{"program", func(c *Config) { c.Search.Program = "psiblast" }},
		{"timeout", func(c *Config) { c.Search.Timeout = 0 }},
		{"driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"plot", func(c *Config) { c.Output.Plot = "gif" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(New(), "")
			require.NoError(t, err)
			tt.mutate(c)
			err = c.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)
	c.Search.Enabled = false
	c.Search.Program = ""
	c.Store.Enabled = false
	c.Store.Driver = ""
	assert.NoError(t, c.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
