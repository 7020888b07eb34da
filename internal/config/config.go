// Package config holds the application settings, read by viper from
// defaults, an optional YAML file, RNADIFF_* environment variables and
// command line flags.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"rnadiff/domain/expression"
	"rnadiff/domain/search"
	"rnadiff/internal/errors"
)

// EnvPrefix is prepended to every environment variable, e.g.
// RNADIFF_ANALYSIS_WORKERS
const EnvPrefix = "RNADIFF"

// Config represents the complete application configuration
type Config struct {
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Search   SearchConfig   `mapstructure:"search"`
	Store    StoreConfig    `mapstructure:"store"`
	Server   ServerConfig   `mapstructure:"server"`
	Output   OutputConfig   `mapstructure:"output"`
	Log      LogConfig      `mapstructure:"log"`
}

// AnalysisConfig holds the differential expression settings
type AnalysisConfig struct {
	// number of goroutines fitting genes; results do not depend on it
	Workers     int     `mapstructure:"workers"`
	Test        string  `mapstructure:"test"`
	MinBaseMean float64 `mapstructure:"min_base_mean"`
	CooksCutoff bool    `mapstructure:"cooks_cutoff"`
	FDRMethod   string  `mapstructure:"fdr_method"`
	Alpha       float64 `mapstructure:"alpha"`
	MaxIter     int     `mapstructure:"max_iterations"`
	Tolerance   float64 `mapstructure:"tolerance"`
	TopGenes    int     `mapstructure:"top_genes"`
	// ratio (median of ratios), total (library totals) or none
	SizeFactors string `mapstructure:"size_factors"`

	// choose a base-mean threshold that maximises rejections
	IndependentFilter bool `mapstructure:"independent_filter"`
}

// SearchConfig holds the remote similarity search settings
type SearchConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	BaseURL             string        `mapstructure:"base_url"`
	Database            string        `mapstructure:"database"`
	Program             string        `mapstructure:"program"`
	HitListSize         int           `mapstructure:"hitlist_size"`
	Expect              float64       `mapstructure:"expect"`
	LowComplexityFilter bool          `mapstructure:"low_complexity_filter"`
	Timeout             time.Duration `mapstructure:"timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	RequestTimeout      time.Duration `mapstructure:"request_timeout"`
	Email               string        `mapstructure:"email"`
	// FASTA file holding the query sequences, looked up by gene ID
	Sequences string `mapstructure:"sequences"`
}

// StoreConfig selects the run database
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"`
	DSN     string `mapstructure:"dsn"`
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// OutputConfig selects the files written by an analysis
type OutputConfig struct {
	Dir  string `mapstructure:"dir"`
	XLSX bool   `mapstructure:"xlsx"`
	HTML bool   `mapstructure:"html"`
	// Plot is the volcano plot format (png, svg, pdf) or empty for none
	Plot string `mapstructure:"plot"`
}

// LogConfig holds the log level
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("analysis.workers", runtime.NumCPU())
	v.SetDefault("analysis.test", string(expression.TestWald))
	v.SetDefault("analysis.min_base_mean", 0.0)
	v.SetDefault("analysis.cooks_cutoff", true)
	v.SetDefault("analysis.fdr_method", "bh")
	v.SetDefault("analysis.alpha", 0.05)
	v.SetDefault("analysis.independent_filter", false)
	v.SetDefault("analysis.max_iterations", 100)
	v.SetDefault("analysis.tolerance", 1e-8)
	v.SetDefault("analysis.top_genes", 20)
	v.SetDefault("analysis.size_factors", "ratio")

	params := search.DefaultParams()
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.base_url", "https://blast.ncbi.nlm.nih.gov/Blast.cgi")
	v.SetDefault("search.database", params.Database)
	v.SetDefault("search.program", params.Program)
	v.SetDefault("search.hitlist_size", params.HitListSize)
	v.SetDefault("search.expect", params.Expect)
	v.SetDefault("search.low_complexity_filter", params.LowComplexityFilter)
	v.SetDefault("search.timeout", 10*time.Minute)
	v.SetDefault("search.poll_interval", 10*time.Second)
	v.SetDefault("search.request_timeout", 60*time.Second)
	v.SetDefault("search.email", "")
	v.SetDefault("search.sequences", "")

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.driver", "sqlite3")
	v.SetDefault("store.dsn", "rnadiff.db")

	v.SetDefault("server.port", "8080")

	v.SetDefault("output.dir", "results")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.html", true)
	v.SetDefault("output.plot", "png")

	v.SetDefault("log.level", "INFO")
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file into v, decodes and validates it
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to read %s: %w", configFile, err))
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("unable to decode config: %w", err))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects settings no stage can run with
func (c *Config) Validate() error {
	if c.Analysis.Workers < 1 {
		return errors.ConfigInvalid("analysis.workers must be at least 1")
	}
	switch expression.TestKind(c.Analysis.Test) {
	case expression.TestWald, expression.TestLRT:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("analysis.test %q is not wald or lrt", c.Analysis.Test))
	}
	if c.Analysis.MinBaseMean < 0 {
		return errors.ConfigInvalid("analysis.min_base_mean cannot be negative")
	}
	if !(c.Analysis.Alpha > 0 && c.Analysis.Alpha < 1) {
		return errors.ConfigInvalid("analysis.alpha must be in (0, 1)")
	}
	switch c.Analysis.SizeFactors {
	case "ratio", "total", "none":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("analysis.size_factors %q is not ratio, total or none", c.Analysis.SizeFactors))
	}
	if c.Analysis.MaxIter < 1 || !(c.Analysis.Tolerance > 0) {
		return errors.ConfigInvalid("analysis.max_iterations and analysis.tolerance must be positive")
	}

	if c.Search.Enabled {
		if err := c.SearchParams().Validate(); err != nil {
			return errors.WithCode(errors.CodeConfigInvalid, err)
		}
		if c.Search.Timeout <= 0 || c.Search.PollInterval <= 0 {
			return errors.ConfigInvalid("search.timeout and search.poll_interval must be positive")
		}
		if c.Search.BaseURL == "" {
			return errors.ConfigInvalid("search.base_url is required")
		}
	}

	if c.Store.Enabled {
		switch c.Store.Driver {
		case "sqlite3", "postgres":
		default:
			return errors.ConfigInvalid(fmt.Sprintf("store.driver %q is not sqlite3 or postgres", c.Store.Driver))
		}
		if c.Store.DSN == "" {
			return errors.ConfigInvalid("store.dsn is required")
		}
	}

	switch c.Output.Plot {
	case "", "png", "svg", "pdf":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("output.plot %q is not png, svg or pdf", c.Output.Plot))
	}
	return nil
}

// SearchParams converts the search section to request parameters
func (c *Config) SearchParams() search.Params {
	return search.Params{
		Database:            c.Search.Database,
		Program:             c.Search.Program,
		HitListSize:         c.Search.HitListSize,
		Expect:              c.Search.Expect,
		LowComplexityFilter: c.Search.LowComplexityFilter,
	}
}
