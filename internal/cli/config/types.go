// Package config provides configuration management for the duckstress CLI.
//
// Configuration is layered with koanf: built-in defaults, then the YAML
// config file, then DUCKSTRESS_* environment variables, then flags that were
// explicitly set on the command line.
package config

import (
	"time"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// TargetConfig is an alias for the shared target declaration.
type TargetConfig = core.Target

// Config holds all CLI configuration options.
type Config struct {
	Targets             []TargetConfig `koanf:"targets"`
	Streams             int            `koanf:"streams"`
	StatementsPerStream int            `koanf:"statements_per_stream"`
	Isolation           string         `koanf:"isolation"`
	ExpectedErrors      []string       `koanf:"expected_errors"`

	// SQLDir holds one .sql file per stream. Ignored when Generate is set.
	SQLDir string `koanf:"sql_dir"`

	Generate     bool   `koanf:"generate"`
	Seed         uint64 `koanf:"seed"`
	StringLength int    `koanf:"string_length"`

	// WriteDir, when set, receives generated streams as replayable files.
	WriteDir string `koanf:"write_dir"`

	StatementTimeout time.Duration `koanf:"statement_timeout"`
	RunTimeout       time.Duration `koanf:"run_timeout"`

	ResultsDB   string `koanf:"results_db"`
	MetricsFile string `koanf:"metrics_file"`

	LogLevel           string `koanf:"log_level"`
	LogFormat          string `koanf:"log_format"`
	OutputFormat       string `koanf:"output"`
	ErrorsOnly         bool   `koanf:"errors_only"`
	MaxStatementLength int    `koanf:"max_statement_length"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultConfigFile          = "duckstress.yaml"
	DefaultStreams             = 5
	DefaultStatementsPerStream = 1000
	DefaultIsolation           = "thread-shared"
	DefaultSQLDir              = "sql"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultOutput              = "text"
	DefaultMaxStatementLength  = 200
)

// DefaultTargets are the databases attached when none are configured.
func DefaultTargets() []TargetConfig {
	return []TargetConfig{
		{Name: "db1", Path: "db1.duckdb"},
		{Name: "db2", Path: "db2.duckdb"},
	}
}
