package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read as configuration.
const EnvPrefix = "DUCKSTRESS_"

// loggerKey is used to store the logger in a context.
type loggerKey struct{}

// configKey is used to store the loaded config in a context.
type configKey struct{}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"expected_errors": true,
}

// pathKeys are resolved against the project root unless set by a flag.
var pathKeys = []string{"sql_dir", "write_dir", "results_db", "metrics_file"}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// findConfigFile finds the config file to use.
// Priority: explicit path > duckstress.yaml > duckstress.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{DefaultConfigFile, "duckstress.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func defaults() map[string]interface{} {
	targets := make([]interface{}, 0, 2)
	for _, t := range DefaultTargets() {
		targets = append(targets, map[string]interface{}{"name": t.Name, "path": t.Path})
	}
	return map[string]interface{}{
		"targets":               targets,
		"streams":               DefaultStreams,
		"statements_per_stream": DefaultStatementsPerStream,
		"isolation":             DefaultIsolation,
		"expected_errors":       []string{"io", "binder", "catalog"},
		"sql_dir":               DefaultSQLDir,
		"generate":              false,
		"seed":                  0,
		"string_length":         0,
		"log_level":             DefaultLogLevel,
		"log_format":            DefaultLogFormat,
		"output":                DefaultOutput,
		"errors_only":           false,
		"max_statement_length":  DefaultMaxStatementLength,
	}
}

// LoadConfig loads configuration from defaults, the config file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. Only flags that were explicitly set take part.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Load environment variables (DUCKSTRESS_ prefix)
	// Transform: DUCKSTRESS_RUN_TIMEOUT -> run_timeout
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "worker" {
			return "", nil
		}
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	flagPaths := make(map[string]bool)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			// Each --target flag declares one target as name=path
			if f.Name == "target" {
				values, _ := flags.GetStringSlice(f.Name)
				return "targets", parseTargets(values)
			}
			// Transform kebab-case to snake_case for config keys
			key := strings.ReplaceAll(f.Name, "-", "_")
			flagPaths[key] = true
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// 6. Resolve relative paths against the directory of the config file.
	// Paths given as flags stay relative to the working directory.
	cfg.ProjectRoot = projectRoot(configFileUsed)
	for _, key := range pathKeys {
		if flagPaths[key] {
			continue
		}
		switch key {
		case "sql_dir":
			cfg.SQLDir = resolvePathRelativeTo(cfg.SQLDir, cfg.ProjectRoot)
		case "write_dir":
			cfg.WriteDir = resolvePathRelativeTo(cfg.WriteDir, cfg.ProjectRoot)
		case "results_db":
			cfg.ResultsDB = resolvePathRelativeTo(cfg.ResultsDB, cfg.ProjectRoot)
		case "metrics_file":
			cfg.MetricsFile = resolvePathRelativeTo(cfg.MetricsFile, cfg.ProjectRoot)
		}
	}

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

func projectRoot(cfgFile string) string {
	if cfgFile != "" {
		if abs, err := filepath.Abs(cfgFile); err == nil {
			return filepath.Dir(abs)
		}
	}
	cwd, _ := os.Getwd()
	if cwd == "" {
		cwd = "."
	}
	return cwd
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or an in-memory name.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// parseTargets turns "name=path" declarations into target maps. A bare name
// declares a volatile target.
func parseTargets(values []string) []interface{} {
	targets := make([]interface{}, 0, len(values))
	for _, v := range values {
		name, path, _ := strings.Cut(v, "=")
		targets = append(targets, map[string]interface{}{
			"name": strings.TrimSpace(name),
			"path": strings.TrimSpace(path),
		})
	}
	return targets
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// NewLogger builds the CLI logger writing to w.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log_format %q (want text or json)", format)
	}
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext retrieves the config stored by WithConfig.
func FromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(configKey{}).(*Config)
	return cfg, ok && cfg != nil
}
