package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/leapstack-labs/duckstress/pkg/core"
)

// Validate checks if the configuration is valid for a run.
func (c *Config) Validate() error {
	var errs []error

	if err := core.ValidateTargets(c.Targets); err != nil {
		errs = append(errs, fmt.Errorf("targets: %w", err))
	}
	if _, err := c.IsolationMode(); err != nil {
		errs = append(errs, fmt.Errorf("isolation: %w", err))
	}
	if _, err := c.ClassificationSet(); err != nil {
		errs = append(errs, fmt.Errorf("expected_errors: %w", err))
	}

	if c.Generate {
		if err := c.validateGenerator(); err != nil {
			errs = append(errs, err)
		}
	} else if c.SQLDir == "" {
		errs = append(errs, errors.New("sql_dir is required unless generate is set"))
	}

	if c.StatementTimeout < 0 {
		errs = append(errs, fmt.Errorf("statement_timeout must not be negative, got %s", c.StatementTimeout))
	}
	if c.RunTimeout < 0 {
		errs = append(errs, fmt.Errorf("run_timeout must not be negative, got %s", c.RunTimeout))
	}
	if c.MaxStatementLength < 0 {
		errs = append(errs, fmt.Errorf("max_statement_length must not be negative, got %d", c.MaxStatementLength))
	}
	switch strings.ToLower(c.OutputFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("output must be text or json, got %q", c.OutputFormat))
	}

	return errors.Join(errs...)
}

// ValidateGenerator checks the settings used by statement generation.
func (c *Config) ValidateGenerator() error {
	var errs []error
	if err := core.ValidateTargets(c.Targets); err != nil {
		errs = append(errs, fmt.Errorf("targets: %w", err))
	}
	if err := c.validateGenerator(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) validateGenerator() error {
	var errs []error
	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("generate needs at least one target"))
	}
	if c.Streams < 1 {
		errs = append(errs, fmt.Errorf("streams must be at least 1, got %d", c.Streams))
	}
	if c.StatementsPerStream < 1 {
		errs = append(errs, fmt.Errorf("statements_per_stream must be at least 1, got %d", c.StatementsPerStream))
	}
	if c.StringLength < 0 {
		errs = append(errs, fmt.Errorf("string_length must not be negative, got %d", c.StringLength))
	}
	return errors.Join(errs...)
}

// ValidateDirectories checks if the statement directory exists.
func (c *Config) ValidateDirectories() error {
	if c.Generate {
		return nil
	}
	if _, err := os.Stat(c.SQLDir); os.IsNotExist(err) {
		return fmt.Errorf("statement directory does not exist: %s\nHint: Create the directory, use --sql-dir or pass --generate", c.SQLDir)
	}
	return nil
}

// IsolationMode returns the configured isolation mode.
func (c *Config) IsolationMode() (core.IsolationMode, error) {
	return core.ParseIsolationMode(c.Isolation)
}

// ClassificationSet returns the configured set of expected error kinds.
func (c *Config) ClassificationSet() (core.ClassificationSet, error) {
	return core.ParseClassificationSet(c.ExpectedErrors)
}
