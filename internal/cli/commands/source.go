package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/duckstress/internal/cli/config"
	"github.com/leapstack-labs/duckstress/internal/source"
)

// statementSource builds the source a run reads its streams from, together
// with the generator seed when statements are generated.
//
// Generated streams are materialized up front so they can be written to
// WriteDir before any worker starts.
func statementSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Source, *uint64, error) {
	if !cfg.Generate {
		src, err := source.GlobDir(cfg.SQLDir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("reading statement files", "dir", cfg.SQLDir, "files", src.Len())
		return src, nil, nil
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano()) //nolint:gosec // clock seed is not negative
	}
	opts := []source.GeneratorOption{source.WithSeed(seed)}
	if cfg.StringLength > 0 {
		opts = append(opts, source.WithStringLength(cfg.StringLength))
	}
	gen, err := source.NewGenerator(cfg.Targets, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create generator: %w", err)
	}
	logger.Info("generating statements",
		"streams", cfg.Streams,
		"statements_per_stream", cfg.StatementsPerStream,
		"seed", seed,
	)

	streams, err := source.Collect(ctx, source.NewGeneratorSource(gen, cfg.Streams, cfg.StatementsPerStream))
	if err != nil {
		return nil, nil, err
	}
	if cfg.WriteDir != "" {
		paths, err := source.WriteFiles(cfg.WriteDir, streams)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("wrote generated streams", "dir", cfg.WriteDir, "files", len(paths))
	}
	return source.NewStaticSource(streams...), &seed, nil
}
