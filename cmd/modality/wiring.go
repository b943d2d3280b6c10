package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/modality/internal/classification"
	"github.com/Veraticus/modality/internal/config"
	"github.com/Veraticus/modality/internal/embedding"
	"github.com/Veraticus/modality/internal/engine"
	"github.com/Veraticus/modality/internal/index"
	"github.com/Veraticus/modality/internal/service"
	"github.com/Veraticus/modality/internal/storage"
	"github.com/spf13/viper"
)

// app is the fully wired recommendation pipeline for one command.
type app struct {
	cfg      config.Config
	provider *embedding.Provider
	index    *index.Index
	engine   *engine.Engine
	location string
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadConfig() (config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// initStorage opens the SQLite database at path and brings its schema up to date.
func initStorage(ctx context.Context, path string) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, err
	}
	store.WithLogger(slog.Default())

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func newProvider(cfg config.EmbeddingConfig) (*embedding.Provider, error) {
	backend, err := embedding.NewOllamaBackend(cfg.Host, cfg.Model, cfg.UseAccelerator)
	if err != nil {
		return nil, err
	}
	retry := service.RetryOptions{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialBackoff,
		MaxDelay:     cfg.MaxBackoff,
		Multiplier:   2.0,
		Jitter:       0.5,
	}
	return embedding.NewProvider(backend, embedding.Config{
		Retry:             retry,
		Timeout:           cfg.Timeout,
		BatchTimeout:      cfg.BatchTimeout,
		Dimension:         cfg.Dimension,
		MaxChars:          cfg.MaxChars,
		BatchSize:         cfg.BatchSize,
		Workers:           cfg.Workers,
		Burst:             cfg.Burst,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, slog.Default())
}

// openSource opens the configured chunk dataset. The returned closer is never nil.
func openSource(ctx context.Context, cfg config.Config) (service.ChunkSource, string, func(), error) {
	switch cfg.Index.Source {
	case config.SourceDir:
		return storage.NewDirSource(cfg.Index.Path), cfg.Index.Path, func() {}, nil
	case config.SourcePostgres:
		src, err := storage.NewPostgresChunkSource(ctx, cfg.Index.DSN)
		if err != nil {
			return nil, "postgres", func() {}, err
		}
		return src, "postgres", src.Close, nil
	default:
		store, err := initStorage(ctx, cfg.Database.Path)
		if err != nil {
			return nil, cfg.Database.Path, func() {}, err
		}
		return store, cfg.Database.Path, func() { _ = store.Close() }, nil
	}
}

// buildApp wires config, embedding provider, chunk index, rules and engine.
// A dataset that cannot be opened leaves the index not loaded, so commands
// still answer from keyword rules.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	provider, err := newProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}

	a := &app{cfg: cfg, provider: provider}
	src, location, closeSrc, err := openSource(ctx, cfg)
	a.location = location
	a.closers = append(a.closers, closeSrc)
	if err != nil {
		slog.Warn("Chunk dataset unavailable", "source", cfg.Index.Source, "error", err)
		a.index = index.NotLoaded(err)
	} else {
		a.index = index.Load(ctx, src, index.Options{
			Dimension: cfg.Embedding.Dimension,
			Model:     cfg.Embedding.Model,
		}, slog.Default())
	}

	rules, err := classification.NewDefaultRuleClassifier()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build rule classifier: %w", err)
	}

	a.engine, err = engine.NewWithConfig(a.index, provider, rules, engine.Config{
		Thresholds:             cfg.Engine.Thresholds,
		SearchTopK:             cfg.Engine.SearchTopK,
		SupportingChunks:       cfg.Engine.SupportingChunks,
		RuleOverrideConfidence: cfg.Engine.RuleOverrideConfidence,
	}, slog.Default())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return a, nil
}
