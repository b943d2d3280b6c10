// Package config holds the runtime configuration and its viper bindings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/spf13/viper"
)

// Index source kinds.
const (
	SourceDir      = "dir"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	Logging   LoggingConfig
	Index     IndexConfig
	Database  DatabaseConfig
	Embedding EmbeddingConfig
	Engine    EngineConfig
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// EmbeddingConfig configures the embedding backend and provider.
type EmbeddingConfig struct {
	Host              string
	Model             string
	Timeout           time.Duration
	BatchTimeout      time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Dimension         int
	MaxAttempts       int
	BatchSize         int
	Workers           int
	MaxChars          int
	Burst             int
	RequestsPerSecond float64
	UseAccelerator    bool
}

// IndexConfig says where the chunk dataset lives.
type IndexConfig struct {
	Source string
	Path   string
	DSN    string
}

// DatabaseConfig locates the SQLite database used for history and imported datasets.
type DatabaseConfig struct {
	Path string
}

// EngineConfig holds arbitration defaults.
type EngineConfig struct {
	Thresholds             model.ThresholdConfig
	SearchTopK             int
	SupportingChunks       int
	RuleOverrideConfidence float64
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Embedding: EmbeddingConfig{
			Model:             "nomic-embed-text",
			Dimension:         768,
			Timeout:           30 * time.Second,
			BatchTimeout:      60 * time.Second,
			MaxAttempts:       3,
			InitialBackoff:    500 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BatchSize:         32,
			Workers:           4,
			MaxChars:          8000,
			RequestsPerSecond: 20,
			Burst:             4,
		},
		Index: IndexConfig{
			Source: SourceSQLite,
		},
		Database: DatabaseConfig{
			Path: "$HOME/.local/share/modality/modality.db",
		},
		Engine: EngineConfig{
			Thresholds:             model.DefaultThresholds(),
			SearchTopK:             20,
			SupportingChunks:       5,
			RuleOverrideConfidence: 0.7,
		},
	}
}

// SetDefaults registers Default() with v so every key is visible to
// AutomaticEnv and config files.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	v.SetDefault("embedding.host", d.Embedding.Host)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimension", d.Embedding.Dimension)
	v.SetDefault("embedding.timeout", d.Embedding.Timeout)
	v.SetDefault("embedding.batch_timeout", d.Embedding.BatchTimeout)
	v.SetDefault("embedding.max_attempts", d.Embedding.MaxAttempts)
	v.SetDefault("embedding.initial_backoff", d.Embedding.InitialBackoff)
	v.SetDefault("embedding.max_backoff", d.Embedding.MaxBackoff)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.workers", d.Embedding.Workers)
	v.SetDefault("embedding.max_chars", d.Embedding.MaxChars)
	v.SetDefault("embedding.requests_per_second", d.Embedding.RequestsPerSecond)
	v.SetDefault("embedding.burst", d.Embedding.Burst)
	v.SetDefault("embedding.use_accelerator", d.Embedding.UseAccelerator)

	v.SetDefault("index.source", d.Index.Source)
	v.SetDefault("index.path", d.Index.Path)
	v.SetDefault("index.dsn", d.Index.DSN)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("engine.similarity_threshold", d.Engine.Thresholds.SimilarityThreshold)
	v.SetDefault("engine.min_confidence", d.Engine.Thresholds.MinConfidence)
	v.SetDefault("engine.rule_confidence_boost", d.Engine.Thresholds.RuleConfidenceBoost)
	v.SetDefault("engine.retrieval_floor", d.Engine.Thresholds.RetrievalFloor)
	v.SetDefault("engine.search_top_k", d.Engine.SearchTopK)
	v.SetDefault("engine.supporting_chunks", d.Engine.SupportingChunks)
	v.SetDefault("engine.rule_override_confidence", d.Engine.RuleOverrideConfidence)
}

// FromViper reads a validated Config out of v. Paths are expanded.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Embedding: EmbeddingConfig{
			Host:              v.GetString("embedding.host"),
			Model:             v.GetString("embedding.model"),
			Dimension:         v.GetInt("embedding.dimension"),
			Timeout:           v.GetDuration("embedding.timeout"),
			BatchTimeout:      v.GetDuration("embedding.batch_timeout"),
			MaxAttempts:       v.GetInt("embedding.max_attempts"),
			InitialBackoff:    v.GetDuration("embedding.initial_backoff"),
			MaxBackoff:        v.GetDuration("embedding.max_backoff"),
			BatchSize:         v.GetInt("embedding.batch_size"),
			Workers:           v.GetInt("embedding.workers"),
			MaxChars:          v.GetInt("embedding.max_chars"),
			RequestsPerSecond: v.GetFloat64("embedding.requests_per_second"),
			Burst:             v.GetInt("embedding.burst"),
			UseAccelerator:    v.GetBool("embedding.use_accelerator"),
		},
		Index: IndexConfig{
			Source: v.GetString("index.source"),
			Path:   ExpandPath(v.GetString("index.path")),
			DSN:    v.GetString("index.dsn"),
		},
		Database: DatabaseConfig{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Engine: EngineConfig{
			Thresholds: model.ThresholdConfig{
				SimilarityThreshold: v.GetFloat64("engine.similarity_threshold"),
				MinConfidence:       v.GetFloat64("engine.min_confidence"),
				RuleConfidenceBoost: v.GetFloat64("engine.rule_confidence_boost"),
				RetrievalFloor:      v.GetFloat64("engine.retrieval_floor"),
			},
			SearchTopK:             v.GetInt("engine.search_top_k"),
			SupportingChunks:       v.GetInt("engine.supporting_chunks"),
			RuleOverrideConfidence: v.GetFloat64("engine.rule_override_confidence"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field once, at construction time.
func (c Config) Validate() error {
	e := c.Embedding
	switch {
	case e.Model == "":
		return fmt.Errorf("%w: embedding.model", common.ErrMissingConfig)
	case e.Dimension <= 0:
		return fmt.Errorf("%w: embedding.dimension must be positive", common.ErrInvalidConfig)
	case e.Timeout <= 0 || e.BatchTimeout <= 0:
		return fmt.Errorf("%w: embedding timeouts must be positive", common.ErrInvalidConfig)
	case e.MaxAttempts <= 0:
		return fmt.Errorf("%w: embedding.max_attempts must be positive", common.ErrInvalidConfig)
	case e.BatchSize <= 0 || e.Workers <= 0:
		return fmt.Errorf("%w: embedding batch size and workers must be positive", common.ErrInvalidConfig)
	case e.MaxChars <= 0:
		return fmt.Errorf("%w: embedding.max_chars must be positive", common.ErrInvalidConfig)
	case e.RequestsPerSecond < 0 || e.Burst < 0:
		return fmt.Errorf("%w: embedding rate limit must not be negative", common.ErrInvalidConfig)
	}

	switch c.Index.Source {
	case SourceDir:
		if c.Index.Path == "" {
			return fmt.Errorf("%w: index.path is required for the dir source", common.ErrMissingConfig)
		}
	case SourceSQLite:
	case SourcePostgres:
		if c.Index.DSN == "" {
			return fmt.Errorf("%w: index.dsn is required for the postgres source", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown index.source %q", common.ErrInvalidConfig, c.Index.Source)
	}

	if err := c.Engine.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if c.Engine.SearchTopK <= 0 || c.Engine.SupportingChunks < 0 {
		return fmt.Errorf("%w: engine.search_top_k must be positive", common.ErrInvalidConfig)
	}
	if c.Engine.RuleOverrideConfidence < 0 || c.Engine.RuleOverrideConfidence > 1 {
		return fmt.Errorf("%w: engine.rule_override_confidence must be within [0, 1]", common.ErrInvalidConfig)
	}
	return nil
}

// ExpandPath expands a leading ~ and any $VAR references in path.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
