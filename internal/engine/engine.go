// Package engine combines retrieval and keyword rules into a single
// therapeutic-approach recommendation.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/index"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
)

// Config holds configuration options for the engine.
type Config struct {
	Thresholds             model.ThresholdConfig
	SearchTopK             int
	SupportingChunks       int
	RuleOverrideConfidence float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:             model.DefaultThresholds(),
		SearchTopK:             index.MaxTopK,
		SupportingChunks:       5,
		RuleOverrideConfidence: 0.7,
	}
}

// Validate checks the config once at construction.
func (c Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("%w: search top-k must be positive", common.ErrInvalidConfig)
	}
	if c.SupportingChunks < 0 {
		return fmt.Errorf("%w: supporting chunks must not be negative", common.ErrInvalidConfig)
	}
	if c.RuleOverrideConfidence < 0 || c.RuleOverrideConfidence > 1 {
		return fmt.Errorf("%w: rule override confidence must be within [0, 1]", common.ErrInvalidConfig)
	}
	return nil
}

// Engine arbitrates between the vector determiner and the rule classifier.
// Its configuration is fixed at construction; per-call thresholds are passed
// by value to RecommendWith. It is safe for concurrent use.
type Engine struct {
	index      Searcher
	embedder   service.Embedder
	rules      RuleScorer
	determiner *VectorDeterminer
	logger     *slog.Logger
	cfg        Config
}

// New creates an engine with the default configuration.
func New(idx Searcher, embedder service.Embedder, rules RuleScorer, logger *slog.Logger) (*Engine, error) {
	return NewWithConfig(idx, embedder, rules, DefaultConfig(), logger)
}

// NewWithConfig creates an engine with a custom configuration.
func NewWithConfig(idx Searcher, embedder service.Embedder, rules RuleScorer, cfg Config, logger *slog.Logger) (*Engine, error) {
	if idx == nil || embedder == nil || rules == nil {
		return nil, fmt.Errorf("%w: index, embedder and rule classifier are required", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger = common.OrDefault(logger)

	return &Engine{
		index:      idx,
		embedder:   embedder,
		rules:      rules,
		determiner: NewVectorDeterminer(idx, embedder, cfg.SearchTopK, logger),
		logger:     logger,
		cfg:        cfg,
	}, nil
}

// IsReady reports whether the chunk index is loaded.
func (e *Engine) IsReady() bool {
	return e.index.Loaded()
}

// Thresholds returns the engine's default threshold config.
func (e *Engine) Thresholds() model.ThresholdConfig {
	return e.cfg.Thresholds
}

// Recommend runs the full pipeline with the default thresholds.
func (e *Engine) Recommend(ctx context.Context, text string) model.Recommendation {
	return e.RecommendWith(ctx, text, e.cfg.Thresholds)
}

// RecommendWith runs the full pipeline under cfg. It always returns a
// well-formed recommendation; backend and corpus failures degrade instead of
// surfacing as errors.
func (e *Engine) RecommendWith(ctx context.Context, text string, cfg model.ThresholdConfig) model.Recommendation {
	rule := e.rules.Classify(text)

	if !e.index.Loaded() {
		return model.Recommendation{
			Category:         rule.Category,
			Confidence:       rule.Confidence,
			SupportingChunks: []model.ScoredChunk{},
			Explanation: model.Explanation{
				Rule:   rule,
				Chosen: model.SourceRule,
				Reason: model.ReasonIndexNotLoaded,
				Detail: "chunk index not loaded; using keyword rules only",
			},
		}
	}

	vec := e.determiner.Determine(ctx, text, cfg)
	d := arbitrate(vec, rule, cfg, e.cfg.RuleOverrideConfidence)

	e.logger.Debug("Recommendation",
		"category", d.category,
		"confidence", d.confidence,
		"source", d.source,
		"reason", d.reason,
		"vector_category", vec.Category,
		"vector_confidence", vec.Confidence,
		"rule_category", rule.Category,
		"rule_confidence", rule.Confidence)

	return model.Recommendation{
		Category:         d.category,
		Confidence:       d.confidence,
		SupportingChunks: supporting(vec.TopResults, d.category, e.cfg.SupportingChunks),
		Explanation: model.Explanation{
			Vector: &vec,
			Rule:   rule,
			Chosen: d.source,
			Reason: d.reason,
			Detail: d.detail,
		},
	}
}

// SearchSimilar returns chunks similar to text above the default similarity
// threshold. An empty category searches both. Results are best first.
func (e *Engine) SearchSimilar(ctx context.Context, text string, category model.Category, limit int) ([]model.ScoredChunk, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", common.ErrInvalidConfig)
	}
	cats := model.Categories()
	if category != "" {
		if !category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", common.ErrInvalidConfig, category)
		}
		cats = []model.Category{category}
	}
	if !e.index.Loaded() {
		return []model.ScoredChunk{}, nil
	}

	query := e.embedder.Embed(ctx, text)
	if query.IsZero() {
		return []model.ScoredChunk{}, nil
	}

	results := []model.ScoredChunk{}
	for _, cat := range cats {
		results = append(results, e.index.Search(cat, query, limit, e.cfg.Thresholds.SimilarityThreshold)...)
	}
	index.SortScored(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Warm embeds texts through the batch path so later calls hit the cache.
func (e *Engine) Warm(ctx context.Context, texts []string) {
	if !e.index.Loaded() || len(texts) == 0 {
		return
	}
	e.embedder.EmbedBatch(ctx, texts)
}
