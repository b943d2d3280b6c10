package model

import (
	"errors"
	"fmt"
)

// ErrInvalidThresholds is returned when a threshold is outside [0, 1].
var ErrInvalidThresholds = errors.New("invalid threshold config")

// ThresholdConfig holds the tunable cut-offs of the arbitration pipeline.
// It is passed by value; nothing in the engine mutates a caller's copy.
type ThresholdConfig struct {
	// SimilarityThreshold rejects vector results whose calibrated confidence
	// falls below it. It is also the filter used by similarity search.
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	// MinConfidence is the bar each classifier must clear to be considered confident.
	MinConfidence float64 `json:"min_confidence" yaml:"min_confidence"`
	// RuleConfidenceBoost is the margin a classifier needs to win a disagreement.
	RuleConfidenceBoost float64 `json:"rule_confidence_boost" yaml:"rule_confidence_boost"`
	// RetrievalFloor drops chunks at or below this similarity before aggregation.
	RetrievalFloor float64 `json:"retrieval_floor" yaml:"retrieval_floor"`
}

// DefaultThresholds returns the production defaults. Vector confidence is
// clamped to at least 0.5, so rejection needs SimilarityThreshold > 0.5.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		SimilarityThreshold: 0.5,
		MinConfidence:       0.6,
		RuleConfidenceBoost: 0.1,
		RetrievalFloor:      0.0,
	}
}

// Validate checks that every value is within [0, 1].
func (c ThresholdConfig) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"similarity_threshold", c.SimilarityThreshold},
		{"min_confidence", c.MinConfidence},
		{"rule_confidence_boost", c.RuleConfidenceBoost},
		{"retrieval_floor", c.RetrievalFloor},
	}
	for _, f := range fields {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("%w: %s must be within [0, 1], got %g", ErrInvalidThresholds, f.name, f.value)
		}
	}
	return nil
}

// WithSimilarityThreshold returns a copy with SimilarityThreshold replaced.
func (c ThresholdConfig) WithSimilarityThreshold(v float64) ThresholdConfig {
	c.SimilarityThreshold = v
	return c
}

// WithMinConfidence returns a copy with MinConfidence replaced.
func (c ThresholdConfig) WithMinConfidence(v float64) ThresholdConfig {
	c.MinConfidence = v
	return c
}

// WithRuleConfidenceBoost returns a copy with RuleConfidenceBoost replaced.
func (c ThresholdConfig) WithRuleConfidenceBoost(v float64) ThresholdConfig {
	c.RuleConfidenceBoost = v
	return c
}

// WithRetrievalFloor returns a copy with RetrievalFloor replaced.
func (c ThresholdConfig) WithRetrievalFloor(v float64) ThresholdConfig {
	c.RetrievalFloor = v
	return c
}

func (c ThresholdConfig) String() string {
	return fmt.Sprintf("similarity=%.2f min_confidence=%.2f boost=%.2f floor=%.2f",
		c.SimilarityThreshold, c.MinConfidence, c.RuleConfidenceBoost, c.RetrievalFloor)
}
