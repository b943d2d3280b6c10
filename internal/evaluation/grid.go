package evaluation

import (
	"context"
	"fmt"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
)

// ParamGrid lists candidate values per threshold. An empty dimension keeps the
// recommender's current value.
type ParamGrid struct {
	SimilarityThreshold []float64 `json:"similarity_threshold" yaml:"similarity_threshold"`
	MinConfidence       []float64 `json:"min_confidence" yaml:"min_confidence"`
	RuleConfidenceBoost []float64 `json:"rule_confidence_boost" yaml:"rule_confidence_boost"`
	RetrievalFloor      []float64 `json:"retrieval_floor" yaml:"retrieval_floor"`
}

// Empty reports whether no dimension has values.
func (g ParamGrid) Empty() bool {
	return len(g.SimilarityThreshold) == 0 && len(g.MinConfidence) == 0 &&
		len(g.RuleConfidenceBoost) == 0 && len(g.RetrievalFloor) == 0
}

func orBase(values []float64, base float64) []float64 {
	if len(values) == 0 {
		return []float64{base}
	}
	return values
}

// Combinations expands the grid against base in a fixed nesting order:
// similarity threshold, then minimum confidence, then rule boost, then
// retrieval floor.
func (g ParamGrid) Combinations(base model.ThresholdConfig) []model.ThresholdConfig {
	sims := orBase(g.SimilarityThreshold, base.SimilarityThreshold)
	mins := orBase(g.MinConfidence, base.MinConfidence)
	boosts := orBase(g.RuleConfidenceBoost, base.RuleConfidenceBoost)
	floors := orBase(g.RetrievalFloor, base.RetrievalFloor)

	out := make([]model.ThresholdConfig, 0, len(sims)*len(mins)*len(boosts)*len(floors))
	for _, s := range sims {
		for _, m := range mins {
			for _, b := range boosts {
				for _, f := range floors {
					out = append(out, model.ThresholdConfig{
						SimilarityThreshold: s,
						MinConfidence:       m,
						RuleConfidenceBoost: b,
						RetrievalFloor:      f,
					})
				}
			}
		}
	}
	return out
}

// GridPoint is the score of one threshold combination.
type GridPoint struct {
	Config        model.ThresholdConfig `json:"config"`
	Accuracy      float64               `json:"accuracy"`
	AvgConfidence float64               `json:"avg_confidence"`
	Correct       int                   `json:"correct"`
	Total         int                   `json:"total"`
}

// GridResult is the outcome of a grid search.
type GridResult struct {
	All          []GridPoint           `json:"all"`
	Best         model.ThresholdConfig `json:"best"`
	BestAccuracy float64               `json:"best_accuracy"`
}

// GridSearch evaluates every combination of grid and returns the most
// accurate one; the first combination seen wins ties. Combinations are passed
// by value, and the recommender's own thresholds are checked to be unchanged
// when the search ends, whether or not it failed.
func (h *Harness) GridSearch(ctx context.Context, grid ParamGrid, cases []model.TestCase) (result GridResult, err error) {
	if grid.Empty() {
		return GridResult{}, common.ErrEmptyParamGrid
	}
	if err := validateCases(cases); err != nil {
		return GridResult{}, err
	}

	original := h.rec.Thresholds()
	defer func() {
		if current := h.rec.Thresholds(); current != original {
			h.logger.Error("Thresholds changed during grid search",
				"before", original.String(),
				"after", current.String())
			if err == nil {
				err = fmt.Errorf("thresholds changed during grid search: %s -> %s", original, current)
			}
		}
	}()

	combos := grid.Combinations(original)
	for i, cfg := range combos {
		if err := cfg.Validate(); err != nil {
			return GridResult{}, fmt.Errorf("%w: grid point %d: %w", common.ErrInvalidConfig, i+1, err)
		}
	}

	h.logger.Info("Starting grid search", "points", len(combos), "cases", len(cases))

	result.All = make([]GridPoint, 0, len(combos))
	for i, cfg := range combos {
		m, err := h.evaluate(ctx, cases, cfg, nil)
		if err != nil {
			return GridResult{}, fmt.Errorf("grid point %d (%s): %w", i+1, cfg, err)
		}
		result.All = append(result.All, GridPoint{
			Config:        cfg,
			Accuracy:      m.Accuracy,
			AvgConfidence: m.AvgConfidence,
			Correct:       m.Correct,
			Total:         m.Total,
		})
		if i == 0 || m.Accuracy > result.BestAccuracy {
			result.Best = cfg
			result.BestAccuracy = m.Accuracy
		}
		if h.progress != nil {
			h.progress(i+1, len(combos))
		}
	}

	h.logger.Info("Grid search complete",
		"best", result.Best.String(),
		"best_accuracy", result.BestAccuracy)
	return result, nil
}
