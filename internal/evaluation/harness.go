// Package evaluation measures recommendation accuracy against labelled test
// cases and searches threshold configurations for the best one.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
)

// Recommender is the pipeline under evaluation.
type Recommender interface {
	RecommendWith(ctx context.Context, text string, cfg model.ThresholdConfig) model.Recommendation
	Thresholds() model.ThresholdConfig
}

// Warmer is implemented by recommenders that can pre-embed queries in bulk.
type Warmer interface {
	Warm(ctx context.Context, texts []string)
}

// Harness runs test cases through a Recommender. Evaluation is sequential and
// every run takes its thresholds by value, so results are reproducible for a
// fixed corpus and config.
type Harness struct {
	rec      Recommender
	logger   *slog.Logger
	progress func(done, total int)
}

// NewHarness creates a harness around rec.
func NewHarness(rec Recommender, logger *slog.Logger) *Harness {
	return &Harness{rec: rec, logger: common.OrDefault(logger)}
}

// OnProgress registers a callback. Evaluate reports cases; GridSearch reports
// grid points.
func (h *Harness) OnProgress(fn func(done, total int)) *Harness {
	h.progress = fn
	return h
}

func validateCases(cases []model.TestCase) error {
	if len(cases) == 0 {
		return common.ErrNoTestCases
	}
	return nil
}

// Evaluate runs every case under cfg.
func (h *Harness) Evaluate(ctx context.Context, cases []model.TestCase, cfg model.ThresholdConfig) (model.Metrics, error) {
	return h.evaluate(ctx, cases, cfg, h.progress)
}

func (h *Harness) evaluate(ctx context.Context, cases []model.TestCase, cfg model.ThresholdConfig, progress func(int, int)) (model.Metrics, error) {
	if err := validateCases(cases); err != nil {
		return model.Metrics{}, err
	}
	if err := cfg.Validate(); err != nil {
		return model.Metrics{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	start := time.Now()
	if w, ok := h.rec.(Warmer); ok {
		queries := make([]string, len(cases))
		for i, c := range cases {
			queries[i] = c.Query
		}
		w.Warm(ctx, queries)
	}

	m := model.Metrics{
		Config:  cfg,
		Total:   len(cases),
		Results: make([]model.CaseResult, 0, len(cases)),
	}
	var confSum float64
	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return model.Metrics{}, fmt.Errorf("evaluation canceled after %d of %d cases: %w", i, len(cases), err)
		}

		rec := h.rec.RecommendWith(ctx, tc.Query, cfg)
		res := model.CaseResult{
			CaseID:     tc.ID,
			Query:      tc.Query,
			Expected:   tc.Expected,
			Predicted:  rec.Category,
			Source:     rec.Explanation.Chosen,
			Confidence: rec.Confidence,
			Correct:    rec.Category == tc.Expected,
		}
		if res.Correct {
			m.Correct++
		}
		confSum += rec.Confidence
		m.Results = append(m.Results, res)

		if progress != nil {
			progress(i+1, len(cases))
		}
	}

	m.Accuracy = float64(m.Correct) / float64(m.Total)
	m.AvgConfidence = confSum / float64(m.Total)

	h.logger.Debug("Evaluation complete",
		"config", cfg.String(),
		"accuracy", m.Accuracy,
		"avg_confidence", m.AvgConfidence,
		"cases", m.Total,
		"duration", time.Since(start).Round(time.Millisecond))
	return m, nil
}
