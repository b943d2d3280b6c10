package evaluation

import (
	"context"
	"testing"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func truth() map[string]model.Category {
	out := make(map[string]model.Category, len(sampleCases))
	for _, c := range sampleCases {
		out[c.Query] = c.Expected
	}
	return out
}

// tunedPredict is fully right only at similarity >= 0.4 with min confidence
// 0.6, and half right elsewhere.
func tunedPredict(q string, cfg model.ThresholdConfig) (model.Category, float64) {
	want := truth()[q]
	switch {
	case cfg.SimilarityThreshold >= 0.4 && cfg.MinConfidence == 0.6:
		return want, 0.9
	case want == model.CategoryA:
		return model.CategoryA, 0.6
	default:
		return model.CategoryUnknown, model.RejectConfidence
	}
}

func TestParamGrid_Combinations(t *testing.T) {
	base := model.ThresholdConfig{SimilarityThreshold: 0.5, MinConfidence: 0.6, RuleConfidenceBoost: 0.1, RetrievalFloor: 0.05}
	grid := ParamGrid{SimilarityThreshold: []float64{0.3, 0.4}, RuleConfidenceBoost: []float64{0.1, 0.2}}

	got := grid.Combinations(base)
	want := []model.ThresholdConfig{
		{SimilarityThreshold: 0.3, MinConfidence: 0.6, RuleConfidenceBoost: 0.1, RetrievalFloor: 0.05},
		{SimilarityThreshold: 0.3, MinConfidence: 0.6, RuleConfidenceBoost: 0.2, RetrievalFloor: 0.05},
		{SimilarityThreshold: 0.4, MinConfidence: 0.6, RuleConfidenceBoost: 0.1, RetrievalFloor: 0.05},
		{SimilarityThreshold: 0.4, MinConfidence: 0.6, RuleConfidenceBoost: 0.2, RetrievalFloor: 0.05},
	}
	assert.Equal(t, want, got)

	assert.True(t, ParamGrid{}.Empty())
	assert.False(t, ParamGrid{RetrievalFloor: []float64{0}}.Empty())
}

func TestGridSearch_FindsBest(t *testing.T) {
	rec := newFake(tunedPredict)
	before := rec.Thresholds()
	var progress []int
	h := NewHarness(rec, nil).OnProgress(func(done, total int) {
		assert.Equal(t, 6, total)
		progress = append(progress, done)
	})

	grid := ParamGrid{
		SimilarityThreshold: []float64{0.3, 0.4, 0.5},
		MinConfidence:       []float64{0.6, 0.7},
	}
	res, err := h.GridSearch(context.Background(), grid, sampleCases)
	require.NoError(t, err)

	require.Len(t, res.All, 6)
	accuracies := make([]float64, len(res.All))
	for i, p := range res.All {
		accuracies[i] = p.Accuracy
		assert.Equal(t, 4, p.Total)
	}
	assert.Equal(t, []float64{0.5, 0.5, 1, 0.5, 1, 0.5}, accuracies)

	assert.InDelta(t, 1.0, res.BestAccuracy, 1e-12)
	assert.Equal(t, 0.4, res.Best.SimilarityThreshold, "first of the tied best wins")
	assert.Equal(t, 0.6, res.Best.MinConfidence)
	assert.Equal(t, before.RuleConfidenceBoost, res.Best.RuleConfidenceBoost)
	assert.Equal(t, before.RetrievalFloor, res.Best.RetrievalFloor)

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, progress)
	assert.Equal(t, before, rec.Thresholds())
}

func TestGridSearch_TieKeepsFirst(t *testing.T) {
	rec := newFake(fixedAnswers(truth()))
	h := NewHarness(rec, nil)

	res, err := h.GridSearch(context.Background(), ParamGrid{MinConfidence: []float64{0.9, 0.5, 0.7}}, sampleCases)
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Best.MinConfidence)
	assert.InDelta(t, 1.0, res.BestAccuracy, 1e-12)
}

func TestGridSearch_Errors(t *testing.T) {
	rec := newFake(tunedPredict)
	h := NewHarness(rec, nil)
	ctx := context.Background()

	_, err := h.GridSearch(ctx, ParamGrid{}, sampleCases)
	assert.ErrorIs(t, err, common.ErrEmptyParamGrid)

	_, err = h.GridSearch(ctx, ParamGrid{MinConfidence: []float64{0.5}}, nil)
	assert.ErrorIs(t, err, common.ErrNoTestCases)

	_, err = h.GridSearch(ctx, ParamGrid{SimilarityThreshold: []float64{0.5, 1.2}}, sampleCases)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
	assert.Empty(t, rec.configs, "invalid grids are rejected before any evaluation")
}

func TestGridSearch_CancelMidSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := newFake(tunedPredict)
	before := rec.Thresholds()
	h := NewHarness(rec, nil).OnProgress(func(done, _ int) {
		if done == 1 {
			cancel()
		}
	})

	_, err := h.GridSearch(ctx, ParamGrid{SimilarityThreshold: []float64{0.3, 0.4, 0.5}}, sampleCases)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, rec.Thresholds())
	assert.Len(t, rec.configs, len(sampleCases), "only the first point ran")
}

func TestGridSearch_DetectsThresholdMutation(t *testing.T) {
	rec := newFake(tunedPredict)
	rec.onCall = func() {
		rec.mu.Lock()
		rec.thresholds.MinConfidence = 0.99
		rec.mu.Unlock()
	}

	_, err := NewHarness(rec, nil).GridSearch(context.Background(), ParamGrid{MinConfidence: []float64{0.6}}, sampleCases)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds changed")
}
