package evaluation

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
	"github.com/Veraticus/modality/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsFor(results ...model.CaseResult) model.Metrics {
	m := model.Metrics{Config: model.DefaultThresholds(), Results: results, Total: len(results)}
	var conf float64
	for _, r := range results {
		if r.Correct {
			m.Correct++
		}
		conf += r.Confidence
	}
	if m.Total > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.Total)
		m.AvgConfidence = conf / float64(m.Total)
	}
	return m
}

func result(id string, expected, predicted model.Category, conf float64) model.CaseResult {
	return model.CaseResult{
		CaseID:     id,
		Query:      "query " + id,
		Expected:   expected,
		Predicted:  predicted,
		Source:     model.SourceRule,
		Confidence: conf,
		Correct:    expected == predicted,
	}
}

func TestDiff(t *testing.T) {
	prev := &model.EvalRun{Version: "v1", Metrics: metricsFor(
		result("keep", model.CategoryA, model.CategoryA, 0.8),
		result("regress", model.CategoryB, model.CategoryB, 0.7),
		result("improve", model.CategoryA, model.CategoryB, 0.6),
		result("gone", model.CategoryA, model.CategoryA, 0.9),
	)}
	cur := &model.EvalRun{Version: "v2", Metrics: metricsFor(
		result("keep", model.CategoryA, model.CategoryA, 0.8),
		result("regress", model.CategoryB, model.CategoryUnknown, 0.2),
		result("improve", model.CategoryA, model.CategoryA, 0.7),
		result("new", model.CategoryB, model.CategoryB, 0.9),
	)}

	d := Diff(prev, cur)
	assert.Equal(t, "v1", d.PreviousVersion)
	assert.InDelta(t, cur.Metrics.Accuracy-prev.Metrics.Accuracy, d.AccuracyDelta, 1e-12)
	assert.InDelta(t, cur.Metrics.AvgConfidence-prev.Metrics.AvgConfidence, d.AvgConfidenceDelta, 1e-12)
	require.Len(t, d.Regressions, 1)
	assert.Equal(t, CaseChange{CaseID: "regress", Query: "query regress", Expected: model.CategoryB, Before: model.CategoryB, After: model.CategoryUnknown}, d.Regressions[0])
	require.Len(t, d.Improvements, 1)
	assert.Equal(t, "improve", d.Improvements[0].CaseID)
	assert.Equal(t, []string{"new"}, d.Added)
	assert.Equal(t, []string{"gone"}, d.Removed)
	assert.True(t, d.Changed())

	same := Diff(prev, prev)
	assert.False(t, same.Changed())
	assert.Zero(t, same.AccuracyDelta)
}

func testTrackerStores(t *testing.T) map[string]func() service.HistoryStore {
	t.Helper()
	return map[string]func() service.HistoryStore{
		"memory": func() service.HistoryStore { return NewMemoryHistory() },
		"sqlite": func() service.HistoryStore { return testutil.SetupTestDB(t) },
	}
}

func TestTracker_Record(t *testing.T) {
	for name, newStore := range testTrackerStores(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore()
			tracker := NewTracker(store, nil)
			clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
			tracker.now = func() time.Time {
				clock = clock.Add(time.Minute)
				return clock
			}
			ctx := context.Background()

			first := metricsFor(
				result("c1", model.CategoryA, model.CategoryA, 0.8),
				result("c2", model.CategoryB, model.CategoryA, 0.6),
			)
			run, diff, err := tracker.Record(ctx, "v1", first)
			require.NoError(t, err)
			assert.Nil(t, diff, "first run has nothing to compare against")
			assert.NotEmpty(t, run.ID)
			assert.Equal(t, first, run.Metrics, "metrics are stored as given")

			second := metricsFor(
				result("c1", model.CategoryA, model.CategoryB, 0.7),
				result("c2", model.CategoryB, model.CategoryB, 0.9),
			)
			run2, diff, err := tracker.Record(ctx, " v2 ", second)
			require.NoError(t, err)
			require.NotNil(t, diff)
			assert.Equal(t, "v2", run2.Version)
			assert.NotEqual(t, run.ID, run2.ID)
			assert.Equal(t, "v1", diff.PreviousVersion)
			assert.InDelta(t, 0.0, diff.AccuracyDelta, 1e-12)
			require.Len(t, diff.Regressions, 1)
			assert.Equal(t, "c1", diff.Regressions[0].CaseID)
			require.Len(t, diff.Improvements, 1)
			assert.Equal(t, "c2", diff.Improvements[0].CaseID)

			_, _, err = tracker.Record(ctx, "v1", second)
			assert.ErrorIs(t, err, common.ErrDuplicateEntry)

			_, _, err = tracker.Record(ctx, "  ", second)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)

			runs, err := store.ListRuns(ctx, 0)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "v2", runs[0].Version)

			cmp, err := tracker.Compare(ctx, "v2", "v1")
			require.NoError(t, err)
			assert.Equal(t, "c1", cmp.Improvements[0].CaseID)

			_, err = tracker.Compare(ctx, "v1", "v9")
			assert.ErrorIs(t, err, common.ErrNotFound)
		})
	}
}

func TestMemoryHistory_ListRunsLimit(t *testing.T) {
	h := NewMemoryHistory()
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, h.SaveRun(ctx, &model.EvalRun{ID: v, Version: v, CreatedAt: time.Now()}))
	}

	runs, err := h.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].Version)
	assert.Equal(t, "b", runs[1].Version)

	prev, err := h.LatestRunBefore(ctx, &model.EvalRun{ID: "a", Version: "a"})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.Nil(t, prev)
}
