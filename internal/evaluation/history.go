package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"

	"github.com/google/uuid"
)

// CaseChange is a test case whose correctness flipped between two runs.
type CaseChange struct {
	CaseID   string         `json:"case_id"`
	Query    string         `json:"query"`
	Expected model.Category `json:"expected"`
	Before   model.Category `json:"before"`
	After    model.Category `json:"after"`
}

// RunDiff compares a run with the most recent earlier run.
type RunDiff struct {
	Previous           *model.EvalRun `json:"-"`
	PreviousVersion    string         `json:"previous_version"`
	Regressions        []CaseChange   `json:"regressions"`
	Improvements       []CaseChange   `json:"improvements"`
	Added              []string       `json:"added"`
	Removed            []string       `json:"removed"`
	AccuracyDelta      float64        `json:"accuracy_delta"`
	AvgConfidenceDelta float64        `json:"avg_confidence_delta"`
}

// Changed reports whether any case flipped or the case set changed.
func (d *RunDiff) Changed() bool {
	return len(d.Regressions) > 0 || len(d.Improvements) > 0 || len(d.Added) > 0 || len(d.Removed) > 0
}

// Diff compares current against previous, matching cases by id.
func Diff(previous, current *model.EvalRun) *RunDiff {
	d := &RunDiff{
		Previous:           previous,
		PreviousVersion:    previous.Version,
		AccuracyDelta:      current.Metrics.Accuracy - previous.Metrics.Accuracy,
		AvgConfidenceDelta: current.Metrics.AvgConfidence - previous.Metrics.AvgConfidence,
		Regressions:        []CaseChange{},
		Improvements:       []CaseChange{},
		Added:              []string{},
		Removed:            []string{},
	}

	before := make(map[string]model.CaseResult, len(previous.Metrics.Results))
	for _, r := range previous.Metrics.Results {
		before[r.CaseID] = r
	}
	seen := make(map[string]bool, len(current.Metrics.Results))
	for _, r := range current.Metrics.Results {
		seen[r.CaseID] = true
		old, ok := before[r.CaseID]
		if !ok {
			d.Added = append(d.Added, r.CaseID)
			continue
		}
		change := CaseChange{
			CaseID:   r.CaseID,
			Query:    r.Query,
			Expected: r.Expected,
			Before:   old.Predicted,
			After:    r.Predicted,
		}
		switch {
		case old.Correct && !r.Correct:
			d.Regressions = append(d.Regressions, change)
		case !old.Correct && r.Correct:
			d.Improvements = append(d.Improvements, change)
		}
	}
	for _, r := range previous.Metrics.Results {
		if !seen[r.CaseID] {
			d.Removed = append(d.Removed, r.CaseID)
		}
	}
	return d
}

// Tracker records evaluation runs under version tags.
type Tracker struct {
	store  service.HistoryStore
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker persisting to store.
func NewTracker(store service.HistoryStore, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, logger: common.OrDefault(logger), now: time.Now}
}

// Record stores metrics as a new run tagged version and diffs it against the
// previous run. The diff is nil for the first run. Metrics are stored as
// given. A version tag that already exists returns common.ErrDuplicateEntry.
func (t *Tracker) Record(ctx context.Context, version string, metrics model.Metrics) (*model.EvalRun, *RunDiff, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, nil, fmt.Errorf("%w: version tag is required", common.ErrInvalidConfig)
	}

	run := &model.EvalRun{
		ID:        uuid.NewString(),
		Version:   version,
		CreatedAt: t.now().UTC(),
		Metrics:   metrics,
	}
	if err := t.store.SaveRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("failed to save run %s: %w", version, err)
	}

	prev, err := t.store.LatestRunBefore(ctx, run)
	if errors.Is(err, common.ErrNotFound) {
		t.logger.Info("Recorded first evaluation run", "version", version, "accuracy", metrics.Accuracy)
		return run, nil, nil
	}
	if err != nil {
		return run, nil, fmt.Errorf("failed to load previous run: %w", err)
	}

	diff := Diff(prev, run)
	t.logger.Info("Recorded evaluation run",
		"version", version,
		"previous", prev.Version,
		"accuracy", metrics.Accuracy,
		"accuracy_delta", diff.AccuracyDelta,
		"regressions", len(diff.Regressions),
		"improvements", len(diff.Improvements))
	return run, diff, nil
}

// Compare diffs two stored runs by version.
func (t *Tracker) Compare(ctx context.Context, fromVersion, toVersion string) (*RunDiff, error) {
	from, err := t.store.GetRun(ctx, fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := t.store.GetRun(ctx, toVersion)
	if err != nil {
		return nil, err
	}
	return Diff(from, to), nil
}

var _ service.HistoryStore = (*MemoryHistory)(nil)

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	runs []model.EvalRun
	mu   sync.RWMutex
}

// NewMemoryHistory creates an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

func cloneRun(r model.EvalRun) *model.EvalRun {
	r.Metrics.Results = append([]model.CaseResult(nil), r.Metrics.Results...)
	return &r
}

// SaveRun appends run.
func (m *MemoryHistory) SaveRun(_ context.Context, run *model.EvalRun) error {
	if run == nil || strings.TrimSpace(run.Version) == "" {
		return fmt.Errorf("%w: run needs a version", common.ErrInvalidConfig)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Version == run.Version {
			return fmt.Errorf("run version %q: %w", run.Version, common.ErrDuplicateEntry)
		}
	}
	m.runs = append(m.runs, *cloneRun(*run))
	return nil
}

// GetRun returns the run tagged version.
func (m *MemoryHistory) GetRun(_ context.Context, version string) (*model.EvalRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.runs {
		if r.Version == version {
			return cloneRun(r), nil
		}
	}
	return nil, fmt.Errorf("run %q: %w", version, common.ErrNotFound)
}

// LatestRunBefore returns the run stored just before run, or the latest run
// when run is not stored.
func (m *MemoryHistory) LatestRunBefore(_ context.Context, run *model.EvalRun) (*model.EvalRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := len(m.runs)
	for i, r := range m.runs {
		if r.ID == run.ID {
			end = i
			break
		}
	}
	if end == 0 {
		return nil, fmt.Errorf("run before %q: %w", run.Version, common.ErrNotFound)
	}
	return cloneRun(m.runs[end-1]), nil
}

// ListRuns returns up to limit runs, newest first, without case results.
func (m *MemoryHistory) ListRuns(_ context.Context, limit int) ([]model.EvalRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.EvalRun, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		r.Metrics.Results = nil
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
