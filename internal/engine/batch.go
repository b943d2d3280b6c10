package engine

import (
	"context"
	"sync"
	"time"

	"github.com/Veraticus/modality/internal/model"
)

// BatchOptions configures RecommendBatch.
type BatchOptions struct {
	Thresholds      *model.ThresholdConfig // nil uses the engine defaults
	OnResult        func(done, total int)
	ParallelWorkers int
}

// DefaultBatchOptions returns sensible defaults.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{ParallelWorkers: 4}
}

type batchJob struct {
	text string
	pos  int
}

// RecommendBatch recommends for every text on a bounded worker pool and
// returns results in input order. Query embeddings are warmed through the
// batched embedding path first.
func (e *Engine) RecommendBatch(ctx context.Context, texts []string, opts BatchOptions) []model.Recommendation {
	start := time.Now()
	cfg := e.cfg.Thresholds
	if opts.Thresholds != nil {
		cfg = *opts.Thresholds
	}
	workers := opts.ParallelWorkers
	if workers <= 0 {
		workers = 1
	}

	e.Warm(ctx, texts)

	workChan := make(chan batchJob, len(texts))
	for i, t := range texts {
		workChan <- batchJob{pos: i, text: t}
	}
	close(workChan)

	results := make([]model.Recommendation, len(texts))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range workChan {
				results[job.pos] = e.RecommendWith(ctx, job.text, cfg)
				if opts.OnResult != nil {
					mu.Lock()
					done++
					opts.OnResult(done, len(texts))
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	e.logger.Info("Batch recommendation complete",
		"queries", len(texts),
		"workers", workers,
		"duration", time.Since(start).Round(time.Millisecond),
		"index_loaded", e.index.Loaded())
	return results
}
