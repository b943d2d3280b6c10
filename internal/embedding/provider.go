// Package embedding turns text into vectors through a cached, retrying,
// rate-limited backend.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Config holds the provider tunables.
type Config struct {
	Retry             service.RetryOptions
	Timeout           time.Duration
	BatchTimeout      time.Duration
	Dimension         int
	MaxChars          int
	BatchSize         int
	Workers           int
	Burst             int
	RequestsPerSecond float64
}

// DefaultConfig returns defaults for a 768-dimension model.
func DefaultConfig() Config {
	return Config{
		Dimension:    768,
		MaxChars:     8000,
		BatchSize:    32,
		Workers:      4,
		Timeout:      30 * time.Second,
		BatchTimeout: 60 * time.Second,
		Retry:        common.DefaultRetryOptions(),
	}
}

// Validate checks the config once at construction.
func (c Config) Validate() error {
	switch {
	case c.Dimension <= 0:
		return fmt.Errorf("%w: dimension must be positive", common.ErrInvalidConfig)
	case c.MaxChars <= 0:
		return fmt.Errorf("%w: max chars must be positive", common.ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", common.ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", common.ErrInvalidConfig)
	case c.Timeout <= 0 || c.BatchTimeout <= 0:
		return fmt.Errorf("%w: timeouts must be positive", common.ErrInvalidConfig)
	case c.Retry.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive", common.ErrInvalidConfig)
	case c.RequestsPerSecond < 0 || c.Burst < 0:
		return fmt.Errorf("%w: rate limit must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Stats is a snapshot of provider counters.
type Stats struct {
	CacheHits    int64
	CacheMisses  int64
	BackendCalls int64
	Failures     int64
	Degraded     int64
	CacheSize    int
}

// Provider embeds text through a backend with a shared content-addressed cache.
// It is safe for concurrent use.
type Provider struct {
	backend Backend
	cache   *Cache
	limiter *rate.Limiter
	logger  *slog.Logger
	cfg     Config

	hits     atomic.Int64
	misses   atomic.Int64
	calls    atomic.Int64
	failures atomic.Int64
	degraded atomic.Int64
}

// NewProvider creates a provider around backend.
func NewProvider(backend Backend, cfg Config, logger *slog.Logger) (*Provider, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: embedding backend is required", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Provider{
		backend: backend,
		cache:   NewCache(),
		limiter: rate.NewLimiter(limit, burst),
		logger:  common.OrDefault(logger),
		cfg:     cfg,
	}, nil
}

// Dimension returns the fixed vector dimension.
func (p *Provider) Dimension() int {
	return p.cfg.Dimension
}

// ModelName returns the backend model identifier.
func (p *Provider) ModelName() string {
	return p.backend.ModelName()
}

// Stats returns a snapshot of the provider counters.
func (p *Provider) Stats() Stats {
	return Stats{
		CacheHits:    p.hits.Load(),
		CacheMisses:  p.misses.Load(),
		BackendCalls: p.calls.Load(),
		Failures:     p.failures.Load(),
		Degraded:     p.degraded.Load(),
		CacheSize:    p.cache.Len(),
	}
}

// Embed returns the vector for text. When the backend cannot produce one it
// returns a zero vector of Dimension() instead of failing.
func (p *Provider) Embed(ctx context.Context, text string) model.Vector {
	v, err := p.EmbedStrict(ctx, text)
	if err != nil {
		p.degraded.Add(1)
		p.logger.Warn("Embedding failed, using zero vector",
			"chars", len(text),
			"error", err)
		return p.zero()
	}
	return v
}

// EmbedStrict is Embed without degradation: exhausted retries are returned.
// Empty text yields a zero vector without a backend call.
func (p *Provider) EmbedStrict(ctx context.Context, text string) (model.Vector, error) {
	norm := Normalize(text, p.cfg.MaxChars)
	if norm == "" {
		return p.zero(), nil
	}

	key := CacheKey(norm)
	if v, ok := p.cache.Get(key); ok {
		p.hits.Add(1)
		return clone(v), nil
	}
	p.misses.Add(1)

	v, err := p.embedOne(ctx, norm)
	if err != nil {
		p.failures.Add(1)
		return nil, err
	}
	return clone(p.cache.Put(key, v)), nil
}

// EmbedBatch embeds texts and returns vectors in input order. Cache hits are
// resolved first; misses are deduplicated and sent in sub-batches on a bounded
// worker pool. A failed sub-batch falls back to Embed for each of its texts.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) []model.Vector {
	out := make([]model.Vector, len(texts))

	var (
		missKeys  []string
		missTexts []string
		positions = make(map[string][]int)
	)
	for i, text := range texts {
		norm := Normalize(text, p.cfg.MaxChars)
		if norm == "" {
			out[i] = p.zero()
			continue
		}
		key := CacheKey(norm)
		if v, ok := p.cache.Get(key); ok {
			p.hits.Add(1)
			out[i] = clone(v)
			continue
		}
		if _, seen := positions[key]; !seen {
			p.misses.Add(1)
			missKeys = append(missKeys, key)
			missTexts = append(missTexts, norm)
		}
		positions[key] = append(positions[key], i)
	}

	if len(missKeys) == 0 {
		return out
	}

	fresh := make([]model.Vector, len(missKeys))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)

	for start := 0; start < len(missKeys); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(missKeys))
		g.Go(func() error {
			p.embedSubBatch(ctx, missKeys[start:end], missTexts[start:end], fresh[start:end])
			return nil
		})
	}
	_ = g.Wait()

	for j, key := range missKeys {
		for _, pos := range positions[key] {
			out[pos] = clone(fresh[j])
		}
	}
	return out
}

// embedSubBatch fills dst for one sub-batch. It never fails.
func (p *Provider) embedSubBatch(ctx context.Context, keys, texts []string, dst []model.Vector) {
	vecs, err := p.embedMany(ctx, texts)
	if err == nil {
		for j, v := range vecs {
			dst[j] = p.cache.Put(keys[j], v)
		}
		return
	}

	p.failures.Add(1)
	p.logger.Warn("Batch embedding failed, falling back to single requests",
		"size", len(texts),
		"error", err)
	for j, text := range texts {
		dst[j] = p.Embed(ctx, text)
	}
}

func (p *Provider) embedOne(ctx context.Context, text string) (model.Vector, error) {
	var out model.Vector
	err := common.WithRetry(ctx, func(ctx context.Context) common.Result {
		if err := p.limiter.Wait(ctx); err != nil {
			return common.Fatal(fmt.Errorf("rate limiter: %w", err))
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()

		p.calls.Add(1)
		v, err := p.backend.Embed(callCtx, text)
		if err != nil {
			return classify(ctx, err)
		}
		if len(v) != p.cfg.Dimension {
			return common.Fatal(fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), p.cfg.Dimension))
		}
		out = v
		return common.Succeeded()
	}, p.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBackendUnavailable, err)
	}
	return out, nil
}

func (p *Provider) embedMany(ctx context.Context, texts []string) ([]model.Vector, error) {
	var out []model.Vector
	err := common.WithRetry(ctx, func(ctx context.Context) common.Result {
		if err := p.limiter.Wait(ctx); err != nil {
			return common.Fatal(fmt.Errorf("rate limiter: %w", err))
		}
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.BatchTimeout)
		defer cancel()

		p.calls.Add(1)
		vecs, err := p.backend.EmbedBatch(callCtx, texts)
		if err != nil {
			return classify(ctx, err)
		}
		if len(vecs) != len(texts) {
			return common.Fatal(fmt.Errorf("%w: requested %d, got %d", ErrCountMismatch, len(texts), len(vecs)))
		}
		for _, v := range vecs {
			if len(v) != p.cfg.Dimension {
				return common.Fatal(fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(v), p.cfg.Dimension))
			}
		}
		out = vecs
		return common.Succeeded()
	}, p.cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrBackendUnavailable, err)
	}
	return out, nil
}

func (p *Provider) zero() model.Vector {
	return make(model.Vector, p.cfg.Dimension)
}

func clone(v model.Vector) model.Vector {
	out := make(model.Vector, len(v))
	copy(out, v)
	return out
}
