package engine

import (
	"context"
	"log/slog"

	"github.com/Veraticus/modality/internal/common"
	"github.com/Veraticus/modality/internal/index"
	"github.com/Veraticus/modality/internal/model"
	"github.com/Veraticus/modality/internal/service"
)

// TopResults is how many merged hits the determiner aggregates over.
const TopResults = 10

// VectorDeterminer picks a category from the nearest corpus chunks.
type VectorDeterminer struct {
	index    Searcher
	embedder service.Embedder
	logger   *slog.Logger
	topK     int
}

// NewVectorDeterminer creates a determiner that searches topK chunks per category.
func NewVectorDeterminer(idx Searcher, embedder service.Embedder, topK int, logger *slog.Logger) *VectorDeterminer {
	if topK <= 0 {
		topK = index.MaxTopK
	}
	return &VectorDeterminer{
		index:    idx,
		embedder: embedder,
		logger:   common.OrDefault(logger),
		topK:     topK,
	}
}

func reject(top []model.ScoredChunk) model.VectorResult {
	if top == nil {
		top = []model.ScoredChunk{}
	}
	return model.VectorResult{
		Category:   model.CategoryUnknown,
		Confidence: model.RejectConfidence,
		TopResults: top,
	}
}

// Determine embeds text, searches both categories and aggregates the top hits.
//
// The category with more hits wins; equal counts go to the higher mean
// similarity, and a further tie goes to A. Confidence is the winner's mean
// similarity clamped to [0.5, 0.95]. Below cfg.SimilarityThreshold the result
// is rejected as Unknown at 0.2, keeping the hits for diagnostics.
func (d *VectorDeterminer) Determine(ctx context.Context, text string, cfg model.ThresholdConfig) model.VectorResult {
	if !d.index.Loaded() {
		return reject(nil)
	}

	query := d.embedder.Embed(ctx, text)
	if query.IsZero() {
		d.logger.Debug("Degenerate query embedding", "chars", len(text))
		return reject(nil)
	}

	var merged []model.ScoredChunk
	for _, cat := range model.Categories() {
		merged = append(merged, d.index.Search(cat, query, d.topK, cfg.RetrievalFloor)...)
	}
	index.SortScored(merged)
	if len(merged) > TopResults {
		merged = merged[:TopResults]
	}
	if len(merged) == 0 {
		return reject(nil)
	}

	res := model.VectorResult{TopResults: merged}
	var sumA, sumB float64
	for _, r := range merged {
		switch r.Chunk.Metadata.Category {
		case model.CategoryA:
			res.HitsA++
			sumA += r.Similarity
		case model.CategoryB:
			res.HitsB++
			sumB += r.Similarity
		}
	}
	if res.HitsA > 0 {
		res.MeanA = sumA / float64(res.HitsA)
	}
	if res.HitsB > 0 {
		res.MeanB = sumB / float64(res.HitsB)
	}

	winner, mean := model.CategoryA, res.MeanA
	switch {
	case res.HitsB > res.HitsA:
		winner, mean = model.CategoryB, res.MeanB
	case res.HitsB == res.HitsA && res.MeanB > res.MeanA:
		winner, mean = model.CategoryB, res.MeanB
	}

	confidence := clamp(mean, 0.5, model.MaxConfidence)
	if confidence < cfg.SimilarityThreshold {
		rejected := reject(merged)
		rejected.HitsA, rejected.HitsB = res.HitsA, res.HitsB
		rejected.MeanA, rejected.MeanB = res.MeanA, res.MeanB
		return rejected
	}

	res.Category = winner
	res.Confidence = confidence
	return res
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
