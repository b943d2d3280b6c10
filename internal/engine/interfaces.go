package engine

import "github.com/Veraticus/modality/internal/model"

// Searcher is the read side of the chunk index.
type Searcher interface {
	Loaded() bool
	Search(category model.Category, query model.Vector, topK int, minSimilarity float64) []model.ScoredChunk
}

// RuleScorer classifies text without an index.
type RuleScorer interface {
	Classify(text string) model.RuleResult
}
