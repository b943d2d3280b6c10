package engine

import (
	"fmt"

	"github.com/Veraticus/modality/internal/model"
)

// marginEpsilon absorbs floating point drift when comparing confidence gaps.
const marginEpsilon = 1e-9

type decision struct {
	category   model.Category
	source     model.Source
	reason     model.Reason
	detail     string
	confidence float64
}

// arbitrate merges the two classifier outputs. The vector result is the
// default; the rule result is adopted when the vector side is unconfident and
// the rules are strongly confident, or when both are confident, they disagree
// and the rules lead by at least the configured margin.
func arbitrate(vec model.VectorResult, rule model.RuleResult, cfg model.ThresholdConfig, ruleOverride float64) decision {
	fromVector := func(reason model.Reason, detail string) decision {
		return decision{vec.Category, model.SourceVector, reason, detail, vec.Confidence}
	}
	fromRule := func(reason model.Reason, detail string) decision {
		return decision{rule.Category, model.SourceRule, reason, detail, rule.Confidence}
	}

	vecConfident := vec.Confidence >= cfg.MinConfidence
	ruleConfident := rule.Confidence >= cfg.MinConfidence

	switch {
	case !vecConfident && rule.Confidence > ruleOverride:
		return fromRule(model.ReasonRuleOverride, fmt.Sprintf(
			"vector confidence %.2f below %.2f and rule confidence %.2f above %.2f",
			vec.Confidence, cfg.MinConfidence, rule.Confidence, ruleOverride))

	case vecConfident && ruleConfident && vec.Category != rule.Category:
		gap := rule.Confidence - vec.Confidence
		switch {
		case gap >= cfg.RuleConfidenceBoost-marginEpsilon:
			return fromRule(model.ReasonRuleMargin, fmt.Sprintf(
				"classifiers disagree; rule leads by %.2f (margin %.2f)", gap, cfg.RuleConfidenceBoost))
		case -gap >= cfg.RuleConfidenceBoost-marginEpsilon:
			return fromVector(model.ReasonVectorMargin, fmt.Sprintf(
				"classifiers disagree; vector leads by %.2f (margin %.2f)", -gap, cfg.RuleConfidenceBoost))
		default:
			return fromVector(model.ReasonVectorTieBreak, fmt.Sprintf(
				"classifiers disagree within margin %.2f; keeping corpus evidence", cfg.RuleConfidenceBoost))
		}

	case vec.Category == rule.Category:
		return fromVector(model.ReasonAgreement, "classifiers agree")

	default:
		return fromVector(model.ReasonVectorDefault, "vector result kept by default")
	}
}

// supporting returns up to n top results belonging to category.
func supporting(top []model.ScoredChunk, category model.Category, n int) []model.ScoredChunk {
	out := []model.ScoredChunk{}
	if category == model.CategoryUnknown {
		return out
	}
	for _, r := range top {
		if len(out) >= n {
			break
		}
		if r.Chunk.Metadata.Category == category {
			out = append(out, r)
		}
	}
	return out
}
