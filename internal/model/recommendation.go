package model

// Confidence bounds shared by every classifier.
const (
	// RejectConfidence is reported only on the reject, unknown and degenerate paths.
	RejectConfidence = 0.2
	// MaxConfidence caps every calibrated confidence.
	MaxConfidence = 0.95
)

// Source names the classifier whose answer was adopted.
type Source string

// Classifier sources.
const (
	SourceVector Source = "vector"
	SourceRule   Source = "rule"
)

// Reason explains why the arbiter adopted a source.
type Reason string

// Arbitration reasons.
const (
	ReasonIndexNotLoaded Reason = "index_not_loaded"
	ReasonAgreement      Reason = "agreement"
	ReasonRuleOverride   Reason = "rule_override"
	ReasonRuleMargin     Reason = "rule_margin"
	ReasonVectorMargin   Reason = "vector_margin"
	ReasonVectorTieBreak Reason = "vector_tie_break"
	ReasonVectorDefault  Reason = "vector_default"
)

// RuleResult is the keyword classifier's verdict.
type RuleResult struct {
	Category   Category `json:"category"`
	MatchedA   []string `json:"matched_a"`
	MatchedB   []string `json:"matched_b"`
	Confidence float64  `json:"confidence"`
	ScoreA     float64  `json:"score_a"`
	ScoreB     float64  `json:"score_b"`
}

// VectorResult is the retrieval-based verdict.
type VectorResult struct {
	Category   Category      `json:"category"`
	TopResults []ScoredChunk `json:"-"`
	Confidence float64       `json:"confidence"`
	HitsA      int           `json:"hits_a"`
	HitsB      int           `json:"hits_b"`
	MeanA      float64       `json:"mean_a"`
	MeanB      float64       `json:"mean_b"`
}

// Explanation records both sub-results and how the arbiter chose between them.
type Explanation struct {
	Vector *VectorResult `json:"vector,omitempty"`
	Chosen Source        `json:"chosen"`
	Reason Reason        `json:"reason"`
	Detail string        `json:"detail"`
	Rule   RuleResult    `json:"rule"`
}

// Recommendation is the final answer for one query. It is a value with no identity.
type Recommendation struct {
	Category         Category      `json:"category"`
	SupportingChunks []ScoredChunk `json:"supporting_chunks"`
	Explanation      Explanation   `json:"explanation"`
	Confidence       float64       `json:"confidence"`
}
