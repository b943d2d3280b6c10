package model

import "time"

// TestCase is one labelled query.
type TestCase struct {
	ID       string   `json:"id" yaml:"id"`
	Query    string   `json:"query" yaml:"query"`
	Expected Category `json:"expected" yaml:"expected"`
}

// CaseResult is the outcome of running one test case.
type CaseResult struct {
	CaseID     string   `json:"case_id"`
	Query      string   `json:"query"`
	Expected   Category `json:"expected"`
	Predicted  Category `json:"predicted"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
	Correct    bool     `json:"correct"`
}

// Metrics summarises one evaluation under a fixed threshold config.
type Metrics struct {
	Results       []CaseResult    `json:"results"`
	Config        ThresholdConfig `json:"config"`
	Accuracy      float64         `json:"accuracy"`
	AvgConfidence float64         `json:"avg_confidence"`
	Total         int             `json:"total"`
	Correct       int             `json:"correct"`
}

// EvalRun is a persisted evaluation keyed by a version tag.
type EvalRun struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	Metrics   Metrics   `json:"metrics"`
}
