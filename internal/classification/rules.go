// Package classification provides the keyword-based approach classifier.
package classification

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/Veraticus/modality/internal/model"
)

// Group separates general indicator phrases from named conditions.
type Group string

const (
	// GroupGeneral holds general indicator phrases.
	GroupGeneral Group = "general"
	// GroupCondition holds named clinical conditions.
	GroupCondition Group = "condition"
)

// Default group weights. Named conditions count one and a half times as much.
const (
	GeneralWeight   = 1.0
	ConditionWeight = 1.5
)

// KeywordSet is a named list of patterns voting for one category.
type KeywordSet struct {
	Name     string
	Category model.Category
	Group    Group
	Patterns []string
	// Weight overrides the group weight when positive.
	Weight float64
}

type compiledSet struct {
	name     string
	patterns []*regexp.Regexp
	weight   float64
}

// RuleClassifier scores text against precompiled keyword sets.
// It holds no mutable state and is safe for concurrent use.
type RuleClassifier struct {
	sets  map[model.Category][]compiledSet
	count int
}

// NewRuleClassifier compiles every pattern once. Patterns are case-insensitive.
func NewRuleClassifier(sets []KeywordSet) (*RuleClassifier, error) {
	rc := &RuleClassifier{sets: make(map[model.Category][]compiledSet)}

	for _, set := range sets {
		if !set.Category.Valid() {
			return nil, fmt.Errorf("keyword set %s: invalid category %q", set.Name, set.Category)
		}

		weight := set.Weight
		if weight <= 0 {
			switch set.Group {
			case GroupGeneral:
				weight = GeneralWeight
			case GroupCondition:
				weight = ConditionWeight
			default:
				return nil, fmt.Errorf("keyword set %s: unknown group %q", set.Name, set.Group)
			}
		}

		cs := compiledSet{name: set.Name, weight: weight}
		for _, p := range set.Patterns {
			expr := p
			if !strings.HasPrefix(expr, "(?i)") {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %s: %w", p, err)
			}
			cs.patterns = append(cs.patterns, re)
			rc.count++
		}
		rc.sets[set.Category] = append(rc.sets[set.Category], cs)
	}

	return rc, nil
}

// NewDefaultRuleClassifier builds a classifier from DefaultKeywordSets.
func NewDefaultRuleClassifier() (*RuleClassifier, error) {
	return NewRuleClassifier(DefaultKeywordSets())
}

// PatternCount returns the number of compiled patterns.
func (rc *RuleClassifier) PatternCount() int {
	return rc.count
}

// Classify scores text and picks a category.
//
// Every regex match adds the set's weight to its category. On a zero or tied
// score the category with at least as many matched terms wins (A on a further
// tie) at confidence 0.5. Otherwise the higher score wins with confidence
// 0.5 + 0.1 per point of lead, capped at 0.95 and reduced by 0.2 (floor 0.3)
// when the winning score is below 1.
func (rc *RuleClassifier) Classify(text string) model.RuleResult {
	res := model.RuleResult{
		MatchedA: []string{},
		MatchedB: []string{},
	}
	res.ScoreA, res.MatchedA = rc.score(model.CategoryA, text)
	res.ScoreB, res.MatchedB = rc.score(model.CategoryB, text)

	if res.ScoreA == res.ScoreB {
		res.Category = model.CategoryA
		if len(res.MatchedB) > len(res.MatchedA) {
			res.Category = model.CategoryB
		}
		res.Confidence = 0.5
		return res
	}

	high, low := res.ScoreA, res.ScoreB
	res.Category = model.CategoryA
	if res.ScoreB > res.ScoreA {
		high, low = res.ScoreB, res.ScoreA
		res.Category = model.CategoryB
	}

	confidence := math.Min(0.5+0.1*(high-low), model.MaxConfidence)
	if high < 1 {
		confidence = math.Max(confidence-0.2, 0.3)
	}
	res.Confidence = confidence
	return res
}

func (rc *RuleClassifier) score(category model.Category, text string) (float64, []string) {
	var total float64
	matched := []string{}
	for _, set := range rc.sets[category] {
		for _, re := range set.patterns {
			for _, m := range re.FindAllString(text, -1) {
				total += set.weight
				matched = append(matched, strings.ToLower(m))
			}
		}
	}
	return total, matched
}
