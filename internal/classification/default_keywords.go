package classification

import "github.com/Veraticus/modality/internal/model"

// DefaultKeywordSets returns the built-in indicator and condition phrases.
func DefaultKeywordSets() []KeywordSet {
	return []KeywordSet{
		// Cognitive-behavioral indicators
		{
			Name:     "cbt-general",
			Category: model.CategoryA,
			Group:    GroupGeneral,
			Patterns: []string{
				`\bcatastrophi[sz]\w*`,
				`\bnegative (thoughts?|thinking)\b`,
				`\boverthink\w*`,
				`\bworr(y|ying|ied|ies)\b`,
				`\bruminat\w*`,
				`\bcognitive distortions?\b`,
				`\bself[- ]talk\b`,
				`\b(automatic|intrusive) thoughts?\b`,
				`\bwhat if\b`,
				`\bworst[- ]case\b`,
				`\bprocrastinat\w*`,
				`\bperfectionis\w*`,
				`\bself[- ]esteem\b`,
				`\bavoid(ing|ance)?\b`,
				`\bnervous\b`,
				`\bcan'?t stop thinking\b`,
			},
		},
		{
			Name:     "cbt-conditions",
			Category: model.CategoryA,
			Group:    GroupCondition,
			Patterns: []string{
				`\banxi(ety|ous)\b`,
				`\bdepress(ion|ed)\b`,
				`\bpanic\w*`,
				`\bphobias?\b`,
				`\bOCD\b`,
				`\bobsessive[- ]compulsive\b`,
				`\binsomnia\b`,
				`\bPTSD\b`,
			},
		},
		// Dialectical-behavioral indicators
		{
			Name:     "dbt-general",
			Category: model.CategoryB,
			Group:    GroupGeneral,
			Patterns: []string{
				`\bcontrol(ling)?\s+(my\s+)?emotions?\b`,
				`\bemotion(al)? regulation\b`,
				`\bregulat(e|ing) (my )?emotions?\b`,
				`\bintense emotions?\b`,
				`\bemotionally (intense|unstable|numb)\b`,
				`\bfurious\b`,
				`\brage\b`,
				`\boutbursts?\b`,
				`\bmood swings?\b`,
				`\bimpulsiv\w*`,
				`\bdistress\b`,
				`\bone minute\b.*\bthe next\b`,
				`\boverwhelm\w*`,
				`\bunstable relationships?\b`,
				`\babandon\w*`,
				`\bempt(y|iness)\b`,
				`\bout of control\b`,
				`\bself[- ]destructive\b`,
				`\bcrisis\b`,
			},
		},
		{
			Name:     "dbt-conditions",
			Category: model.CategoryB,
			Group:    GroupCondition,
			Patterns: []string{
				`\bborderline\b`,
				`\bBPD\b`,
				`\bbipolar\b`,
				`\bself[- ]harm\w*`,
				`\bcutting myself\b`,
				`\beating disorders?\b`,
				`\bsuicid\w*`,
				`\bsubstance (use|abuse)\b`,
				`\baddict\w*`,
				`\bbinge\w*`,
			},
		},
	}
}
