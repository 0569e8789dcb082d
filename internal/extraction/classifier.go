package extraction

import (
	"context"
	"fmt"
	"regexp"
	"sort"
)

// DefaultMinClassificationConfidence is the score below which a document
// is treated as generic.
const DefaultMinClassificationConfidence = 0.25

// Classification is the chosen template plus the runners-up.
type Classification struct {
	Type         DocumentType
	Confidence   float64
	Alternatives []Alternative
	Reasons      []string
}

// Alternative is a lower-scoring candidate type.
type Alternative struct {
	Type       DocumentType
	Confidence float64
}

type compiledRule struct {
	ClassificationRule
	keywords []*regexp.Regexp
	patterns []*regexp.Regexp
}

// Classifier performs rule-based document type detection.
type Classifier struct {
	rules           []compiledRule
	minConfidence   float64
	maxAlternatives int
}

// NewClassifier compiles the default rules plus any extra rules. Invalid
// patterns are rejected up front.
func NewClassifier(extra ...ClassificationRule) (*Classifier, error) {
	c := &Classifier{
		minConfidence:   DefaultMinClassificationConfidence,
		maxAlternatives: 2,
	}
	for _, rule := range append(defaultRules(), extra...) {
		if !rule.Enabled {
			continue
		}
		cr := compiledRule{ClassificationRule: rule}
		for _, kw := range rule.Keywords {
			cr.keywords = append(cr.keywords, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		for _, p := range rule.KeywordPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("rule %s: invalid pattern %q: %w", rule.Name, p, err)
			}
			cr.patterns = append(cr.patterns, re)
		}
		c.rules = append(c.rules, cr)
	}
	return c, nil
}

// Classify scores text against every rule. Ties resolve to the rule
// declared first so the result is deterministic.
func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	scores := make(map[DocumentType]float64)
	order := make([]DocumentType, 0, len(c.rules))
	reasons := make(map[DocumentType][]string)

	for _, rule := range c.rules {
		if err := ctx.Err(); err != nil {
			return Classification{}, err
		}
		confidence, why := rule.evaluate(text)
		if confidence < rule.MinConfidence {
			continue
		}
		if _, seen := scores[rule.DocumentType]; !seen {
			order = append(order, rule.DocumentType)
		}
		scores[rule.DocumentType] += confidence * rule.Weight
		reasons[rule.DocumentType] = append(reasons[rule.DocumentType], why...)
	}

	primary, best := DocumentTypeGeneric, 0.0
	for _, dt := range order {
		if scores[dt] > best {
			primary, best = dt, scores[dt]
		}
	}
	if best > 1.0 {
		best = 1.0
	}
	if best < c.minConfidence {
		primary = DocumentTypeGeneric
	}

	result := Classification{Type: primary, Confidence: best, Reasons: reasons[primary]}
	for _, dt := range order {
		if dt == primary {
			continue
		}
		result.Alternatives = append(result.Alternatives, Alternative{Type: dt, Confidence: min(scores[dt], 1.0)})
	}
	sort.SliceStable(result.Alternatives, func(i, j int) bool {
		return result.Alternatives[i].Confidence > result.Alternatives[j].Confidence
	})
	if len(result.Alternatives) > c.maxAlternatives {
		result.Alternatives = result.Alternatives[:c.maxAlternatives]
	}
	return result, nil
}

// evaluate sums keyword hits (0.1 each) and pattern hits (0.15 each).
func (r compiledRule) evaluate(text string) (float64, []string) {
	var confidence float64
	var reasons []string

	for i, re := range r.keywords {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			confidence += 0.1 * float64(n)
			reasons = append(reasons, fmt.Sprintf("Found keyword '%s' %d times", r.Keywords[i], n))
		}
	}
	for i, re := range r.patterns {
		if n := len(re.FindAllStringIndex(text, -1)); n > 0 {
			confidence += 0.15 * float64(n)
			reasons = append(reasons, fmt.Sprintf("Pattern '%s' matched %d times", r.KeywordPatterns[i], n))
		}
	}
	return confidence, reasons
}
