// Package matcher maps extracted document fields onto discovered form
// descriptors.
package matcher

import (
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/a3tai/doc-autofill/internal/extraction"
	"github.com/a3tai/doc-autofill/internal/form"
)

// DefaultThreshold is the minimum score a pair needs to be assigned.
const DefaultThreshold = 0.45

// Score weights.
const (
	synonymWeight     = 0.7
	overlapWeight     = 0.3
	overlapOnlyWeight = 0.6
	containBase       = 0.6
	containCoverage   = 0.35
	prefilledFactor   = 0.8
	unfillableFactor  = 0.5
	unknownKindFactor = 0.8
)

// Config tunes a Matcher. Zero values select the defaults.
type Config struct {
	Threshold float64
	// Synonyms extends the built-in phrase lists, keyed by extracted key.
	Synonyms map[string][]string
}

// Match pairs one extracted key with one descriptor. Applied is set once
// the automation session reports the value written.
type Match struct {
	ExtractedKey      string  `json:"extracted_key"`
	DescriptorLocator string  `json:"descriptor_locator"`
	Score             float64 `json:"score"`
	Applied           bool    `json:"applied"`
}

// Matcher scores and assigns key/descriptor pairs. It is safe for
// concurrent use.
type Matcher struct {
	threshold float64
	synonyms  map[string][]string
	// owners maps each exact phrase to the keys that claim it.
	owners map[string][]string
}

// New builds a Matcher from cfg.
func New(cfg Config) *Matcher {
	m := &Matcher{
		threshold: cfg.Threshold,
		synonyms:  make(map[string][]string, len(builtinSynonyms)+len(cfg.Synonyms)),
	}
	if m.threshold <= 0 {
		m.threshold = DefaultThreshold
	}
	for k, phrases := range builtinSynonyms {
		m.synonyms[k] = normalizeAll(phrases)
	}
	for k, phrases := range cfg.Synonyms {
		key := canonicalKey(k)
		m.synonyms[key] = append(m.synonyms[key], normalizeAll(phrases)...)
	}
	m.owners = make(map[string][]string)
	for k := range m.synonyms {
		for _, p := range m.phrases(k) {
			m.owners[p] = append(m.owners[p], k)
		}
	}
	return m
}

// Threshold returns the configured acceptance threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

type candidate struct {
	field int
	desc  int
	score float64
}

// Match assigns fields to descriptors greedily by descending score. Each
// key and each descriptor is used at most once and no pair below the
// threshold is returned. Scores are rounded before the threshold applies.
// Matches come back in field order.
func (m *Matcher) Match(fields []extraction.Field, descriptors []form.Descriptor) []Match {
	var cands []candidate
	for i, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		for j, d := range descriptors {
			if d.Locator == "" {
				continue
			}
			if s := round(m.Score(f, d)); s >= m.threshold {
				cands = append(cands, candidate{field: i, desc: j, score: s})
			}
		}
	}
	sort.SliceStable(cands, func(a, b int) bool { return cands[a].score > cands[b].score })

	usedField := make(map[int]bool)
	usedKey := make(map[string]bool)
	usedLocator := make(map[string]bool)
	picked := make(map[int]candidate)
	for _, c := range cands {
		key := fields[c.field].Key
		loc := descriptors[c.desc].Locator
		if usedField[c.field] || usedKey[key] || usedLocator[loc] {
			continue
		}
		usedField[c.field] = true
		usedKey[key] = true
		usedLocator[loc] = true
		picked[c.field] = c
	}

	out := make([]Match, 0, len(picked))
	for i := range fields {
		c, ok := picked[i]
		if !ok {
			continue
		}
		out = append(out, Match{
			ExtractedKey:      fields[i].Key,
			DescriptorLocator: descriptors[c.desc].Locator,
			Score:             c.score,
		})
	}
	return out
}

// Score rates how well field f fits descriptor d, in [0, 1].
func (m *Matcher) Score(f extraction.Field, d form.Descriptor) float64 {
	key := canonicalKey(f.Key)
	phrases := m.phrases(key)
	keyTokens := tokens(strings.ReplaceAll(key, "_", " "))

	var syn, overlap float64
	if ac := autocompleteKeys[strings.ToLower(strings.TrimSpace(d.Autocomplete))]; ac != "" && ac == key {
		syn = 1
	}
	texts := d.Texts()
	if len(texts) == 0 && d.Name != "" {
		texts = []string{d.Name}
	}
	for _, t := range texts {
		nt := normalize(t)
		if nt == "" {
			continue
		}
		claimed := m.claimedElsewhere(key, nt)
		for _, p := range phrases {
			ps := phraseScore(nt, p)
			if ps < 1 && claimed {
				continue
			}
			syn = max(syn, ps)
		}
		overlap = max(overlap, jaccard(keyTokens, tokens(nt)))
	}

	score := max(syn*(synonymWeight+overlapWeight*overlap), overlapOnlyWeight*overlap)
	score *= compatibility(key, f.Value, d)
	if !d.Fillable() {
		score *= unfillableFactor
	} else if d.Prefilled {
		score *= prefilledFactor
	}
	return min(score, 1)
}

func (m *Matcher) phrases(key string) []string {
	own := normalize(strings.ReplaceAll(key, "_", " "))
	out := []string{own}
	for _, p := range m.synonyms[key] {
		if p != own {
			out = append(out, p)
		}
	}
	return out
}

// claimedElsewhere reports whether text is an exact phrase of a key other
// than key.
func (m *Matcher) claimedElsewhere(key, text string) bool {
	for _, k := range m.owners[text] {
		if k != key {
			return true
		}
	}
	return false
}

// phraseScore is 1 for an exact label, and for a phrase contained on word
// boundaries it grows with the share of the label the phrase covers. A
// label that names someone else ("Father's Name" around "name") scores 0
// unless the phrase carries that qualifier itself.
func phraseScore(text, phrase string) float64 {
	if phrase == "" {
		return 0
	}
	if text == phrase {
		return 1
	}
	if !strings.Contains(" "+text+" ", " "+phrase+" ") {
		return 0
	}
	own := strings.Fields(phrase)
	for _, w := range strings.Fields(text) {
		if qualifiers[w] && !slices.Contains(own, w) {
			return 0
		}
	}
	coverage := float64(len(strings.Fields(phrase))) / float64(len(strings.Fields(text)))
	return containBase + containCoverage*coverage
}

// compatibility scales a score by whether value can be written into an
// element of d's kind.
func compatibility(key, value string, d form.Descriptor) float64 {
	_, isDate := form.ParseDate(value)
	switch d.Kind {
	case form.KindCheckbox:
		if isDate {
			return 0
		}
		if d.Control == form.ControlToggle {
			if form.Truthy(value) {
				return 1
			}
			return 0
		}
		return optionCompat(d, value)
	case form.KindDate:
		if isDate {
			return 1
		}
		return 0
	case form.KindEmail:
		if strings.Contains(value, "@") {
			return 1
		}
		return 0
	case form.KindSelect, form.KindRadio:
		return optionCompat(d, value)
	case form.KindUnknown:
		return unknownKindFactor
	}
	if key == "email" && !strings.Contains(value, "@") {
		return unknownKindFactor
	}
	return 1
}

func optionCompat(d form.Descriptor, value string) float64 {
	if len(d.Options) == 0 {
		return unknownKindFactor
	}
	if _, ok := d.OptionFor(value); ok {
		return 1
	}
	return 0
}

func canonicalKey(k string) string {
	key := extraction.NormalizeKey(k)
	if key == "date" {
		return "dob"
	}
	return key
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// normalize lowercases s, drops possessive 's and collapses everything
// that is not a letter or digit into single spaces.
func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("'s ", " ", "’s ", " ").Replace(s + " ")
	return strings.TrimSpace(nonWord.ReplaceAllString(s, " "))
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(normalize(s)) {
		if !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func round(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
