package extraction

import (
	"regexp"
	"strings"
	"unicode"
)

// Confidence assigned per rule kind, before text-quality scaling.
const (
	confidenceIDPattern = 0.95
	confidenceLabeled   = 0.9
	confidencePattern   = 0.8
	confidenceDerived   = 0.7
	confidenceName      = 0.6
	confidenceAddress   = 0.55
	confidenceKeyValue  = 0.5
)

const datePattern = `\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2}`

// genericPattern is a document-independent regex rule.
type genericPattern struct {
	key        string
	re         *regexp.Regexp
	confidence float64
}

var genericPatterns = []genericPattern{
	{"email", regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), confidenceIDPattern},
	{"phone", regexp.MustCompile(`\b(?:\+91[\s-]?)?[6-9]\d{9}\b`), confidencePattern},
	{"aadhaar", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`), confidencePattern},
	{"pan", regexp.MustCompile(`\b[A-Z]{5}\d{4}[A-Z]\b`), confidenceIDPattern},
	{"pincode", regexp.MustCompile(`\b\d{6}\b`), confidencePattern},
	{"date", regexp.MustCompile(`\b(?:` + datePattern + `)\b`), confidencePattern},
}

var (
	dobPattern    = regexp.MustCompile(`(?i)\b(?:DOB|D\.O\.B\.?|Date of Birth|Birth Date|Year of Birth|YOB)\s*[:\-/]?\s*(` + datePattern + `|\d{4})\b`)
	genderPattern = regexp.MustCompile(`(?i)\b(male|female|transgender)\b`)
	twoDigits     = regexp.MustCompile(`\d{2,}`)
	nonNameChars  = regexp.MustCompile(`[^A-Za-z\s.]`)
	keyValueLine  = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z .'/()]{1,39}?)\s*:\s*(\S.{0,199})$`)
)

// line is one line of the parsed text with its byte offset.
type line struct {
	text   string
	offset int
}

// splitLines returns lines with their starting offsets in text.
func splitLines(text string) []line {
	var out []line
	offset := 0
	for _, l := range strings.SplitAfter(text, "\n") {
		out = append(out, line{text: strings.TrimRight(l, "\r\n"), offset: offset})
		offset += len(l)
	}
	return out
}

func span(start, end int, rule string) *Span {
	return &Span{Start: start, End: end, Rule: rule}
}

// firstSubmatch returns the first capture group of re in text.
func firstSubmatch(re *regexp.Regexp, text, key, rule string, confidence float64) (Field, bool) {
	loc := re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Field{}, false
	}
	start, end := loc[0], loc[1]
	if len(loc) >= 4 && loc[2] >= 0 {
		start, end = loc[2], loc[3]
	}
	value := strings.TrimSpace(text[start:end])
	if value == "" {
		return Field{}, false
	}
	return Field{Key: key, Value: value, Confidence: confidence, SourceSpan: span(start, end, rule)}, true
}

// labeledValue finds "Label: value" on one line, or a line holding only the
// label followed by the value on the next non-empty line.
func labeledValue(lines []line, key string, labels ...string) (Field, bool) {
	alts := make([]string, len(labels))
	for i, l := range labels {
		alts[i] = regexp.QuoteMeta(l)
	}
	group := `(?:` + strings.Join(alts, "|") + `)`
	inline := regexp.MustCompile(`(?i)^\s*` + group + `\s*[:\-]\s*(\S.*?)\s*$`)
	alone := regexp.MustCompile(`(?i)^\s*` + group + `\s*:?\s*$`)

	for i, l := range lines {
		if m := inline.FindStringSubmatchIndex(l.text); m != nil {
			return Field{
				Key:        key,
				Value:      l.text[m[2]:m[3]],
				Confidence: confidenceLabeled,
				SourceSpan: span(l.offset+m[2], l.offset+m[3], "labeled:"+key),
			}, true
		}
		if !alone.MatchString(l.text) {
			continue
		}
		for _, next := range lines[i+1:] {
			v := strings.TrimSpace(next.text)
			if v == "" {
				continue
			}
			start := next.offset + strings.Index(next.text, v)
			return Field{
				Key:        key,
				Value:      v,
				Confidence: confidenceLabeled,
				SourceSpan: span(start, start+len(v), "labeled:"+key),
			}, true
		}
	}
	return Field{}, false
}

func dobField(text string) (Field, bool) {
	return firstSubmatch(dobPattern, text, "dob", "labeled:dob", confidenceLabeled)
}

func genderField(text string) (Field, bool) {
	f, ok := firstSubmatch(genderPattern, text, "gender", "keyword:gender", confidencePattern)
	if ok {
		f.Value = titleCase(f.Value)
	}
	return f, ok
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

var nameSkipWords = map[string]bool{
	"government": true, "india": true, "aadhaar": true, "unique": true, "authority": true,
	"male": true, "female": true, "dob": true, "birth": true, "year": true, "card": true,
	"number": true, "address": true, "pin": true, "code": true, "state": true,
	"district": true, "post": true, "income": true, "tax": true, "department": true,
	"permanent": true, "account": true, "republic": true, "signature": true, "photo": true,
	"date": true, "issue": true, "issued": true, "enrollment": true, "enrolment": true,
	"help": true, "resident": true, "identity": true, "www": true, "uidai": true,
	"election": true, "commission": true, "passport": true, "licence": true, "license": true,
	"driving": true, "transport": true, "name": true, "father": true,
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func isNameCandidate(text string) bool {
	if len(text) < 3 || len(text) > 100 {
		return false
	}
	if twoDigits.MatchString(text) || nonNameChars.MatchString(text) {
		return false
	}
	words := strings.Fields(text)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		if nameSkipWords[strings.ToLower(strings.Trim(w, "."))] {
			return false
		}
		if strings.Trim(w, ".") == "" {
			return false
		}
	}
	if !unicode.IsUpper(rune(words[0][0])) {
		return false
	}
	return letterCount(text) >= 4
}

// nameField picks the longest plausible personal-name line, preferring
// candidates with at least six letters.
func nameField(lines []line) (Field, bool) {
	var best *line
	bestLen := 0
	for i := range lines {
		t := strings.TrimSpace(lines[i].text)
		if !isNameCandidate(t) {
			continue
		}
		n := letterCount(t)
		better := n > bestLen
		if bestLen > 0 && bestLen < 6 && n >= 6 {
			better = true
		}
		if better {
			best, bestLen = &lines[i], n
		}
	}
	if best == nil {
		return Field{}, false
	}
	v := strings.TrimSpace(best.text)
	start := best.offset + strings.Index(best.text, v)
	return Field{
		Key:        "name",
		Value:      v,
		Confidence: confidenceName,
		SourceSpan: span(start, start+len(v), "heuristic:name"),
	}, true
}

var addressMarkers = []string{"s/o", "c/o", "d/o", "w/o", "street", "road", "village", "address"}

// addressField joins the first address-looking line with up to three
// following non-trivial lines.
func addressField(lines []line) (Field, bool) {
	for i, l := range lines {
		t := strings.TrimSpace(l.text)
		lower := strings.ToLower(t)
		marked := false
		for _, m := range addressMarkers {
			if strings.Contains(lower, m) {
				marked = true
				break
			}
		}
		if !marked {
			continue
		}
		if strings.HasPrefix(lower, "address") {
			t = strings.TrimSpace(strings.TrimLeft(t[len("address"):], " :-"))
		}
		parts := []string{}
		if t != "" {
			parts = append(parts, t)
		}
		end := min(i+4, len(lines))
		last := l
		for _, next := range lines[i+1 : end] {
			nt := strings.TrimSpace(next.text)
			if len(nt) > 3 {
				parts = append(parts, nt)
				last = next
			}
		}
		addr := strings.Join(parts, " ")
		if len(addr) <= 20 {
			continue
		}
		if len(addr) > 200 {
			addr = addr[:200]
		}
		return Field{
			Key:        "address",
			Value:      addr,
			Confidence: confidenceAddress,
			SourceSpan: span(l.offset, last.offset+len(last.text), "heuristic:address"),
		}, true
	}
	return Field{}, false
}

// keyValueFields scans for generic "label: value" lines.
func keyValueFields(lines []line) []Field {
	var out []Field
	seen := map[string]bool{}
	for _, l := range lines {
		m := keyValueLine.FindStringSubmatchIndex(l.text)
		if m == nil {
			continue
		}
		key := NormalizeKey(l.text[m[2]:m[3]])
		if key == "" || seen[key] {
			continue
		}
		value := strings.TrimSpace(l.text[m[4]:m[5]])
		if value == "" {
			continue
		}
		seen[key] = true
		out = append(out, Field{
			Key:        key,
			Value:      value,
			Confidence: confidenceKeyValue,
			SourceSpan: span(l.offset+m[4], l.offset+m[5], "key_value"),
		})
	}
	return out
}

// patternFields applies the generic regexes, first match per key.
func patternFields(text string) []Field {
	var out []Field
	for _, p := range genericPatterns {
		if f, ok := firstSubmatch(p.re, text, p.key, "pattern:"+p.key, p.confidence); ok {
			out = append(out, f)
		}
	}
	return out
}
