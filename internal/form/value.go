package form

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02/01/06",
	"02-01-06",
	"02.01.2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ParseDate reads the day-first and ISO date spellings found on Indian
// identity documents.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// OptionFor picks the option best matching value: an exact label or value
// match first, then containment in either direction.
func (d Descriptor) OptionFor(value string) (Option, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Option{}, false
	}
	for _, o := range d.Options {
		if strings.ToLower(o.Label) == v || strings.ToLower(o.Value) == v {
			return o, true
		}
	}
	for _, o := range d.Options {
		label := strings.ToLower(o.Label)
		if label == "" {
			continue
		}
		if strings.Contains(label, v) || strings.Contains(v, label) {
			return o, true
		}
	}
	return Option{}, false
}

// Truthy reports whether value reads as an affirmative answer for a
// single checkbox.
func Truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y", "true", "1", "on", "checked", "agree", "i agree":
		return true
	}
	return false
}
