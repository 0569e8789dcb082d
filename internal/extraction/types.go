// Package extraction classifies identity documents and derives labelled
// personal-data fields from their text.
package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

// DocumentType identifies the extraction template applied to a document.
type DocumentType string

const (
	DocumentTypeAadhaar        DocumentType = "aadhaar"
	DocumentTypePAN            DocumentType = "pan"
	DocumentTypePassport       DocumentType = "passport"
	DocumentTypeDrivingLicence DocumentType = "driving_licence"
	DocumentTypeVoterID        DocumentType = "voter_id"
	DocumentTypeGeneric        DocumentType = "generic"
)

// Span records where in the parsed text a value was found.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Rule  string `json:"rule"`
}

// Field is one normalized key/value datum.
type Field struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceSpan *Span   `json:"source_span,omitempty"`
}

// Result is the extractor output for one document. Fields are ordered for
// display and keys are unique.
type Result struct {
	DocumentType             DocumentType `json:"document_type"`
	ClassificationConfidence float64      `json:"classification_confidence"`
	Fields                   []Field      `json:"fields"`
	TextLength               int          `json:"text_length"`
}

// Map returns the fields as key to value pairs.
func (r *Result) Map() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		out[f.Key] = f.Value
	}
	return out
}

// Keys returns field keys in display order.
func (r *Result) Keys() []string {
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	return keys
}

// Get looks up a field by key.
func (r *Result) Get(key string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Message is the human-readable summary returned to the caller.
func (r *Result) Message() string {
	return fmt.Sprintf("Successfully extracted %d fields", len(r.Fields))
}

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// keyAliases folds common label spellings onto canonical keys.
var keyAliases = map[string]string{
	"full_name":      "name",
	"applicant_name": "name",
	"elector_s_name": "name",
	"date_of_birth":  "dob",
	"birth_date":     "dob",
	"birthdate":      "dob",
	"d_o_b":          "dob",
	"mobile":         "phone",
	"mobile_no":      "phone",
	"mobile_number":  "phone",
	"phone_number":   "phone",
	"e_mail":         "email",
	"email_id":       "email",
	"pin_code":       "pincode",
	"pin":            "pincode",
	"sex":            "gender",
	"father_s_name":  "father_name",
	"aadhaar_no":     "aadhaar",
	"aadhaar_number": "aadhaar",
	"pan_no":         "pan",
	"pan_number":     "pan",
}

// NormalizeKey lowercases a label and collapses it to snake_case, folding
// known aliases onto canonical keys.
func NormalizeKey(label string) string {
	k := strings.Trim(nonKeyChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(label)), "_"), "_")
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}
