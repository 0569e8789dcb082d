package extraction

import (
	"regexp"
	"strings"
)

// Template is a pure function from parsed text to candidate fields, plus
// the set of keys it may produce. A nil Keys slice means unrestricted.
type Template struct {
	Type    DocumentType
	Keys    []string
	Extract func(text string) []Field
}

// Allows reports whether key belongs to the template.
func (t Template) Allows(key string) bool {
	if t.Keys == nil {
		return true
	}
	for _, k := range t.Keys {
		if k == key {
			return true
		}
	}
	return false
}

var (
	passportNumber = regexp.MustCompile(`\b([A-Z]\d{7})\b`)
	dlNumber       = regexp.MustCompile(`\b([A-Z]{2}[-\s]?\d{2}[-\s]?\d{4}[-\s]?\d{7})\b`)
	epicNumber     = regexp.MustCompile(`\b([A-Z]{3}\d{7})\b`)
	aadhaarNumber  = regexp.MustCompile(`\b(\d{4}[\s-]\d{4}[\s-]\d{4})\b`)
	panNumber      = regexp.MustCompile(`\b([A-Z]{5}\d{4}[A-Z])\b`)
	relationOf     = regexp.MustCompile(`(?i)\b(?:S/?D/?W/?\s*of|S/O|D/O|W/O|Son of|Daughter of|Wife of)\s*[:\-]?\s*([A-Za-z][A-Za-z .]{2,60})`)
)

// fieldSet accumulates fields, first writer wins per key.
type fieldSet struct {
	fields []Field
	index  map[string]bool
}

func (s *fieldSet) add(f Field, ok bool) {
	if !ok || f.Value == "" {
		return
	}
	if s.index == nil {
		s.index = map[string]bool{}
	}
	if s.index[f.Key] {
		return
	}
	s.index[f.Key] = true
	s.fields = append(s.fields, f)
}

func (s *fieldSet) has(key string) bool { return s.index[key] }

func idNumber(re *regexp.Regexp, text, key string) (Field, bool) {
	return firstSubmatch(re, text, key, "pattern:"+key, confidenceIDPattern)
}

func extractAadhaar(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	s.add(labeledValue(lines, "name", "Name"))
	s.add(nameField(lines))
	s.add(dobField(text))
	s.add(genderField(text))
	s.add(idNumber(aadhaarNumber, text, "aadhaar"))
	s.add(addressField(lines))
	return s.fields
}

func extractPAN(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	s.add(idNumber(panNumber, text, "pan"))
	s.add(labeledValue(lines, "name", "Name"))
	s.add(labeledValue(lines, "father_name", "Father's Name", "Fathers Name", "Father Name"))
	s.add(nameField(lines))
	s.add(dobField(text))
	s.add(labeledValue(lines, "dob", "Date of Birth", "DOB"))
	return s.fields
}

func extractPassport(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	s.add(idNumber(passportNumber, text, "passport_number"))
	surname, hasSurname := labeledValue(lines, "surname", "Surname")
	given, hasGiven := labeledValue(lines, "given_name", "Given Name(s)", "Given Names", "Given Name")
	s.add(labeledValue(lines, "name", "Name"))
	if !s.has("name") && hasSurname && hasGiven {
		s.add(Field{
			Key:        "name",
			Value:      strings.TrimSpace(given.Value + " " + surname.Value),
			Confidence: confidenceDerived,
			SourceSpan: span(min(given.SourceSpan.Start, surname.SourceSpan.Start),
				max(given.SourceSpan.End, surname.SourceSpan.End), "derived:name"),
		}, true)
	}
	s.add(surname, hasSurname)
	s.add(given, hasGiven)
	s.add(labeledValue(lines, "nationality", "Nationality"))
	s.add(dobField(text))
	s.add(labeledValue(lines, "dob", "Date of Birth"))
	s.add(genderField(text))
	s.add(labeledValue(lines, "place_of_birth", "Place of Birth"))
	s.add(labeledValue(lines, "date_of_issue", "Date of Issue"))
	s.add(labeledValue(lines, "date_of_expiry", "Date of Expiry"))
	return s.fields
}

func extractDrivingLicence(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	s.add(idNumber(dlNumber, text, "dl_number"))
	s.add(labeledValue(lines, "name", "Name"))
	s.add(nameField(lines))
	s.add(firstSubmatch(relationOf, text, "father_name", "labeled:father_name", confidenceLabeled))
	s.add(dobField(text))
	s.add(labeledValue(lines, "valid_till", "Valid Till", "Validity", "Valid Upto"))
	s.add(addressField(lines))
	return s.fields
}

func extractVoterID(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	s.add(idNumber(epicNumber, text, "epic_number"))
	s.add(labeledValue(lines, "name", "Elector's Name", "Electors Name", "Name"))
	s.add(labeledValue(lines, "father_name", "Father's Name", "Husband's Name", "Fathers Name"))
	s.add(genderField(text))
	s.add(dobField(text))
	s.add(addressField(lines))
	return s.fields
}

func extractGeneric(text string) []Field {
	lines := splitLines(text)
	var s fieldSet
	for _, f := range keyValueFields(lines) {
		s.add(f, true)
	}
	s.add(nameField(lines))
	s.add(dobField(text))
	s.add(addressField(lines))
	return s.fields
}

var personalKeys = []string{"email", "phone", "pincode"}

// templates is the tagged-variant set selected by the classifier.
var templates = map[DocumentType]Template{
	DocumentTypeAadhaar: {
		Type:    DocumentTypeAadhaar,
		Keys:    append([]string{"name", "dob", "gender", "aadhaar", "address"}, personalKeys...),
		Extract: extractAadhaar,
	},
	DocumentTypePAN: {
		Type:    DocumentTypePAN,
		Keys:    []string{"pan", "name", "father_name", "dob"},
		Extract: extractPAN,
	},
	DocumentTypePassport: {
		Type: DocumentTypePassport,
		Keys: []string{
			"passport_number", "name", "surname", "given_name", "nationality", "dob",
			"gender", "place_of_birth", "date_of_issue", "date_of_expiry",
		},
		Extract: extractPassport,
	},
	DocumentTypeDrivingLicence: {
		Type:    DocumentTypeDrivingLicence,
		Keys:    append([]string{"dl_number", "name", "father_name", "dob", "valid_till", "address"}, personalKeys...),
		Extract: extractDrivingLicence,
	},
	DocumentTypeVoterID: {
		Type:    DocumentTypeVoterID,
		Keys:    []string{"epic_number", "name", "father_name", "gender", "dob", "address"},
		Extract: extractVoterID,
	},
	DocumentTypeGeneric: {
		Type:    DocumentTypeGeneric,
		Extract: extractGeneric,
	},
}

// TemplateFor returns the template for a document type, falling back to
// the generic template.
func TemplateFor(dt DocumentType) Template {
	if t, ok := templates[dt]; ok {
		return t
	}
	return templates[DocumentTypeGeneric]
}
