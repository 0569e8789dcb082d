package extraction

// ClassificationRule scores how strongly a document's text indicates a type.
type ClassificationRule struct {
	Name            string
	DocumentType    DocumentType
	Keywords        []string
	KeywordPatterns []string
	Weight          float64
	MinConfidence   float64
	Enabled         bool
}

// defaultRules returns the built-in identity document rules.
func defaultRules() []ClassificationRule {
	return []ClassificationRule{
		{
			Name:         "aadhaar_keywords",
			DocumentType: DocumentTypeAadhaar,
			Keywords: []string{
				"aadhaar", "aadhar", "uidai", "unique identification authority",
				"enrolment", "enrollment", "vid", "mera aadhaar",
			},
			KeywordPatterns: []string{
				`\b\d{4}\s\d{4}\s\d{4}\b`,
				`(?i)\b(?:year of birth|yob)\b`,
			},
			Weight:        1.0,
			MinConfidence: 0.2,
			Enabled:       true,
		},
		{
			Name:         "pan_keywords",
			DocumentType: DocumentTypePAN,
			Keywords: []string{
				"income tax department", "permanent account number", "pan card",
				"govt. of india",
			},
			KeywordPatterns: []string{
				`\b[A-Z]{5}\d{4}[A-Z]\b`,
			},
			Weight:        1.0,
			MinConfidence: 0.2,
			Enabled:       true,
		},
		{
			Name:         "passport_keywords",
			DocumentType: DocumentTypePassport,
			Keywords: []string{
				"passport", "republic of india", "nationality", "place of issue",
				"date of expiry", "given name",
			},
			KeywordPatterns: []string{
				`P<IND`,
				`\b[A-Z]\d{7}\b`,
			},
			Weight:        1.0,
			MinConfidence: 0.25,
			Enabled:       true,
		},
		{
			Name:         "driving_licence_keywords",
			DocumentType: DocumentTypeDrivingLicence,
			Keywords: []string{
				"driving licence", "driving license", "transport department",
				"licence no", "dl no", "valid till", "cov", "motor vehicles",
			},
			KeywordPatterns: []string{
				`\b[A-Z]{2}[-\s]?\d{2}[-\s]?\d{4}[-\s]?\d{7}\b`,
			},
			Weight:        1.0,
			MinConfidence: 0.2,
			Enabled:       true,
		},
		{
			Name:         "voter_id_keywords",
			DocumentType: DocumentTypeVoterID,
			Keywords: []string{
				"election commission", "elector", "epic", "voter", "electoral",
			},
			KeywordPatterns: []string{
				`\b[A-Z]{3}\d{7}\b`,
			},
			Weight:        1.0,
			MinConfidence: 0.2,
			Enabled:       true,
		},
	}
}
