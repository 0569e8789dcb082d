package extraction

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"github.com/a3tai/doc-autofill/internal/document"
	"github.com/a3tai/doc-autofill/internal/logger"
)

// Extractor turns documents into labelled fields.
type Extractor struct {
	parser     document.Parser
	classifier *Classifier
}

// NewExtractor wires a parser and classifier together.
func NewExtractor(parser document.Parser, classifier *Classifier) *Extractor {
	return &Extractor{parser: parser, classifier: classifier}
}

// Extract parses doc and derives its fields. It fails with *Error when the
// document is not a PDF, cannot be read or yields nothing.
func (e *Extractor) Extract(ctx context.Context, doc *document.Document) (*Result, error) {
	if doc != nil && doc.MediaType != document.MediaTypePDF {
		return nil, newError(UnsupportedFormat, document.ErrUnsupportedMediaType,
			"%v: %q (only %s is accepted)", document.ErrUnsupportedMediaType, doc.MediaType, document.MediaTypePDF)
	}
	if doc == nil || doc.Size() == 0 {
		return nil, newError(UnreadableContent, document.ErrEmpty, "%v", document.ErrEmpty)
	}

	parsed, err := e.parser.Parse(ctx, doc)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		switch {
		case errors.Is(err, document.ErrUnsupportedMediaType):
			return nil, newError(UnsupportedFormat, err, "%v", err)
		case errors.Is(err, document.ErrEmpty), errors.Is(err, document.ErrUnreadable):
			return nil, newError(UnreadableContent, err, "%v", err)
		}
		return nil, newError(UnreadableContent, err, "failed to parse document: %v", err)
	}
	if parsed.TextLength() == 0 {
		return nil, newError(UnreadableContent, nil, "no text could be read from %s", docName(doc))
	}

	quality := 1.0
	if parsed.Source == document.SourceOCR || parsed.Source == document.SourceMixed {
		quality = math.Max(0.5, math.Min(1.0, parsed.OCRConfidence))
	}

	result, err := e.ExtractText(ctx, parsed.Text(), quality)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "document extracted",
		"document", docName(doc),
		"document_type", result.DocumentType,
		"fields", len(result.Fields),
		"parse", parsed)
	return result, nil
}

// ExtractText runs classification and the selected template over already
// parsed text. quality scales every field confidence and must be in (0, 1].
func (e *Extractor) ExtractText(ctx context.Context, text string, quality float64) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, newError(UnreadableContent, nil, "document contains no text")
	}

	cls, err := e.classifier.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	tmpl := TemplateFor(cls.Type)

	var s fieldSet
	for _, f := range tmpl.Extract(text) {
		s.add(f, true)
	}
	for _, f := range patternFields(text) {
		// A bare date stands in for the date of birth on identity documents.
		if f.Key == "date" && tmpl.Allows("dob") && !tmpl.Allows("date") {
			f.Key = "dob"
			f.Confidence = confidenceDerived
		}
		if f.Key == "date" && s.has("dob") {
			continue
		}
		s.add(f, true)
	}

	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if !tmpl.Allows(f.Key) {
			continue
		}
		f.Confidence = round2(f.Confidence * quality)
		fields = append(fields, f)
	}
	orderFields(fields, tmpl)

	if len(fields) == 0 {
		return nil, newError(NoFieldsFound, nil, "no %s fields could be located", tmpl.Type)
	}
	return &Result{
		DocumentType:             tmpl.Type,
		ClassificationConfidence: round2(cls.Confidence),
		Fields:                   fields,
		TextLength:               len(strings.TrimSpace(text)),
	}, nil
}

// orderFields sorts by template key order; unknown keys keep discovery order
// after the known ones.
func orderFields(fields []Field, tmpl Template) {
	rank := make(map[string]int, len(tmpl.Keys))
	for i, k := range tmpl.Keys {
		rank[k] = i
	}
	pos := func(f Field) int {
		if r, ok := rank[f.Key]; ok {
			return r
		}
		return len(rank)
	}
	sort.SliceStable(fields, func(i, j int) bool { return pos(fields[i]) < pos(fields[j]) })
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func docName(doc *document.Document) string {
	if doc.Name == "" {
		return "document"
	}
	return doc.Name
}
