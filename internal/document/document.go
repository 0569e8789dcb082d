// Package document holds uploaded documents and turns their bytes into text
// the field extractor can work on.
package document

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// MediaTypePDF is the only media type accepted at the upload boundary.
const MediaTypePDF = "application/pdf"

var (
	// ErrUnsupportedMediaType is returned for any declared type other than PDF.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrTooLarge is returned when the payload exceeds the configured limit.
	ErrTooLarge = errors.New("document too large")
	// ErrEmpty is returned for zero-length payloads.
	ErrEmpty = errors.New("document is empty")
	// ErrUnreadable wraps parser failures on malformed input.
	ErrUnreadable = errors.New("document is unreadable")
)

// Document is an uploaded payload plus its declared media type. It is
// never written to disk.
type Document struct {
	Name      string
	MediaType string
	data      []byte
}

// New validates the declared media type and size and returns an immutable
// Document. maxSize <= 0 disables the size check.
func New(name, mediaType string, data []byte, maxSize int64) (*Document, error) {
	mt, err := normalizeMediaType(mediaType)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrTooLarge, len(data), maxSize)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return &Document{Name: name, MediaType: mt, data: buf}, nil
}

func normalizeMediaType(declared string) (string, error) {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, declared)
	}
	mt = strings.ToLower(mt)
	if mt != MediaTypePDF {
		return "", fmt.Errorf("%w: %s (only %s is accepted)", ErrUnsupportedMediaType, mt, MediaTypePDF)
	}
	return mt, nil
}

// Bytes returns a copy of the payload.
func (d *Document) Bytes() []byte {
	out := make([]byte, len(d.data))
	copy(out, d.data)
	return out
}

// Size returns the payload length in bytes.
func (d *Document) Size() int64 { return int64(len(d.data)) }

// Source describes where the parsed text came from.
type Source string

const (
	SourceText  Source = "text"
	SourceOCR   Source = "ocr"
	SourceMixed Source = "mixed"
	SourceNone  Source = "no_content"
)

// Parsed is the parser output consumed by the extractor.
type Parsed struct {
	Pages      []string
	PageCount  int
	ImageCount int
	Source     Source
	// OCRConfidence is the mean word confidence (0..1) when OCR contributed.
	OCRConfidence float64
}

// Text joins all page texts with newlines.
func (p *Parsed) Text() string {
	return strings.Join(p.Pages, "\n")
}

// TextLength is the length of the trimmed combined text.
func (p *Parsed) TextLength() int {
	return len(strings.TrimSpace(p.Text()))
}

// Parser turns a document into text.
type Parser interface {
	Parse(ctx context.Context, doc *Document) (*Parsed, error)
}
