package document

import (
	"context"
	"errors"
)

// ErrOCRUnavailable is returned by NewTesseract when the binary was built
// without the tesseract tag.
var ErrOCRUnavailable = errors.New("ocr support not compiled in (build with -tags tesseract)")

// Recognition is one OCR pass over a page image.
type Recognition struct {
	Text       string
	Confidence float64
}

// OCR recognizes text in raster page images.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (Recognition, error)
}
