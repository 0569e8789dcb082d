//go:build !tesseract

package document

import "context"

// Tesseract is unavailable in builds without the tesseract tag.
type Tesseract struct{}

// NewTesseract always fails without the tesseract build tag.
func NewTesseract(...string) (*Tesseract, error) {
	return nil, ErrOCRUnavailable
}

func (*Tesseract) Recognize(context.Context, []byte) (Recognition, error) {
	return Recognition{}, ErrOCRUnavailable
}
