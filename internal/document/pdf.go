package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/a3tai/doc-autofill/internal/logger"
)

const (
	// DefaultMinTextLength is the text-layer length below which OCR runs.
	DefaultMinTextLength = 200
	// DefaultOCRPages bounds how many leading pages are rasterised for OCR.
	DefaultOCRPages = 3

	maxTextSize = 10 * 1024 * 1024 // 10MB text limit
)

var pdfMagic = []byte("%PDF-")

// PDFParser reads the embedded text layer with ledongthuc/pdf and falls
// back to OCR of embedded page images (pulled out with pdfcpu) when the
// text layer is too thin to extract from.
type PDFParser struct {
	ocr           OCR
	minTextLength int
	ocrPages      int

	// swappable in tests
	readText   func(data []byte) ([]string, error)
	readImages func(data []byte, pages int) ([]pageImage, error)
}

type pageImage struct {
	page int
	data []byte
}

// PDFOption configures a PDFParser.
type PDFOption func(*PDFParser)

// WithOCR enables the OCR fallback.
func WithOCR(engine OCR) PDFOption {
	return func(p *PDFParser) { p.ocr = engine }
}

// WithMinTextLength overrides DefaultMinTextLength.
func WithMinTextLength(n int) PDFOption {
	return func(p *PDFParser) { p.minTextLength = n }
}

// NewPDFParser creates a PDF parser.
func NewPDFParser(opts ...PDFOption) *PDFParser {
	p := &PDFParser{
		minTextLength: DefaultMinTextLength,
		ocrPages:      DefaultOCRPages,
		readText:      readTextLayer,
		readImages:    readPageImages,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts page text, using OCR on scanned documents when available.
func (p *PDFParser) Parse(ctx context.Context, doc *Document) (*Parsed, error) {
	data := doc.data
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, fmt.Errorf("%w: missing PDF header", ErrUnreadable)
	}

	pages, err := p.readText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	parsed := &Parsed{Pages: pages, PageCount: len(pages), Source: SourceText}
	if parsed.TextLength() >= p.minTextLength {
		return parsed, nil
	}

	log := logger.WithContext(ctx)
	images, err := p.readImages(data, p.ocrPages)
	if err != nil {
		log.Warn("embedded image extraction failed", "document", doc.Name, "error", err)
	}
	parsed.ImageCount = len(images)

	if p.ocr == nil || len(images) == 0 {
		if parsed.TextLength() == 0 {
			parsed.Source = SourceNone
		}
		return parsed, nil
	}

	log.Info("text layer too short, running OCR",
		"document", doc.Name, "text_length", parsed.TextLength(), "images", len(images))

	var (
		ocrText []string
		confSum float64
		confN   int
	)
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := p.ocr.Recognize(ctx, img.data)
		if err != nil {
			log.Warn("ocr failed", "page", img.page, "error", err)
			continue
		}
		if rec.Text == "" {
			continue
		}
		ocrText = append(ocrText, rec.Text)
		confSum += rec.Confidence
		confN++
	}
	if confN == 0 {
		if parsed.TextLength() == 0 {
			parsed.Source = SourceNone
		}
		return parsed, nil
	}

	parsed.OCRConfidence = confSum / float64(confN)
	if parsed.TextLength() == 0 {
		parsed.Pages = ocrText
		parsed.Source = SourceOCR
	} else {
		parsed.Pages = append(parsed.Pages, ocrText...)
		parsed.Source = SourceMixed
	}
	return parsed, nil
}

// readTextLayer returns the plain text of each page. Pages that fail to
// decode contribute an empty string so page numbering stays aligned.
func readTextLayer(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := 0
	for pageNum := 1; pageNum <= r.NumPage(); pageNum++ {
		page := r.Page(pageNum)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, perr := pageText(page)
		if perr != nil {
			pages = append(pages, "")
			continue
		}
		if total+len(content) > maxTextSize {
			pages = append(pages, content[:maxTextSize-total])
			break
		}
		total += len(content)
		pages = append(pages, content)
	}
	return pages, nil
}

func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page text panic: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// readPageImages pulls raw embedded images from the first n pages.
func readPageImages(data []byte, n int) ([]pageImage, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	rs := bytes.NewReader(data)
	if _, err := api.ReadContext(rs, conf); err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	selected := []string{fmt.Sprintf("1-%d", n)}
	raw, err := api.ExtractImagesRaw(rs, selected, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	var out []pageImage
	for _, byObj := range raw {
		objNrs := make([]int, 0, len(byObj))
		for objNr := range byObj {
			objNrs = append(objNrs, objNr)
		}
		sort.Ints(objNrs)
		for _, objNr := range objNrs {
			img := byObj[objNr]
			if img.Reader == nil {
				continue
			}
			b, err := io.ReadAll(img)
			if err != nil || len(b) == 0 {
				continue
			}
			out = append(out, pageImage{page: img.PageNr, data: b})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].page < out[j].page })
	return out, nil
}

var _ Parser = (*PDFParser)(nil)

// LogValue lets a Parsed be logged as a group.
func (p *Parsed) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("pages", p.PageCount),
		slog.String("source", string(p.Source)),
		slog.Int("text_length", p.TextLength()),
	)
}
