// Package document validates uploaded documents and turns them into a single
// raster page for text detection.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrEmpty           = errors.New("empty document")
	ErrTooLarge        = errors.New("document too large")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrMultiPage       = errors.New("only single-page documents are supported")
	ErrCorrupt         = errors.New("document could not be decoded")
	ErrNoRenderer      = errors.New("no PDF renderer available")
)

const mimePDF = "application/pdf"

// Limits bounds accepted uploads.
type Limits struct {
	MaxSize      int64
	AllowedTypes []string
}

// Document is a validated single-page upload.
type Document struct {
	Name     string
	MIMEType string
	Size     int64
	// Image is the raster page handed to text detection. For images it is
	// the upload itself; for PDFs it is the rendered page.
	Image  []byte
	Width  int
	Height int
}

// Dimensions returns "WIDTHxHEIGHT".
func (d *Document) Dimensions() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// Renderer rasterizes one page of a PDF.
type Renderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error)
}

// Reader validates uploads against Limits.
type Reader struct {
	limits   Limits
	allowed  map[string]bool
	renderer Renderer
}

// NewReader creates a Reader. renderer may be nil, in which case PDFs are
// rejected with ErrNoRenderer.
func NewReader(limits Limits, renderer Renderer) *Reader {
	allowed := make(map[string]bool, len(limits.AllowedTypes))
	for _, t := range limits.AllowedTypes {
		allowed[normalizeType(t)] = true
	}
	return &Reader{limits: limits, allowed: allowed, renderer: renderer}
}

// Read consumes at most MaxSize+1 bytes from r and loads the document.
func (r *Reader) Read(ctx context.Context, name string, rd io.Reader) (*Document, error) {
	limit := r.limits.MaxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return r.Load(ctx, name, data)
}

// Load validates data and prepares its page image.
func (r *Reader) Load(ctx context.Context, name string, data []byte) (*Document, error) {
	size := int64(len(data))
	if size == 0 {
		return nil, ErrEmpty
	}
	if r.limits.MaxSize > 0 && size > r.limits.MaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d bytes", ErrTooLarge, size, r.limits.MaxSize)
	}

	mimeType := DetectType(data)
	if !r.allowed[mimeType] {
		return nil, fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedType, mimeType, strings.Join(r.limits.AllowedTypes, ", "))
	}

	doc := &Document{Name: name, MIMEType: mimeType, Size: size, Image: data}

	if mimeType == mimePDF {
		img, err := r.renderPDF(ctx, data)
		if err != nil {
			return nil, err
		}
		doc.Image = img
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(doc.Image))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrCorrupt)
	}
	doc.Width, doc.Height = cfg.Width, cfg.Height
	return doc, nil
}

func (r *Reader) renderPDF(ctx context.Context, data []byte) ([]byte, error) {
	pages, err := PageCount(data)
	if err != nil {
		return nil, err
	}
	if pages != 1 {
		return nil, fmt.Errorf("%w: document has %d pages", ErrMultiPage, pages)
	}
	if r.renderer == nil {
		return nil, ErrNoRenderer
	}
	img, err := r.renderer.RenderPage(ctx, data, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to render PDF page: %w", err)
	}
	return img, nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: PDF has no pages", ErrCorrupt)
	}
	return n, nil
}

// DetectType sniffs the MIME type of data from its leading bytes.
func DetectType(data []byte) string {
	// TIFF is not among the signatures net/http knows.
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	mimeType := http.DetectContentType(data)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return normalizeType(mimeType)
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}
