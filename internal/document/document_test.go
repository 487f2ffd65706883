package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

var allTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/tiff", "image/bmp", "application/pdf"}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.Black)
	}
	return img
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

// minimalPDF builds a valid PDF with the given number of empty pages.
func minimalPDF(pages int) []byte {
	var objs []string
	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

type fakeRenderer struct {
	img   []byte
	err   error
	calls int
}

func (f *fakeRenderer) RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error) {
	f.calls++
	return f.img, f.err
}

func TestLoad_Images(t *testing.T) {
	r := NewReader(Limits{MaxSize: 5 << 20, AllowedTypes: allTypes}, nil)

	var jpg, bm, tf bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(30, 20), nil))
	require.NoError(t, bmp.Encode(&bm, testImage(12, 8)))
	require.NoError(t, tiff.Encode(&tf, testImage(9, 7), nil))

	tests := []struct {
		name string
		data []byte
		mime string
		dims string
	}{
		{"png", pngBytes(t, 40, 10), "image/png", "40x10"},
		{"jpeg", jpg.Bytes(), "image/jpeg", "30x20"},
		{"bmp", bm.Bytes(), "image/bmp", "12x8"},
		{"tiff", tf.Bytes(), "image/tiff", "9x7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := r.Load(context.Background(), "scan."+tt.name, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.mime, doc.MIMEType)
			assert.Equal(t, tt.dims, doc.Dimensions())
			assert.Equal(t, int64(len(tt.data)), doc.Size)
			assert.Equal(t, tt.data, doc.Image)
		})
	}
}

func TestLoad_Rejections(t *testing.T) {
	r := NewReader(Limits{MaxSize: 1024, AllowedTypes: []string{"image/png"}}, nil)

	_, err := r.Load(context.Background(), "empty", nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = r.Load(context.Background(), "big.png", make([]byte, 2048))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = r.Load(context.Background(), "notes.txt", []byte("just some text"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Contains(t, err.Error(), "text/plain")

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(4, 4), nil))
	_, err = r.Load(context.Background(), "photo.jpg", jpg.Bytes())
	assert.ErrorIs(t, err, ErrUnsupportedType)

	corrupt := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	_, err = r.Load(context.Background(), "broken.png", corrupt)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_SizeLimitIsInclusive(t *testing.T) {
	data := pngBytes(t, 8, 8)
	r := NewReader(Limits{MaxSize: int64(len(data)), AllowedTypes: []string{"image/png"}}, nil)
	_, err := r.Load(context.Background(), "x.png", data)
	assert.NoError(t, err)
}

func TestLoad_JPGAlias(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(4, 4), nil))
	r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: []string{"image/jpg"}}, nil)
	doc, err := r.Load(context.Background(), "x.jpg", jpg.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", doc.MIMEType)
}

func TestLoad_PDF(t *testing.T) {
	rendered := pngBytes(t, 612, 792)

	t.Run("single page is rendered", func(t *testing.T) {
		fr := &fakeRenderer{img: rendered}
		r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: allTypes}, fr)

		doc, err := r.Load(context.Background(), "invoice.pdf", minimalPDF(1))
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", doc.MIMEType)
		assert.Equal(t, rendered, doc.Image)
		assert.Equal(t, "612x792", doc.Dimensions())
		assert.Equal(t, 1, fr.calls)
	})

	t.Run("multi page is rejected", func(t *testing.T) {
		fr := &fakeRenderer{img: rendered}
		r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: allTypes}, fr)

		_, err := r.Load(context.Background(), "book.pdf", minimalPDF(3))
		assert.ErrorIs(t, err, ErrMultiPage)
		assert.Contains(t, err.Error(), "3 pages")
		assert.Equal(t, 0, fr.calls)
	})

	t.Run("no renderer", func(t *testing.T) {
		r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: allTypes}, nil)
		_, err := r.Load(context.Background(), "invoice.pdf", minimalPDF(1))
		assert.ErrorIs(t, err, ErrNoRenderer)
	})

	t.Run("render failure", func(t *testing.T) {
		r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: allTypes}, &fakeRenderer{err: errors.New("boom")})
		_, err := r.Load(context.Background(), "invoice.pdf", minimalPDF(1))
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("corrupt pdf", func(t *testing.T) {
		r := NewReader(Limits{MaxSize: 1 << 20, AllowedTypes: allTypes}, &fakeRenderer{img: rendered})
		_, err := r.Load(context.Background(), "bad.pdf", []byte("%PDF-1.4\nnot really a pdf"))
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestRead_StopsAtLimit(t *testing.T) {
	r := NewReader(Limits{MaxSize: 100, AllowedTypes: allTypes}, nil)
	_, err := r.Read(context.Background(), "big", bytes.NewReader(make([]byte, 1<<20)))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Contains(t, err.Error(), "101 bytes")
}

func TestDetectType(t *testing.T) {
	assert.Equal(t, "image/tiff", DetectType([]byte("II*\x00rest")))
	assert.Equal(t, "image/tiff", DetectType([]byte("MM\x00*rest")))
	assert.Equal(t, "application/pdf", DetectType([]byte("%PDF-1.7\n")))
	assert.Equal(t, "text/plain", DetectType([]byte("hello")))
}

func TestPdftoppm(t *testing.T) {
	p := Pdftoppm{}
	if !p.Available() {
		t.Skip("pdftoppm not installed")
	}
	img, err := p.RenderPage(context.Background(), minimalPDF(1), 1)
	require.NoError(t, err)
	assert.Equal(t, "image/png", DetectType(img))
}
