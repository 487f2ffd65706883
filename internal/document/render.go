package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Pdftoppm renders PDF pages with pdftoppm (poppler-utils). It renders what
// a viewer shows, not the embedded image objects.
type Pdftoppm struct {
	// Binary defaults to "pdftoppm" on PATH.
	Binary string
	// DPI defaults to 300.
	DPI int
}

// Available reports whether the pdftoppm binary can be found.
func (p Pdftoppm) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

func (p Pdftoppm) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return "pdftoppm"
}

// RenderPage renders one page (1-indexed) to PNG.
func (p Pdftoppm) RenderPage(ctx context.Context, pdf []byte, page int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		return nil, errors.New("page numbers start at 1")
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 300
	}

	tmpDir, err := os.MkdirTemp("", "ocrion-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	src := filepath.Join(tmpDir, "doc.pdf")
	if err := os.WriteFile(src, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	// -singlefile writes <prefix>.png without a page suffix.
	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, p.binary(),
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		src,
		prefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
