//go:build !ocr

package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutOCRSupport(t *testing.T) {
	assert.False(t, Available)

	d, err := New(Config{})
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
	assert.Nil(t, d)

	var tess *Tesseract
	_, err = tess.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrDetectorUnavailable)
	assert.NoError(t, tess.Close())
}
