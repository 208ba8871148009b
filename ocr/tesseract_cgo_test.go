//go:build tesseract

package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderTesseract(t *testing.T) {
	p, err := NewProvider(Config{Provider: "tesseract"})
	require.NoError(t, err)
	assert.Equal(t, []string{"chi_tra", "eng"}, p.(*TesseractProvider).languages)
}
