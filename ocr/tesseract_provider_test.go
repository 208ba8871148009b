package ocr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxesToBlocks(t *testing.T) {
	boxes := []textBox{
		{Rect: image.Rect(0, 50, 100, 70), Text: "淨重: 100g", Block: 2},
		{Rect: image.Rect(0, 10, 100, 30), Text: "品名: 餅乾\n", Block: 1},
		{Rect: image.Rect(0, 90, 100, 99), Text: "  ", Block: 3},
	}

	blocks := boxesToBlocks(boxes)
	require.Len(t, blocks, 2)
	assert.Equal(t, "品名: 餅乾", blocks[0].Lines[0].Text)
	assert.Equal(t, []Point{{0, 10}, {100, 10}, {100, 30}, {0, 30}}, blocks[0].Lines[0].BoundingPolygon)
	assert.Equal(t, "品名: 餅乾\n淨重: 100g", Reassemble(blocks, nil))
}

func TestTesseractLanguages(t *testing.T) {
	assert.Equal(t, []string{"chi_tra", "eng"}, tesseractLanguages(Config{}))
	assert.Equal(t, []string{"jpn"}, tesseractLanguages(Config{TesseractLanguages: []string{"jpn"}}))
}
