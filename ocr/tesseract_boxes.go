package ocr

import (
	"image"
	"sort"
	"strings"
)

// textBox is one recognized text line as reported by Tesseract
type textBox struct {
	Rect  image.Rectangle
	Text  string
	Block int
}

func tesseractLanguages(config Config) []string {
	if len(config.TesseractLanguages) == 0 {
		return []string{"chi_tra", "eng"}
	}
	return config.TesseractLanguages
}

// boxesToBlocks groups lines by Tesseract block number, in block order
func boxesToBlocks(boxes []textBox) []Block {
	byBlock := make(map[int][]Fragment)
	var order []int
	for _, b := range boxes {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}
		if _, seen := byBlock[b.Block]; !seen {
			order = append(order, b.Block)
		}
		r := b.Rect
		byBlock[b.Block] = append(byBlock[b.Block], Fragment{
			Text: text,
			BoundingPolygon: []Point{
				{X: float64(r.Min.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Min.Y)},
				{X: float64(r.Max.X), Y: float64(r.Max.Y)},
				{X: float64(r.Min.X), Y: float64(r.Max.Y)},
			},
		})
	}
	sort.Ints(order)

	blocks := make([]Block, 0, len(order))
	for _, n := range order {
		blocks = append(blocks, Block{Lines: byBlock[n]})
	}
	return blocks
}
