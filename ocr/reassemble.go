package ocr

import (
	"math"
	"sort"
	"strings"
)

// BandTolerance is the vertical distance in pixels within which fragments
// are treated as sitting on the same visual line.
const BandTolerance = 5

// Reassemble rebuilds reading-order text from positioned fragments.
// Fragments are bucketed by the rounded mean y of their polygon: a
// fragment joins the first existing band (in creation order) whose key is
// within BandTolerance, otherwise it opens a new band. Bands are emitted
// top to bottom, fragments inside a band keep input order. Finally every
// occurrence of a section marker that does not already start a line is
// moved onto a new line.
func Reassemble(blocks []Block, markers []string) string {
	var keys []int
	bands := make(map[int][]string)

	for _, block := range blocks {
		for _, fragment := range block.Lines {
			y := int(math.RoundToEven(meanY(fragment.BoundingPolygon)))
			key := y
			for _, k := range keys {
				if abs(y-k) <= BandTolerance {
					key = k
					break
				}
			}
			if _, exists := bands[key]; !exists {
				keys = append(keys, key)
			}
			bands[key] = append(bands[key], fragment.Text)
		}
	}

	sorted := append([]int(nil), keys...)
	sort.Ints(sorted)

	lines := make([]string, 0, len(sorted))
	for _, k := range sorted {
		lines = append(lines, strings.Join(bands[k], " "))
	}
	text := strings.Join(lines, "\n")

	for _, marker := range markers {
		text = breakBefore(text, marker)
	}
	return text
}

func meanY(polygon []Point) float64 {
	if len(polygon) == 0 {
		return 0
	}
	var sum float64
	for _, p := range polygon {
		sum += p.Y
	}
	return sum / float64(len(polygon))
}

// breakBefore inserts a newline before each occurrence of marker unless it
// is already at the start of a line.
func breakBefore(text, marker string) string {
	if marker == "" || !strings.Contains(text, marker) {
		return text
	}
	var b strings.Builder
	rest := text
	offset := 0
	for {
		i := strings.Index(rest, marker)
		if i < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:i])
		pos := offset + i
		if pos > 0 && text[pos-1] != '\n' {
			b.WriteByte('\n')
		}
		b.WriteString(marker)
		rest = rest[i+len(marker):]
		offset = pos + len(marker)
	}
	return b.String()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
