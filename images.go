package main

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

const fullScope = "full"

// normalizeScope returns the canonical form of an OCR scope: "full" or the
// compact JSON of the four percentages.
func normalizeScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == fullScope {
		return fullScope, nil
	}
	values, err := parseScope(scope)
	if err != nil {
		return "", err
	}
	out, _ := json.Marshal(values)
	return string(out), nil
}

// parseScope reads a scope of the form [height%, width%, x%, y%].
func parseScope(scope string) ([4]float64, error) {
	var values []float64
	if err := json.Unmarshal([]byte(scope), &values); err != nil {
		return [4]float64{}, fmt.Errorf("invalid OCR scope %q: %w", scope, err)
	}
	if len(values) != 4 {
		return [4]float64{}, fmt.Errorf("invalid OCR scope %q: want [height, width, x, y]", scope)
	}
	for _, v := range values {
		if v < 0 || v > 100 {
			return [4]float64{}, fmt.Errorf("invalid OCR scope %q: percentages must be within 0..100", scope)
		}
	}
	return [4]float64{values[0], values[1], values[2], values[3]}, nil
}

// cropToScope crops img to the percentage box described by scope. The box
// is clamped to the image and is at least one pixel in each direction.
func cropToScope(img image.Image, scope string) (image.Image, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == fullScope {
		return img, nil
	}
	values, err := parseScope(scope)
	if err != nil {
		return nil, err
	}
	height, width, x, y := values[0], values[1], values[2], values[3]

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	left := clamp(percentOf(x, w), 0, w-1)
	top := clamp(percentOf(y, h), 0, h-1)
	cw := clamp(percentOf(width, w), 1, w-left)
	ch := clamp(percentOf(height, h), 1, h-top)

	rect := image.Rect(b.Min.X+left, b.Min.Y+top, b.Min.X+left+cw, b.Min.Y+top+ch)
	return imaging.Crop(img, rect), nil
}

func percentOf(p float64, total int) int {
	return int(math.RoundToEven(p / 100 * float64(total)))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// isImage reports whether content looks like an image.
func isImage(content []byte) bool {
	return strings.HasPrefix(mimetype.Detect(content).String(), "image/")
}
