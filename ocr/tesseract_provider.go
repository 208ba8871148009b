//go:build tesseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractProvider runs a local Tesseract engine. Text lines become
// fragments and Tesseract's blocks become blocks.
type TesseractProvider struct {
	languages []string
}

func newTesseractProvider(config Config) (*TesseractProvider, error) {
	return &TesseractProvider{languages: tesseractLanguages(config)}, nil
}

func (p *TesseractProvider) Recognize(ctx context.Context, imageContent []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(p.languages...); err != nil {
		return nil, fmt.Errorf("error setting tesseract languages: %w", err)
	}
	if err := client.SetImageFromBytes(imageContent); err != nil {
		return nil, fmt.Errorf("error loading image into tesseract: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("error running tesseract: %w", err)
	}

	result := &Result{
		Blocks: boxesToBlocks(toTextBoxes(boxes)),
		Metadata: map[string]string{
			"provider":  "tesseract",
			"languages": strings.Join(p.languages, "+"),
		},
	}
	log.WithField("fragments", result.FragmentCount()).Debug("Tesseract recognition completed")
	return result, nil
}

func toTextBoxes(boxes []gosseract.BoundingBox) []textBox {
	out := make([]textBox, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, textBox{Rect: b.Box, Text: b.Word, Block: b.BlockNum})
	}
	return out
}
