package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"labelproof/internal/extract"
	"labelproof/internal/record"
	"labelproof/internal/segment"
	"labelproof/ocr"
)

var (
	// ErrNoTableDetected means the label has no detectable nutrition table.
	// It is a final outcome, retrying will not change it.
	ErrNoTableDetected = errors.New("no nutrition table detected")
	// ErrImageDecode means the label image could not be decoded.
	ErrImageDecode = errors.New("cannot decode label image")
	// ErrNoText means OCR recognized nothing on one of the image parts.
	ErrNoText = errors.New("OCR produced no text")
)

// LabelPipeline turns a label photo into a structured record.
type LabelPipeline struct {
	segmenter    *segment.Segmenter
	ocr          ocr.Provider
	orchestrator *Orchestrator
	template     *record.Template
	markers      []string
}

// NewLabelPipeline creates a LabelPipeline. template may be nil to skip
// validation of the merged record.
func NewLabelPipeline(segmenter *segment.Segmenter, provider ocr.Provider, orchestrator *Orchestrator, template *record.Template, markers []string) *LabelPipeline {
	return &LabelPipeline{
		segmenter:    segmenter,
		ocr:          provider,
		orchestrator: orchestrator,
		template:     template,
		markers:      markers,
	}
}

// DecodeImage decodes an encoded image, applying EXIF orientation.
func DecodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return img, nil
}

// LabelTexts are the reassembled texts of the two label parts.
type LabelTexts struct {
	Main      string
	Nutrition string
}

// Recognize segments img and reassembles the OCR text of the table and of
// the rest of the label.
func (p *LabelPipeline) Recognize(ctx context.Context, img image.Image) (*LabelTexts, error) {
	seg, found, err := p.segmenter.Segment(ctx, img)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoTableDetected
	}

	main, err := p.recognizePart(ctx, "main", seg.Background)
	if err != nil {
		return nil, err
	}
	nutrition, err := p.recognizePart(ctx, "nutrition", seg.Table)
	if err != nil {
		return nil, err
	}
	return &LabelTexts{Main: main, Nutrition: nutrition}, nil
}

func (p *LabelPipeline) recognizePart(ctx context.Context, part string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode %s image: %w", part, err)
	}
	result, err := p.ocr.Recognize(ctx, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("OCR %s image: %w", part, err)
	}
	text := ocr.Reassemble(result.Blocks, p.markers)
	log.WithFields(logrus.Fields{
		"part":      part,
		"fragments": result.FragmentCount(),
		"length":    len(text),
	}).Debug("Reassembled OCR text")
	if text == "" {
		return "", fmt.Errorf("%w on %s image", ErrNoText, part)
	}
	return text, nil
}

// Run processes an encoded label image into a validated record.
func (p *LabelPipeline) Run(ctx context.Context, imageData []byte) (*record.Record, error) {
	img, err := DecodeImage(imageData)
	if err != nil {
		return nil, err
	}
	return p.RunImage(ctx, img)
}

// RunImage processes an already decoded label image.
func (p *LabelPipeline) RunImage(ctx context.Context, img image.Image) (*record.Record, error) {
	texts, err := p.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	merged, err := p.orchestrator.ExtractCombined(ctx, texts.Main, texts.Nutrition)
	if err != nil {
		return nil, err
	}

	if p.template != nil {
		if err := p.template.Validate(merged); err != nil {
			var cerr *record.ConformanceError
			var missing []string
			if errors.As(err, &cerr) {
				missing = cerr.Missing
			}
			return nil, &extract.Error{Kind: extract.KindSchemaMismatch, Missing: missing, Err: err}
		}
	}
	return merged, nil
}
