// Package segment splits a label photo into the nutrition-table region and
// the rest of the label.
package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/fogleman/gg"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the segment package
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// DefaultMargin is how far, in pixels, the mask is pulled in horizontally
// from the detected left and right edges of the table.
const DefaultMargin = 7.5

// Point is an image coordinate. It is encoded as a two-element array.
type Point struct {
	X, Y float64
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var xy []float64
	if err := json.Unmarshal(data, &xy); err != nil {
		return err
	}
	if len(xy) != 2 {
		return fmt.Errorf("point must have 2 coordinates, got %d", len(xy))
	}
	p.X, p.Y = xy[0], xy[1]
	return nil
}

// Region is a detected table quadrilateral.
type Region struct {
	LeftTop     Point `json:"lt"`
	RightTop    Point `json:"rt"`
	RightBottom Point `json:"rb"`
	LeftBottom  Point `json:"lb"`
}

// Detector finds table regions in an encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]Region, error)
}

// Result is the outcome of a successful segmentation.
type Result struct {
	Region Region
	// Table is the rectified table region.
	Table image.Image
	// Background is the original image with the table area painted white.
	Background image.Image
}

// Segmenter isolates the first detected table region.
type Segmenter struct {
	detector Detector
	margin   float64
}

// New returns a Segmenter using detector and DefaultMargin.
func New(detector Detector) *Segmenter {
	return &Segmenter{detector: detector, margin: DefaultMargin}
}

// Segment detects tables in img. found is false when no table was
// detected, which is a normal outcome rather than an error.
func (s *Segmenter) Segment(ctx context.Context, img image.Image) (res *Result, found bool, err error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, false, fmt.Errorf("encode image for detector: %w", err)
	}

	regions, err := s.detector.Detect(ctx, buf.Bytes())
	if err != nil {
		return nil, false, fmt.Errorf("detect table: %w", err)
	}
	if len(regions) == 0 {
		log.Debug("No table region detected")
		return nil, false, nil
	}
	if len(regions) > 1 {
		log.Debugf("Detected %d table regions, using the first", len(regions))
	}
	region := regions[0]

	table, err := Rectify(img, region)
	if err != nil {
		return nil, false, fmt.Errorf("rectify table: %w", err)
	}

	return &Result{
		Region:     region,
		Table:      table,
		Background: Mask(img, region, s.margin),
	}, true, nil
}

// Mask returns a copy of img with the region filled white. The left
// corners are moved right and the right corners left by margin pixels so
// text touching the table border survives.
func Mask(img image.Image, r Region, margin float64) image.Image {
	dc := gg.NewContextForImage(img)
	dc.MoveTo(r.LeftTop.X+margin, r.LeftTop.Y)
	dc.LineTo(r.RightTop.X-margin, r.RightTop.Y)
	dc.LineTo(r.RightBottom.X-margin, r.RightBottom.Y)
	dc.LineTo(r.LeftBottom.X+margin, r.LeftBottom.Y)
	dc.ClosePath()
	dc.SetColor(color.White)
	dc.Fill()
	return dc.Image()
}
