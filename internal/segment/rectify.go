package segment

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

var errDegenerateRegion = errors.New("degenerate table region")

// Rectify warps the quadrilateral r of img onto an axis-aligned rectangle.
// The output width is the longer of the top and bottom edges, the height
// the longer of the left and right edges.
func Rectify(img image.Image, r Region) (*image.NRGBA, error) {
	width := int(math.Round(math.Max(dist(r.LeftTop, r.RightTop), dist(r.LeftBottom, r.RightBottom))))
	height := int(math.Round(math.Max(dist(r.LeftTop, r.LeftBottom), dist(r.RightTop, r.RightBottom))))
	if width < 2 || height < 2 {
		return nil, errDegenerateRegion
	}

	w, h := float64(width-1), float64(height-1)
	hm, err := homography(
		[4]Point{{0, 0}, {w, 0}, {w, h}, {0, h}},
		[4]Point{r.LeftTop, r.RightTop, r.RightBottom, r.LeftBottom},
	)
	if err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			x, y := hm.apply(float64(u), float64(v))
			i := dst.PixOffset(u, v)
			copy(dst.Pix[i:i+4], bilinear(src, x, y))
		}
	}
	return dst, nil
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// projective is a 3x3 homography with the last element fixed to 1.
type projective [8]float64

func (p projective) apply(u, v float64) (float64, float64) {
	d := p[6]*u + p[7]*v + 1
	return (p[0]*u + p[1]*v + p[2]) / d, (p[3]*u + p[4]*v + p[5]) / d
}

// homography solves for the transform mapping each from[i] onto to[i].
func homography(from, to [4]Point) (projective, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		u, v := from[i].X, from[i].Y
		x, y := to[i].X, to[i].Y
		a[2*i] = [9]float64{u, v, 1, 0, 0, 0, -u * x, -v * x, x}
		a[2*i+1] = [9]float64{0, 0, 0, u, v, 1, -u * y, -v * y, y}
	}

	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return projective{}, errDegenerateRegion
		}
		a[col], a[pivot] = a[pivot], a[col]
		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}

	var p projective
	for i := 0; i < 8; i++ {
		p[i] = a[i][8] / a[i][i]
	}
	return p, nil
}

// bilinear samples src at (x, y), clamping to the image bounds.
func bilinear(src *image.NRGBA, x, y float64) []uint8 {
	b := src.Bounds()
	x = clamp(x, float64(b.Min.X), float64(b.Max.X-1))
	y = clamp(y, float64(b.Min.Y), float64(b.Max.Y-1))

	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	x1, y1 := min(x0+1, b.Max.X-1), min(y0+1, b.Max.Y-1)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := src.Pix[src.PixOffset(x0, y0):]
	p10 := src.Pix[src.PixOffset(x1, y0):]
	p01 := src.Pix[src.PixOffset(x0, y1):]
	p11 := src.Pix[src.PixOffset(x1, y1):]

	out := make([]uint8, 4)
	for c := 0; c < 4; c++ {
		top := float64(p00[c])*(1-fx) + float64(p10[c])*fx
		bottom := float64(p01[c])*(1-fx) + float64(p11[c])*fx
		out[c] = uint8(math.Round(top*(1-fy) + bottom*fy))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
