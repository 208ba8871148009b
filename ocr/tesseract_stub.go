//go:build !tesseract

package ocr

import "errors"

// ErrTesseractUnavailable is returned when the binary was built without
// the tesseract build tag
var ErrTesseractUnavailable = errors.New("tesseract support not compiled in, rebuild with -tags tesseract")

func newTesseractProvider(Config) (Provider, error) {
	return nil, ErrTesseractUnavailable
}
