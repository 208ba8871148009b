package main

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropToScope(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))

	testCases := []struct {
		name     string
		scope    string
		expected image.Rectangle
		wantErr  bool
	}{
		{name: "full", scope: "full", expected: image.Rect(0, 0, 200, 100)},
		{name: "empty means full", scope: "", expected: image.Rect(0, 0, 200, 100)},
		{name: "top left quarter", scope: "[50, 50, 0, 0]", expected: image.Rect(0, 0, 100, 50)},
		{name: "offset box", scope: "[20, 10, 25, 40]", expected: image.Rect(0, 0, 20, 20)},
		{name: "clamped to the image", scope: "[80, 90, 50, 50]", expected: image.Rect(0, 0, 100, 50)},
		{name: "at least one pixel", scope: "[0, 0, 100, 100]", expected: image.Rect(0, 0, 1, 1)},
		{name: "not json", scope: "top", wantErr: true},
		{name: "wrong arity", scope: "[1, 2, 3]", wantErr: true},
		{name: "out of range", scope: "[150, 10, 0, 0]", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cropped, err := cropToScope(img, tc.scope)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cropped.Bounds())
		})
	}
}

func TestNormalizeScope(t *testing.T) {
	scope, err := normalizeScope(" full ")
	require.NoError(t, err)
	assert.Equal(t, fullScope, scope)

	scope, err = normalizeScope("[ 50, 50.5, 0, 10 ]")
	require.NoError(t, err)
	assert.Equal(t, "[50,50.5,0,10]", scope)

	_, err = normalizeScope("[50]")
	assert.Error(t, err)
}

func TestIsImage(t *testing.T) {
	assert.True(t, isImage(pngBytes(t, 2, 2)))
	assert.False(t, isImage(pdfBytes))
	assert.False(t, isImage([]byte("hello")))
}
