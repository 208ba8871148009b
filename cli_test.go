package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunCompare(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	reference := writeJSON(t, dir, "reference.json", `{"淨重":{"content":"100公克"},"品名":{"content":"餅乾"}}`)

	t.Run("differences", func(t *testing.T) {
		observed := writeJSON(t, dir, "observed.json", `{"淨重":{"content":"10公克","title_valid":"false"},"品名":{}}`)
		var out bytes.Buffer
		code := runCompare([]string{reference, observed}, &out)
		assert.Equal(t, 1, code)
		assert.Contains(t, out.String(), "Invalid titles:\n  淨重\n")
		assert.Contains(t, out.String(), "Differences (2):")
		assert.Contains(t, out.String(), "  品名.content\n    - 餅乾\n    + (missing)\n")
		assert.Contains(t, out.String(), "    - 100公克\n    + 10公克\n")
	})

	t.Run("equal after normalization", func(t *testing.T) {
		observed := writeJSON(t, dir, "same.json", `{"淨重":{"content":"100 公克。"},"品名":{"content":"餅乾"}}`)
		var out bytes.Buffer
		assert.Equal(t, 0, runCompare([]string{reference, observed}, &out))
		assert.Equal(t, "No differences found\n", out.String())
	})

	t.Run("usage", func(t *testing.T) {
		var out bytes.Buffer
		assert.Equal(t, 2, runCompare([]string{reference}, &out))
		assert.Contains(t, out.String(), "usage:")
	})

	t.Run("bad input", func(t *testing.T) {
		broken := writeJSON(t, dir, "broken.json", `[1, 2]`)
		var out bytes.Buffer
		assert.Equal(t, 2, runCompare([]string{reference, broken}, &out))
		assert.Contains(t, out.String(), "failed to parse")
	})
}
