package main

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

//go:embed default_prompts/* default_jsons/*
var defaultAssets embed.FS

const (
	labelTemplateFile     = "label_template.json"
	referenceTemplateFile = "reference_template.json"
)

// writeDefaultAssets copies every embedded file of srcDir into dstDir
// unless a file of the same name already exists there, so edited prompts
// and templates survive restarts.
func writeDefaultAssets(srcDir, dstDir string) error {
	if err := os.MkdirAll(dstDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create %s: %w", dstDir, err)
	}

	entries, err := fs.ReadDir(defaultAssets, srcDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dst := filepath.Join(dstDir, entry.Name())
		if _, err := os.Stat(dst); err == nil {
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		content, err := defaultAssets.ReadFile(path.Join(srcDir, entry.Name()))
		if err != nil {
			return err
		}
		log.Infof("Writing default %s", dst)
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return fmt.Errorf("failed to write default %s: %w", dst, err)
		}
	}
	return nil
}

// defaultAsset returns the embedded content of a default prompt or template
func defaultAsset(srcDir, name string) ([]byte, bool) {
	content, err := defaultAssets.ReadFile(path.Join(srcDir, name))
	if err != nil {
		return nil, false
	}
	return content, true
}
