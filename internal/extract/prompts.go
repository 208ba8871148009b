package extract

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// PromptData is exposed to prompt templates.
type PromptData struct {
	Language string
	// Template is the JSON text of the record template the answer must follow.
	Template string
}

// PromptStore reads prompt templates from a folder. Reads are serialized;
// rendering happens outside the lock.
type PromptStore struct {
	mu  sync.Mutex
	dir string
}

// NewPromptStore returns a store rooted at dir.
func NewPromptStore(dir string) *PromptStore {
	return &PromptStore{dir: dir}
}

// Dir returns the folder the store reads from.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Render loads the named prompt template and executes it with data.
func (s *PromptStore) Render(name string, data PromptData) (string, error) {
	s.mu.Lock()
	content, err := os.ReadFile(filepath.Join(s.dir, name))
	s.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", name, err)
	}

	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(string(content))
	if err != nil {
		return "", fmt.Errorf("parse prompt %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}
