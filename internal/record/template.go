package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Template is an example record whose key structure a produced record must
// contain. Leaf values of the template are ignored.
type Template struct {
	root   *Record
	schema *jsonschema.Schema
}

// ConformanceError lists the template key paths a record lacks.
type ConformanceError struct {
	Missing []string
	Err     error
}

func (e *ConformanceError) Error() string {
	return fmt.Sprintf("record does not match template, missing %v", e.Missing)
}

func (e *ConformanceError) Unwrap() error {
	return e.Err
}

// LoadTemplate reads and compiles a template file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ParseTemplate compiles a template from its JSON text.
func ParseTemplate(data []byte) (*Template, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	doc, err := json.Marshal(schemaFor(root))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("template.json", bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add template schema: %w", err)
	}
	schema, err := compiler.Compile("template.json")
	if err != nil {
		return nil, fmt.Errorf("compile template schema: %w", err)
	}
	return &Template{root: root, schema: schema}, nil
}

// Root returns the template's example record.
func (t *Template) Root() *Record {
	return t.root
}

// schemaFor derives a JSON schema requiring every key of r, recursively,
// with nested template records required to be objects.
func schemaFor(r *Record) map[string]any {
	required := make([]string, 0, r.Len())
	props := make(map[string]any, r.Len())
	for _, key := range r.Keys() {
		required = append(required, key)
		if sub, ok := r.Record(key); ok {
			props[key] = schemaFor(sub)
		} else {
			props[key] = map[string]any{}
		}
	}
	return map[string]any{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

// Missing returns the dotted paths of template keys absent from r. A
// template sub-record whose counterpart is not a record reports all of
// its leaf paths.
func (t *Template) Missing(r *Record) []string {
	var missing []string
	collectMissing(t.root, r, nil, &missing)
	return missing
}

func collectMissing(tmpl, r *Record, prefix []string, out *[]string) {
	for _, key := range tmpl.Keys() {
		path := append(append([]string(nil), prefix...), key)
		n, present := r.Get(key)
		sub, isRecord := tmpl.Record(key)
		if !isRecord {
			if !present {
				*out = append(*out, Path(path...))
			}
			continue
		}
		got, _ := n.(*Record)
		if !present || got == nil {
			if sub.Len() == 0 {
				*out = append(*out, Path(path...))
			}
			collectMissing(sub, nil, path, out)
			continue
		}
		collectMissing(sub, got, path, out)
	}
}

// Conforms reports whether every key path of the template exists in r at
// the same nesting depth. Extra keys in r are allowed.
func (t *Template) Conforms(r *Record) bool {
	return len(t.Missing(r)) == 0
}

// Validate checks r against the compiled template schema and returns a
// *ConformanceError describing the missing paths on failure.
func (t *Template) Validate(r *Record) error {
	if r == nil {
		return &ConformanceError{Missing: t.Missing(New())}
	}
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("unmarshal record: %w", err)
	}
	if err := t.schema.Validate(v); err != nil {
		return &ConformanceError{Missing: t.Missing(r), Err: err}
	}
	return nil
}
