// Package record holds the ordered, nested key/value tree produced by
// structured extraction and the template used to check its shape.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"labelproof/internal/constants"
)

// Node is a value inside a Record: a Scalar, a Marker or a nested *Record.
type Node interface {
	isNode()
}

// Scalar is a leaf value. Raw is set for JSON literals that are not strings
// (numbers, booleans, null, arrays) so they round-trip unchanged.
type Scalar struct {
	Text string
	Raw  json.RawMessage
}

// Marker is the value of a title-valid flag, normally "true" or "false".
type Marker string

// Invalid reports whether the marker flags its parent as invalid.
func (m Marker) Invalid() bool {
	return strings.EqualFold(strings.TrimSpace(string(m)), "false")
}

// Record is an ordered mapping from keys to nodes.
type Record struct {
	keys   []string
	fields map[string]Node
}

func (Scalar) isNode()  {}
func (Marker) isNode()  {}
func (*Record) isNode() {}

// New returns an empty record.
func New() *Record {
	return &Record{fields: make(map[string]Node)}
}

// String is shorthand for a string scalar.
func String(s string) Scalar {
	return Scalar{Text: s}
}

// Keys returns the keys in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of keys.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Get returns the node stored under key.
func (r *Record) Get(key string) (Node, bool) {
	if r == nil {
		return nil, false
	}
	n, ok := r.fields[key]
	return n, ok
}

// Record returns the nested record stored under key, if the value is one.
func (r *Record) Record(key string) (*Record, bool) {
	n, ok := r.Get(key)
	if !ok {
		return nil, false
	}
	sub, ok := n.(*Record)
	return sub, ok
}

// Set stores n under key. An existing key keeps its position.
func (r *Record) Set(key string, n Node) {
	if _, exists := r.fields[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.fields[key] = n
}

// Delete removes key from the record.
func (r *Record) Delete(key string) {
	if _, exists := r.fields[key]; !exists {
		return
	}
	delete(r.fields, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Merge copies the top-level entries of other into r. Keys already present
// in r are overwritten by other's values.
func (r *Record) Merge(other *Record) {
	for _, key := range other.Keys() {
		n, _ := other.Get(key)
		r.Set(key, n)
	}
}

// Text returns the textual form of a node. Null scalars and missing nodes
// are the empty string; nested records are rendered as compact JSON.
func Text(n Node) string {
	switch v := n.(type) {
	case nil:
		return ""
	case Scalar:
		if v.Raw != nil && string(v.Raw) == "null" {
			return ""
		}
		return v.Text
	case Marker:
		return string(v)
	case *Record:
		if v == nil {
			return ""
		}
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// Parse decodes a JSON object into a Record, keeping key order.
// Values stored under the marker key become Markers.
func Parse(data []byte) (*Record, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("record: input is not a JSON object")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	rec, err := decodeObject(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("record: trailing data after object")
	}
	return rec, nil
}

func decodeObject(dec *json.Decoder) (*Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("record: expected object, got %v", tok)
	}

	rec := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("record: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("record: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("record: value of %q: %w", key, err)
		}
		n, err := decodeNode(key, raw)
		if err != nil {
			return nil, err
		}
		rec.Set(key, n)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return rec, nil
}

func decodeNode(key string, raw json.RawMessage) (Node, error) {
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '{':
		return decodeObject(json.NewDecoder(bytes.NewReader(raw)))
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("record: value of %q: %w", key, err)
		}
		if key == constants.MarkerKey {
			return Marker(s), nil
		}
		return Scalar{Text: s}, nil
	case 't', 'f':
		if key == constants.MarkerKey {
			return Marker(string(raw)), nil
		}
		return Scalar{Text: string(raw), Raw: raw}, nil
	case 'n':
		return Scalar{Raw: raw}, nil
	default:
		text := string(raw)
		if _, err := strconv.ParseFloat(text, 64); err != nil && raw[0] != '[' {
			return nil, fmt.Errorf("record: value of %q: unexpected literal %s", key, text)
		}
		return Scalar{Text: text, Raw: raw}, nil
	}
}

// MarshalJSON renders the scalar as a JSON string unless it carries a raw literal.
func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.Raw != nil {
		return s.Raw, nil
	}
	return marshalString(s.Text)
}

// MarshalJSON renders the marker as a JSON string.
func (m Marker) MarshalJSON() ([]byte, error) {
	return marshalString(string(m))
}

// MarshalJSON renders the record as a JSON object in key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalString(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := marshalNode(r.fields[key])
		if err != nil {
			return nil, fmt.Errorf("record: key %q: %w", key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON lets records be embedded in other JSON documents.
func (r *Record) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*r = *parsed
	return nil
}

// marshalNode renders n without the HTML escaping json.Marshal applies
// to the output of a Marshaler.
func marshalNode(n Node) ([]byte, error) {
	if m, ok := n.(json.Marshaler); ok && n != nil {
		return m.MarshalJSON()
	}
	return json.Marshal(n)
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Visitor is called for every node reached by Walk. path holds the keys
// from the root down to and including the node's own key.
type Visitor func(path []string, n Node) error

// Walk visits every node of r depth-first in key order. Returning an error
// from the visitor stops the walk.
func Walk(r *Record, fn Visitor) error {
	return walk(r, nil, fn)
}

func walk(r *Record, prefix []string, fn Visitor) error {
	for _, key := range r.Keys() {
		n, _ := r.Get(key)
		path := append(append([]string(nil), prefix...), key)
		if err := fn(path, n); err != nil {
			return err
		}
		if sub, ok := n.(*Record); ok && sub != nil {
			if err := walk(sub, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Path joins key segments into the dotted form used in reports.
func Path(segments ...string) string {
	return strings.Join(segments, ".")
}
