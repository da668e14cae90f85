package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Document is an immutable nested key/value tree. The core treats it as an
// external collaborator: values are read through Lookup, never written.
type Document struct {
	root map[string]any
}

// New creates a document from an already-parsed tree. The map is not copied;
// callers hand over ownership.
func New(root map[string]any) *Document {
	if root == nil {
		root = map[string]any{}
	}
	return &Document{root: root}
}

// Load reads a YAML scenario document from disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario document: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML scenario document from raw bytes.
func Parse(data []byte) (*Document, error) {
	var raw map[any]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse scenario document: %w", err)
	}
	root, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("scenario document root must be a mapping")
	}
	return &Document{root: root}, nil
}

// Lookup resolves a dotted path against the tree. The second return value
// reports whether every segment of the path existed.
func (d *Document) Lookup(path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = d.root
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Has reports whether a path resolves to any value.
func (d *Document) Has(path string) bool {
	_, ok := d.Lookup(path)
	return ok
}

// normalize converts yaml.v2's map[any]any trees into map[string]any so
// lookups and JSON re-encoding behave consistently.
func normalize(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			out[fmt.Sprintf("%v", key)] = normalize(value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(node))
		for key, value := range node {
			out[key] = normalize(value)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, value := range node {
			out[i] = normalize(value)
		}
		return out
	default:
		return v
	}
}
