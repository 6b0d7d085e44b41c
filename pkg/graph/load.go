package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/comfyctl/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Format identifies the encoding of a workflow source.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads and parses the workflow document at path.
// It returns domain.ErrNotFound when the file cannot be read and
// domain.ErrFormat when its content is not a valid document.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrNotFound, path, err)
	}
	doc, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes a workflow document from data.
func Parse(data []byte, format Format) (*Document, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	default:
		return parseJSON(data)
	}
}

func formatError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrFormat, fmt.Sprintf(format, args...))
}

func parseJSON(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, formatError("empty document")
		}
		return nil, formatError("%v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, formatError("top level must be an object of nodes")
	}

	doc := NewDocument()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, formatError("%v", err)
		}
		id, ok := tok.(string)
		if !ok {
			return nil, formatError("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, formatError("node %q: %v", id, err)
		}
		node, err := decodeJSONNode(id, raw)
		if err != nil {
			return nil, err
		}
		if _, dup := doc.Nodes[id]; dup {
			return nil, formatError("duplicate node id %q", id)
		}
		doc.Set(id, node)
	}
	if _, err := dec.Token(); err != nil {
		return nil, formatError("%v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, formatError("unexpected data after document")
	}
	return doc, nil
}

func decodeJSONNode(id string, raw json.RawMessage) (Node, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if id == "nodes" && len(trimmed) > 0 && trimmed[0] == '[' {
			return nil, formatError("looks like an editor export; save the workflow in API format")
		}
		return nil, formatError("node %q is not an object", id)
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var node Node
	if err := dec.Decode(&node); err != nil {
		return nil, formatError("node %q: %v", id, err)
	}
	return node, nil
}

func parseYAML(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, formatError("%v", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, formatError("empty document")
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, formatError("top level must be a mapping of nodes")
	}

	doc := NewDocument()
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		id := key.Value
		if value.Kind != yaml.MappingNode {
			return nil, formatError("node %q is not a mapping (line %d)", id, value.Line)
		}
		// Decoding into Node would turn nested mappings into Node as well.
		var record map[string]any
		if err := value.Decode(&record); err != nil {
			return nil, formatError("node %q: %v", id, err)
		}
		node := Node(record)
		if _, dup := doc.Nodes[id]; dup {
			return nil, formatError("duplicate node id %q (line %d)", id, key.Line)
		}
		doc.Set(id, node)
	}
	return doc, nil
}
