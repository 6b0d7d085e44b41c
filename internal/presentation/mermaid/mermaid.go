package mermaid

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/comfyctl/pkg/graph"
)

// Overlay marks nodes touched by a run.
type Overlay struct {
	Patched []string
	Asset   string
}

// Generate produces a Mermaid flowchart of doc. Edges come from input values
// shaped like a link, [source_id, output_index], whose source exists.
// Shapes:
// - asset loaders: [/Parallelogram/]
// - output writers: [[Subroutine]]
// - everything else: [Rectangle]
func Generate(doc *graph.Document, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, id := range doc.IDs() {
		node, _ := doc.Get(id)
		safeID := sanitizeID(id)

		opener, closer := "[", "]"
		switch {
		case isLoader(node):
			opener, closer = "[/", "/]"
		case isWriter(node):
			opener, closer = "[[", "]]"
		}
		label := strings.ReplaceAll(fmt.Sprintf("%s: %s", id, node.Kind()), "\"", "'")
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)
	}

	for _, id := range doc.IDs() {
		node, _ := doc.Get(id)
		inputs, _ := node.Section(graph.FieldInputs)
		fields := make([]string, 0, len(inputs))
		for field := range inputs {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			source, ok := linkSource(inputs[field])
			if !ok {
				continue
			}
			if _, exists := doc.Get(source); !exists {
				continue
			}
			fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", sanitizeID(source), field, sanitizeID(id))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef patched fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef asset fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Patched {
			safeID := sanitizeID(id)
			if seen[safeID] || id == overlay.Asset {
				continue
			}
			if _, ok := doc.Get(id); !ok {
				continue
			}
			seen[safeID] = true
			fmt.Fprintf(&sb, "    class %s patched;\n", safeID)
		}
		if overlay.Asset != "" {
			fmt.Fprintf(&sb, "    class %s asset;\n", sanitizeID(overlay.Asset))
		}
	}
	return sb.String()
}

// linkSource recognises a [source_id, output_index] reference.
func linkSource(v any) (string, bool) {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return "", false
	}
	source, ok := pair[0].(string)
	if !ok {
		return "", false
	}
	switch pair[1].(type) {
	case json.Number, int, int64, float64:
		return source, true
	}
	return "", false
}

func isLoader(node graph.Node) bool {
	return strings.HasPrefix(node.Kind(), "Load")
}

func isWriter(node graph.Node) bool {
	kind := node.Kind()
	if strings.HasPrefix(kind, "Save") || strings.HasSuffix(kind, "Combine") {
		return true
	}
	inputs, _ := node.Section(graph.FieldInputs)
	_, ok := inputs["filename_prefix"]
	return ok
}

// sanitizeID prefixes ids since bare numbers are ambiguous in Mermaid.
func sanitizeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "\\", "_", " ", "_", ":", "_")
	return "n" + r.Replace(id)
}
