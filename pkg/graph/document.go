package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mohae/deepcopy"
)

// Well-known node record fields.
const (
	FieldClassType = "class_type"
	FieldInputs    = "inputs"
)

// Node is one record of a workflow document.
type Node map[string]any

// Kind returns the node's class_type tag, or "" when absent.
func (n Node) Kind() string {
	kind, _ := n[FieldClassType].(string)
	return kind
}

// Section returns the named mapping of the node, if it is one.
func (n Node) Section(name string) (map[string]any, bool) {
	section, ok := n[name].(map[string]any)
	return section, ok
}

// Document is an ordered mapping from node identifier to node record.
// Order holds the identifiers in source order; Nodes holds the records.
type Document struct {
	Order []string
	Nodes map[string]Node
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Nodes: make(map[string]Node)}
}

// Set appends or replaces a node. Replacing keeps the original position.
func (d *Document) Set(id string, node Node) {
	if d.Nodes == nil {
		d.Nodes = make(map[string]Node)
	}
	if _, exists := d.Nodes[id]; !exists {
		d.Order = append(d.Order, id)
	}
	d.Nodes[id] = node
}

// Get returns the node with the given identifier.
func (d *Document) Get(id string) (Node, bool) {
	if d == nil {
		return nil, false
	}
	node, ok := d.Nodes[id]
	return node, ok
}

// IDs returns the node identifiers in document order.
func (d *Document) IDs() []string {
	if d == nil {
		return nil
	}
	ids := make([]string, len(d.Order))
	copy(ids, d.Order)
	return ids
}

// Len returns the number of nodes.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Order)
}

// FirstOfKind scans the nodes in document order and returns the first one
// whose kind matches any of kinds.
func (d *Document) FirstOfKind(kinds ...string) (string, Node, bool) {
	if d == nil {
		return "", nil, false
	}
	for _, id := range d.Order {
		node := d.Nodes[id]
		for _, kind := range kinds {
			if node.Kind() == kind {
				return id, node, true
			}
		}
	}
	return "", nil, false
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *Document) Clone() *Document {
	if d == nil {
		return NewDocument()
	}
	cp := deepcopy.Copy(d).(*Document)
	if cp.Nodes == nil {
		cp.Nodes = make(map[string]Node)
	}
	return cp
}

// MarshalJSON encodes the document as a JSON object in document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if d != nil {
		for i, id := range d.Order {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(id)
			if err != nil {
				return nil, err
			}
			value, err := json.Marshal(d.Nodes[id])
			if err != nil {
				return nil, fmt.Errorf("encode node %q: %w", id, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping its key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := parseJSON(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
