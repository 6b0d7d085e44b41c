package graph

import (
	"fmt"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/mohae/deepcopy"
)

// SkippedUpdate is an update that Patch could not apply.
type SkippedUpdate struct {
	Update domain.ParameterUpdate
	Reason string
}

// Report lists what Patch did with each update, in input order.
type Report struct {
	Applied []domain.ParameterUpdate
	Skipped []SkippedUpdate
}

// Warnings renders the skipped updates as human readable lines.
func (r Report) Warnings() []string {
	lines := make([]string, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		lines = append(lines, fmt.Sprintf("%s: %s", s.Update.Path(), s.Reason))
	}
	return lines
}

// Patch applies updates to a deep copy of doc and returns the copy.
// doc is never modified. An update addressing a missing node, or a section
// that exists but is not a mapping, is skipped and recorded in the report.
// When several updates address the same field the last one wins.
func Patch(doc *Document, updates []domain.ParameterUpdate) (*Document, Report) {
	out := doc.Clone()
	var report Report

	for _, u := range updates {
		node, ok := out.Nodes[u.NodeID]
		if !ok {
			report.Skipped = append(report.Skipped, SkippedUpdate{Update: u, Reason: "node not found"})
			continue
		}
		if node == nil {
			node = Node{}
			out.Nodes[u.NodeID] = node
		}
		raw, exists := node[u.Section]
		var section map[string]any
		if !exists || raw == nil {
			section = make(map[string]any)
			node[u.Section] = section
		} else if section, ok = raw.(map[string]any); !ok {
			report.Skipped = append(report.Skipped, SkippedUpdate{
				Update: u,
				Reason: fmt.Sprintf("section %q is a %T, not a mapping", u.Section, raw),
			})
			continue
		}
		section[u.Field] = deepcopy.Copy(u.Value)
		report.Applied = append(report.Applied, u)
	}
	return out, report
}
