package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/comfyctl/pkg/domain"
)

const legacyPrefix = "node_"

// ParseUpdate turns a "key=value" override into a ParameterUpdate.
//
// Two key forms are accepted:
//
//	52.inputs.steps=20           node.section.field (the field may contain dots)
//	node_52_inputs_steps=20      node_<id>_<section>_<field>
//
// The value is passed through Coerce.
func ParseUpdate(expr string) (domain.ParameterUpdate, error) {
	key, raw, found := strings.Cut(expr, "=")
	if !found {
		return domain.ParameterUpdate{}, fmt.Errorf("%w: %q: expected key=value", domain.ErrInvalidUpdate, expr)
	}
	key = strings.TrimSpace(key)

	var parts []string
	switch {
	case strings.Contains(key, "."):
		parts = strings.SplitN(key, ".", 3)
	case strings.HasPrefix(key, legacyPrefix):
		parts = strings.SplitN(strings.TrimPrefix(key, legacyPrefix), "_", 3)
	default:
		return domain.ParameterUpdate{}, fmt.Errorf("%w: %q: key must be node.section.field", domain.ErrInvalidUpdate, key)
	}
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return domain.ParameterUpdate{}, fmt.Errorf("%w: %q: key must be node.section.field", domain.ErrInvalidUpdate, key)
	}

	return domain.ParameterUpdate{
		NodeID:  parts[0],
		Section: parts[1],
		Field:   parts[2],
		Value:   Coerce(raw),
	}, nil
}

// ParseUpdates parses every expression, stopping at the first invalid one.
func ParseUpdates(exprs []string) ([]domain.ParameterUpdate, error) {
	updates := make([]domain.ParameterUpdate, 0, len(exprs))
	for _, expr := range exprs {
		u, err := ParseUpdate(expr)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}
