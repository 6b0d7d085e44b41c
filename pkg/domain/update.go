package domain

import "fmt"

// SectionInputs is the section that holds a node's input values.
const SectionInputs = "inputs"

// ParameterUpdate sets Field inside Section of the node NodeID.
type ParameterUpdate struct {
	NodeID  string `json:"node_id" yaml:"node_id"`
	Section string `json:"section" yaml:"section"`
	Field   string `json:"field" yaml:"field"`
	Value   any    `json:"value" yaml:"value"`
}

// Path returns the dotted address of the update, e.g. "52.inputs.steps".
func (u ParameterUpdate) Path() string {
	return u.NodeID + "." + u.Section + "." + u.Field
}

func (u ParameterUpdate) String() string {
	return fmt.Sprintf("%s=%v", u.Path(), u.Value)
}
