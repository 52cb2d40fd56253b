package runtime

import (
	"encoding/json"
	"fmt"
)

// Node is one task placed in a workflow graph. StaticInputs holds values the
// user set directly in the editor, keyed by input name.
type Node struct {
	ID           string            `json:"id"`
	Type         TaskType          `json:"type"`
	StaticInputs map[string]string `json:"inputs"`
}

// Edge is a directed data dependency: the named output of the source node
// feeds the named input of the target node.
type Edge struct {
	Source       string `json:"source"`
	SourceOutput string `json:"sourceOutput"`
	Target       string `json:"target"`
	TargetInput  string `json:"targetInput"`
}

// FlowDefinition is the versioned graph snapshot stored on workflows and
// executions. It is deserialized once at the top of a run, never per phase.
type FlowDefinition struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

const flowDefinitionVersion = 1

// ParseFlowDefinition decodes a stored graph snapshot.
func ParseFlowDefinition(raw string) (*FlowDefinition, error) {
	var def FlowDefinition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		return nil, fmt.Errorf("error unmarshalling flow definition: %w", err)
	}
	if def.Version != flowDefinitionVersion {
		return nil, fmt.Errorf("unsupported flow definition version: %d", def.Version)
	}
	return &def, nil
}

// Serialize encodes the snapshot for storage.
func (d *FlowDefinition) Serialize() (string, error) {
	d.Version = flowDefinitionVersion
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("error marshalling flow definition: %w", err)
	}
	return string(b), nil
}
