package runtime

import (
	"fmt"
	"strings"
)

// PlanPhase is one batch of the execution plan. Phases order dependencies;
// they are not a concurrency construct.
type PlanPhase struct {
	Number int    `json:"phase"`
	Nodes  []Node `json:"nodes"`
}

// ExecutionPlan is the ordered sequence of phases produced by CompilePlan.
type ExecutionPlan struct {
	Phases []PlanPhase `json:"phases"`
}

// PlanErrorKind distinguishes the validation failures CompilePlan can report.
type PlanErrorKind string

const (
	ErrNoEntryPoint  PlanErrorKind = "NO_ENTRY_POINT"
	ErrInvalidInputs PlanErrorKind = "INVALID_INPUTS"
)

// NodeMissingInputs names the unresolved inputs of one offending node.
type NodeMissingInputs struct {
	NodeID string   `json:"nodeId"`
	Inputs []string `json:"inputs"`
}

// PlanError is the structured compile failure. For INVALID_INPUTS it carries
// every offending node accumulated across the whole scan, so callers can
// report all problems at once.
type PlanError struct {
	Kind    PlanErrorKind       `json:"kind"`
	Invalid []NodeMissingInputs `json:"invalidElements,omitempty"`
}

func (e *PlanError) Error() string {
	if e.Kind == ErrNoEntryPoint {
		return "flow has no entry point"
	}
	parts := make([]string, 0, len(e.Invalid))
	for _, n := range e.Invalid {
		parts = append(parts, fmt.Sprintf("%s: %s", n.NodeID, strings.Join(n.Inputs, ", ")))
	}
	return "flow has unresolved inputs: " + strings.Join(parts, "; ")
}

// CompilePlan converts a node/edge graph into a phase-ordered execution plan.
//
// Phase 1 holds the entry point. Each later phase holds every not-yet-planned
// node whose inputs are all resolvable from static values or already-planned
// upstream outputs. A node with unresolved inputs is only flagged as broken
// once every node feeding it has been placed; until then it is left for a
// later phase. Cycles therefore surface as INVALID_INPUTS: a node in a cycle
// can never have all its incomers planned, and anything still unplanned when
// the loop exhausts is reported rather than silently dropped.
//
// When a graph contains several entry-point nodes the first in slice order
// wins; stored definitions keep node order stable so the choice is
// deterministic.
func CompilePlan(nodes []Node, edges []Edge) (*ExecutionPlan, *PlanError) {
	var entry *Node
	for i := range nodes {
		if GetTaskDefinition(nodes[i].Type).IsEntryPoint {
			entry = &nodes[i]
			break
		}
	}
	if entry == nil {
		return nil, &PlanError{Kind: ErrNoEntryPoint}
	}

	planned := make(map[string]bool, len(nodes))
	flagged := make(map[string]bool)
	var invalid []NodeMissingInputs

	// The entry point is planned unconditionally, but its own inputs are
	// still validated: nothing is planned yet, so they must be static.
	if missing := unresolvedInputs(*entry, edges, planned); len(missing) > 0 {
		invalid = append(invalid, NodeMissingInputs{NodeID: entry.ID, Inputs: missing})
		flagged[entry.ID] = true
	}

	plan := &ExecutionPlan{Phases: []PlanPhase{{Number: 1, Nodes: []Node{*entry}}}}
	planned[entry.ID] = true

	for phase := 2; phase <= len(nodes) && len(planned) < len(nodes); phase++ {
		next := PlanPhase{Number: len(plan.Phases) + 1}
		for _, node := range nodes {
			if planned[node.ID] || flagged[node.ID] {
				continue
			}
			missing := unresolvedInputs(node, edges, planned)
			if len(missing) > 0 {
				if allIncomersPlanned(node, nodes, edges, planned) {
					// Everything that could feed this node is placed and the
					// inputs are still missing: a definitive failure.
					invalid = append(invalid, NodeMissingInputs{NodeID: node.ID, Inputs: missing})
					flagged[node.ID] = true
				}
				// Otherwise not resolvable yet; retry in a later phase.
				continue
			}
			next.Nodes = append(next.Nodes, node)
		}
		for _, node := range next.Nodes {
			planned[node.ID] = true
		}
		if len(next.Nodes) > 0 {
			plan.Phases = append(plan.Phases, next)
		}
	}

	// Nodes never planned nor flagged are stuck behind an unplannable
	// upstream (a cycle, or a chain off a broken node). Report them so every
	// input node is accounted for.
	for _, node := range nodes {
		if planned[node.ID] || flagged[node.ID] {
			continue
		}
		invalid = append(invalid, NodeMissingInputs{
			NodeID: node.ID,
			Inputs: unresolvedInputs(node, edges, planned),
		})
	}

	if len(invalid) > 0 {
		return nil, &PlanError{Kind: ErrInvalidInputs, Invalid: invalid}
	}
	return plan, nil
}

// unresolvedInputs returns the names of the node's inputs that cannot be
// satisfied given the currently planned set. An input resolves from a
// non-empty static value, or from an edge whose source is already planned.
// A non-required input with no edge at all also counts as resolved.
func unresolvedInputs(node Node, edges []Edge, planned map[string]bool) []string {
	var missing []string
	for _, input := range GetTaskDefinition(node.Type).Inputs {
		if node.StaticInputs[input.Name] != "" {
			continue
		}

		var incoming *Edge
		for i := range edges {
			if edges[i].Target == node.ID && edges[i].TargetInput == input.Name {
				incoming = &edges[i]
			}
		}

		if input.Required {
			if incoming != nil && planned[incoming.Source] {
				continue
			}
		} else {
			if incoming == nil || planned[incoming.Source] {
				continue
			}
		}

		missing = append(missing, input.Name)
	}
	return missing
}

func allIncomersPlanned(node Node, nodes []Node, edges []Edge, planned map[string]bool) bool {
	incomers := make(map[string]bool)
	for _, e := range edges {
		if e.Target == node.ID {
			incomers[e.Source] = true
		}
	}
	for _, n := range nodes {
		if incomers[n.ID] && !planned[n.ID] {
			return false
		}
	}
	return true
}
