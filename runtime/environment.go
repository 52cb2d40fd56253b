package runtime

import "io"

type nodeState struct {
	inputs  map[string]string
	outputs map[string]string
}

// Environment is the transient per-execution scratch space: resolved inputs
// and produced outputs per node, plus the shared browser/page handles reused
// across phases. It is owned by one Runner.Execute call and discarded, with
// resource cleanup, when the run ends. Never persisted, never shared between
// executions.
type Environment struct {
	nodes   map[string]*nodeState
	browser io.Closer
	page    any
}

func NewEnvironment() *Environment {
	return &Environment{nodes: make(map[string]*nodeState)}
}

func (e *Environment) node(id string) *nodeState {
	s, ok := e.nodes[id]
	if !ok {
		s = &nodeState{
			inputs:  make(map[string]string),
			outputs: make(map[string]string),
		}
		e.nodes[id] = s
	}
	return s
}

// Output returns a node's produced output by name. Plan ordering guarantees
// the producing node already executed when a downstream phase asks.
func (e *Environment) Output(nodeID, name string) (string, bool) {
	s, ok := e.nodes[nodeID]
	if !ok {
		return "", false
	}
	v, ok := s.outputs[name]
	return v, ok
}

// Cleanup releases shared resources. Best-effort: the caller logs the error
// but never fails the execution over it.
func (e *Environment) Cleanup() error {
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	e.page = nil
	return err
}

// ExecutionEnvironment is the view of the shared Environment scoped to one
// node. It is what task executors receive: named input reads, named output
// writes, the shared handles, and the phase's log collector.
type ExecutionEnvironment struct {
	nodeID string
	userID string
	env    *Environment
	Log    *LogCollector
}

// NewExecutionEnvironment scopes a shared Environment to one node. The
// runner builds these per phase; executor tests build them directly.
func NewExecutionEnvironment(nodeID, userID string, env *Environment, log *LogCollector) *ExecutionEnvironment {
	return &ExecutionEnvironment{nodeID: nodeID, userID: userID, env: env, Log: log}
}

// UserID identifies the owner of the running execution; executors need it to
// scope credential lookups.
func (x *ExecutionEnvironment) UserID() string { return x.userID }

// GetInput returns the resolved value of a named input, or "" if absent.
func (x *ExecutionEnvironment) GetInput(name string) string {
	return x.env.node(x.nodeID).inputs[name]
}

// SetOutput records a named output for downstream phases.
func (x *ExecutionEnvironment) SetOutput(name, value string) {
	x.env.node(x.nodeID).outputs[name] = value
}

// GetOutput returns a previously recorded output of the node, or "" if absent.
func (x *ExecutionEnvironment) GetOutput(name string) string {
	return x.env.node(x.nodeID).outputs[name]
}

// SetInput records a resolved input value for the node.
func (x *ExecutionEnvironment) SetInput(name, value string) {
	x.env.node(x.nodeID).inputs[name] = value
}

func (x *ExecutionEnvironment) inputs() map[string]string {
	return x.env.node(x.nodeID).inputs
}

func (x *ExecutionEnvironment) outputs() map[string]string {
	return x.env.node(x.nodeID).outputs
}

// GetBrowser returns the shared browser handle, if one was set.
func (x *ExecutionEnvironment) GetBrowser() io.Closer { return x.env.browser }

// SetBrowser stores the shared browser handle for the rest of the execution.
func (x *ExecutionEnvironment) SetBrowser(b io.Closer) { x.env.browser = b }

// GetPage returns the shared page handle, if one was set.
func (x *ExecutionEnvironment) GetPage() any { return x.env.page }

// SetPage stores the shared page handle for the rest of the execution.
func (x *ExecutionEnvironment) SetPage(p any) { x.env.page = p }
