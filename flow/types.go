// Package flow defines the graph intermediate representation shared by the
// workflow scanner, builder, schema converter and code generator. It only
// contains data: nodes, control edges, data edges and the Flow container.
// All behavior lives in the sibling packages.
package flow

// NodeKind discriminates IR node types.
type NodeKind string

// Supported node kinds.
const (
	KindStart   NodeKind = "start"
	KindEnd     NodeKind = "end"
	KindAgent   NodeKind = "agent"
	KindLLM     NodeKind = "llm"
	KindTool    NodeKind = "tool"
	KindBranch  NodeKind = "branch"
	KindMessage NodeKind = "message"
)

// DefaultBranchLabel is the reserved label for the unmatched/else arm of a
// branch node.
const DefaultBranchLabel = "default"

// Well-known Meta keys. The payload under each key is kind-specific.
const (
	// MetaAgentSpec holds a compact JSON snippet describing the agent
	// (schema.AgentConfig). Present on agent and llm nodes.
	MetaAgentSpec = "agent_spec"

	// MetaBranchField is the name of the upstream output field whose value
	// drives a branch node's literal comparison.
	MetaBranchField = "field"

	// MetaBranchCases maps each branch literal to its outgoing edge label
	// (map[string]string). Present on branch nodes.
	MetaBranchCases = "cases"

	// MetaFields holds []Field. On start nodes it describes the workflow's
	// declared input record.
	MetaFields = "fields"

	// MetaToolName is the declared tool name on a tool node.
	MetaToolName = "tool_name"

	// MetaToolInputs and MetaToolOutputs hold []Field on tool nodes.
	MetaToolInputs  = "inputs"
	MetaToolOutputs = "outputs"

	// MetaApproval marks a tool node as a user-confirmed call (bool).
	MetaApproval = "approval"

	// MetaPrompt is the confirmation prompt of an approval tool node.
	MetaPrompt = "prompt"

	// MetaOutputNames holds []string: the ordered declared outputs of an
	// end node. Values come from data edges or MetaLiterals.
	MetaOutputNames = "output_names"

	// MetaLiterals maps an end node's output name to a constant value for
	// outputs bound to literals rather than upstream data (map[string]any).
	MetaLiterals = "literals"

	// MetaRole and MetaContent describe a message node.
	MetaRole    = "role"
	MetaContent = "content"
)

// Field describes one named value with a coarse scalar kind and an optional
// enumerated literal set. It is used for start-node inputs, tool
// inputs/outputs and structured-output record fields.
type Field struct {
	Name string
	Kind string // "string", "number", "boolean", "object", "array"
	Enum []string
}

// Node is a single IR node. Nodes are created once, by the builder or by the
// reverse schema conversion, and are immutable afterwards. A node is owned
// exclusively by the Flow that contains it.
type Node struct {
	// ID is unique within the owning Flow.
	ID string

	// Name is a human-readable name.
	Name string

	// Kind discriminates the node type.
	Kind NodeKind

	// Meta holds the kind-specific payload, see the Meta* keys.
	Meta map[string]any
}

// MetaString returns the string value stored under key, or "".
func (n *Node) MetaString(key string) string {
	if n.Meta == nil {
		return ""
	}
	s, _ := n.Meta[key].(string)
	return s
}

// MetaBool returns the bool value stored under key.
func (n *Node) MetaBool(key string) bool {
	if n.Meta == nil {
		return false
	}
	b, _ := n.Meta[key].(bool)
	return b
}

// MetaFieldList returns the []Field stored under key, or nil.
func (n *Node) MetaFieldList(key string) []Field {
	if n.Meta == nil {
		return nil
	}
	fs, _ := n.Meta[key].([]Field)
	return fs
}

// ControlEdge is a directed control-flow edge. Label is empty for the
// unconditional "next" edge; otherwise it names one outgoing arm of a branch
// node, with DefaultBranchLabel reserved for the else arm.
type ControlEdge struct {
	From  string
	To    string
	Label string
}

// DataEdge records that the named output of one node feeds the named input
// of another.
type DataEdge struct {
	Source       string
	SourceOutput string
	Dest         string
	DestInput    string
}

// Flow is the aggregate IR: a name, the entry node and the node/edge sets.
// Node order is the creation order, kept stable so that downstream consumers
// can iterate deterministically.
type Flow struct {
	Name    string
	StartID string
	Nodes   []*Node
	Control []ControlEdge
	Data    []DataEdge
}

// Node returns the node with the given id, or nil.
func (f *Flow) Node(id string) *Node {
	for _, n := range f.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Outgoing returns all control edges leaving the given node.
func (f *Flow) Outgoing(id string) []ControlEdge {
	var out []ControlEdge
	for _, e := range f.Control {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Successor returns the target of the unconditional outgoing edge of the
// given node, if any.
func (f *Flow) Successor(id string) (string, bool) {
	for _, e := range f.Control {
		if e.From == id && e.Label == "" {
			return e.To, true
		}
	}
	return "", false
}

// BranchTarget returns the target of the outgoing edge of a branch node
// carrying the given label.
func (f *Flow) BranchTarget(id, label string) (string, bool) {
	for _, e := range f.Control {
		if e.From == id && e.Label == label {
			return e.To, true
		}
	}
	return "", false
}

// DataInto returns all data edges feeding the given destination node.
func (f *Flow) DataInto(dest string) []DataEdge {
	var out []DataEdge
	for _, e := range f.Data {
		if e.Dest == dest {
			out = append(out, e)
		}
	}
	return out
}

// DataIntoInput returns the data edge feeding the named input of the given
// destination node, if any. Inputs are unique per destination.
func (f *Flow) DataIntoInput(dest, input string) (DataEdge, bool) {
	for _, e := range f.Data {
		if e.Dest == dest && e.DestInput == input {
			return e, true
		}
	}
	return DataEdge{}, false
}
