// Package schema defines the neutral declarative workflow model exchanged
// with other orchestration runtimes. It intentionally contains only
// execution semantics, no UI concepts such as positions or visual layout.
package schema

// Node type identifiers.
const (
	NodeTypeStart   = "core.start"
	NodeTypeEnd     = "core.end"
	NodeTypeAgent   = "core.agent"
	NodeTypeLLM     = "core.llm"
	NodeTypeTool    = "core.tool"
	NodeTypeBranch  = "core.branch"
	NodeTypeMessage = "core.message"
)

// Graph is a complete workflow definition in the neutral schema.
type Graph struct {
	// Version is the schema version (e.g., "1.0").
	Version string `json:"version" yaml:"version"`

	// Name is the workflow name.
	Name string `json:"name" yaml:"name"`

	// Description describes what this workflow does.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Nodes are the component instances in this workflow.
	Nodes []Node `json:"nodes" yaml:"nodes"`

	// Edges define the control-flow connections between nodes. An edge with
	// a Label represents one arm of a branch node; an unlabeled edge is the
	// unconditional "next" edge.
	Edges []Edge `json:"edges" yaml:"edges"`

	// DataEdges define named output -> named input data-flow connections.
	DataEdges []DataEdge `json:"data_edges,omitempty" yaml:"data_edges,omitempty"`

	// StartNodeID is the ID of the entry node.
	StartNodeID string `json:"start_node_id" yaml:"start_node_id"`

	// Metadata contains additional workflow-level metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Node represents one executable node.
type Node struct {
	// ID is the unique node identifier (e.g., "agent_1").
	ID string `json:"id" yaml:"id"`

	// Label is the human-readable label for this node instance.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// NodeType specifies the component type (e.g., "core.agent").
	NodeType string `json:"node_type" yaml:"node_type"`

	// Agent is the agent configuration (NodeType == core.agent).
	Agent *AgentConfig `json:"agent,omitempty" yaml:"agent,omitempty"`

	// LLM is the bare model-call configuration (NodeType == core.llm).
	LLM *LLMConfig `json:"llm,omitempty" yaml:"llm,omitempty"`

	// Branch is the branching configuration (NodeType == core.branch).
	Branch *BranchConfig `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Tool is the tool-call configuration (NodeType == core.tool).
	Tool *ToolConfig `json:"tool,omitempty" yaml:"tool,omitempty"`

	// Message is the static-message configuration (NodeType == core.message).
	Message *MessageConfig `json:"message,omitempty" yaml:"message,omitempty"`

	// Inputs declares the node's named inputs. On a core.start node these
	// are the workflow's declared input fields.
	Inputs []NodeIO `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	// Outputs declares the node's named outputs. On a core.end node an
	// output with a Default and no incoming data edge is a constant.
	Outputs []NodeIO `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Config carries additional component-specific configuration.
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// Edge is a directed control-flow connection between two nodes.
type Edge struct {
	// ID is the unique edge identifier (auto-generated if not provided).
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Source is the source node ID.
	Source string `json:"source" yaml:"source"`

	// Target is the target node ID.
	Target string `json:"target" yaml:"target"`

	// Label names the branch arm this edge represents. Empty for the
	// unconditional edge; "default" is reserved for the else arm.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// DataEdge connects a named output of one node to a named input of another.
type DataEdge struct {
	// ID is the unique edge identifier (auto-generated if not provided).
	ID string `json:"id,omitempty" yaml:"id,omitempty"`

	// Source is the source node ID.
	Source string `json:"source" yaml:"source"`

	// SourceOutput is the output parameter name on the source node.
	SourceOutput string `json:"source_output" yaml:"source_output"`

	// Target is the destination node ID.
	Target string `json:"target" yaml:"target"`

	// TargetInput is the input parameter name on the destination node.
	TargetInput string `json:"target_input" yaml:"target_input"`
}

// NodeIO describes one named input or output parameter.
type NodeIO struct {
	// Name is the parameter name (e.g., "route", "output_text").
	Name string `json:"name" yaml:"name"`

	// Kind is a coarse-grained classification: "string", "number",
	// "boolean", "object", "array". When omitted it is treated as opaque.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Enum restricts a string parameter to an enumerated literal set.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Required indicates whether the parameter must be provided.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Description explains what this parameter is for.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Default is a constant value used when no data edge feeds the
	// parameter.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`
}

// AgentConfig is the first-class agent configuration embedded in a
// core.agent node. The compiler also serializes it as a compact JSON snippet
// inside the IR's node meta.
type AgentConfig struct {
	// Name is the agent's display name.
	Name string `json:"name" yaml:"name"`

	// Model is the model identifier (e.g., "gpt-4o-mini").
	Model string `json:"model,omitempty" yaml:"model,omitempty"`

	// Instructions is the agent's instruction text.
	Instructions string `json:"instructions,omitempty" yaml:"instructions,omitempty"`

	// Temperature and MaxTokens are optional generation parameters.
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	// Tools lists the declared tool names available to the agent.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	// Output describes the agent's structured output record, if any.
	Output *OutputSchema `json:"output,omitempty" yaml:"output,omitempty"`
}

// OutputSchema describes a structured-output record type.
type OutputSchema struct {
	// Name is the record type name (e.g., "TriageResult").
	Name string `json:"name" yaml:"name"`

	// Fields are the record's fields in declaration order.
	Fields []NodeIO `json:"fields" yaml:"fields"`
}

// LLMConfig configures a bare model call without agent semantics.
type LLMConfig struct {
	Model        string   `json:"model" yaml:"model"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// BranchConfig configures a branch node.
type BranchConfig struct {
	// Field is the name of the upstream output whose value is compared.
	Field string `json:"field" yaml:"field"`

	// Cases maps each literal to the label of the outgoing edge taken when
	// the field equals that literal.
	Cases map[string]string `json:"cases" yaml:"cases"`
}

// ToolConfig configures a tool-call node.
type ToolConfig struct {
	// Name is the declared tool name used for registry lookup.
	Name string `json:"name" yaml:"name"`

	// Inputs and Outputs describe the tool's structural interface.
	Inputs  []NodeIO `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs []NodeIO `json:"outputs,omitempty" yaml:"outputs,omitempty"`

	// Approval marks the tool as a user-confirmed call.
	Approval bool `json:"approval,omitempty" yaml:"approval,omitempty"`

	// Prompt is the confirmation prompt shown for approval tools.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`
}

// MessageConfig configures a static-message node.
type MessageConfig struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}
