package scanner

import (
	"go/ast"

	"github.com/spichen/agentbridge/flow"
)

// Facts is the declarative fact table produced by one scan of a workflow
// script: agent constructions, tool signatures, record schemas and the entry
// procedure's body. It holds references into the scanned syntax tree and is
// consumed immediately by the builder.
type Facts struct {
	// SDKName is the local name under which the host SDK package is
	// imported in the scanned file (usually "sdk").
	SDKName string

	// Agents maps variable name to agent-construction metadata.
	Agents map[string]AgentFact

	// AgentOrder lists agent variable names in declaration order.
	AgentOrder []string

	// Tools maps declared tool name to its inferred interface.
	Tools map[string]ToolFact

	// ToolOrder lists declared tool names in declaration order.
	ToolOrder []string

	// Records maps type name to structured-record schema.
	Records map[string]RecordFact

	// Entry is the designated entry procedure, nil when absent.
	Entry *EntryFact
}

// AgentFact captures one agent-construction call site.
type AgentFact struct {
	// Var is the variable the agent is bound to.
	Var string

	// Name is the display name (defaults to Var).
	Name string

	// Model is the model identifier.
	Model string

	// Instructions is the instruction text.
	Instructions string

	// Temperature and MaxTokens are optional generation parameters.
	Temperature *float64
	MaxTokens   *int

	// Tools lists referenced declared tool names.
	Tools []string

	// OutputType names the structured-output record type, if declared.
	OutputType string
}

// ToolFact captures one tool-function declaration.
type ToolFact struct {
	// Name is the declared tool name (snake_case of the function name).
	Name string

	// Inputs and Outputs are inferred from parameter and result
	// annotations.
	Inputs  []flow.Field
	Outputs []flow.Field
}

// RecordFact captures one structured record type declaration.
type RecordFact struct {
	// Name is the type name.
	Name string

	// Fields are the record's fields in declaration order.
	Fields []flow.Field
}

// EntryFact captures the designated entry procedure.
type EntryFact struct {
	// Name is the function name.
	Name string

	// InputParam and InputType identify the typed input record parameter.
	InputParam string
	InputType  string

	// ToolsParam is the name of the tool-registry parameter, if present.
	ToolsParam string

	// Body is the statement list, with one tracing-scope wrapper unwrapped.
	Body []ast.Stmt
}

// Record returns the record schema with the given type name, if known.
func (f *Facts) Record(name string) (RecordFact, bool) {
	r, ok := f.Records[name]
	return r, ok
}
