// Package convert maps the flow IR to the neutral declarative schema and
// back. Both directions are stateless and pure; any node kind without a
// counterpart on the other side is a typed unsupported-pattern error, never
// a best-effort guess.
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/schema"
)

// SchemaVersion is the schema version stamped on converted graphs.
const SchemaVersion = "1.0"

// ToSchema converts an IR flow into a declarative graph.
func ToSchema(f *flow.Flow) (*schema.Graph, error) {
	if f == nil {
		return nil, flow.Errorf(flow.CodeInvalidFlow, "flow is nil")
	}
	g := &schema.Graph{
		Version:     SchemaVersion,
		Name:        f.Name,
		StartNodeID: f.StartID,
	}
	for _, n := range f.Nodes {
		sn, err := toSchemaNode(n)
		if err != nil {
			return nil, err
		}
		g.Nodes = append(g.Nodes, sn)
	}
	for i, e := range f.Control {
		g.Edges = append(g.Edges, schema.Edge{
			ID:     fmt.Sprintf("edge_%d", i),
			Source: e.From,
			Target: e.To,
			Label:  e.Label,
		})
	}
	for i, d := range f.Data {
		g.DataEdges = append(g.DataEdges, schema.DataEdge{
			ID:           fmt.Sprintf("data_edge_%d", i),
			Source:       d.Source,
			SourceOutput: d.SourceOutput,
			Target:       d.Dest,
			TargetInput:  d.DestInput,
		})
	}
	return g, nil
}

func toSchemaNode(n *flow.Node) (schema.Node, error) {
	sn := schema.Node{ID: n.ID, Label: n.Name}
	switch n.Kind {
	case flow.KindStart:
		sn.NodeType = schema.NodeTypeStart
		sn.Inputs = toNodeIOs(n.MetaFieldList(flow.MetaFields))
	case flow.KindEnd:
		sn.NodeType = schema.NodeTypeEnd
		names, _ := n.Meta[flow.MetaOutputNames].([]string)
		literals, _ := n.Meta[flow.MetaLiterals].(map[string]any)
		for _, name := range names {
			io := schema.NodeIO{Name: name}
			if v, ok := literals[name]; ok {
				io.Default = v
			}
			sn.Outputs = append(sn.Outputs, io)
		}
	case flow.KindAgent:
		sn.NodeType = schema.NodeTypeAgent
		cfg := &schema.AgentConfig{}
		if err := json.Unmarshal([]byte(n.MetaString(flow.MetaAgentSpec)), cfg); err != nil {
			return sn, flow.Errorf(flow.CodeUnsupportedPattern,
				"agent node carries a malformed configuration snippet").
				With("node", n.ID)
		}
		sn.Agent = cfg
	case flow.KindLLM:
		sn.NodeType = schema.NodeTypeLLM
		cfg := &schema.LLMConfig{}
		if err := json.Unmarshal([]byte(n.MetaString(flow.MetaAgentSpec)), cfg); err != nil {
			return sn, flow.Errorf(flow.CodeUnsupportedPattern,
				"llm node carries a malformed configuration snippet").
				With("node", n.ID)
		}
		sn.LLM = cfg
	case flow.KindBranch:
		sn.NodeType = schema.NodeTypeBranch
		cases, _ := n.Meta[flow.MetaBranchCases].(map[string]string)
		sn.Branch = &schema.BranchConfig{
			Field: n.MetaString(flow.MetaBranchField),
			Cases: cases,
		}
	case flow.KindTool:
		sn.NodeType = schema.NodeTypeTool
		sn.Tool = &schema.ToolConfig{
			Name:     n.MetaString(flow.MetaToolName),
			Approval: n.MetaBool(flow.MetaApproval),
			Prompt:   n.MetaString(flow.MetaPrompt),
			Inputs:   toNodeIOs(n.MetaFieldList(flow.MetaToolInputs)),
			Outputs:  toNodeIOs(n.MetaFieldList(flow.MetaToolOutputs)),
		}
	case flow.KindMessage:
		sn.NodeType = schema.NodeTypeMessage
		sn.Message = &schema.MessageConfig{
			Role:    n.MetaString(flow.MetaRole),
			Content: n.MetaString(flow.MetaContent),
		}
	default:
		return sn, flow.Errorf(flow.CodeUnsupportedPattern,
			"IR node kind has no schema counterpart").
			With("node", n.ID).With("kind", string(n.Kind))
	}
	return sn, nil
}

// FromSchema converts a declarative graph back into an IR flow, performing
// the exact inverse of ToSchema and re-serializing embedded component
// configurations into the compact snippet form the IR meta expects.
func FromSchema(g *schema.Graph) (*flow.Flow, error) {
	if g == nil {
		return nil, flow.Errorf(flow.CodeInvalidFlow, "graph is nil")
	}
	name := g.Name
	if name == "" {
		name = "workflow"
	}
	f := &flow.Flow{Name: name, StartID: g.StartNodeID}
	for i := range g.Nodes {
		n, err := fromSchemaNode(&g.Nodes[i])
		if err != nil {
			return nil, err
		}
		f.Nodes = append(f.Nodes, n)
	}
	for _, e := range g.Edges {
		f.Control = append(f.Control, flow.ControlEdge{From: e.Source, To: e.Target, Label: e.Label})
	}
	for _, d := range g.DataEdges {
		f.Data = append(f.Data, flow.DataEdge{
			Source:       d.Source,
			SourceOutput: d.SourceOutput,
			Dest:         d.Target,
			DestInput:    d.TargetInput,
		})
	}
	if err := flow.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func fromSchemaNode(sn *schema.Node) (*flow.Node, error) {
	n := &flow.Node{ID: sn.ID, Name: sn.Label}
	switch sn.NodeType {
	case schema.NodeTypeStart:
		n.Kind = flow.KindStart
		if fields := toFields(sn.Inputs); len(fields) > 0 {
			n.Meta = map[string]any{flow.MetaFields: fields}
		}
	case schema.NodeTypeEnd:
		n.Kind = flow.KindEnd
		if len(sn.Outputs) > 0 {
			names := make([]string, 0, len(sn.Outputs))
			literals := make(map[string]any)
			for _, io := range sn.Outputs {
				names = append(names, io.Name)
				if io.Default != nil {
					literals[io.Name] = io.Default
				}
			}
			n.Meta = map[string]any{flow.MetaOutputNames: names}
			if len(literals) > 0 {
				n.Meta[flow.MetaLiterals] = literals
			}
		}
	case schema.NodeTypeAgent:
		n.Kind = flow.KindAgent
		if sn.Agent == nil {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"agent node has no agent configuration").With("node", sn.ID)
		}
		snippet, err := json.Marshal(sn.Agent)
		if err != nil {
			return nil, flow.Errorf(flow.CodeLossyMapping,
				"agent configuration cannot be serialized").With("node", sn.ID)
		}
		n.Meta = map[string]any{flow.MetaAgentSpec: string(snippet)}
	case schema.NodeTypeLLM:
		n.Kind = flow.KindLLM
		if sn.LLM == nil {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"llm node has no model configuration").With("node", sn.ID)
		}
		snippet, err := json.Marshal(sn.LLM)
		if err != nil {
			return nil, flow.Errorf(flow.CodeLossyMapping,
				"llm configuration cannot be serialized").With("node", sn.ID)
		}
		n.Meta = map[string]any{flow.MetaAgentSpec: string(snippet)}
	case schema.NodeTypeBranch:
		n.Kind = flow.KindBranch
		if sn.Branch == nil {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"branch node has no branching configuration").With("node", sn.ID)
		}
		n.Meta = map[string]any{
			flow.MetaBranchField: sn.Branch.Field,
			flow.MetaBranchCases: sn.Branch.Cases,
		}
	case schema.NodeTypeTool:
		n.Kind = flow.KindTool
		if sn.Tool == nil {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"tool node has no tool configuration").With("node", sn.ID)
		}
		n.Meta = map[string]any{
			flow.MetaToolName:    sn.Tool.Name,
			flow.MetaApproval:    sn.Tool.Approval,
			flow.MetaPrompt:      sn.Tool.Prompt,
			flow.MetaToolInputs:  toFields(sn.Tool.Inputs),
			flow.MetaToolOutputs: toFields(sn.Tool.Outputs),
		}
	case schema.NodeTypeMessage:
		n.Kind = flow.KindMessage
		if sn.Message == nil {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"message node has no message configuration").With("node", sn.ID)
		}
		n.Meta = map[string]any{
			flow.MetaRole:    sn.Message.Role,
			flow.MetaContent: sn.Message.Content,
		}
	default:
		return nil, flow.Errorf(flow.CodeUnsupportedPattern,
			"schema node type has no IR counterpart").
			With("node", sn.ID).With("node_type", sn.NodeType)
	}
	return n, nil
}

func toNodeIOs(fields []flow.Field) []schema.NodeIO {
	var out []schema.NodeIO
	for _, f := range fields {
		out = append(out, schema.NodeIO{Name: f.Name, Kind: f.Kind, Enum: f.Enum})
	}
	return out
}

func toFields(ios []schema.NodeIO) []flow.Field {
	var out []flow.Field
	for _, io := range ios {
		out = append(out, flow.Field{Name: io.Name, Kind: io.Kind, Enum: io.Enum})
	}
	return out
}
