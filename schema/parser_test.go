package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonDoc = `{
  "version": "1.0",
  "name": "triage",
  "description": "Routes support tickets.",
  "start_node_id": "start_1",
  "nodes": [
    {
      "id": "start_1",
      "node_type": "core.start",
      "inputs": [
        {"name": "subject", "kind": "string", "required": true},
        {"name": "body", "kind": "string"}
      ]
    },
    {
      "id": "agent_1",
      "node_type": "core.agent",
      "label": "router",
      "agent": {
        "name": "router",
        "model": "gpt-4o-mini",
        "instructions": "Classify the ticket.",
        "temperature": 0.2,
        "max_tokens": 256,
        "tools": ["lookup_order"],
        "output": {
          "name": "Route",
          "fields": [
            {"name": "category", "kind": "string", "enum": ["billing", "technical"]}
          ]
        }
      }
    },
    {
      "id": "branch_1",
      "node_type": "core.branch",
      "branch": {
        "field": "category",
        "cases": {"billing": "billing", "technical": "technical"}
      }
    },
    {
      "id": "tool_1",
      "node_type": "core.tool",
      "tool": {
        "name": "approve",
        "approval": true,
        "prompt": "Issue refund?",
        "outputs": [{"name": "approved", "kind": "boolean"}]
      }
    },
    {
      "id": "llm_1",
      "node_type": "core.llm",
      "llm": {"model": "gpt-4o", "instructions": "Summarize."}
    },
    {
      "id": "message_1",
      "node_type": "core.message",
      "message": {"role": "user", "content": "escalating"}
    },
    {
      "id": "end_1",
      "node_type": "core.end",
      "outputs": [
        {"name": "answer"},
        {"name": "source", "default": "workflow"}
      ]
    }
  ],
  "edges": [
    {"source": "start_1", "target": "agent_1"},
    {"id": "edge_route", "source": "agent_1", "target": "branch_1"},
    {"source": "branch_1", "target": "tool_1", "label": "billing"},
    {"source": "branch_1", "target": "llm_1", "label": "technical"},
    {"source": "branch_1", "target": "end_1", "label": "default"},
    {"source": "tool_1", "target": "message_1"},
    {"source": "message_1", "target": "end_1"},
    {"source": "llm_1", "target": "end_1"}
  ],
  "data_edges": [
    {"source": "agent_1", "source_output": "category", "target": "branch_1", "target_input": "value"},
    {"source": "llm_1", "source_output": "output_text", "target": "end_1", "target_input": "answer"}
  ]
}`

func TestParseJSON(t *testing.T) {
	g, err := NewParser().Parse([]byte(jsonDoc))
	require.NoError(t, err)

	assert.Equal(t, "1.0", g.Version)
	assert.Equal(t, "triage", g.Name)
	assert.Equal(t, "start_1", g.StartNodeID)
	require.Len(t, g.Nodes, 7)
	require.Len(t, g.Edges, 8)
	require.Len(t, g.DataEdges, 2)

	start := g.Nodes[0]
	assert.Equal(t, NodeTypeStart, start.NodeType)
	require.Len(t, start.Inputs, 2)
	assert.True(t, start.Inputs[0].Required)

	agent := g.Nodes[1]
	require.NotNil(t, agent.Agent)
	assert.Equal(t, "router", agent.Agent.Name)
	require.NotNil(t, agent.Agent.Temperature)
	assert.InDelta(t, 0.2, *agent.Agent.Temperature, 1e-9)
	require.NotNil(t, agent.Agent.MaxTokens)
	assert.Equal(t, 256, *agent.Agent.MaxTokens)
	require.NotNil(t, agent.Agent.Output)
	assert.Equal(t, "Route", agent.Agent.Output.Name)
	assert.Equal(t, []string{"billing", "technical"}, agent.Agent.Output.Fields[0].Enum)

	branch := g.Nodes[2]
	require.NotNil(t, branch.Branch)
	assert.Equal(t, "category", branch.Branch.Field)
	assert.Equal(t, "billing", branch.Branch.Cases["billing"])

	tool := g.Nodes[3]
	require.NotNil(t, tool.Tool)
	assert.True(t, tool.Tool.Approval)
	assert.Equal(t, "Issue refund?", tool.Tool.Prompt)

	end := g.Nodes[6]
	require.Len(t, end.Outputs, 2)
	assert.Equal(t, "workflow", end.Outputs[1].Default)
}

func TestParseFillsEdgeIDs(t *testing.T) {
	g, err := NewParser().Parse([]byte(jsonDoc))
	require.NoError(t, err)

	assert.Equal(t, "edge_0", g.Edges[0].ID)
	assert.Equal(t, "edge_route", g.Edges[1].ID, "explicit ids are kept")
	assert.Equal(t, "edge_2", g.Edges[2].ID)
	assert.Equal(t, "data_edge_0", g.DataEdges[0].ID)
	assert.Equal(t, "data_edge_1", g.DataEdges[1].ID)
}

func TestParseStrictRejectsUnknownFields(t *testing.T) {
	doc := `{"version": "1.0", "name": "x", "position": {"x": 10}}`

	_, err := NewParser().Parse([]byte(doc))
	require.NoError(t, err, "lenient parsing ignores unknown fields")

	_, err = NewStrictParser().Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse workflow definition")
}

func TestParseInvalidJSON(t *testing.T) {
	_, err := NewParser().Parse([]byte("{not json"))
	require.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	g, err := NewParser().Parse([]byte(jsonDoc))
	require.NoError(t, err)

	data, err := ToYAML(g)
	require.NoError(t, err)

	back, err := NewParser().ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, g, back)
}

func TestJSONRoundTrip(t *testing.T) {
	g, err := NewParser().Parse([]byte(jsonDoc))
	require.NoError(t, err)

	data, err := ToJSON(g)
	require.NoError(t, err)

	back, err := NewStrictParser().Parse(data)
	require.NoError(t, err, "serialized output must satisfy the strict parser")
	assert.Equal(t, g, back)
}

func TestParseYAMLStrict(t *testing.T) {
	doc := "version: \"1.0\"\nname: x\nlayout:\n  theme: dark\n"

	_, err := NewParser().ParseYAML([]byte(doc))
	require.NoError(t, err)

	_, err = NewStrictParser().ParseYAML([]byte(doc))
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "flow.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonDoc), 0o644))
	g, err := NewParser().ParseFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "triage", g.Name)

	yamlData, err := ToYAML(g)
	require.NoError(t, err)
	yamlPath := filepath.Join(dir, "flow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, yamlData, 0o644))
	back, err := NewParser().ParseFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, g, back)

	_, err = NewParser().ParseFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestWriteToFile(t *testing.T) {
	g, err := NewParser().Parse([]byte(jsonDoc))
	require.NoError(t, err)

	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.yml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteToFile(g, path))
		back, err := NewParser().ParseFile(path)
		require.NoError(t, err)
		assert.Equal(t, g, back, name)
	}
}
