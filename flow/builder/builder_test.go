package builder

import (
	"testing"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/flow/scanner"
)

const header = `package main

import (
	"context"

	"github.com/spichen/agentbridge/sdk"
)

type Ticket struct {
	Subject string ` + "`json:\"subject\"`" + `
}

type Route struct {
	Category string ` + "`json:\"category\" enum:\"billing,technical\"`" + `
}

var (
	router    = sdk.NewAgent(sdk.WithName("router"), sdk.WithModel("gpt-4o-mini"), sdk.WithOutputType(Route{}))
	billing   = sdk.NewAgent(sdk.WithName("billing"), sdk.WithModel("gpt-4o"))
	technical = sdk.NewAgent(sdk.WithName("technical"), sdk.WithModel("gpt-4o"))
	closer    = sdk.NewAgent(sdk.WithName("closer"), sdk.WithModel("gpt-4o"))
)
`

func script(body string) string {
	return header + `
func Workflow(ctx context.Context, input Ticket, tools sdk.ToolRegistry) (map[string]any, error) {
	history := sdk.History{}
` + body + `
}
`
}

func compile(t *testing.T, src string, strict bool) (*flow.Flow, error) {
	t.Helper()
	facts, err := scanner.New(scanner.WithStrict(strict)).Scan([]byte(src))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return Build(facts, WithStrict(strict))
}

func mustCompile(t *testing.T, src string, strict bool) *flow.Flow {
	t.Helper()
	f, err := compile(t, src, strict)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return f
}

func nodeByName(f *flow.Flow, kind flow.NodeKind, name string) *flow.Node {
	for _, n := range f.Nodes {
		if n.Kind == kind && n.Name == name {
			return n
		}
	}
	return nil
}

func kindCount(f *flow.Flow, kind flow.NodeKind) int {
	c := 0
	for _, n := range f.Nodes {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

func hasEdge(f *flow.Flow, from, to, label string) bool {
	for _, e := range f.Control {
		if e.From == from && e.To == to && e.Label == label {
			return true
		}
	}
	return false
}

const linearBody = `	res1, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res1.NewMessages()...)
	res2, err := sdk.Run(ctx, billing, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res2.NewMessages()...)
	res3, err := sdk.Run(ctx, closer, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res3.NewMessages()...)
	return map[string]any{"answer": res3.OutputText, "source": "workflow"}, nil`

func TestBuildLinearChain(t *testing.T) {
	f := mustCompile(t, script(linearBody), true)

	if got := kindCount(f, flow.KindAgent); got != 3 {
		t.Fatalf("agent nodes = %d, want 3", got)
	}
	for _, e := range []struct{ from, to string }{
		{"start_1", "agent_1"},
		{"agent_1", "agent_2"},
		{"agent_2", "agent_3"},
		{"agent_3", "end_1"},
	} {
		if !hasEdge(f, e.from, e.to, "") {
			t.Errorf("missing edge %s -> %s\ncontrol: %+v", e.from, e.to, f.Control)
		}
	}
	// Invocation order follows declaration order in the entry body.
	if f.Nodes[1].Name != "router" || f.Nodes[2].Name != "billing" || f.Nodes[3].Name != "closer" {
		t.Errorf("agent order = %s, %s, %s", f.Nodes[1].Name, f.Nodes[2].Name, f.Nodes[3].Name)
	}

	end := nodeByName(f, flow.KindEnd, "end")
	if end == nil {
		t.Fatal("no end node")
	}
	names, _ := end.Meta[flow.MetaOutputNames].([]string)
	if len(names) != 2 {
		t.Fatalf("end outputs = %v, want answer and source", names)
	}
	literals, _ := end.Meta[flow.MetaLiterals].(map[string]any)
	if literals["source"] != "workflow" {
		t.Errorf("literals = %v", literals)
	}
	e, ok := f.DataIntoInput(end.ID, "answer")
	if !ok || e.Source != "agent_3" || e.SourceOutput != "output_text" {
		t.Fatalf("answer data edge = %+v, %v", e, ok)
	}
}

const ladderBody = `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if res.Parsed["category"] == "billing" {
		res2, err := sdk.Run(ctx, billing, &history)
		if err != nil {
			return nil, err
		}
		history = append(history, res2.NewMessages()...)
		return map[string]any{"answer": res2.OutputText}, nil
	} else if res.Parsed["category"] == "technical" {
		res3, err := sdk.Run(ctx, technical, &history)
		if err != nil {
			return nil, err
		}
		history = append(history, res3.NewMessages()...)
		return map[string]any{"answer": res3.OutputText}, nil
	}
	return map[string]any{}, nil`

func TestBuildLiteralLadder(t *testing.T) {
	f := mustCompile(t, script(ladderBody), true)

	branch := nodeByName(f, flow.KindBranch, "category")
	if branch == nil {
		t.Fatal("no branch node")
	}
	if branch.MetaString(flow.MetaBranchField) != "category" {
		t.Errorf("branch field = %q", branch.MetaString(flow.MetaBranchField))
	}
	cases, _ := branch.Meta[flow.MetaBranchCases].(map[string]string)
	if len(cases) != 2 || cases["billing"] != "billing" || cases["technical"] != "technical" {
		t.Errorf("cases = %v", cases)
	}

	if to, ok := f.BranchTarget(branch.ID, "billing"); !ok || f.Node(to).Name != "billing" {
		t.Errorf("billing arm target = %q, %v", to, ok)
	}
	if to, ok := f.BranchTarget(branch.ID, "technical"); !ok || f.Node(to).Name != "technical" {
		t.Errorf("technical arm target = %q, %v", to, ok)
	}
	// Unmatched values fall through to the trailing return.
	if to, ok := f.BranchTarget(branch.ID, flow.DefaultBranchLabel); !ok || f.Node(to).Kind != flow.KindEnd {
		t.Errorf("default arm target = %q, %v", to, ok)
	}

	e, ok := f.DataIntoInput(branch.ID, "value")
	if !ok || e.Source != "agent_1" || e.SourceOutput != "category" {
		t.Fatalf("driving data edge = %+v, %v", e, ok)
	}
}

const ladderNoElseNoTailBody = `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if res.Parsed["category"] == "billing" {
		return map[string]any{"route": "billing"}, nil
	} else if res.Parsed["category"] == "technical" {
		return map[string]any{"route": "technical"}, nil
	}`

func TestBuildLadderWithoutElseOrContinuation(t *testing.T) {
	f := mustCompile(t, script(ladderNoElseNoTailBody), true)
	branch := nodeByName(f, flow.KindBranch, "category")
	if branch == nil {
		t.Fatal("no branch node")
	}
	// No else arm and nothing effectful after: no default edge at all.
	if _, ok := f.BranchTarget(branch.ID, flow.DefaultBranchLabel); ok {
		t.Fatal("unexpected default edge")
	}
	if got := kindCount(f, flow.KindEnd); got != 2 {
		t.Fatalf("end nodes = %d, want 2", got)
	}
}

const fallthroughBody = `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if res.Parsed["category"] == "billing" {
		res2, err := sdk.Run(ctx, billing, &history)
		if err != nil {
			return nil, err
		}
		history = append(history, res2.NewMessages()...)
	}
	res3, err := sdk.Run(ctx, closer, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res3.NewMessages()...)
	return map[string]any{"answer": res3.OutputText}, nil`

func TestBuildLadderFallthrough(t *testing.T) {
	f := mustCompile(t, script(fallthroughBody), true)
	branch := nodeByName(f, flow.KindBranch, "category")
	if branch == nil {
		t.Fatal("no branch node")
	}
	closerNode := nodeByName(f, flow.KindAgent, "closer")
	if closerNode == nil {
		t.Fatal("no closer agent node")
	}
	// The arm's open tail and the unmatched default both continue into the
	// next invocation.
	if !hasEdge(f, "agent_2", closerNode.ID, "") {
		t.Errorf("missing arm tail edge into %s\ncontrol: %+v", closerNode.ID, f.Control)
	}
	if !hasEdge(f, branch.ID, closerNode.ID, flow.DefaultBranchLabel) {
		t.Errorf("missing default edge into %s\ncontrol: %+v", closerNode.ID, f.Control)
	}
}

const approvalBody = `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if sdk.Approve(ctx, "Proceed with refund?") {
		res2, err := sdk.Run(ctx, billing, &history)
		if err != nil {
			return nil, err
		}
		history = append(history, res2.NewMessages()...)
		return map[string]any{"answer": res2.OutputText}, nil
	} else {
		return map[string]any{"approved": false}, nil
	}`

func TestBuildApprovalGate(t *testing.T) {
	f := mustCompile(t, script(approvalBody), true)

	tool := nodeByName(f, flow.KindTool, "approve")
	if tool == nil {
		t.Fatal("no synthesized tool node")
	}
	if !tool.MetaBool(flow.MetaApproval) {
		t.Error("tool node not marked as approval")
	}
	if tool.MetaString(flow.MetaPrompt) != "Proceed with refund?" {
		t.Errorf("prompt = %q", tool.MetaString(flow.MetaPrompt))
	}
	outs := tool.MetaFieldList(flow.MetaToolOutputs)
	if len(outs) != 1 || outs[0].Name != "approved" || outs[0].Kind != "boolean" {
		t.Errorf("tool outputs = %+v", outs)
	}

	branch := nodeByName(f, flow.KindBranch, "approved")
	if branch == nil {
		t.Fatal("no branch node")
	}
	if !hasEdge(f, tool.ID, branch.ID, "") {
		t.Error("tool node is not wired into the branch")
	}
	cases, _ := branch.Meta[flow.MetaBranchCases].(map[string]string)
	if len(cases) != 2 || cases["true"] != "true" || cases["false"] != "false" {
		t.Errorf("cases = %v", cases)
	}
	if to, ok := f.BranchTarget(branch.ID, "true"); !ok || f.Node(to).Kind != flow.KindAgent {
		t.Errorf("true arm = %q, %v", to, ok)
	}
	if to, ok := f.BranchTarget(branch.ID, "false"); !ok || f.Node(to).Kind != flow.KindEnd {
		t.Errorf("false arm = %q, %v", to, ok)
	}
	e, ok := f.DataIntoInput(branch.ID, "value")
	if !ok || e.Source != tool.ID || e.SourceOutput != "approved" {
		t.Fatalf("driving data edge = %+v, %v", e, ok)
	}
}

func TestBuildStartInputs(t *testing.T) {
	f := mustCompile(t, script(linearBody), true)
	start := f.Node(f.StartID)
	fields := start.MetaFieldList(flow.MetaFields)
	if len(fields) != 1 || fields[0].Name != "subject" || fields[0].Kind != "string" {
		t.Fatalf("start fields = %+v", fields)
	}
}

func TestBuildEndFromInputField(t *testing.T) {
	body := `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	return map[string]any{"subject": input.Subject, "category": res.Parsed["category"]}, nil`
	f := mustCompile(t, script(body), true)
	end := nodeByName(f, flow.KindEnd, "end")
	e, ok := f.DataIntoInput(end.ID, "subject")
	if !ok || e.Source != f.StartID || e.SourceOutput != "subject" {
		t.Fatalf("subject data edge = %+v, %v", e, ok)
	}
}

func TestBuildFailures(t *testing.T) {
	for _, tt := range []struct {
		name     string
		body     string
		strict   bool
		wantCode flow.ErrorCode
	}{
		{
			name: "duplicate branch literal",
			body: `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if res.Parsed["category"] == "billing" {
		return map[string]any{}, nil
	} else if res.Parsed["category"] == "billing" {
		return map[string]any{}, nil
	}
	return map[string]any{}, nil`,
			wantCode: flow.CodeDuplicateBranchLiteral,
		},
		{
			name: "missing accumulator reference",
			body: `	res, err := sdk.Run(ctx, router, history)
	history = append(history, res.NewMessages()...)
	return map[string]any{"answer": res.OutputText}, nil`,
			strict:   true,
			wantCode: flow.CodeMissingAccumulator,
		},
		{
			name: "missing accumulator append",
			body: `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	res2, err := sdk.Run(ctx, billing, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res2.NewMessages()...)
	return map[string]any{"answer": res2.OutputText}, nil`,
			strict:   true,
			wantCode: flow.CodeMissingAccumulatorAppend,
		},
		{
			name: "missing driving field",
			body: `	res, err := sdk.Run(ctx, billing, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	status := "open"
	if status == "open" {
		return map[string]any{}, nil
	}
	return map[string]any{}, nil`,
			wantCode: flow.CodeMissingDrivingField,
		},
		{
			name: "unsupported branch test",
			body: `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	if len(res.OutputText) == 3 {
		return map[string]any{}, nil
	}
	return map[string]any{}, nil`,
			strict:   true,
			wantCode: flow.CodeUnsupportedBranchTest,
		},
		{
			name: "unknown agent",
			body: `	res, err := sdk.Run(ctx, mystery, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	return map[string]any{"answer": res.OutputText}, nil`,
			strict:   true,
			wantCode: flow.CodeUnsupportedPattern,
		},
		{
			name: "unsupported end source",
			body: `	res, err := sdk.Run(ctx, router, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	local := "x"
	return map[string]any{"answer": local}, nil`,
			strict:   true,
			wantCode: flow.CodeUnsupportedEndSource,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compile(t, script(tt.body), tt.strict)
			if !flow.IsCode(err, tt.wantCode) {
				t.Fatalf("Build() = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestBuildLenientSubstitutions(t *testing.T) {
	// Lenient mode accepts the unknown agent and the skipped end output that
	// strict mode rejects.
	body := `	res, err := sdk.Run(ctx, mystery, &history)
	if err != nil {
		return nil, err
	}
	history = append(history, res.NewMessages()...)
	local := "x"
	return map[string]any{"answer": local, "ok": true}, nil`
	f := mustCompile(t, script(body), false)
	if got := kindCount(f, flow.KindAgent); got != 1 {
		t.Fatalf("agent nodes = %d, want 1", got)
	}
	end := nodeByName(f, flow.KindEnd, "end")
	names, _ := end.Meta[flow.MetaOutputNames].([]string)
	if len(names) != 1 || names[0] != "ok" {
		t.Fatalf("end outputs = %v, want unresolvable answer skipped", names)
	}
}

func TestBuildNoEntry(t *testing.T) {
	facts, err := scanner.New().Scan([]byte(header))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if _, err := Build(facts); !flow.IsCode(err, flow.CodeUnsupportedPattern) {
		t.Fatalf("Build() = %v, want %s", err, flow.CodeUnsupportedPattern)
	}
}

func TestBuildFlowName(t *testing.T) {
	f := mustCompile(t, script(linearBody), true)
	if f.Name != "workflow" {
		t.Errorf("Name = %q, want workflow", f.Name)
	}
	facts, err := scanner.New().Scan([]byte(script(linearBody)))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	named, err := Build(facts, WithName("support_flow"))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if named.Name != "support_flow" {
		t.Errorf("Name = %q, want support_flow", named.Name)
	}
}
