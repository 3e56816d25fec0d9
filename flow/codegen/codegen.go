// Package codegen regenerates workflow scripts from flow graphs. The walk is
// depth-first from the start node, guarded by a visiting set so cyclic input
// fails with a typed error instead of recursing forever. Branch arms are
// emitted in sorted literal order so output is deterministic.
package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"go/token"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/internal/ident"
	"github.com/spichen/agentbridge/schema"
)

// DefaultSDKImport is the host SDK import path written into generated scripts.
const DefaultSDKImport = "github.com/spichen/agentbridge/sdk"

// Options controls how source is generated from a flow.
type Options struct {
	// PackageName is the generated package name (defaults to "main").
	PackageName string
	// EntryName is the entry procedure name (defaults to "Workflow").
	EntryName string
	// SDKImport overrides the host SDK import path.
	SDKImport string
}

// Option is a functional option for Generate.
type Option func(*Options)

// WithPackageName sets the generated package name.
func WithPackageName(name string) Option {
	return func(o *Options) { o.PackageName = name }
}

// WithEntryName sets the entry procedure name.
func WithEntryName(name string) Option {
	return func(o *Options) { o.EntryName = name }
}

// WithSDKImport sets the host SDK import path.
func WithSDKImport(path string) Option {
	return func(o *Options) { o.SDKImport = path }
}

// Generate renders a flow back into workflow source text.
func Generate(f *flow.Flow, opts ...Option) ([]byte, error) {
	if err := flow.Validate(f); err != nil {
		return nil, err
	}
	o := Options{PackageName: "main", EntryName: "Workflow", SDKImport: DefaultSDKImport}
	for _, opt := range opts {
		opt(&o)
	}

	g := &gen{
		f:        f,
		specVar:  make(map[string]string),
		used:     map[string]bool{"ctx": true, "tools": true, "sdk": true, "history": true, "input": true, "err": true},
		resVars:  make(map[string]string),
		toolVars: make(map[string]string),
		visiting: make(map[string]bool),
		seen:     make(map[string]bool),
	}
	g.used[ident.Unexported(o.EntryName)] = true

	data := fileData{
		FlowName:    f.Name,
		PackageName: o.PackageName,
		SDKImport:   o.SDKImport,
		EntryName:   o.EntryName,
	}

	if start := f.Node(f.StartID); start != nil {
		if fields := start.MetaFieldList(flow.MetaFields); len(fields) > 0 {
			name := ident.Exported(f.Name) + "Input"
			data.Records = append(data.Records, g.recordData(name, fields))
			data.InputParam = "input"
			data.InputType = name
			g.seen[name] = true
		}
	}

	agents, records, err := g.collectAgents()
	if err != nil {
		return nil, err
	}
	data.Agents = agents
	data.Records = append(data.Records, records...)
	data.Tools = g.collectTools()

	if err := g.walk(f.StartID, ""); err != nil {
		return nil, err
	}
	body := g.lines
	if len(body) == 0 {
		body = []string{"return map[string]any{}, nil"}
	}
	if g.needHist {
		body = append([]string{"history := sdk.History{}"}, body...)
	}
	data.Body = body

	tmpl, err := template.New("workflow").Parse(fileTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse workflow template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render workflow source: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated source: %w", err)
	}
	return src, nil
}

type gen struct {
	f *flow.Flow

	// specVar maps an agent configuration snippet to its file-scope
	// variable; agents are deduplicated by identity across the whole graph.
	specVar map[string]string
	used    map[string]bool

	// resVars maps an emitted agent node to its result variable on the
	// current path. Branch arms run on copies so an arm-local result does
	// not leak into sibling arms where it is out of scope.
	resVars  map[string]string
	toolVars map[string]string
	visiting map[string]bool
	seen     map[string]bool

	// stop ends the current walk without emitting; branch emission sets it
	// to the arms' join node so a shared continuation is rendered once,
	// after the ladder, instead of once per arm.
	stop string

	seq      int
	lines    []string
	needHist bool
	hasInput bool
}

func (g *gen) emit(line string) { g.lines = append(g.lines, line) }

func (g *gen) emitf(f string, args ...any) { g.emit(fmt.Sprintf(f, args...)) }

func (g *gen) nextSeq() int {
	g.seq++
	return g.seq
}

// uniqueName reserves an unexported identifier derived from name.
func (g *gen) uniqueName(name, fallback string) string {
	base := ident.Unexported(name)
	if base == "" || token.IsKeyword(base) {
		base = fallback
	}
	out := base
	for n := 2; g.used[out]; n++ {
		out = fmt.Sprintf("%s%d", base, n)
	}
	g.used[out] = true
	return out
}

// collectAgents assigns file-scope variables and record declarations for
// every distinct agent configuration, in node order.
func (g *gen) collectAgents() ([]agentData, []recordData, error) {
	var agents []agentData
	var records []recordData
	for _, n := range g.f.Nodes {
		if n.Kind != flow.KindAgent {
			continue
		}
		spec := n.MetaString(flow.MetaAgentSpec)
		if _, ok := g.specVar[spec]; ok {
			continue
		}
		cfg := schema.AgentConfig{}
		if err := json.Unmarshal([]byte(spec), &cfg); err != nil {
			return nil, nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"agent node carries a malformed configuration snippet").With("node", n.ID)
		}
		varName := g.uniqueName(cfg.Name, "agent")
		g.specVar[spec] = varName

		outputType := ""
		if cfg.Output != nil && len(cfg.Output.Fields) > 0 {
			outputType = cfg.Output.Name
			if outputType == "" {
				outputType = ident.Exported(cfg.Name) + "Output"
			}
			if !g.seen[outputType] {
				g.seen[outputType] = true
				records = append(records, g.recordData(outputType, ioFields(cfg.Output.Fields)))
			}
		}
		agents = append(agents, agentData{VarName: varName, Options: agentOptions(cfg, outputType)})
	}
	return agents, records, nil
}

func agentOptions(cfg schema.AgentConfig, outputType string) []string {
	var opts []string
	if cfg.Name != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithName(%s)", strconv.Quote(cfg.Name)))
	}
	if cfg.Model != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithModel(%s)", strconv.Quote(cfg.Model)))
	}
	if cfg.Instructions != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithInstructions(%s)", strconv.Quote(cfg.Instructions)))
	}
	if cfg.Temperature != nil {
		opts = append(opts, fmt.Sprintf("sdk.WithTemperature(%s)",
			strconv.FormatFloat(*cfg.Temperature, 'g', -1, 64)))
	}
	if cfg.MaxTokens != nil {
		opts = append(opts, fmt.Sprintf("sdk.WithMaxTokens(%d)", *cfg.MaxTokens))
	}
	if len(cfg.Tools) > 0 {
		quoted := make([]string, len(cfg.Tools))
		for i, t := range cfg.Tools {
			quoted[i] = strconv.Quote(t)
		}
		opts = append(opts, fmt.Sprintf("sdk.WithTools(%s)", strings.Join(quoted, ", ")))
	}
	if outputType != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithOutputType(%s{})", outputType))
	}
	return opts
}

func (g *gen) recordData(name string, fields []flow.Field) recordData {
	rec := recordData{Name: name}
	for _, f := range fields {
		tag := fmt.Sprintf("json:%s", strconv.Quote(f.Name))
		if len(f.Enum) > 0 {
			tag += fmt.Sprintf(" enum:%s", strconv.Quote(strings.Join(f.Enum, ",")))
		}
		rec.Fields = append(rec.Fields, recordFieldData{
			Name: ident.Exported(f.Name),
			Type: goType(f.Kind),
			Tag:  tag,
		})
	}
	return rec
}

// collectTools emits one stub per distinct tool name referenced by an agent,
// sorted for determinism. A tool node carrying a typed signature refines the
// stub; otherwise the stub forwards a generic argument map.
func (g *gen) collectTools() []toolData {
	names := make(map[string]bool)
	typed := make(map[string]*flow.Node)
	for _, n := range g.f.Nodes {
		switch n.Kind {
		case flow.KindAgent:
			cfg := schema.AgentConfig{}
			if json.Unmarshal([]byte(n.MetaString(flow.MetaAgentSpec)), &cfg) == nil {
				for _, t := range cfg.Tools {
					names[t] = true
				}
			}
		case flow.KindTool:
			if !n.MetaBool(flow.MetaApproval) {
				typed[n.MetaString(flow.MetaToolName)] = n
			}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var tools []toolData
	for _, name := range sorted {
		tools = append(tools, g.toolStub(name, typed[name]))
	}
	return tools
}

func (g *gen) toolStub(name string, node *flow.Node) toolData {
	td := toolData{FuncName: g.uniqueName(name, "tool")}
	var inputs, outputs []flow.Field
	if node != nil {
		inputs = node.MetaFieldList(flow.MetaToolInputs)
		outputs = node.MetaFieldList(flow.MetaToolOutputs)
	}
	if len(outputs) == 0 {
		td.Params = ", args map[string]any"
		td.Results = "map[string]any, error"
		td.Body = []string{fmt.Sprintf("return tools.Call(ctx, %s, args)", strconv.Quote(name))}
		return td
	}

	var params, argPairs []string
	for _, in := range inputs {
		pname := ident.Unexported(in.Name)
		if pname == "" || token.IsKeyword(pname) || pname == "ctx" || pname == "tools" || pname == "out" || pname == "err" {
			pname = pname + "Arg"
		}
		params = append(params, fmt.Sprintf("%s %s", pname, goType(in.Kind)))
		argPairs = append(argPairs, fmt.Sprintf("%s: %s", strconv.Quote(in.Name), pname))
	}
	td.Params = ""
	if len(params) > 0 {
		td.Params = ", " + strings.Join(params, ", ")
	}

	var results, outNames []string
	for _, out := range outputs {
		oname := ident.Unexported(out.Name)
		if oname == "" || token.IsKeyword(oname) || oname == "ctx" || oname == "tools" || oname == "out" || oname == "err" {
			oname = oname + "Val"
		}
		results = append(results, fmt.Sprintf("%s %s", oname, goType(out.Kind)))
		outNames = append(outNames, oname)
	}
	td.Results = strings.Join(append(results, "err error"), ", ")

	body := []string{
		fmt.Sprintf("out, err := tools.Call(ctx, %s, map[string]any{%s})",
			strconv.Quote(name), strings.Join(argPairs, ", ")),
		"if err != nil {",
		fmt.Sprintf("return %s, err", strings.Join(outNames, ", ")),
		"}",
	}
	for i, out := range outputs {
		body = append(body, fmt.Sprintf("%s, _ = out[%s].(%s)",
			outNames[i], strconv.Quote(out.Name), goType(out.Kind)))
	}
	body = append(body, fmt.Sprintf("return %s, nil", strings.Join(outNames, ", ")))
	td.Body = body
	return td
}

// walk emits the statements for the path starting at id. lastAgent is the
// most recently emitted agent node on this path, used for fallback source
// resolution. An empty id closes the path with an empty result.
func (g *gen) walk(id, lastAgent string) error {
	if id != "" && id == g.stop {
		return nil
	}
	if id == "" {
		g.emit("return map[string]any{}, nil")
		return nil
	}
	if g.visiting[id] {
		return flow.Errorf(flow.CodeCyclicGraph,
			"control-flow cycle reached during generation").With("node", id)
	}
	n := g.f.Node(id)
	if n == nil {
		return flow.Errorf(flow.CodeInvalidFlow, "control edge targets unknown node").With("node", id)
	}
	g.visiting[id] = true
	defer delete(g.visiting, id)

	switch n.Kind {
	case flow.KindStart:
		g.hasInput = len(n.MetaFieldList(flow.MetaFields)) > 0
		next, _ := g.f.Successor(id)
		return g.walk(next, lastAgent)

	case flow.KindAgent:
		spec := n.MetaString(flow.MetaAgentSpec)
		return g.runBlock(n, g.specVar[spec])

	case flow.KindLLM:
		return g.llmBlock(n)

	case flow.KindMessage:
		g.needHist = true
		g.emitf("history = append(history, sdk.Message{Role: %s, Content: %s})",
			strconv.Quote(n.MetaString(flow.MetaRole)),
			strconv.Quote(n.MetaString(flow.MetaContent)))
		next, _ := g.f.Successor(id)
		return g.walk(next, lastAgent)

	case flow.KindTool:
		if n.MetaBool(flow.MetaApproval) {
			return g.approvalBlock(n, lastAgent)
		}
		return g.toolBlock(n, lastAgent)

	case flow.KindBranch:
		return g.branchBlock(n, lastAgent)

	case flow.KindEnd:
		return g.endBlock(n, lastAgent)
	}
	return flow.Errorf(flow.CodeUnsupportedPattern,
		"node kind cannot be rendered as source").
		With("node", id).With("kind", string(n.Kind))
}

// runBlock emits one delegate invocation with the accumulator conventions,
// then continues along the unconditional successor or returns the
// materialized result when there is none.
func (g *gen) runBlock(n *flow.Node, agentVar string) error {
	if agentVar == "" {
		agentVar = "nil"
	}
	res := fmt.Sprintf("res%d", g.nextSeq())
	g.needHist = true
	g.emitf("%s, err := sdk.Run(ctx, %s, &history)", res, agentVar)
	g.emit("if err != nil {")
	g.emit("return nil, err")
	g.emit("}")
	g.emitf("history = append(history, %s.NewMessages()...)", res)
	g.resVars[n.ID] = res

	next, ok := g.f.Successor(n.ID)
	if !ok {
		g.emitf("return map[string]any{%s: %s.OutputText}, nil", strconv.Quote("output_text"), res)
		return nil
	}
	return g.walk(next, n.ID)
}

// llmBlock emits a bare model invocation as an inline agent construction
// followed by the usual run block.
func (g *gen) llmBlock(n *flow.Node) error {
	cfg := schema.LLMConfig{}
	if err := json.Unmarshal([]byte(n.MetaString(flow.MetaAgentSpec)), &cfg); err != nil {
		return flow.Errorf(flow.CodeUnsupportedPattern,
			"llm node carries a malformed configuration snippet").With("node", n.ID)
	}
	var opts []string
	if n.Name != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithName(%s)", strconv.Quote(n.Name)))
	}
	if cfg.Model != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithModel(%s)", strconv.Quote(cfg.Model)))
	}
	if cfg.Instructions != "" {
		opts = append(opts, fmt.Sprintf("sdk.WithInstructions(%s)", strconv.Quote(cfg.Instructions)))
	}
	if cfg.Temperature != nil {
		opts = append(opts, fmt.Sprintf("sdk.WithTemperature(%s)",
			strconv.FormatFloat(*cfg.Temperature, 'g', -1, 64)))
	}
	v := fmt.Sprintf("model%d", g.nextSeq())
	g.emitf("%s := sdk.NewAgent(%s)", v, strings.Join(opts, ", "))
	return g.runBlock(n, v)
}

// toolBlock emits a direct registry call with inputs resolved from data
// edges.
func (g *gen) toolBlock(n *flow.Node, lastAgent string) error {
	edges := g.f.DataInto(n.ID)
	sort.Slice(edges, func(i, j int) bool { return edges[i].DestInput < edges[j].DestInput })
	var argPairs []string
	for _, e := range edges {
		expr, ok := g.sourceExpr(e)
		if !ok {
			continue
		}
		argPairs = append(argPairs, fmt.Sprintf("%s: %s", strconv.Quote(e.DestInput), expr))
	}
	out := fmt.Sprintf("out%d", g.nextSeq())
	g.emitf("%s, err := tools.Call(ctx, %s, map[string]any{%s})",
		out, strconv.Quote(n.MetaString(flow.MetaToolName)), strings.Join(argPairs, ", "))
	g.emit("if err != nil {")
	g.emit("return nil, err")
	g.emit("}")
	g.emitf("_ = %s", out)
	g.toolVars[n.ID] = out

	next, _ := g.f.Successor(n.ID)
	return g.walk(next, lastAgent)
}

// walkUntil walks one branch arm, stopping silently at the arms' join node.
func (g *gen) walkUntil(id, lastAgent, stop string) error {
	prev := g.stop
	g.stop = stop
	err := g.walk(id, lastAgent)
	g.stop = prev
	return err
}

// reachable returns every node reachable from id over control edges,
// including id itself.
func (g *gen) reachable(id string) map[string]bool {
	seen := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		for _, e := range g.f.Control {
			if e.From == cur {
				queue = append(queue, e.To)
			}
		}
	}
	return seen
}

// joinNode returns the nearest node reachable from every arm target, or ""
// when the arms never converge. Arms that fall through to a shared
// continuation are emitted up to the join; the continuation follows the
// ladder once.
func (g *gen) joinNode(targets []string) string {
	if len(targets) < 2 {
		return ""
	}
	rest := make([]map[string]bool, 0, len(targets)-1)
	for _, t := range targets[1:] {
		rest = append(rest, g.reachable(t))
	}
	// Breadth-first from the first arm so the nearest common node wins.
	queue := []string{targets[0]}
	visited := make(map[string]bool)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == "" || visited[cur] {
			continue
		}
		visited[cur] = true
		common := true
		for _, s := range rest {
			if !s[cur] {
				common = false
				break
			}
		}
		if common {
			return cur
		}
		for _, e := range g.f.Control {
			if e.From == cur {
				queue = append(queue, e.To)
			}
		}
	}
	return ""
}

func copyVars(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// approvalBlock rewrites the synthesized approval pair (boolean tool node
// plus two-arm branch) back into an approval-gate conditional.
func (g *gen) approvalBlock(n *flow.Node, lastAgent string) error {
	prompt := strconv.Quote(n.MetaString(flow.MetaPrompt))
	next, _ := g.f.Successor(n.ID)
	br := g.f.Node(next)
	if br == nil || br.Kind != flow.KindBranch {
		g.emitf("sdk.Approve(ctx, %s)", prompt)
		return g.walk(next, lastAgent)
	}
	if g.visiting[br.ID] {
		return flow.Errorf(flow.CodeCyclicGraph,
			"control-flow cycle reached during generation").With("node", br.ID)
	}
	g.visiting[br.ID] = true
	defer delete(g.visiting, br.ID)

	trueTarget, _ := g.f.BranchTarget(br.ID, "true")
	falseTarget, hasFalse := g.f.BranchTarget(br.ID, "false")
	var join string
	if hasFalse {
		join = g.joinNode([]string{trueTarget, falseTarget})
	}

	savedRes, savedTools := g.resVars, g.toolVars
	g.emitf("if sdk.Approve(ctx, %s) {", prompt)
	g.resVars, g.toolVars = copyVars(savedRes), copyVars(savedTools)
	if err := g.walkUntil(trueTarget, lastAgent, join); err != nil {
		return err
	}
	switch {
	case hasFalse && join != "" && falseTarget == join:
		// The false arm is exactly the shared continuation; it follows the
		// closing brace.
	case hasFalse:
		g.emit("} else {")
		g.resVars, g.toolVars = copyVars(savedRes), copyVars(savedTools)
		if err := g.walkUntil(falseTarget, lastAgent, join); err != nil {
			return err
		}
	default:
		g.emit("} else {")
		g.emit("return map[string]any{}, nil")
	}
	g.emit("}")
	g.resVars, g.toolVars = savedRes, savedTools
	if join != "" {
		return g.walk(join, lastAgent)
	}
	return nil
}

// branchBlock emits a literal equality ladder, one arm per case in sorted
// literal order, with the default edge as the else arm. A branch without a
// default edge gets a safe empty-result else.
func (g *gen) branchBlock(n *flow.Node, lastAgent string) error {
	test, err := g.branchTest(n, lastAgent)
	if err != nil {
		return err
	}
	cases, _ := n.Meta[flow.MetaBranchCases].(map[string]string)
	type arm struct{ label, literal string }
	arms := make([]arm, 0, len(cases))
	for label, literal := range cases {
		arms = append(arms, arm{label: label, literal: literal})
	}
	sort.Slice(arms, func(i, j int) bool { return arms[i].literal < arms[j].literal })

	defaultTarget, hasDefault := g.f.BranchTarget(n.ID, flow.DefaultBranchLabel)

	if len(arms) == 0 {
		if hasDefault {
			return g.walk(defaultTarget, lastAgent)
		}
		g.emit("return map[string]any{}, nil")
		return nil
	}

	targets := make([]string, 0, len(arms)+1)
	for _, a := range arms {
		if t, ok := g.f.BranchTarget(n.ID, a.label); ok {
			targets = append(targets, t)
		}
	}
	if hasDefault {
		targets = append(targets, defaultTarget)
	}
	join := g.joinNode(targets)

	savedRes, savedTools := g.resVars, g.toolVars
	for i, a := range arms {
		kw := "if"
		if i > 0 {
			kw = "} else if"
		}
		g.emitf("%s %s == %s {", kw, test, strconv.Quote(a.literal))
		target, _ := g.f.BranchTarget(n.ID, a.label)
		g.resVars, g.toolVars = copyVars(savedRes), copyVars(savedTools)
		if err := g.walkUntil(target, lastAgent, join); err != nil {
			return err
		}
	}
	switch {
	case hasDefault && join != "" && defaultTarget == join:
		// The default arm is exactly the shared continuation; it follows
		// the closing brace.
	case hasDefault:
		g.emit("} else {")
		g.resVars, g.toolVars = copyVars(savedRes), copyVars(savedTools)
		if err := g.walkUntil(defaultTarget, lastAgent, join); err != nil {
			return err
		}
	default:
		g.emit("} else {")
		g.emit("return map[string]any{}, nil")
	}
	g.emit("}")
	g.resVars, g.toolVars = savedRes, savedTools
	if join != "" {
		return g.walk(join, lastAgent)
	}
	return nil
}

// branchTest resolves the driving expression, preferring the explicit data
// edge into the branch over the last agent's field fallback.
func (g *gen) branchTest(n *flow.Node, lastAgent string) (string, error) {
	if e, ok := g.f.DataIntoInput(n.ID, "value"); ok {
		if expr, ok := g.sourceExpr(e); ok {
			return expr, nil
		}
		return "", flow.Errorf(flow.CodeMissingDrivingField,
			"branch driving value has no resolvable upstream source").
			With("node", n.ID)
	}
	field := n.MetaString(flow.MetaBranchField)
	if field != "" && lastAgent != "" {
		if res := g.resVars[lastAgent]; res != "" {
			return fmt.Sprintf("%s.Parsed[%s]", res, strconv.Quote(field)), nil
		}
	}
	return "", flow.Errorf(flow.CodeMissingDrivingField,
		"branch has no driving field").With("node", n.ID)
}

// sourceExpr renders the expression reading an upstream (node, output) pair
// on the current path.
func (g *gen) sourceExpr(e flow.DataEdge) (string, bool) {
	src := g.f.Node(e.Source)
	if src == nil {
		return "", false
	}
	switch src.Kind {
	case flow.KindStart:
		if !g.hasInput {
			return "", false
		}
		return fmt.Sprintf("input.%s", ident.Exported(e.SourceOutput)), true
	case flow.KindAgent, flow.KindLLM:
		res := g.resVars[e.Source]
		if res == "" {
			return "", false
		}
		if e.SourceOutput == "output_text" {
			return res + ".OutputText", true
		}
		return fmt.Sprintf("%s.Parsed[%s]", res, strconv.Quote(e.SourceOutput)), true
	case flow.KindTool:
		out := g.toolVars[e.Source]
		if out == "" {
			return "", false
		}
		return fmt.Sprintf("%s[%s]", out, strconv.Quote(e.SourceOutput)), true
	}
	return "", false
}

// endBlock emits the closing return. Declared outputs resolve literals and
// upstream agent/start sources; without declared outputs the most recent
// agent's result is returned, or an empty map when there is none.
func (g *gen) endBlock(n *flow.Node, lastAgent string) error {
	names, _ := n.Meta[flow.MetaOutputNames].([]string)
	if len(names) == 0 {
		if res := g.resVars[lastAgent]; res != "" {
			g.emitf("return map[string]any{%s: %s.OutputText}, nil", strconv.Quote("output_text"), res)
		} else {
			g.emit("return map[string]any{}, nil")
		}
		return nil
	}

	literals, _ := n.Meta[flow.MetaLiterals].(map[string]any)
	var entries []string
	for _, name := range names {
		if v, ok := literals[name]; ok {
			entries = append(entries, fmt.Sprintf("%s: %s", strconv.Quote(name), renderLiteral(v)))
			continue
		}
		e, ok := g.f.DataIntoInput(n.ID, name)
		if !ok {
			return flow.Errorf(flow.CodeUnsupportedEndSource,
				"end output has neither a literal nor a data edge").
				With("node", n.ID).With("output", name)
		}
		src := g.f.Node(e.Source)
		if src == nil || (src.Kind != flow.KindAgent && src.Kind != flow.KindLLM && src.Kind != flow.KindStart) {
			return flow.Errorf(flow.CodeUnsupportedEndSource,
				"end output source must be an upstream agent or start node").
				With("node", n.ID).With("output", name)
		}
		expr, ok := g.sourceExpr(e)
		if !ok {
			return flow.Errorf(flow.CodeUnsupportedEndSource,
				"end output source is not materialized on this path").
				With("node", n.ID).With("output", name)
		}
		entries = append(entries, fmt.Sprintf("%s: %s", strconv.Quote(name), expr))
	}
	g.emitf("return map[string]any{%s}, nil", strings.Join(entries, ", "))
	return nil
}

func renderLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "nil"
	case float64, float32, int, int64:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%#v", t)
	}
}

func goType(kind string) string {
	switch kind {
	case "string":
		return "string"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "array":
		return "[]any"
	default:
		return "map[string]any"
	}
}

func ioFields(ios []schema.NodeIO) []flow.Field {
	var out []flow.Field
	for _, io := range ios {
		out = append(out, flow.Field{Name: io.Name, Kind: io.Kind, Enum: io.Enum})
	}
	return out
}
