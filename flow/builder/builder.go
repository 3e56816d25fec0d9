// Package builder turns scanner facts and the entry procedure's statement
// list into a flow graph. It recognizes sequential delegate invocations,
// literal branch ladders and approval gates; every other statement is
// structurally inert. All failure modes are explicit, named errors rather
// than silent misinterpretation.
package builder

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/flow/scanner"
	"github.com/spichen/agentbridge/internal/astutil"
	"github.com/spichen/agentbridge/internal/ident"
	"github.com/spichen/agentbridge/schema"
)

// Option configures a build.
type Option func(*build)

// WithStrict selects fail-fast (true) versus best-effort (false) policy.
func WithStrict(strict bool) Option {
	return func(b *build) { b.strict = strict }
}

// WithName overrides the flow name (defaults to the entry procedure name).
func WithName(name string) Option {
	return func(b *build) { b.name = name }
}

// tail is one still-open exit point of the statements processed so far.
// Multiple tails exist while a branch ladder's arms are being unfolded and
// are merged back by concatenation once all arms are processed. Tails are
// discarded when the graph is fully wired.
type tail struct {
	// nodeID is the node whose outgoing edge is still open.
	nodeID string

	// lastAgentID is the most recently emitted agent node on this path,
	// used for driving-field fallback.
	lastAgentID string

	// label is the pending branch label for the next edge, empty for the
	// unconditional edge.
	label string
}

type build struct {
	strict bool
	name   string

	facts   *scanner.Facts
	sdkName string

	seq     map[string]int
	nodes   []*flow.Node
	control []flow.ControlEdge
	data    []flow.DataEdge

	startID string

	// resultAgents maps a delegate-invocation result variable to the agent
	// node it materializes.
	resultAgents map[string]string

	// agentFacts maps an agent node id back to its construction fact.
	agentFacts map[string]scanner.AgentFact
}

// Build compiles the entry procedure described by facts into a Flow.
func Build(facts *scanner.Facts, opts ...Option) (*flow.Flow, error) {
	if facts == nil || facts.Entry == nil {
		return nil, flow.Errorf(flow.CodeUnsupportedPattern, "no entry procedure found")
	}
	b := &build{
		facts:        facts,
		sdkName:      facts.SDKName,
		seq:          make(map[string]int),
		resultAgents: make(map[string]string),
		agentFacts:   make(map[string]scanner.AgentFact),
	}
	if b.sdkName == "" {
		b.sdkName = "sdk"
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.name == "" {
		b.name = ident.Snake(facts.Entry.Name)
	}

	b.startID = b.nextID("start")
	start := &flow.Node{ID: b.startID, Name: "start", Kind: flow.KindStart}
	if facts.Entry.InputType != "" {
		if rec, ok := facts.Record(facts.Entry.InputType); ok {
			start.Meta = map[string]any{flow.MetaFields: rec.Fields}
		}
	}
	b.nodes = append(b.nodes, start)

	tails, err := b.stmts(facts.Entry.Body, []tail{{nodeID: b.startID}})
	if err != nil {
		return nil, err
	}
	if len(tails) > 0 {
		endID := b.nextID("end")
		b.nodes = append(b.nodes, &flow.Node{ID: endID, Name: "end", Kind: flow.KindEnd})
		b.wire(tails, endID)
	}

	f := &flow.Flow{
		Name:    b.name,
		StartID: b.startID,
		Nodes:   b.nodes,
		Control: b.control,
		Data:    b.data,
	}
	if err := flow.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (b *build) nextID(prefix string) string {
	b.seq[prefix]++
	return fmt.Sprintf("%s_%d", prefix, b.seq[prefix])
}

// wire connects every open tail to the given node, consuming the tails'
// pending labels.
func (b *build) wire(tails []tail, to string) {
	for _, t := range tails {
		b.control = append(b.control, flow.ControlEdge{From: t.nodeID, To: to, Label: t.label})
	}
}

// stmts processes a statement sequence over the open tail list and returns
// the tails still open afterwards. A return statement closes the flow and
// ends processing.
func (b *build) stmts(stmts []ast.Stmt, tails []tail) ([]tail, error) {
	for i := 0; i < len(stmts); i++ {
		st := stmts[i]
		shape, err := b.classify(st)
		if err != nil {
			return nil, err
		}
		switch shape {
		case shapeReturn:
			if err := b.closeFlow(st.(*ast.ReturnStmt), tails); err != nil {
				return nil, err
			}
			return nil, nil
		case shapeRun:
			tails, err = b.runStmt(st.(*ast.AssignStmt), stmts[i+1:], tails)
		case shapeLadder:
			tails, err = b.ladder(st.(*ast.IfStmt), tails, b.effectfulAhead(stmts[i+1:]))
		case shapeApproval:
			tails, err = b.approval(st.(*ast.IfStmt), tails, b.effectfulAhead(stmts[i+1:]))
		default:
			// Structurally inert.
		}
		if err != nil {
			return nil, err
		}
	}
	return tails, nil
}

// runStmt handles one delegate invocation
// "res, err := sdk.Run(ctx, agent, &history)".
func (b *build) runStmt(as *ast.AssignStmt, rest []ast.Stmt, tails []tail) ([]tail, error) {
	call, _ := astutil.PkgCall(as.Rhs[0], b.sdkName, "Run")

	agentVar := ""
	if len(call.Args) >= 2 {
		if id, ok := call.Args[1].(*ast.Ident); ok {
			agentVar = id.Name
		}
	}
	fact, known := b.facts.Agents[agentVar]
	if !known {
		if b.strict {
			return nil, flow.Errorf(flow.CodeUnsupportedPattern,
				"delegate invocation references unknown agent").With("agent", agentVar)
		}
		fact = scanner.AgentFact{Var: agentVar, Name: agentVar}
	}

	// The call must pass the history accumulator by reference.
	histName := ""
	if len(call.Args) >= 3 {
		if un, ok := call.Args[2].(*ast.UnaryExpr); ok && un.Op == token.AND {
			if id, ok := un.X.(*ast.Ident); ok {
				histName = id.Name
			}
		}
	}
	if histName == "" && b.strict {
		return nil, flow.Errorf(flow.CodeMissingAccumulator,
			"delegate invocation does not pass the history accumulator by reference").
			With("agent", fact.Name)
	}

	resultVar := ""
	if len(as.Lhs) > 0 {
		if id, ok := as.Lhs[0].(*ast.Ident); ok && id.Name != "_" {
			resultVar = id.Name
		}
	}

	// The result's new turns must be appended back into the same
	// accumulator before the next effectful statement.
	if histName != "" && b.strict && !b.appendFollows(rest, histName, resultVar) {
		return nil, flow.Errorf(flow.CodeMissingAccumulatorAppend,
			"delegate result is not appended back into the accumulator").
			With("agent", fact.Name).With("accumulator", histName)
	}

	nodeID := b.nextID("agent")
	node := &flow.Node{
		ID:   nodeID,
		Name: fact.Name,
		Kind: flow.KindAgent,
		Meta: map[string]any{flow.MetaAgentSpec: b.agentSpecJSON(fact)},
	}
	b.nodes = append(b.nodes, node)
	b.agentFacts[nodeID] = fact
	if resultVar != "" {
		b.resultAgents[resultVar] = nodeID
	}

	b.wire(tails, nodeID)
	return []tail{{nodeID: nodeID, lastAgentID: nodeID}}, nil
}

// appendFollows scans forward to the next effectful statement, looking for
// "hist = append(hist, res.NewMessages()...)". This is a heuristic window,
// not a data-flow analysis; an intervening effectful statement counts as a
// violation.
func (b *build) appendFollows(rest []ast.Stmt, histName, resultVar string) bool {
	for _, st := range rest {
		if b.isAccumulatorAppend(st, histName, resultVar) {
			return true
		}
		if b.lenientShape(st) != shapeOther {
			return false
		}
	}
	return false
}

func (b *build) isAccumulatorAppend(st ast.Stmt, histName, resultVar string) bool {
	as, ok := st.(*ast.AssignStmt)
	if !ok || as.Tok != token.ASSIGN || len(as.Lhs) != 1 || len(as.Rhs) != 1 {
		return false
	}
	if !astutil.IsIdent(as.Lhs[0], histName) {
		return false
	}
	call, ok := as.Rhs[0].(*ast.CallExpr)
	if !ok || !astutil.IsIdent(call.Fun, "append") || call.Ellipsis == token.NoPos {
		return false
	}
	if len(call.Args) != 2 || !astutil.IsIdent(call.Args[0], histName) {
		return false
	}
	inner, ok := call.Args[1].(*ast.CallExpr)
	if !ok {
		return false
	}
	sel, ok := inner.Fun.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "NewMessages" {
		return false
	}
	return resultVar == "" || astutil.IsIdent(sel.X, resultVar)
}

// closeFlow wires every open tail into a fresh end node built from the
// return statement.
func (b *build) closeFlow(ret *ast.ReturnStmt, tails []tail) error {
	endID := b.nextID("end")
	node := &flow.Node{ID: endID, Name: "end", Kind: flow.KindEnd}

	if len(ret.Results) > 0 {
		if lit, ok := ret.Results[0].(*ast.CompositeLit); ok {
			if err := b.endOutputs(node, endID, lit); err != nil {
				return err
			}
		}
	}

	b.nodes = append(b.nodes, node)
	b.wire(tails, endID)
	return nil
}

// endOutputs attaches the entries of a returned map literal to the end node:
// literal values become declared constants, everything else becomes a data
// edge from the resolved upstream source.
func (b *build) endOutputs(node *flow.Node, endID string, lit *ast.CompositeLit) error {
	var names []string
	literals := make(map[string]any)
	for _, elt := range lit.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			continue
		}
		key, ok := astutil.LitString(kv.Key)
		if !ok {
			continue
		}
		if v, ok := astutil.LitValue(kv.Value); ok {
			names = append(names, key)
			literals[key] = v
			continue
		}
		srcID, srcOut, ok := b.exprSource(kv.Value)
		if !ok {
			if b.strict {
				return flow.Errorf(flow.CodeUnsupportedEndSource,
					"end output is not a literal or a resolvable upstream value").
					With("output", key)
			}
			continue
		}
		names = append(names, key)
		b.data = append(b.data, flow.DataEdge{
			Source: srcID, SourceOutput: srcOut,
			Dest: endID, DestInput: key,
		})
	}
	if len(names) > 0 {
		node.Meta = map[string]any{flow.MetaOutputNames: names}
		if len(literals) > 0 {
			node.Meta[flow.MetaLiterals] = literals
		}
	}
	return nil
}

// exprSource resolves an expression to an upstream (node, output) pair.
// Supported sources are a delegate result's OutputText, a subscript on a
// delegate result's Parsed view, and a field of the entry input record.
func (b *build) exprSource(expr ast.Expr) (string, string, bool) {
	switch e := expr.(type) {
	case *ast.IndexExpr:
		key, ok := astutil.LitString(e.Index)
		if !ok {
			return "", "", false
		}
		sel, ok := e.X.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "Parsed" {
			return "", "", false
		}
		base, ok := sel.X.(*ast.Ident)
		if !ok {
			return "", "", false
		}
		if agentID, ok := b.resultAgents[base.Name]; ok {
			return agentID, key, true
		}
	case *ast.SelectorExpr:
		base, ok := e.X.(*ast.Ident)
		if !ok {
			return "", "", false
		}
		if agentID, ok := b.resultAgents[base.Name]; ok && e.Sel.Name == "OutputText" {
			return agentID, "output_text", true
		}
		if b.facts.Entry != nil && base.Name == b.facts.Entry.InputParam {
			return b.startID, ident.Snake(e.Sel.Name), true
		}
	}
	return "", "", false
}

// agentSpecJSON serializes the agent construction as a compact declarative
// snippet for the node meta.
func (b *build) agentSpecJSON(fact scanner.AgentFact) string {
	cfg := schema.AgentConfig{
		Name:         fact.Name,
		Model:        fact.Model,
		Instructions: fact.Instructions,
		Temperature:  fact.Temperature,
		MaxTokens:    fact.MaxTokens,
		Tools:        fact.Tools,
	}
	if fact.OutputType != "" {
		if rec, ok := b.facts.Record(fact.OutputType); ok {
			out := &schema.OutputSchema{Name: rec.Name}
			for _, f := range rec.Fields {
				out.Fields = append(out.Fields, schema.NodeIO{
					Name: f.Name, Kind: f.Kind, Enum: f.Enum,
				})
			}
			cfg.Output = out
		}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		// AgentConfig is plain data; marshaling cannot fail in practice.
		return "{}"
	}
	return string(raw)
}
