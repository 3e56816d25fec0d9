package builder

import (
	"go/ast"
	"go/token"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/internal/astutil"
)

// shape is the closed set of recognized statement shapes. Unrecognized
// statements fall into shapeOther and are structurally inert.
type shape int

const (
	shapeOther shape = iota
	shapeRun
	shapeLadder
	shapeApproval
	shapeReturn
)

// classify determines a statement's shape. In strict mode a conditional that
// matches none of the recognized branch shapes is an error rather than a
// guess.
func (b *build) classify(st ast.Stmt) (shape, error) {
	switch s := st.(type) {
	case *ast.ReturnStmt:
		return shapeReturn, nil
	case *ast.AssignStmt:
		if len(s.Rhs) == 1 {
			if _, ok := astutil.PkgCall(s.Rhs[0], b.sdkName, "Run"); ok {
				return shapeRun, nil
			}
		}
		return shapeOther, nil
	case *ast.IfStmt:
		if _, ok := astutil.PkgCall(s.Cond, b.sdkName, "Approve"); ok {
			return shapeApproval, nil
		}
		if _, _, ok := ladderTest(s.Cond); ok {
			return shapeLadder, nil
		}
		if isNilCheck(s.Cond) {
			return shapeOther, nil
		}
		if b.strict {
			return shapeOther, flow.Errorf(flow.CodeUnsupportedBranchTest,
				"conditional does not match a literal ladder or approval gate").
				With("test", astutil.ExprString(s.Cond))
		}
		return shapeOther, nil
	default:
		return shapeOther, nil
	}
}

// lenientShape classifies without erroring, for forward scans.
func (b *build) lenientShape(st ast.Stmt) shape {
	strict := b.strict
	b.strict = false
	s, _ := b.classify(st)
	b.strict = strict
	return s
}

// effectfulAhead reports whether any statement in rest advances the graph.
func (b *build) effectfulAhead(rest []ast.Stmt) bool {
	for _, st := range rest {
		if b.lenientShape(st) != shapeOther {
			return true
		}
	}
	return false
}

// ladderTest matches one arm's condition: an equality comparison between an
// expression and a string literal (on either side).
func ladderTest(cond ast.Expr) (ast.Expr, string, bool) {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || bin.Op != token.EQL {
		return nil, "", false
	}
	if lit, ok := astutil.LitString(bin.Y); ok {
		return bin.X, lit, true
	}
	if lit, ok := astutil.LitString(bin.X); ok {
		return bin.Y, lit, true
	}
	return nil, "", false
}

// isNilCheck matches error-handling conditionals such as "err != nil".
func isNilCheck(cond ast.Expr) bool {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || (bin.Op != token.EQL && bin.Op != token.NEQ) {
		return false
	}
	return astutil.IsIdent(bin.X, "nil") || astutil.IsIdent(bin.Y, "nil")
}

type armSpec struct {
	literal string
	body    []ast.Stmt
}

// ladder compiles one if/elif/else chain into a branch node. Each arm is
// recursively compiled with a seeded tail carrying the arm's literal as the
// pending edge label; tails are merged back by concatenation. When no else
// arm exists and statements follow the ladder, a pending "default" tail
// carries unmatched values into the continuation.
func (b *build) ladder(ifSt *ast.IfStmt, tails []tail, fallthroughAhead bool) ([]tail, error) {
	var (
		arms     []armSpec
		elseBody []ast.Stmt
		haveElse bool
		testRepr string
		testExpr ast.Expr
	)

	cur := ifSt
	for {
		lhs, lit, ok := ladderTest(cur.Cond)
		if !ok {
			return nil, flow.Errorf(flow.CodeUnsupportedBranchTest,
				"ladder arm does not compare against a string literal").
				With("test", astutil.ExprString(cur.Cond))
		}
		repr := astutil.ExprString(lhs)
		if testRepr == "" {
			testRepr, testExpr = repr, lhs
		} else if repr != testRepr {
			return nil, flow.Errorf(flow.CodeUnsupportedBranchTest,
				"ladder arms test different expressions").
				With("first", testRepr).With("other", repr)
		}
		arms = append(arms, armSpec{literal: lit, body: cur.Body.List})

		next, done := cur.Else, false
		switch e := next.(type) {
		case *ast.IfStmt:
			cur = e
		case *ast.BlockStmt:
			elseBody, haveElse = e.List, true
			done = true
		case nil:
			done = true
		}
		if done {
			break
		}
	}

	seen := make(map[string]bool, len(arms))
	for _, a := range arms {
		if seen[a.literal] {
			return nil, flow.Errorf(flow.CodeDuplicateBranchLiteral,
				"two ladder arms test the same literal").With("literal", a.literal)
		}
		seen[a.literal] = true
	}

	last := uniqueLastAgent(tails)
	srcID, field, err := b.drivingField(testExpr, last)
	if err != nil {
		return nil, err
	}

	branchID := b.nextID("branch")
	cases := make(map[string]string, len(arms))
	for _, a := range arms {
		cases[a.literal] = a.literal
	}
	b.nodes = append(b.nodes, &flow.Node{
		ID:   branchID,
		Name: field,
		Kind: flow.KindBranch,
		Meta: map[string]any{
			flow.MetaBranchField: field,
			flow.MetaBranchCases: cases,
		},
	})
	b.data = append(b.data, flow.DataEdge{
		Source: srcID, SourceOutput: field,
		Dest: branchID, DestInput: "value",
	})
	b.wire(tails, branchID)

	var merged []tail
	for _, a := range arms {
		armTails, err := b.stmts(a.body, []tail{{nodeID: branchID, lastAgentID: last, label: a.literal}})
		if err != nil {
			return nil, err
		}
		merged = append(merged, armTails...)
	}
	switch {
	case haveElse:
		armTails, err := b.stmts(elseBody, []tail{{nodeID: branchID, lastAgentID: last, label: flow.DefaultBranchLabel}})
		if err != nil {
			return nil, err
		}
		merged = append(merged, armTails...)
	case fallthroughAhead:
		merged = append(merged, tail{nodeID: branchID, lastAgentID: last, label: flow.DefaultBranchLabel})
	}
	return merged, nil
}

// approval rewrites "if sdk.Approve(ctx, prompt)" into a synthesized boolean
// tool node feeding a two-arm {"true","false"} branch, then compiles the
// arms like a ladder.
func (b *build) approval(ifSt *ast.IfStmt, tails []tail, fallthroughAhead bool) ([]tail, error) {
	call, _ := astutil.PkgCall(ifSt.Cond, b.sdkName, "Approve")
	prompt := ""
	if len(call.Args) >= 2 {
		prompt, _ = astutil.LitString(call.Args[1])
	}

	toolID := b.nextID("tool")
	b.nodes = append(b.nodes, &flow.Node{
		ID:   toolID,
		Name: "approve",
		Kind: flow.KindTool,
		Meta: map[string]any{
			flow.MetaToolName:    "approve",
			flow.MetaApproval:    true,
			flow.MetaPrompt:      prompt,
			flow.MetaToolOutputs: []flow.Field{{Name: "approved", Kind: "boolean"}},
		},
	})
	b.wire(tails, toolID)
	last := uniqueLastAgent(tails)

	branchID := b.nextID("branch")
	b.nodes = append(b.nodes, &flow.Node{
		ID:   branchID,
		Name: "approved",
		Kind: flow.KindBranch,
		Meta: map[string]any{
			flow.MetaBranchField: "approved",
			flow.MetaBranchCases: map[string]string{"true": "true", "false": "false"},
		},
	})
	b.control = append(b.control, flow.ControlEdge{From: toolID, To: branchID})
	b.data = append(b.data, flow.DataEdge{
		Source: toolID, SourceOutput: "approved",
		Dest: branchID, DestInput: "value",
	})

	merged, err := b.stmts(ifSt.Body.List, []tail{{nodeID: branchID, lastAgentID: last, label: "true"}})
	if err != nil {
		return nil, err
	}
	switch e := ifSt.Else.(type) {
	case *ast.BlockStmt:
		armTails, err := b.stmts(e.List, []tail{{nodeID: branchID, lastAgentID: last, label: "false"}})
		if err != nil {
			return nil, err
		}
		merged = append(merged, armTails...)
	case *ast.IfStmt:
		return nil, flow.Errorf(flow.CodeUnsupportedBranchTest,
			"approval gate cannot chain into another conditional")
	case nil:
		if fallthroughAhead {
			merged = append(merged, tail{nodeID: branchID, lastAgentID: last, label: "false"})
		}
	}
	return merged, nil
}

// drivingField resolves the branch's driving field: first from a subscript
// chain on the tested expression, then from the sole declared output of the
// most recently emitted agent node.
func (b *build) drivingField(testExpr ast.Expr, lastAgentID string) (string, string, error) {
	if testExpr != nil {
		if srcID, field, ok := b.exprSource(testExpr); ok {
			return srcID, field, nil
		}
	}
	if lastAgentID == "" {
		return "", "", flow.Errorf(flow.CodeMissingDrivingField,
			"branch test has no resolvable driving field and no upstream agent")
	}
	fact, ok := b.agentFacts[lastAgentID]
	if !ok || fact.OutputType == "" {
		return "", "", flow.Errorf(flow.CodeMissingDrivingField,
			"upstream agent declares no structured output schema").
			With("node", lastAgentID)
	}
	rec, ok := b.facts.Record(fact.OutputType)
	if !ok {
		return "", "", flow.Errorf(flow.CodeMissingDrivingField,
			"upstream agent references an unknown output record").
			With("node", lastAgentID).With("record", fact.OutputType)
	}
	if len(rec.Fields) != 1 {
		return "", "", flow.Errorf(flow.CodeMissingDrivingField,
			"upstream output record must declare exactly one field for fallback resolution").
			With("node", lastAgentID).With("fields", len(rec.Fields))
	}
	return lastAgentID, rec.Fields[0].Name, nil
}

// uniqueLastAgent returns the single last-agent id shared by all tails, or
// "" when the tails disagree or none exists.
func uniqueLastAgent(tails []tail) string {
	last := ""
	for _, t := range tails {
		if t.lastAgentID == "" {
			continue
		}
		if last == "" {
			last = t.lastAgentID
			continue
		}
		if last != t.lastAgentID {
			return ""
		}
	}
	return last
}
