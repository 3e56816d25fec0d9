// Package scanner collects declarative facts from workflow scripts: agent
// construction call sites, tool-function declarations, structured record
// types and the entry procedure's statement list. It is a single pass over
// the syntax tree and has no side effects beyond reading the input.
package scanner

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/internal/astutil"
	"github.com/spichen/agentbridge/internal/ident"
)

// DefaultEntryName is the conventional entry procedure name.
const DefaultEntryName = "Workflow"

// sdkImportSuffix identifies the host SDK import.
const sdkImportSuffix = "/sdk"

// Scanner scans workflow scripts into Facts.
type Scanner struct {
	strict    bool
	entryName string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithStrict selects fail-fast (true) versus best-effort (false) policy.
func WithStrict(strict bool) Option {
	return func(s *Scanner) { s.strict = strict }
}

// WithEntryName overrides the designated entry procedure name.
func WithEntryName(name string) Option {
	return func(s *Scanner) { s.entryName = name }
}

// New creates a Scanner. The default is lenient with entry name "Workflow".
func New(opts ...Option) *Scanner {
	s := &Scanner{entryName: DefaultEntryName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strict reports whether the scanner is in strict mode.
func (s *Scanner) Strict() bool { return s.strict }

// Scan parses source text and collects the fact table.
func (s *Scanner) Scan(src []byte) (*Facts, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "workflow.go", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, flow.Errorf(flow.CodeParse, "invalid workflow source: %v", err)
	}
	return s.ScanAST(file)
}

// ScanFile reads and scans a script file.
func (s *Scanner) ScanFile(path string) (*Facts, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, flow.Errorf(flow.CodeParse, "read %s: %v", path, err)
	}
	return s.Scan(src)
}

// ScanAST collects the fact table from an already-parsed file.
func (s *Scanner) ScanAST(file *ast.File) (*Facts, error) {
	sdkName := sdkImportName(file)
	facts := &Facts{
		SDKName: sdkName,
		Agents:  make(map[string]AgentFact),
		Tools:   make(map[string]ToolFact),
		Records: make(map[string]RecordFact),
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			switch d.Tok {
			case token.TYPE:
				for _, spec := range d.Specs {
					ts, ok := spec.(*ast.TypeSpec)
					if !ok {
						continue
					}
					st, ok := ts.Type.(*ast.StructType)
					if !ok {
						continue
					}
					facts.Records[ts.Name.Name] = recordFact(ts.Name.Name, st)
				}
			case token.VAR:
				for _, spec := range d.Specs {
					vs, ok := spec.(*ast.ValueSpec)
					if !ok || len(vs.Names) != 1 || len(vs.Values) != 1 {
						continue
					}
					if call, ok := astutil.PkgCall(vs.Values[0], sdkName, "NewAgent"); ok {
						if err := s.addAgent(facts, vs.Names[0].Name, call, sdkName); err != nil {
							return nil, err
						}
					}
				}
			}
		case *ast.FuncDecl:
			if d.Recv != nil {
				continue
			}
			if d.Name.Name == s.entryName {
				entry, err := s.entryFact(d, sdkName)
				if err != nil {
					return nil, err
				}
				facts.Entry = entry
				if err := s.collectBodyAgents(facts, entry.Body, sdkName); err != nil {
					return nil, err
				}
				continue
			}
			if tf, ok, err := s.toolFact(d, sdkName); err != nil {
				return nil, err
			} else if ok {
				if _, dup := facts.Tools[tf.Name]; !dup {
					facts.Tools[tf.Name] = tf
					facts.ToolOrder = append(facts.ToolOrder, tf.Name)
				}
			}
		}
	}
	return facts, nil
}

// collectBodyAgents picks up agent constructions declared inside the entry
// procedure, e.g. "triage := sdk.NewAgent(...)".
func (s *Scanner) collectBodyAgents(facts *Facts, body []ast.Stmt, sdkName string) error {
	var scanErr error
	for _, st := range body {
		ast.Inspect(st, func(n ast.Node) bool {
			if scanErr != nil {
				return false
			}
			as, ok := n.(*ast.AssignStmt)
			if !ok || as.Tok != token.DEFINE || len(as.Lhs) != 1 || len(as.Rhs) != 1 {
				return true
			}
			name, ok := as.Lhs[0].(*ast.Ident)
			if !ok {
				return true
			}
			call, ok := astutil.PkgCall(as.Rhs[0], sdkName, "NewAgent")
			if !ok {
				return true
			}
			scanErr = s.addAgent(facts, name.Name, call, sdkName)
			return false
		})
		if scanErr != nil {
			return scanErr
		}
	}
	return nil
}

func (s *Scanner) addAgent(facts *Facts, varName string, call *ast.CallExpr, sdkName string) error {
	fact := AgentFact{Var: varName, Name: varName}
	for _, arg := range call.Args {
		optCall, ok := arg.(*ast.CallExpr)
		if !ok {
			if s.strict {
				return flow.Errorf(flow.CodeUnsupportedPattern,
					"agent option is not an sdk option call").With("agent", varName)
			}
			continue
		}
		sel, ok := optCall.Fun.(*ast.SelectorExpr)
		if !ok || !astutil.IsIdent(sel.X, sdkName) {
			if s.strict {
				return flow.Errorf(flow.CodeUnsupportedPattern,
					"agent option is not an sdk option call").With("agent", varName)
			}
			continue
		}
		switch sel.Sel.Name {
		case "WithName":
			if v, ok := astutil.LitString(argAt(optCall, 0)); ok {
				fact.Name = v
			}
		case "WithModel":
			if v, ok := astutil.LitString(argAt(optCall, 0)); ok {
				fact.Model = v
			}
		case "WithInstructions":
			if v, ok := astutil.LitString(argAt(optCall, 0)); ok {
				fact.Instructions = v
			}
		case "WithTemperature":
			if v, ok := astutil.LitFloat(argAt(optCall, 0)); ok {
				fact.Temperature = &v
			}
		case "WithMaxTokens":
			if v, ok := astutil.LitInt(argAt(optCall, 0)); ok {
				fact.MaxTokens = &v
			}
		case "WithTools":
			for _, toolArg := range optCall.Args {
				if v, ok := astutil.LitString(toolArg); ok {
					fact.Tools = append(fact.Tools, v)
				}
			}
		case "WithOutputType":
			if cl, ok := argAt(optCall, 0).(*ast.CompositeLit); ok {
				if name, ok := cl.Type.(*ast.Ident); ok {
					fact.OutputType = name.Name
				}
			}
		default:
			if s.strict {
				return flow.Errorf(flow.CodeUnsupportedPattern,
					"unrecognized agent option").
					With("agent", varName).With("option", sel.Sel.Name)
			}
		}
	}
	if _, dup := facts.Agents[varName]; !dup {
		facts.Agents[varName] = fact
		facts.AgentOrder = append(facts.AgentOrder, varName)
	}
	return nil
}

// entryFact extracts the entry procedure, unwrapping one sdk.Trace wrapper
// if the whole body is a single "return sdk.Trace(ctx, name, func(...))".
func (s *Scanner) entryFact(d *ast.FuncDecl, sdkName string) (*EntryFact, error) {
	entry := &EntryFact{Name: d.Name.Name}
	for _, param := range d.Type.Params.List {
		switch t := param.Type.(type) {
		case *ast.Ident:
			if len(param.Names) == 1 {
				entry.InputParam = param.Names[0].Name
				entry.InputType = t.Name
			}
		case *ast.SelectorExpr:
			if astutil.IsIdent(t.X, sdkName) && t.Sel.Name == "ToolRegistry" && len(param.Names) == 1 {
				entry.ToolsParam = param.Names[0].Name
			}
		}
	}
	if d.Body == nil {
		return nil, flow.Errorf(flow.CodeUnsupportedPattern,
			"entry procedure has no body").With("entry", d.Name.Name)
	}
	entry.Body = d.Body.List

	// Unwrap one tracing-scope wrapper.
	if len(entry.Body) == 1 {
		if ret, ok := entry.Body[0].(*ast.ReturnStmt); ok && len(ret.Results) == 1 {
			if call, ok := astutil.PkgCall(ret.Results[0], sdkName, "Trace"); ok && len(call.Args) > 0 {
				if fn, ok := call.Args[len(call.Args)-1].(*ast.FuncLit); ok {
					entry.Body = fn.Body.List
				}
			}
		}
	}
	return entry, nil
}

// toolFact recognizes a tool-function declaration: first parameter
// context.Context, last result error. Other functions are ignored.
func (s *Scanner) toolFact(d *ast.FuncDecl, sdkName string) (ToolFact, bool, error) {
	params := d.Type.Params
	if params == nil || len(params.List) == 0 || !isContextParam(params.List[0]) {
		return ToolFact{}, false, nil
	}
	results := d.Type.Results
	if results == nil || len(results.List) == 0 || !isErrorType(results.List[len(results.List)-1].Type) {
		return ToolFact{}, false, nil
	}

	tf := ToolFact{Name: ident.Snake(d.Name.Name)}
	for _, param := range params.List[1:] {
		if isSDKType(param.Type, sdkName, "ToolRegistry") {
			continue
		}
		kind := fieldKind(param.Type)
		if kind == "" {
			kind = "object"
		}
		if len(param.Names) == 0 {
			tf.Inputs = append(tf.Inputs, flow.Field{Name: "arg", Kind: kind})
			continue
		}
		for _, name := range param.Names {
			tf.Inputs = append(tf.Inputs, flow.Field{Name: ident.Snake(name.Name), Kind: kind})
		}
	}

	outs := results.List[:len(results.List)-1]
	var named, unnamed int
	for _, r := range outs {
		if len(r.Names) == 0 {
			unnamed++
		} else {
			named += len(r.Names)
		}
	}
	switch {
	case named+unnamed == 0:
		if s.strict {
			return ToolFact{}, false, flow.Errorf(flow.CodeMissingReturnSchema,
				"tool function declares no encodable output").With("tool", tf.Name)
		}
		tf.Outputs = []flow.Field{{Name: "result", Kind: "string"}}
	case unnamed == 1 && named == 0:
		kind := fieldKind(outs[0].Type)
		if kind == "" {
			if s.strict {
				return ToolFact{}, false, flow.Errorf(flow.CodeMissingReturnSchema,
					"tool function return type is not encodable").With("tool", tf.Name)
			}
			kind = "string"
		}
		tf.Outputs = []flow.Field{{Name: "result", Kind: kind}}
	case unnamed > 0:
		// Multiple outputs require named results to establish the mapping.
		return ToolFact{}, false, flow.Errorf(flow.CodeMultiOutputTool,
			"tool function has multiple outputs with no positional mapping").With("tool", tf.Name)
	default:
		for _, r := range outs {
			kind := fieldKind(r.Type)
			if kind == "" {
				if s.strict {
					return ToolFact{}, false, flow.Errorf(flow.CodeMissingReturnSchema,
						"tool function return type is not encodable").With("tool", tf.Name)
				}
				kind = "string"
			}
			for _, name := range r.Names {
				tf.Outputs = append(tf.Outputs, flow.Field{Name: ident.Snake(name.Name), Kind: kind})
			}
		}
	}
	return tf, true, nil
}

func recordFact(name string, st *ast.StructType) RecordFact {
	rf := RecordFact{Name: name}
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			continue
		}
		var tag reflect.StructTag
		if field.Tag != nil {
			if raw, err := strconv.Unquote(field.Tag.Value); err == nil {
				tag = reflect.StructTag(raw)
			}
		}
		jsonName := strings.Split(tag.Get("json"), ",")[0]
		if jsonName == "-" {
			continue
		}
		kind := fieldKind(field.Type)
		if kind == "" {
			kind = "object"
		}
		var enum []string
		if raw := tag.Get("enum"); raw != "" {
			enum = strings.Split(raw, ",")
		}
		for _, fn := range field.Names {
			fieldName := jsonName
			if fieldName == "" {
				fieldName = ident.Snake(fn.Name)
			}
			rf.Fields = append(rf.Fields, flow.Field{Name: fieldName, Kind: kind, Enum: enum})
		}
	}
	return rf
}

// fieldKind maps a type expression to a coarse schema kind, or "" when the
// type is not encodable (functions, channels).
func fieldKind(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		switch t.Name {
		case "string":
			return "string"
		case "int", "int8", "int16", "int32", "int64",
			"uint", "uint8", "uint16", "uint32", "uint64",
			"float32", "float64":
			return "number"
		case "bool":
			return "boolean"
		default:
			return "object"
		}
	case *ast.ArrayType:
		return "array"
	case *ast.MapType, *ast.StructType, *ast.SelectorExpr, *ast.InterfaceType:
		return "object"
	case *ast.StarExpr:
		return fieldKind(t.X)
	default:
		return ""
	}
}

func isContextParam(field *ast.Field) bool {
	sel, ok := field.Type.(*ast.SelectorExpr)
	return ok && astutil.IsIdent(sel.X, "context") && sel.Sel.Name == "Context"
}

func isErrorType(expr ast.Expr) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == "error"
}

func isSDKType(expr ast.Expr, sdkName, typeName string) bool {
	sel, ok := expr.(*ast.SelectorExpr)
	return ok && astutil.IsIdent(sel.X, sdkName) && sel.Sel.Name == typeName
}

func argAt(call *ast.CallExpr, i int) ast.Expr {
	if i >= len(call.Args) {
		return nil
	}
	return call.Args[i]
}

// sdkImportName returns the local name under which the host SDK package is
// imported, defaulting to "sdk".
func sdkImportName(file *ast.File) string {
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		if strings.HasSuffix(path, sdkImportSuffix) {
			if imp.Name != nil {
				return imp.Name.Name
			}
			return "sdk"
		}
	}
	return "sdk"
}
