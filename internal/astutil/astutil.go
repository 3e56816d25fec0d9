// Package astutil holds small syntax-tree helpers shared by the workflow
// scanner and builder.
package astutil

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
)

// ExprString renders an expression back to source form, for comparing test
// expressions across ladder arms.
func ExprString(expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), expr); err != nil {
		return ""
	}
	return buf.String()
}

// IsIdent reports whether expr is the identifier name.
func IsIdent(expr ast.Expr, name string) bool {
	id, ok := expr.(*ast.Ident)
	return ok && id.Name == name
}

// PkgCall matches a call of the form <pkg>.<fn>(...).
func PkgCall(expr ast.Expr, pkg, fn string) (*ast.CallExpr, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return nil, false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok || !IsIdent(sel.X, pkg) || sel.Sel.Name != fn {
		return nil, false
	}
	return call, true
}

// LitString extracts a string literal value.
func LitString(expr ast.Expr) (string, bool) {
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	v, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return v, true
}

// unwrapNeg strips a unary minus; negative numeric literals parse as a
// UnaryExpr over the positive literal.
func unwrapNeg(expr ast.Expr) (ast.Expr, bool) {
	if u, ok := expr.(*ast.UnaryExpr); ok && u.Op == token.SUB {
		return u.X, true
	}
	return expr, false
}

// LitFloat extracts a numeric literal as float64.
func LitFloat(expr ast.Expr) (float64, bool) {
	expr, neg := unwrapNeg(expr)
	lit, ok := expr.(*ast.BasicLit)
	if !ok || (lit.Kind != token.FLOAT && lit.Kind != token.INT) {
		return 0, false
	}
	v, err := strconv.ParseFloat(lit.Value, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// LitInt extracts an integer literal.
func LitInt(expr ast.Expr) (int, bool) {
	expr, neg := unwrapNeg(expr)
	lit, ok := expr.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	v, err := strconv.Atoi(lit.Value)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

// LitValue extracts a literal as a JSON-compatible value. The boolean
// literals are idents, not basic literals.
func LitValue(expr ast.Expr) (any, bool) {
	if u, ok := expr.(*ast.UnaryExpr); ok && u.Op == token.SUB {
		if v, ok := LitFloat(u.X); ok {
			return -v, true
		}
		return nil, false
	}
	if id, ok := expr.(*ast.Ident); ok {
		switch id.Name {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false
	}
	lit, ok := expr.(*ast.BasicLit)
	if !ok {
		return nil, false
	}
	switch lit.Kind {
	case token.STRING:
		v, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, false
		}
		return v, true
	case token.INT, token.FLOAT:
		v, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, false
		}
		return v, true
	default:
		return nil, false
	}
}
