package flow

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode is a machine-readable failure code.
type ErrorCode string

// Failure codes raised by the scanner, builder, converter, generator and
// rulepack registry. None of them is ever downgraded to a warning in strict
// mode.
const (
	// CodeParse: the input text is not syntactically valid.
	CodeParse ErrorCode = "parse_error"

	// CodeUnsupportedPattern: the input does not match any recognized shape.
	CodeUnsupportedPattern ErrorCode = "unsupported_pattern"

	// CodeUnsupportedBranchTest: a conditional tests something other than a
	// literal equality ladder or an approval call.
	CodeUnsupportedBranchTest ErrorCode = "unsupported_branch_test"

	// CodeMissingAccumulator: a delegate invocation does not pass the
	// history accumulator by reference.
	CodeMissingAccumulator ErrorCode = "missing_accumulator"

	// CodeMissingAccumulatorAppend: a delegate invocation's new turns are
	// not appended back into the accumulator before the next effectful
	// statement.
	CodeMissingAccumulatorAppend ErrorCode = "missing_accumulator_append"

	// CodeMissingDrivingField: a branch test's driving field cannot be
	// resolved, or the fallback schema has zero or multiple fields.
	CodeMissingDrivingField ErrorCode = "missing_driving_field"

	// CodeDuplicateBranchLiteral: two arms of one ladder test the same
	// literal.
	CodeDuplicateBranchLiteral ErrorCode = "duplicate_branch_literal"

	// CodeMissingReturnSchema: a tool function lacks an encodable return
	// annotation (strict mode only).
	CodeMissingReturnSchema ErrorCode = "missing_return_schema"

	// CodeMultiOutputTool: a tool declares multiple outputs with no
	// positional (named-result) mapping.
	CodeMultiOutputTool ErrorCode = "multi_output_tool"

	// CodeUnsupportedEndSource: an end-node output is fed by something
	// other than an upstream agent or start node.
	CodeUnsupportedEndSource ErrorCode = "unsupported_end_source"

	// CodeCyclicGraph: a cycle reachable from the start node was detected
	// during code generation.
	CodeCyclicGraph ErrorCode = "cyclic_graph"

	// CodeLossyMapping: a conversion would silently discard information.
	CodeLossyMapping ErrorCode = "lossy_mapping"

	// CodeRulepackNotFound: no rulepack registered for the requested or
	// detected version.
	CodeRulepackNotFound ErrorCode = "rulepack_not_found"

	// CodeInvalidFlow: the IR violates a structural invariant.
	CodeInvalidFlow ErrorCode = "invalid_flow"
)

// Error is the structured error carried by every failure in this subsystem.
// Details holds enough context to act on the failure (offending node id,
// literal or field name).
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
}

// Errorf creates an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With attaches one detail to the error and returns it.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// IsCode reports whether err is (or wraps) an Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}
