// Package sdk is the minimal host runtime targeted by workflow scripts.
// The compiler recognizes a narrow set of call shapes against this surface
// (NewAgent, Run, Approve, Trace) and the generator emits code against the
// same surface, so generated scripts are self-contained.
package sdk

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Version is the host SDK version string read by rulepack auto-detection.
const Version = "1.0.0"

const tracerName = "github.com/spichen/agentbridge/sdk"

// Message is one conversation turn.
type Message struct {
	Role    string
	Content string
}

// History is the conversation accumulator threaded by reference through
// sequential agent invocations.
type History []Message

// Agent is an immutable delegate configuration built with NewAgent.
type Agent struct {
	name         string
	model        string
	instructions string
	temperature  *float64
	maxTokens    *int
	tools        []string
	outputType   any
	invoker      Invoker
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithName sets the agent's display name.
func WithName(name string) AgentOption {
	return func(a *Agent) { a.name = name }
}

// WithModel sets the model identifier.
func WithModel(model string) AgentOption {
	return func(a *Agent) { a.model = model }
}

// WithInstructions sets the instruction text.
func WithInstructions(instructions string) AgentOption {
	return func(a *Agent) { a.instructions = instructions }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) AgentOption {
	return func(a *Agent) { a.temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) AgentOption {
	return func(a *Agent) { a.maxTokens = &n }
}

// WithTools declares the tool names available to the agent.
func WithTools(names ...string) AgentOption {
	return func(a *Agent) { a.tools = append(a.tools, names...) }
}

// WithOutputType declares the agent's structured output record by prototype
// value, e.g. WithOutputType(TriageResult{}).
func WithOutputType(proto any) AgentOption {
	return func(a *Agent) { a.outputType = proto }
}

// WithInvoker overrides how the agent is executed. Mainly for tests and
// embedders; when unset, Run uses the package default.
func WithInvoker(inv Invoker) AgentOption {
	return func(a *Agent) { a.invoker = inv }
}

// NewAgent builds an agent from options.
func NewAgent(opts ...AgentOption) *Agent {
	a := &Agent{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the agent's display name.
func (a *Agent) Name() string { return a.name }

// Model returns the model identifier.
func (a *Agent) Model() string { return a.model }

// Instructions returns the instruction text.
func (a *Agent) Instructions() string { return a.instructions }

// Temperature returns the sampling temperature, if set.
func (a *Agent) Temperature() (float64, bool) {
	if a.temperature == nil {
		return 0, false
	}
	return *a.temperature, true
}

// MaxTokens returns the completion cap, if set.
func (a *Agent) MaxTokens() (int, bool) {
	if a.maxTokens == nil {
		return 0, false
	}
	return *a.maxTokens, true
}

// Tools returns the declared tool names.
func (a *Agent) Tools() []string { return a.tools }

// OutputType returns the structured output prototype, if declared.
func (a *Agent) OutputType() any { return a.outputType }

// RunResult is the materialized outcome of one agent invocation.
type RunResult struct {
	// ID uniquely identifies this invocation.
	ID string

	// OutputText is the agent's final text output.
	OutputText string

	// Parsed holds the structured output fields when the agent declares an
	// output record type; nil otherwise.
	Parsed map[string]any

	newMessages []Message
}

// NewMessages returns the turns produced by the invocation, for appending
// back into the caller's History.
func (r *RunResult) NewMessages() []Message { return r.newMessages }

// Invoker executes an agent against a conversation history.
type Invoker interface {
	Invoke(ctx context.Context, agent *Agent, history History) (*RunResult, error)
}

// DefaultInvoker is used by Run for agents built without WithInvoker.
// The default echoes the agent configuration; embedders replace it with a
// real model-backed implementation.
var DefaultInvoker Invoker = echoInvoker{}

type echoInvoker struct{}

func (echoInvoker) Invoke(_ context.Context, agent *Agent, history History) (*RunResult, error) {
	content := fmt.Sprintf("[%s] ok", agent.Name())
	if n := len(history); n > 0 {
		content = fmt.Sprintf("[%s] %s", agent.Name(), history[n-1].Content)
	}
	return &RunResult{
		OutputText:  content,
		newMessages: []Message{{Role: "assistant", Content: content}},
	}, nil
}

// Run invokes an agent. The history accumulator must be passed by reference;
// the caller is responsible for appending the result's NewMessages back into
// it before the next invocation.
func Run(ctx context.Context, agent *Agent, history *History) (*RunResult, error) {
	if agent == nil {
		return nil, fmt.Errorf("agent is nil")
	}
	if history == nil {
		return nil, fmt.Errorf("history accumulator is nil")
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sdk.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.name", agent.name),
		attribute.String("agent.model", agent.model),
	)

	inv := agent.invoker
	if inv == nil {
		inv = DefaultInvoker
	}
	res, err := inv.Invoke(ctx, agent, *history)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	return res, nil
}

// Approver decides approval gates. The default denies everything; interactive
// hosts replace it with a real confirmation prompt.
var Approver = func(ctx context.Context, prompt string) bool { return false }

// Approve asks the host for a user confirmation.
func Approve(ctx context.Context, prompt string) bool {
	return Approver(ctx, prompt)
}

// Trace runs fn inside a named tracing scope, passing its result through.
// The compiler unwraps one Trace wrapper around an entry procedure's body.
func Trace[T any](ctx context.Context, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()
	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}
