package rulepack

import (
	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/flow/builder"
	"github.com/spichen/agentbridge/flow/codegen"
	"github.com/spichen/agentbridge/flow/convert"
	"github.com/spichen/agentbridge/flow/scanner"
	"github.com/spichen/agentbridge/schema"
	"github.com/spichen/agentbridge/sdk"
)

// BuiltinOption configures the builtin pack.
type BuiltinOption func(*builtinPack)

// WithStrict selects fail-fast (true) versus best-effort (false) policy for
// the builtin pack's scanner and builder.
func WithStrict(strict bool) BuiltinOption {
	return func(p *builtinPack) { p.strict = strict }
}

// WithEntryName overrides the entry procedure name the builtin pack scans
// for and generates.
func WithEntryName(name string) BuiltinOption {
	return func(p *builtinPack) { p.entryName = name }
}

// Builtin returns the pack for the current host SDK dialect. Hosts register
// it explicitly, typically at startup:
//
//	rulepack.MustRegister(rulepack.Builtin())
func Builtin(opts ...BuiltinOption) Pack {
	p := &builtinPack{entryName: scanner.DefaultEntryName}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type builtinPack struct {
	strict    bool
	entryName string
}

func (p *builtinPack) Version() string { return sdk.Version }

func (p *builtinPack) ParseSource(src []byte) (*flow.Flow, error) {
	facts, err := scanner.New(
		scanner.WithStrict(p.strict),
		scanner.WithEntryName(p.entryName),
	).Scan(src)
	if err != nil {
		return nil, err
	}
	return builder.Build(facts, builder.WithStrict(p.strict))
}

func (p *builtinPack) ToSchema(f *flow.Flow) (*schema.Graph, error) {
	return convert.ToSchema(f)
}

func (p *builtinPack) FromSchema(g *schema.Graph) (*flow.Flow, error) {
	return convert.FromSchema(g)
}

func (p *builtinPack) GenerateSource(f *flow.Flow) ([]byte, error) {
	return codegen.Generate(f, codegen.WithEntryName(p.entryName))
}
