// Package rulepack keys complete translation strategies by host dialect
// version, so incompatible generations of the host SDK can coexist behind
// one compiler entry point. Registration is explicit: hosts register the
// packs they want at startup, nothing self-registers on import.
package rulepack

import (
	"sort"
	"strings"
	"sync"

	"github.com/blang/semver/v4"

	"github.com/spichen/agentbridge/flow"
	"github.com/spichen/agentbridge/log"
	"github.com/spichen/agentbridge/schema"
	"github.com/spichen/agentbridge/sdk"
)

// Pack is one versioned translation bundle covering both compiler
// directions.
type Pack interface {
	// Version is the host dialect version the pack understands.
	Version() string

	// ParseSource compiles workflow source into a flow.
	ParseSource(src []byte) (*flow.Flow, error)

	// ToSchema converts a flow into the declarative schema.
	ToSchema(f *flow.Flow) (*schema.Graph, error)

	// FromSchema converts a declarative graph back into a flow.
	FromSchema(g *schema.Graph) (*flow.Flow, error)

	// GenerateSource regenerates workflow source from a flow.
	GenerateSource(f *flow.Flow) ([]byte, error)
}

// DetectVersion reports the host SDK version used by Resolve when no hint
// is given. Overridable for embedders that target a different host.
var DetectVersion = func() string { return sdk.Version }

// Registry is a read-mostly version-keyed pack table, safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	packs map[string]Pack
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{packs: make(map[string]Pack)}
}

// Register adds a pack, failing on a duplicate version.
func (r *Registry) Register(p Pack) error {
	if p == nil {
		return flow.Errorf(flow.CodeInvalidFlow, "rulepack is nil")
	}
	version := p.Version()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.packs[version]; dup {
		return flow.Errorf(flow.CodeRulepackNotFound,
			"rulepack version already registered").With("version", version)
	}
	r.packs[version] = p
	log.Debugf("registered rulepack %s", version)
	return nil
}

// MustRegister is Register that panics on failure, for startup wiring.
func (r *Registry) MustRegister(p Pack) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Get returns the pack registered under exactly the given version.
func (r *Registry) Get(version string) (Pack, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packs[version]
	if !ok {
		return nil, r.notFound(version)
	}
	return p, nil
}

// List returns the registered versions in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	versions := make([]string, 0, len(r.packs))
	for v := range r.packs {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

func (r *Registry) notFound(version string) error {
	return flow.Errorf(flow.CodeRulepackNotFound,
		"no rulepack for version %q (known: %s)",
		version, strings.Join(r.listLocked(), ", ")).
		With("version", version)
}

// Resolve picks a pack for the given version hint, falling back to the
// detected host SDK version when the hint is empty. An exact match wins;
// otherwise the newest registered pack on the same major.minor line is
// used.
func (r *Registry) Resolve(hint string) (Pack, error) {
	version := hint
	if version == "" {
		version = DetectVersion()
	}
	if version == "" {
		return nil, flow.Errorf(flow.CodeRulepackNotFound,
			"no version hint and no detectable host version")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.packs[version]; ok {
		return p, nil
	}
	want, err := semver.ParseTolerant(version)
	if err != nil {
		return nil, r.notFound(version)
	}
	var best Pack
	var bestVer semver.Version
	for v, p := range r.packs {
		got, err := semver.ParseTolerant(v)
		if err != nil || got.Major != want.Major || got.Minor != want.Minor {
			continue
		}
		if best == nil || got.GT(bestVer) {
			best, bestVer = p, got
		}
	}
	if best == nil {
		return nil, r.notFound(version)
	}
	return best, nil
}

// Default is the process-wide registry used by the package-level helpers.
var Default = NewRegistry()

// Register adds a pack to the default registry.
func Register(p Pack) error { return Default.Register(p) }

// MustRegister adds a pack to the default registry, panicking on failure.
func MustRegister(p Pack) { Default.MustRegister(p) }

// Get returns the exactly matching pack from the default registry.
func Get(version string) (Pack, error) { return Default.Get(version) }

// Resolve resolves a version hint against the default registry.
func Resolve(hint string) (Pack, error) { return Default.Resolve(hint) }
