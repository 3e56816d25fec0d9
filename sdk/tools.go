package sdk

import (
	"context"
	"fmt"
)

// ToolFunc is a callable tool implementation.
type ToolFunc func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolRegistry maps declared tool names to implementations. Generated tool
// stubs delegate to the registry at call time.
type ToolRegistry map[string]ToolFunc

// Call invokes the named tool, failing if it is not registered.
func (r ToolRegistry) Call(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	fn, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	return fn(ctx, args)
}
