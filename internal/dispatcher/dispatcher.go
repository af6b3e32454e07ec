// Package dispatcher is the Action Dispatcher: a registry mapping node type
// to handler, so the Execution Engine never branches on node type itself.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/atworkflow/engine/internal/runtime"
)

// Handler executes one node invocation and returns which output handle was
// selected along with the payload to merge on that branch.
type Handler func(ctx context.Context, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) runtime.HandlerOutput

// Registry is the node_type -> handler map. The Engine asks the registry
// for a handler rather than switching on node type, which is the seam for
// injecting fakes in tests and for swapping the telecom backend.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register installs (or replaces) the handler for a node type.
func (r *Registry) Register(nodeType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = h
}

// Dispatch invokes the handler registered for in's node type, looked up via
// nodeType since HandlerInput itself doesn't carry the type.
func (r *Registry) Dispatch(ctx context.Context, nodeType string, execCtx *runtime.ExecutionContext, in runtime.HandlerInput) (runtime.HandlerOutput, error) {
	r.mu.RLock()
	h, ok := r.handlers[nodeType]
	r.mu.RUnlock()
	if !ok {
		return runtime.HandlerOutput{}, fmt.Errorf("no handler registered for node type %q", nodeType)
	}
	return h(ctx, execCtx, in), nil
}

// IsRegistered reports whether a handler exists for nodeType.
func (r *Registry) IsRegistered(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[nodeType]
	return ok
}
