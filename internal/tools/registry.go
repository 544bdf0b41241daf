package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/value"
	"QueryChain/pkg/logger"
)

// Operation executes one tool operation.
type Operation func(ctx context.Context, args Args) (value.Value, error)

// Adapter exposes a named tool and its operations.
type Adapter interface {
	Name() string
	Operation(name string) (Operation, bool)
	Operations() []string
}

// Tool is a table-driven Adapter.
type Tool struct {
	name string
	ops  map[string]Operation
}

// NewTool builds a Tool from an operation table.
func NewTool(name string, ops map[string]Operation) *Tool {
	cloned := make(map[string]Operation, len(ops))
	for k, v := range ops {
		cloned[k] = v
	}
	return &Tool{name: name, ops: cloned}
}

// Name returns the tool name.
func (t *Tool) Name() string { return t.name }

// Operation returns the named operation.
func (t *Tool) Operation(name string) (Operation, bool) {
	op, ok := t.ops[name]
	return op, ok
}

// Operations lists the operation names in sorted order.
func (t *Tool) Operations() []string {
	names := make([]string, 0, len(t.ops))
	for name := range t.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry maps tool names to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	sealed   bool
	logger   *slog.Logger
}

// NewRegistry creates a registry with the given adapters registered.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter), logger: logger.Named("tools")}
	for _, adapter := range adapters {
		if err := r.Register(adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter. Names must be unique and the registry unsealed.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "adapter must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return apperrors.New(apperrors.CodeConflict, fmt.Sprintf("registry sealed, cannot register %q", adapter.Name()))
	}
	if _, exists := r.adapters[adapter.Name()]; exists {
		return apperrors.New(apperrors.CodeConflict, fmt.Sprintf("tool %q already registered", adapter.Name()))
	}
	r.adapters[adapter.Name()] = adapter
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Names lists registered tools in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether tool exposes operation.
func (r *Registry) Has(tool, operation string) bool {
	adapter, ok := r.adapter(tool)
	if !ok {
		return false
	}
	_, ok = adapter.Operation(operation)
	return ok
}

func (r *Registry) adapter(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	return adapter, ok
}

// Invoke runs tool.operation with args.
func (r *Registry) Invoke(ctx context.Context, tool, operation string, args Args) (value.Value, error) {
	adapter, ok := r.adapter(tool)
	if !ok {
		return value.Value{}, apperrors.New(CodeUnknownTool, fmt.Sprintf("unknown tool %q", tool),
			apperrors.WithMetadata("tool", tool))
	}
	op, ok := adapter.Operation(operation)
	if !ok {
		return value.Value{}, apperrors.New(CodeUnknownOperation, fmt.Sprintf("tool %q has no operation %q", tool, operation),
			apperrors.WithMetadata("tool", tool),
			apperrors.WithMetadata("operation", operation))
	}
	if err := ctx.Err(); err != nil {
		return value.Value{}, apperrors.Wrap(apperrors.CodeTimeout, err, "tool invocation cancelled")
	}

	out, err := op(ctx, args)
	if err == nil && out.IsZero() {
		err = Fail(KindUnavailable, "%s.%s returned no value", tool, operation)
	}
	if err != nil {
		kind, ok := KindOf(err)
		if !ok {
			kind = KindUnavailable
		}
		r.logger.Debug("tool failed", "tool", tool, "operation", operation, "kind", kind, "error", err)
		return value.Value{}, apperrors.Wrap(CodeToolExecutionFailed, err, fmt.Sprintf("%s.%s failed", tool, operation),
			apperrors.WithMetadata("kind", string(kind)),
			apperrors.WithMetadata("tool", tool),
			apperrors.WithMetadata("operation", operation))
	}
	return out, nil
}
