package pattern

import (
	"fmt"
	"sync"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/plan"
)

// Registry holds patterns in registration order.
type Registry struct {
	mu       sync.RWMutex
	patterns []Pattern
	names    map[string]struct{}
	sealed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register appends p. Names must be unique and the registry unsealed.
func (r *Registry) Register(p Pattern) error {
	if p == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "pattern must not be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return apperrors.New(apperrors.CodeConflict, fmt.Sprintf("registry sealed, cannot register %q", p.Name()))
	}
	if _, exists := r.names[p.Name()]; exists {
		return apperrors.New(apperrors.CodeConflict, fmt.Sprintf("pattern %q already registered", p.Name()))
	}
	r.names[p.Name()] = struct{}{}
	r.patterns = append(r.patterns, p)
	return nil
}

// Seal freezes the registry.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Patterns returns the registered patterns in registration order.
func (r *Registry) Patterns() []Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Select returns the highest-priority pattern matching text. Among equal
// priorities the earliest registered wins.
func (r *Registry) Select(text string) (Pattern, bool) {
	return r.selectWhere(text, func(Pattern) bool { return true })
}

// SelectBelow is Select restricted to patterns with priority below ceiling.
func (r *Registry) SelectBelow(text string, ceiling int) (Pattern, bool) {
	return r.selectWhere(text, func(p Pattern) bool { return p.Priority() < ceiling })
}

func (r *Registry) selectWhere(text string, eligible func(Pattern) bool) (Pattern, bool) {
	var best Pattern
	for _, p := range r.Patterns() {
		if !eligible(p) || (best != nil && p.Priority() <= best.Priority()) {
			continue
		}
		if p.Matches(text) {
			best = p
		}
	}
	return best, best != nil
}

// Compile selects a pattern and compiles text with it. ErrNoPatternMatched
// is returned when nothing matches.
func (r *Registry) Compile(text string) (*plan.Plan, Pattern, error) {
	p, ok := r.Select(text)
	if !ok {
		return nil, nil, ErrNoPatternMatched
	}
	compiled, err := p.Compile(text)
	if err != nil {
		return nil, p, err
	}
	return compiled, p, nil
}

// CompileBelow is Compile restricted to patterns with priority below ceiling.
func (r *Registry) CompileBelow(text string, ceiling int) (*plan.Plan, Pattern, error) {
	p, ok := r.SelectBelow(text, ceiling)
	if !ok {
		return nil, nil, ErrNoPatternMatched
	}
	compiled, err := p.Compile(text)
	if err != nil {
		return nil, p, err
	}
	return compiled, p, nil
}
