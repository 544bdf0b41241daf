package engine

import (
	"fmt"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/plan"
	"QueryChain/internal/value"
)

// Store holds the values bound during one execution. It is append-only and
// owned by a single execution.
type Store struct {
	values map[string]value.Value
	order  []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]value.Value)}
}

// Bind records v under name. A name can be bound once.
func (s *Store) Bind(name string, v value.Value) error {
	if _, exists := s.values[name]; exists {
		return apperrors.New(plan.CodeInvalidPlan, fmt.Sprintf("variable %q is already bound", name))
	}
	s.values[name] = v
	s.order = append(s.order, name)
	return nil
}

// Lookup returns the value bound under name.
func (s *Store) Lookup(name string) (value.Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Resolve is Lookup that reports a missing name as UNBOUND_VARIABLE.
func (s *Store) Resolve(name string) (value.Value, error) {
	v, ok := s.values[name]
	if !ok {
		return value.Value{}, apperrors.New(CodeUnboundVariable, fmt.Sprintf("variable %q is not bound", name),
			apperrors.WithMetadata("variable", name))
	}
	return v, nil
}

// Names lists bound names in binding order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of bindings.
func (s *Store) Len() int { return len(s.order) }
