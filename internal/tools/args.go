package tools

import (
	"sort"
	"strings"

	"QueryChain/internal/value"
)

// Arg is a resolved step parameter: a single value or a list of values.
type Arg struct {
	scalar value.Value
	list   []value.Value
	isList bool
}

// Scalar wraps a single value.
func Scalar(v value.Value) Arg { return Arg{scalar: v} }

// List wraps a list of values.
func List(vs ...value.Value) Arg {
	cloned := make([]value.Value, len(vs))
	copy(cloned, vs)
	return Arg{list: cloned, isList: true}
}

// IsList reports whether the argument holds a list.
func (a Arg) IsList() bool { return a.isList }

// Value returns the scalar value. Lists return the zero Value.
func (a Arg) Value() value.Value { return a.scalar }

// Values returns the list, or the scalar as a one-element list.
func (a Arg) Values() []value.Value {
	if a.isList {
		out := make([]value.Value, len(a.list))
		copy(out, a.list)
		return out
	}
	if a.scalar.IsZero() {
		return nil
	}
	return []value.Value{a.scalar}
}

// String renders the argument for logs and traces.
func (a Arg) String() string {
	if !a.isList {
		return a.scalar.String()
	}
	parts := make([]string, 0, len(a.list))
	for _, v := range a.list {
		parts = append(parts, v.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Args maps parameter names to resolved arguments.
type Args map[string]Arg

// Value returns the named scalar.
func (a Args) Value(name string) (value.Value, error) {
	arg, ok := a[name]
	if !ok || arg.isList || arg.scalar.IsZero() {
		return value.Value{}, Fail(KindInvalidInput, "missing parameter %q", name)
	}
	return arg.scalar, nil
}

// Number returns the numeric component of the named scalar.
func (a Args) Number(name string) (float64, error) {
	v, err := a.Value(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.Number()
	if !ok {
		return 0, Fail(KindInvalidInput, "parameter %q must be a number, got %q", name, v.String())
	}
	return n, nil
}

// OptionalNumber is Number for parameters that may be absent.
func (a Args) OptionalNumber(name string) (float64, bool, error) {
	if _, ok := a[name]; !ok {
		return 0, false, nil
	}
	n, err := a.Number(name)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Values returns the named list.
func (a Args) Values(name string) ([]value.Value, error) {
	arg, ok := a[name]
	if !ok {
		return nil, Fail(KindInvalidInput, "missing parameter %q", name)
	}
	return arg.Values(), nil
}

// Numbers returns the numeric components of the named list.
func (a Args) Numbers(name string) ([]float64, error) {
	vs, err := a.Values(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(vs))
	for _, v := range vs {
		n, ok := v.Number()
		if !ok {
			return nil, Fail(KindInvalidInput, "parameter %q must contain numbers, got %q", name, v.String())
		}
		out = append(out, n)
	}
	return out, nil
}

// Text returns the display form of the named scalar.
func (a Args) Text(name string) (string, error) {
	v, err := a.Value(name)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return "", Fail(KindInvalidInput, "parameter %q must not be empty", name)
	}
	return text, nil
}

// Strings renders every argument, keyed by name.
func (a Args) Strings() map[string]string {
	out := make(map[string]string, len(a))
	for name, arg := range a {
		out[name] = arg.String()
	}
	return out
}

// Names returns the parameter names in sorted order.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
