// Package plan models execution plans: an ordered list of tool invocations
// whose outputs are bound to names that later steps reference. Plans are
// validated when built, so a plan that exists is dependency-ordered.
package plan

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/value"
)

// CodeInvalidPlan marks a plan that fails compile-time validation.
const CodeInvalidPlan apperrors.Code = "INVALID_PLAN"

func init() {
	apperrors.Register(CodeInvalidPlan, apperrors.Attributes{Message: "invalid execution plan", Severity: apperrors.SeverityCritical, Alert: true})
}

// Kind selects the execution strategy.
type Kind string

const (
	KindSingle      Kind = "single"
	KindMulti       Kind = "multi"
	KindConditional Kind = "conditional"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Step is one tool invocation.
type Step struct {
	Tool        string
	Operation   string
	Params      map[string]Param
	Output      string
	Description string
}

// Refs lists the names the step depends on, sorted by parameter name.
func (s Step) Refs() []string {
	names := make([]string, 0, len(s.Params))
	for name := range s.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	var out []string
	for _, name := range names {
		out = append(out, s.Params[name].Refs()...)
	}
	return out
}

func (s Step) clone() Step {
	params := make(map[string]Param, len(s.Params))
	for k, v := range s.Params {
		params[k] = v
	}
	s.Params = params
	return s
}

// Operator compares the condition subject with its threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

func (o Operator) valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	}
	return false
}

// Condition gates the dependent steps of a conditional plan.
type Condition struct {
	Subject   string
	Operator  Operator
	Threshold float64
}

// Expression renders the condition as an expression over Subject.
func (c Condition) Expression() string {
	return fmt.Sprintf("%s %s %s", c.Subject, c.Operator, value.FormatNumber(c.Threshold))
}

// Plan is an immutable, validated execution plan.
type Plan struct {
	kind        Kind
	description string
	steps       []Step
	condition   *Condition
	guard       int
}

// Option configures a plan under construction.
type Option func(*Plan)

// WithCondition makes the first guard steps unconditional and runs the rest
// only when cond holds.
func WithCondition(cond Condition, guard int) Option {
	return func(p *Plan) {
		c := cond
		p.condition = &c
		p.guard = guard
	}
}

// New validates and builds a plan.
func New(kind Kind, description string, steps []Step, opts ...Option) (*Plan, error) {
	p := &Plan{kind: kind, description: description, steps: make([]Step, 0, len(steps))}
	for _, step := range steps {
		p.steps = append(p.steps, step.clone())
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func invalid(format string, args ...any) error {
	return apperrors.New(CodeInvalidPlan, fmt.Sprintf(format, args...))
}

func (p *Plan) validate() error {
	if len(p.steps) == 0 {
		return invalid("plan has no steps")
	}
	switch p.kind {
	case KindSingle:
		if len(p.steps) != 1 {
			return invalid("single plan must have exactly one step, got %d", len(p.steps))
		}
	case KindMulti:
	case KindConditional:
		if p.condition == nil {
			return invalid("conditional plan has no condition")
		}
		if p.guard < 1 || p.guard >= len(p.steps) {
			return invalid("conditional guard %d out of range for %d steps", p.guard, len(p.steps))
		}
		if !p.condition.Operator.valid() {
			return invalid("unsupported comparison operator %q", p.condition.Operator)
		}
	default:
		return invalid("unknown plan kind %q", p.kind)
	}
	if p.kind != KindConditional && p.condition != nil {
		return invalid("%s plan cannot carry a condition", p.kind)
	}

	bound := make(map[string]int, len(p.steps))
	for i, step := range p.steps {
		if strings.TrimSpace(step.Tool) == "" || strings.TrimSpace(step.Operation) == "" {
			return invalid("step %d has no tool or operation", i+1)
		}
		for _, ref := range step.Refs() {
			if _, ok := bound[ref]; !ok {
				return invalid("step %d (%s.%s) references %q before it is bound", i+1, step.Tool, step.Operation, ref)
			}
		}
		if step.Output == "" {
			continue
		}
		if !identifierRE.MatchString(step.Output) {
			return invalid("step %d binds invalid name %q", i+1, step.Output)
		}
		if prev, ok := bound[step.Output]; ok {
			return invalid("step %d rebinds %q already bound by step %d", i+1, step.Output, prev+1)
		}
		bound[step.Output] = i
	}

	if p.condition != nil {
		at, ok := bound[p.condition.Subject]
		if !ok || at >= p.guard {
			return invalid("condition subject %q is not bound by the guard steps", p.condition.Subject)
		}
	}
	return nil
}

// Kind returns the plan kind.
func (p *Plan) Kind() Kind { return p.kind }

// Description returns the human-readable summary.
func (p *Plan) Description() string { return p.description }

// Len returns the number of steps.
func (p *Plan) Len() int { return len(p.steps) }

// Steps returns copies of the steps in execution order.
func (p *Plan) Steps() []Step {
	out := make([]Step, 0, len(p.steps))
	for _, step := range p.steps {
		out = append(out, step.clone())
	}
	return out
}

// Condition returns the gating condition of a conditional plan.
func (p *Plan) Condition() (Condition, bool) {
	if p.condition == nil {
		return Condition{}, false
	}
	return *p.condition, true
}

// Guard returns how many leading steps run before the condition is checked.
func (p *Plan) Guard() int { return p.guard }

// Terminal returns the name bound by the last step, if any.
func (p *Plan) Terminal() string { return p.steps[len(p.steps)-1].Output }

// Bindings lists the names bound by the plan in binding order.
func (p *Plan) Bindings() []string {
	var out []string
	for _, step := range p.steps {
		if step.Output != "" {
			out = append(out, step.Output)
		}
	}
	return out
}

// Extend builds a multi-step plan from base's steps followed by the steps
// next returns. next receives the name holding base's result; a terminal
// step without a binding is bound to a fresh name first.
func Extend(base *Plan, description string, next func(result string) []Step) (*Plan, error) {
	if base == nil {
		return nil, invalid("cannot extend a nil plan")
	}
	if base.kind == KindConditional {
		return nil, invalid("cannot extend a conditional plan")
	}
	steps := base.Steps()
	result := steps[len(steps)-1].Output
	if result == "" {
		result = freshName(base, "base_result")
		steps[len(steps)-1].Output = result
	}
	steps = append(steps, next(result)...)
	return New(KindMulti, description, steps)
}

func freshName(p *Plan, prefix string) string {
	taken := make(map[string]bool)
	for _, name := range p.Bindings() {
		taken[name] = true
	}
	name := prefix
	for i := 2; taken[name]; i++ {
		name = fmt.Sprintf("%s_%d", prefix, i)
	}
	return name
}

// String renders the plan on one line per step.
func (p *Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s plan: %s\n", p.kind, p.description)
	for i, step := range p.steps {
		if p.condition != nil && i == p.guard {
			fmt.Fprintf(&b, "  if %s:\n", p.condition.Expression())
		}
		names := make([]string, 0, len(step.Params))
		for name := range step.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		args := make([]string, 0, len(names))
		for _, name := range names {
			args = append(args, name+"="+step.Params[name].String())
		}
		fmt.Fprintf(&b, "  %d. %s.%s(%s)", i+1, step.Tool, step.Operation, strings.Join(args, ", "))
		if step.Output != "" {
			fmt.Fprintf(&b, " -> %s", step.Output)
		}
		b.WriteString("\n")
	}
	return b.String()
}
