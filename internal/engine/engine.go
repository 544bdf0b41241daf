// Package engine executes validated plans against a tool invoker, threading
// step outputs through a per-execution variable store.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/plan"
	"QueryChain/internal/tools"
	"QueryChain/internal/value"
	"QueryChain/pkg/logger"
)

// CodeUnboundVariable marks a reference to a name no earlier step bound.
const CodeUnboundVariable apperrors.Code = "UNBOUND_VARIABLE"

func init() {
	apperrors.Register(CodeUnboundVariable, apperrors.Attributes{Message: "unbound variable", Severity: apperrors.SeverityCritical, Alert: true})
}

// Invoker runs a tool operation. *tools.Registry implements it.
type Invoker interface {
	Invoke(ctx context.Context, tool, operation string, args tools.Args) (value.Value, error)
}

// StepTrace records one executed step.
type StepTrace struct {
	Index     int               `json:"index"`
	Tool      string            `json:"tool"`
	Operation string            `json:"operation"`
	Args      map[string]string `json:"args"`
	Output    string            `json:"output,omitempty"`
	Value     value.Value       `json:"value"`
	Duration  time.Duration     `json:"duration"`
}

// Result is the outcome of a successful execution.
type Result struct {
	Value value.Value
	// Answer is Value rendered for the user.
	Answer string
	Trace  []StepTrace
	// ConditionMet is set for conditional plans.
	ConditionMet *bool
}

// Strategy executes plans of one kind.
type Strategy interface {
	Kind() plan.Kind
	Execute(ctx context.Context, run *Run, p *plan.Plan) (value.Value, error)
}

// Engine dispatches plans to strategies by kind.
type Engine struct {
	invoker    Invoker
	strategies map[plan.Kind]Strategy
	logger     *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithStrategy installs or replaces the strategy for its kind.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.strategies[s.Kind()] = s
		}
	}
}

// WithLogger overrides the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine with the single, multi and conditional strategies.
func New(invoker Invoker, opts ...Option) *Engine {
	e := &Engine{
		invoker: invoker,
		strategies: map[plan.Kind]Strategy{
			plan.KindSingle:      SingleStrategy{},
			plan.KindMulti:       MultiStrategy{},
			plan.KindConditional: ConditionalStrategy{},
		},
		logger: logger.Named("engine"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute runs p and formats its final value. Any step failure aborts the
// plan and is returned unchanged.
func (e *Engine) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	if p == nil {
		return nil, apperrors.New(plan.CodeInvalidPlan, "plan is nil")
	}
	strategy, ok := e.strategies[p.Kind()]
	if !ok {
		return nil, apperrors.New(plan.CodeInvalidPlan, fmt.Sprintf("no strategy for plan kind %q", p.Kind()))
	}

	run := &Run{invoker: e.invoker, store: NewStore(), logger: e.logger}
	started := time.Now()
	out, err := strategy.Execute(ctx, run, p)
	if err != nil {
		e.logger.Debug("plan aborted", "kind", p.Kind(), "steps_run", len(run.trace), "error", err)
		return nil, err
	}
	e.logger.Debug("plan complete", "kind", p.Kind(), "steps_run", len(run.trace), "duration", time.Since(started))
	return &Result{
		Value:        out,
		Answer:       Format(out),
		Trace:        run.trace,
		ConditionMet: run.conditionMet,
	}, nil
}

// Format renders a final value: quantities keep their unit, money and numbers
// render as bare numbers.
func Format(v value.Value) string {
	switch v.Kind() {
	case value.KindMoney:
		n, _ := v.Number()
		return value.FormatNumber(n)
	default:
		return v.String()
	}
}

// Run is the state of one execution.
type Run struct {
	invoker      Invoker
	store        *Store
	logger       *slog.Logger
	trace        []StepTrace
	conditionMet *bool
}

// Store exposes the execution's variable store.
func (r *Run) Store() *Store { return r.store }

// Step resolves and invokes step, binding its output when it names one.
func (r *Run) Step(ctx context.Context, index int, step plan.Step) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Value{}, apperrors.Wrap(apperrors.CodeTimeout, err, "execution cancelled")
	}
	args, err := r.resolve(step.Params)
	if err != nil {
		return value.Value{}, err
	}
	r.logger.Debug("step start", "step", index, "tool", step.Tool, "operation", step.Operation, "args", args.Strings())

	started := time.Now()
	out, err := r.invoker.Invoke(ctx, step.Tool, step.Operation, args)
	elapsed := time.Since(started)
	if err != nil {
		r.logger.Debug("step failed", "step", index, "tool", step.Tool, "operation", step.Operation, "error", err)
		return value.Value{}, err
	}
	r.logger.Debug("step result", "step", index, "value", out.String(), "duration", elapsed)

	if step.Output != "" {
		if err := r.store.Bind(step.Output, out); err != nil {
			return value.Value{}, err
		}
		r.logger.Debug("variable stored", "name", step.Output, "value", out.String())
	}
	r.trace = append(r.trace, StepTrace{
		Index:     index,
		Tool:      step.Tool,
		Operation: step.Operation,
		Args:      args.Strings(),
		Output:    step.Output,
		Value:     out,
		Duration:  elapsed,
	})
	return out, nil
}

// Steps runs steps in order, numbering them from first, and returns the last
// value.
func (r *Run) Steps(ctx context.Context, first int, steps []plan.Step) (value.Value, error) {
	var last value.Value
	for i, step := range steps {
		out, err := r.Step(ctx, first+i, step)
		if err != nil {
			return value.Value{}, err
		}
		last = out
	}
	return last, nil
}

func (r *Run) resolve(params map[string]plan.Param) (tools.Args, error) {
	args := make(tools.Args, len(params))
	for name, param := range params {
		arg, err := r.resolveParam(param)
		if err != nil {
			return nil, err
		}
		args[name] = arg
	}
	return args, nil
}

func (r *Run) resolveParam(p plan.Param) (tools.Arg, error) {
	if p.Kind() == plan.ParamList {
		items := p.Items()
		values := make([]value.Value, 0, len(items))
		for _, item := range items {
			v, err := r.resolveScalar(item)
			if err != nil {
				return tools.Arg{}, err
			}
			values = append(values, v)
		}
		return tools.List(values...), nil
	}
	v, err := r.resolveScalar(p)
	if err != nil {
		return tools.Arg{}, err
	}
	return tools.Scalar(v), nil
}

func (r *Run) resolveScalar(p plan.Param) (value.Value, error) {
	switch p.Kind() {
	case plan.ParamLiteral:
		return p.Value(), nil
	case plan.ParamRef:
		return r.store.Resolve(p.Name())
	case plan.ParamTemplate:
		text, missing, ok := plan.ExpandTemplate(p.TemplateText(), func(name string) (string, bool) {
			v, found := r.store.Lookup(name)
			return v.String(), found
		})
		if !ok {
			return r.store.Resolve(missing)
		}
		return value.Text(text), nil
	default:
		return value.Value{}, apperrors.New(plan.CodeInvalidPlan, "nested list parameters are not supported")
	}
}

// evaluate checks cond against the value bound to its subject.
func (r *Run) evaluate(cond plan.Condition) (bool, error) {
	subject, err := r.store.Resolve(cond.Subject)
	if err != nil {
		return false, err
	}
	n, ok := subject.Number()
	if !ok {
		return false, apperrors.New(plan.CodeInvalidPlan, fmt.Sprintf("condition subject %q is not numeric", cond.Subject))
	}
	env := map[string]any{cond.Subject: n}
	program, err := expr.Compile(cond.Expression(), expr.Env(env), expr.AsBool())
	if err != nil {
		return false, apperrors.Wrap(plan.CodeInvalidPlan, err, "compile condition")
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, apperrors.Wrap(plan.CodeInvalidPlan, err, "evaluate condition")
	}
	met, _ := out.(bool)
	r.conditionMet = &met
	return met, nil
}
