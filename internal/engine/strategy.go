package engine

import (
	"context"

	"QueryChain/internal/plan"
	"QueryChain/internal/value"
)

// SingleStrategy runs a one-step plan.
type SingleStrategy struct{}

func (SingleStrategy) Kind() plan.Kind { return plan.KindSingle }

func (SingleStrategy) Execute(ctx context.Context, run *Run, p *plan.Plan) (value.Value, error) {
	return run.Step(ctx, 1, p.Steps()[0])
}

// MultiStrategy runs every step in order; the last step's value is the result.
type MultiStrategy struct{}

func (MultiStrategy) Kind() plan.Kind { return plan.KindMulti }

func (MultiStrategy) Execute(ctx context.Context, run *Run, p *plan.Plan) (value.Value, error) {
	return run.Steps(ctx, 1, p.Steps())
}

// ConditionalStrategy runs the guard steps, then the remaining steps only
// when the condition holds. Otherwise the subject's value is the result.
type ConditionalStrategy struct{}

func (ConditionalStrategy) Kind() plan.Kind { return plan.KindConditional }

func (ConditionalStrategy) Execute(ctx context.Context, run *Run, p *plan.Plan) (value.Value, error) {
	steps := p.Steps()
	guard := p.Guard()
	if _, err := run.Steps(ctx, 1, steps[:guard]); err != nil {
		return value.Value{}, err
	}
	cond, _ := p.Condition()
	met, err := run.evaluate(cond)
	if err != nil {
		return value.Value{}, err
	}
	run.logger.Debug("condition evaluated", "expression", cond.Expression(), "met", met)
	if !met {
		return run.store.Resolve(cond.Subject)
	}
	return run.Steps(ctx, guard+1, steps[guard:])
}
