package pattern

import (
	"fmt"
	"regexp"

	"QueryChain/internal/plan"
	"QueryChain/internal/value"
)

// ComponentRequest applies one arithmetic operation to the result of a
// nested request.
type ComponentRequest struct {
	Operation string
	Operand   float64
	Sub       string
}

var (
	// add 10 to <sub>, subtract 5 from <sub>, multiply 2 by <sub>
	componentLeadRE = regexp.MustCompile(`\b` + verbExpr + `\s+` + numCapture + `\s+(?:to|from|by|with)\s+(.+)$`)
	// multiply <sub> by 2, divide <sub> by 2
	componentTailRE = regexp.MustCompile(`\b(multiply|times|divide)\s+(.+?)\s+(?:by|with)\s+` + numCapture + `\s*[.!?]*$`)
	// <sub> plus 3, <sub> minus 2; sub must end in a word so "15 plus 25" stays with the calculator
	componentInfixRE = regexp.MustCompile(`^(.*[a-z])\s+(plus|minus|times)\s+` + numCapture + `\s*[.!?]*$`)
)

// NewComponent recognises arithmetic wrapped around another request. The
// nested request is compiled by the rules of reg ranked below priority, so
// the rule must be registered in the same registry.
func NewComponent(priority int, reg *Registry) *Rule[ComponentRequest] {
	extract := func(text string) (ComponentRequest, error) {
		for _, req := range componentCandidates(text) {
			if _, ok := reg.SelectBelow(req.Sub, priority); ok {
				return req, nil
			}
		}
		return ComponentRequest{}, failf("no nested request found in %q", text)
	}
	match := func(text string) bool {
		_, err := extract(text)
		return err == nil
	}
	build := func(req ComponentRequest) (*plan.Plan, error) {
		sub, p, err := reg.CompileBelow(req.Sub, priority)
		if err != nil {
			return nil, err
		}
		if sub.Kind() == plan.KindConditional {
			return nil, extractionFailed("component_based", fmt.Sprintf("cannot apply %s to conditional request %q", req.Operation, p.Name()))
		}
		return BuildComponent(req, sub)
	}
	return NewRule("component_based", priority, match, extract, build)
}

// componentCandidates lists the readings of text, trailing operand first.
func componentCandidates(text string) []ComponentRequest {
	var out []ComponentRequest
	if m := componentTailRE.FindStringSubmatch(text); m != nil {
		if req, err := componentOf(m[1], m[3], m[2]); err == nil {
			out = append(out, req)
		}
	}
	if m := componentLeadRE.FindStringSubmatch(text); m != nil {
		if req, err := componentOf(m[1], m[2], m[3]); err == nil {
			out = append(out, req)
		}
	}
	if m := componentInfixRE.FindStringSubmatch(text); m != nil {
		if req, err := componentOf(m[2], m[3], m[1]); err == nil {
			out = append(out, req)
		}
	}
	return out
}

func componentOf(verb, operand, sub string) (ComponentRequest, error) {
	op, ok := Operation(verb)
	if !ok {
		return ComponentRequest{}, failf("unsupported operation %q", verb)
	}
	n, err := ParseNumber(operand)
	if err != nil {
		return ComponentRequest{}, err
	}
	return ComponentRequest{Operation: op, Operand: n, Sub: sub}, nil
}

// BuildComponent extends sub with the arithmetic step. The nested result is
// the first operand.
func BuildComponent(req ComponentRequest, sub *plan.Plan) (*plan.Plan, error) {
	desc := fmt.Sprintf("%s %s applied to: %s", req.Operation, value.FormatNumber(req.Operand), sub.Description())
	return plan.Extend(sub, desc, func(result string) []plan.Step {
		return []plan.Step{{
			Tool:      "calculator",
			Operation: req.Operation,
			Params: map[string]plan.Param{
				"first_number":  plan.Ref(result),
				"second_number": plan.Number(req.Operand),
			},
			Output:      "component_result",
			Description: fmt.Sprintf("Calculate %s with %s", req.Operation, value.FormatNumber(req.Operand)),
		}}
	})
}
