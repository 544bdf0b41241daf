package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"QueryChain/internal/plan"
	"QueryChain/internal/value"
)

// CalculatorRequest is the entity record of an arithmetic request.
type CalculatorRequest struct {
	Operation  string
	Operands   []float64
	Expression string
}

const numCapture = `(` + numberExpr + `)`

var (
	percentRE     = regexp.MustCompile(numCapture + `\s*%\s*of\s+` + numCapture)
	percentWordRE = regexp.MustCompile(numCapture + `\s+percent\s+of\s+` + numCapture)
	powerRE       = regexp.MustCompile(numCapture + `\s*(?:\^|\*\*|to\s+the\s+power\s+of)\s*` + numCapture)
	addRE         = regexp.MustCompile(`\b(?:add|plus|sum)\s+` + numCapture + `\s+(?:and|to|\+|with)\s+` + numCapture)
	subtractRE    = regexp.MustCompile(`\b(?:subtract|minus)\s+` + numCapture + `\s+(?:from|-)\s+` + numCapture)
	multiplyRE    = regexp.MustCompile(`\b(?:multiply|times)\s+` + numCapture + `\s+(?:by|\*|times|with|and)\s+` + numCapture)
	divideRE      = regexp.MustCompile(`\bdivide\s+` + numCapture + `\s+(?:by|/)\s+` + numCapture)
	averageRE     = regexp.MustCompile(`\b(?:average|avg|mean)\s+(?:of\s+)?(` + numberExpr + `(?:(?:\s*,\s*(?:and\s+)?|\s+and\s+)` + numberExpr + `)+)`)
	expressionRE  = regexp.MustCompile(`[(\s]*` + numberExpr + `(?:[\s)]*(?:\*\*|[-+*/^])[\s(]*` + numberExpr + `)+[\s)]*`)
	operatorRE    = regexp.MustCompile(`\*\*|[-+*/^]`)
	simpleRE      = regexp.MustCompile(numCapture + `\s*([-+*/])\s*` + numCapture)
	verbalRE      = regexp.MustCompile(numCapture + `\s+(plus|minus|times|multiplied\s+by|divided\s+by)\s+` + numCapture)
)

var symbolOps = map[string]string{"+": "add", "-": "subtract", "*": "multiply", "/": "divide"}

var verbalOps = map[string]string{"plus": "add", "minus": "subtract", "times": "multiply", "multiplied by": "multiply", "divided by": "divide"}

var calculatorShapes = []*regexp.Regexp{percentRE, percentWordRE, powerRE, addRE, subtractRE, multiplyRE, divideRE, averageRE, simpleRE, verbalRE}

// NewCalculator recognises percentages, binary arithmetic in words or symbols,
// averages and multi-operator expressions.
func NewCalculator(priority int) *Rule[CalculatorRequest] {
	return NewRule("calculator", priority, matchAny(calculatorShapes), ExtractCalculator, BuildCalculator)
}

// ExtractCalculator parses an arithmetic request.
func ExtractCalculator(text string) (CalculatorRequest, error) {
	binaryOf := func(op string, m []string, swap bool) (CalculatorRequest, error) {
		a, err := ParseNumber(m[1])
		if err != nil {
			return CalculatorRequest{}, err
		}
		b, err := ParseNumber(m[2])
		if err != nil {
			return CalculatorRequest{}, err
		}
		if swap {
			a, b = b, a
		}
		return CalculatorRequest{Operation: op, Operands: []float64{a, b}}, nil
	}

	if m := percentRE.FindStringSubmatch(text); m != nil {
		return binaryOf("percent_of", m, false)
	}
	if m := percentWordRE.FindStringSubmatch(text); m != nil {
		return binaryOf("percent_of", m, false)
	}
	if m := powerRE.FindStringSubmatch(text); m != nil && !hasExtraOperators(text, m[0]) {
		return binaryOf("power", m, false)
	}
	if m := addRE.FindStringSubmatch(text); m != nil {
		return binaryOf("add", m, false)
	}
	if m := subtractRE.FindStringSubmatch(text); m != nil {
		// "subtract A from B" computes B - A.
		return binaryOf("subtract", m, true)
	}
	if m := multiplyRE.FindStringSubmatch(text); m != nil {
		return binaryOf("multiply", m, false)
	}
	if m := divideRE.FindStringSubmatch(text); m != nil {
		return binaryOf("divide", m, false)
	}
	if m := averageRE.FindStringSubmatch(text); m != nil {
		return CalculatorRequest{Operation: "average", Operands: Numbers(m[1])}, nil
	}
	if expr := expressionRE.FindString(text); expr != "" {
		expr = strings.TrimSpace(expr)
		if len(operatorRE.FindAllString(expr, -1)) > 1 || strings.ContainsAny(expr, "()") {
			if !balanced(expr) {
				return CalculatorRequest{}, failf("unbalanced parentheses in %q", expr)
			}
			return CalculatorRequest{Operation: "evaluate", Expression: expr}, nil
		}
	}
	if m := simpleRE.FindStringSubmatch(text); m != nil {
		return binaryOf(symbolOps[m[2]], []string{m[0], m[1], m[3]}, false)
	}
	if m := verbalRE.FindStringSubmatch(text); m != nil {
		return binaryOf(verbalOps[strings.Join(strings.Fields(m[2]), " ")], []string{m[0], m[1], m[3]}, false)
	}
	return CalculatorRequest{}, failf("no arithmetic found in %q", text)
}

// hasExtraOperators reports whether the expression around match continues
// with further operators, in which case it is evaluated as a whole.
func hasExtraOperators(text, match string) bool {
	expr := expressionRE.FindString(text)
	return strings.Contains(expr, strings.TrimSpace(match)) && len(operatorRE.FindAllString(expr, -1)) > 1
}

func balanced(expr string) bool {
	depth := 0
	for _, r := range expr {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// BuildCalculator turns a request into a single calculator step.
func BuildCalculator(req CalculatorRequest) (*plan.Plan, error) {
	step := plan.Step{Tool: "calculator", Operation: req.Operation}
	switch req.Operation {
	case "evaluate":
		step.Params = map[string]plan.Param{"expression": plan.Text(req.Expression)}
		step.Description = "Evaluate " + req.Expression
	case "average":
		items := make([]plan.Param, 0, len(req.Operands))
		for _, x := range req.Operands {
			items = append(items, plan.Number(x))
		}
		step.Params = map[string]plan.Param{"numbers": plan.List(items...)}
		step.Description = fmt.Sprintf("Calculate average of %d numbers", len(req.Operands))
	default:
		if len(req.Operands) != 2 {
			return nil, extractionFailed("calculator", fmt.Sprintf("%s needs two operands, got %d", req.Operation, len(req.Operands)))
		}
		step.Params = map[string]plan.Param{
			"first_number":  plan.Number(req.Operands[0]),
			"second_number": plan.Number(req.Operands[1]),
		}
		step.Description = fmt.Sprintf("Calculate %s(%s, %s)", req.Operation,
			value.FormatNumber(req.Operands[0]), value.FormatNumber(req.Operands[1]))
	}
	return plan.New(plan.KindSingle, step.Description, []plan.Step{step})
}
