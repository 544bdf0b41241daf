package tools

import (
	"context"
	"math"
	"strings"

	"github.com/expr-lang/expr"

	"QueryChain/internal/value"
)

// CalculatorName is the registry name of the calculator tool.
const CalculatorName = "calculator"

// Calculator performs arithmetic. Binary operations read first_number and
// second_number, aggregates read numbers, evaluate reads expression.
type Calculator struct {
	*Tool
}

// NewCalculator builds the calculator tool.
func NewCalculator() *Calculator {
	c := &Calculator{}
	c.Tool = NewTool(CalculatorName, map[string]Operation{
		"add":        binary(value.UnitKeep, func(a, b float64) (float64, error) { return a + b, nil }),
		"subtract":   binary(value.UnitKeep, func(a, b float64) (float64, error) { return a - b, nil }),
		"multiply":   binary(value.UnitKeep, func(a, b float64) (float64, error) { return a * b, nil }),
		"divide":     binary(value.UnitRatio, divide),
		"percent_of": binary(value.UnitKeep, func(p, n float64) (float64, error) { return p / 100.0 * n, nil }),
		"power":      binary(value.UnitStrip, func(a, b float64) (float64, error) { return math.Pow(a, b), nil }),
		"average":    aggregate("average", average),
		"sum":        aggregate("sum", sum),
		"min":        aggregate("min", minimum),
		"max":        aggregate("max", maximum),
		"evaluate":   c.evaluate,
	})
	return c
}

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, Fail(KindDivisionByZero, "cannot divide by zero")
	}
	return a / b, nil
}

func binary(rule value.UnitRule, fn func(a, b float64) (float64, error)) Operation {
	return func(_ context.Context, args Args) (value.Value, error) {
		first, err := args.Value("first_number")
		if err != nil {
			return value.Value{}, err
		}
		second, err := args.Value("second_number")
		if err != nil {
			return value.Value{}, err
		}
		a, err := args.Number("first_number")
		if err != nil {
			return value.Value{}, err
		}
		b, err := args.Number("second_number")
		if err != nil {
			return value.Value{}, err
		}
		result, err := fn(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Carry(result, rule, first, second), nil
	}
}

func aggregate(name string, fn func([]float64) float64) Operation {
	return func(_ context.Context, args Args) (value.Value, error) {
		operands, err := args.Values("numbers")
		if err != nil {
			return value.Value{}, err
		}
		numbers, err := args.Numbers("numbers")
		if err != nil {
			return value.Value{}, err
		}
		if len(numbers) == 0 {
			return value.Value{}, Fail(KindInvalidInput, "cannot calculate %s of empty list", name)
		}
		return value.Carry(fn(numbers), value.UnitKeep, operands...), nil
	}
}

func sum(numbers []float64) float64 {
	total := 0.0
	for _, n := range numbers {
		total += n
	}
	return total
}

func average(numbers []float64) float64 {
	return sum(numbers) / float64(len(numbers))
}

func minimum(numbers []float64) float64 {
	out := numbers[0]
	for _, n := range numbers[1:] {
		out = math.Min(out, n)
	}
	return out
}

func maximum(numbers []float64) float64 {
	out := numbers[0]
	for _, n := range numbers[1:] {
		out = math.Max(out, n)
	}
	return out
}

// evaluate computes an arithmetic expression such as "2 + 3 * 4". Only
// numeric literals and operators are accepted.
func (c *Calculator) evaluate(_ context.Context, args Args) (value.Value, error) {
	expression, err := args.Text("expression")
	if err != nil {
		return value.Value{}, err
	}
	if strings.ContainsFunc(expression, func(r rune) bool {
		return !strings.ContainsRune("0123456789.+-*/^() ", r)
	}) {
		return value.Value{}, Fail(KindInvalidInput, "unsupported characters in expression %q", expression)
	}

	program, err := expr.Compile(strings.ReplaceAll(expression, "^", "**"), expr.AsFloat64())
	if err != nil {
		return value.Value{}, Fail(KindInvalidInput, "invalid expression %q: %v", expression, err)
	}
	out, err := expr.Run(program, nil)
	if err != nil {
		return value.Value{}, Fail(KindInvalidInput, "evaluate %q: %v", expression, err)
	}
	result, ok := out.(float64)
	if !ok {
		return value.Value{}, Fail(KindInvalidInput, "expression %q did not produce a number", expression)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return value.Value{}, Fail(KindDivisionByZero, "expression %q divides by zero", expression)
	}
	return value.Number(result), nil
}
