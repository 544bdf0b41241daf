package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "QueryChain/internal/errors"
)

func weatherStep(city, output string) Step {
	return Step{Tool: "weather", Operation: "get_weather", Params: map[string]Param{"city": Text(city)}, Output: output}
}

func averageTemperatures() []Step {
	return []Step{
		weatherStep("paris", "paris_temp"),
		weatherStep("london", "london_temp"),
		{Tool: "calculator", Operation: "average", Params: map[string]Param{"numbers": List(Ref("paris_temp"), Ref("london_temp"))}, Output: "avg_temp"},
	}
}

func TestNewValidMultiPlan(t *testing.T) {
	steps := append(averageTemperatures(), Step{
		Tool: "calculator", Operation: "add",
		Params: map[string]Param{"first_number": Ref("avg_temp"), "second_number": Number(10)},
		Output: "final_result",
	})
	p, err := New(KindMulti, "add 10 to average", steps)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Len())
	assert.Equal(t, "final_result", p.Terminal())
	assert.Equal(t, []string{"paris_temp", "london_temp", "avg_temp", "final_result"}, p.Bindings())
	assert.Contains(t, p.String(), "calculator.add(first_number=${avg_temp}, second_number=10.0) -> final_result")
}

func assertInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, CodeInvalidPlan), "unexpected error %v", err)
	assert.True(t, apperrors.ShouldAlert(err))
}

func TestNewRejectsForwardReference(t *testing.T) {
	steps := []Step{
		{Tool: "calculator", Operation: "average", Params: map[string]Param{"numbers": List(Ref("paris_temp"))}, Output: "avg"},
		weatherStep("paris", "paris_temp"),
	}
	_, err := New(KindMulti, "bad order", steps)
	assertInvalid(t, err)
}

func TestNewRejectsTemplateReferenceToUnbound(t *testing.T) {
	steps := []Step{
		{Tool: "llm", Operation: "generate", Params: map[string]Param{"prompt": Template("Summarize ${weather}")}},
	}
	_, err := New(KindSingle, "bad template", steps)
	assertInvalid(t, err)
}

func TestNewRejectsRebinding(t *testing.T) {
	_, err := New(KindMulti, "dup", []Step{weatherStep("paris", "t"), weatherStep("london", "t")})
	assertInvalid(t, err)
}

func TestNewRejectsMalformedPlans(t *testing.T) {
	_, err := New(KindMulti, "empty", nil)
	assertInvalid(t, err)

	_, err = New(KindSingle, "two", []Step{weatherStep("a", ""), weatherStep("b", "")})
	assertInvalid(t, err)

	_, err = New(Kind("parallel"), "kind", []Step{weatherStep("a", "")})
	assertInvalid(t, err)

	_, err = New(KindMulti, "no tool", []Step{{Operation: "x"}})
	assertInvalid(t, err)

	_, err = New(KindMulti, "bad name", []Step{weatherStep("a", "not-an-identifier")})
	assertInvalid(t, err)
}

func conditionalSteps() []Step {
	return []Step{
		weatherStep("paris", "temp"),
		{Tool: "calculator", Operation: "add", Params: map[string]Param{"first_number": Ref("temp"), "second_number": Number(5)}, Output: "final_result"},
	}
}

func TestConditionalPlan(t *testing.T) {
	p, err := New(KindConditional, "if warm add 5", conditionalSteps(), WithCondition(Condition{Subject: "temp", Operator: OpGreaterEqual, Threshold: 18}, 1))
	require.NoError(t, err)
	cond, ok := p.Condition()
	require.True(t, ok)
	assert.Equal(t, "temp >= 18.0", cond.Expression())
	assert.Equal(t, 1, p.Guard())
	assert.Contains(t, p.String(), "if temp >= 18.0:")
}

func TestConditionalValidation(t *testing.T) {
	_, err := New(KindConditional, "no condition", conditionalSteps())
	assertInvalid(t, err)

	_, err = New(KindConditional, "subject unbound", conditionalSteps(), WithCondition(Condition{Subject: "humidity", Operator: OpGreater, Threshold: 1}, 1))
	assertInvalid(t, err)

	_, err = New(KindConditional, "subject bound after guard", conditionalSteps(), WithCondition(Condition{Subject: "final_result", Operator: OpGreater, Threshold: 1}, 1))
	assertInvalid(t, err)

	_, err = New(KindConditional, "guard covers all", conditionalSteps(), WithCondition(Condition{Subject: "temp", Operator: OpGreater, Threshold: 1}, 2))
	assertInvalid(t, err)

	_, err = New(KindConditional, "bad op", conditionalSteps(), WithCondition(Condition{Subject: "temp", Operator: "=>", Threshold: 1}, 1))
	assertInvalid(t, err)

	_, err = New(KindMulti, "multi with condition", conditionalSteps(), WithCondition(Condition{Subject: "temp", Operator: OpGreater, Threshold: 1}, 1))
	assertInvalid(t, err)
}

func TestExtendBindsTerminal(t *testing.T) {
	base, err := New(KindSingle, "weather", []Step{weatherStep("paris", "")})
	require.NoError(t, err)

	extended, err := Extend(base, "add 10 to weather", func(result string) []Step {
		return []Step{{Tool: "calculator", Operation: "add", Params: map[string]Param{"first_number": Ref(result), "second_number": Number(10)}, Output: "final_result"}}
	})
	require.NoError(t, err)
	assert.Equal(t, KindMulti, extended.Kind())
	assert.Equal(t, []string{"base_result", "final_result"}, extended.Bindings())
	assert.Empty(t, base.Terminal(), "base plan must not be mutated")
}

func TestExtendAvoidsTakenNames(t *testing.T) {
	base, err := New(KindMulti, "two", []Step{weatherStep("paris", "base_result"), weatherStep("london", "")})
	require.NoError(t, err)
	extended, err := Extend(base, "x", func(result string) []Step {
		assert.Equal(t, "base_result_2", result)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "base_result_2", extended.Terminal())
}

func TestExtendRejectsConditional(t *testing.T) {
	cond, err := New(KindConditional, "c", conditionalSteps(), WithCondition(Condition{Subject: "temp", Operator: OpGreater, Threshold: 1}, 1))
	require.NoError(t, err)
	_, err = Extend(cond, "x", func(string) []Step { return nil })
	assertInvalid(t, err)
}

func TestStepsAreCopies(t *testing.T) {
	p, err := New(KindSingle, "w", []Step{weatherStep("paris", "t")})
	require.NoError(t, err)
	steps := p.Steps()
	steps[0].Params["city"] = Text("london")
	assert.Equal(t, "paris", p.Steps()[0].Params["city"].Value().Text())
}

func TestExpandTemplate(t *testing.T) {
	lookup := func(name string) (string, bool) {
		if name == "weather" {
			return "18°C", true
		}
		return "", false
	}
	out, _, ok := ExpandTemplate("Summarize ${weather} in Paris", lookup)
	require.True(t, ok)
	assert.Equal(t, "Summarize 18°C in Paris", out)

	_, missing, ok := ExpandTemplate("${weather} and ${wind}", lookup)
	assert.False(t, ok)
	assert.Equal(t, "wind", missing)

	assert.Equal(t, []string{"a", "b"}, TemplateRefs("${a} ${ b }"))
}
