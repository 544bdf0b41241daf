package pattern

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/plan"
)

type gazetteer map[string]bool

func (g gazetteer) Contains(city string) bool { return g[strings.ToLower(city)] }

var testCities = gazetteer{
	"paris": true, "london": true, "berlin": true, "tokyo": true,
	"new york": true, "chicago": true, "dubai": true,
}

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Default(testCities)
	require.NoError(t, err)
	return reg
}

func compile(t *testing.T, text string) (*plan.Plan, string) {
	t.Helper()
	p, pat, err := defaultRegistry(t).Compile(text)
	require.NoError(t, err, text)
	return p, pat.Name()
}

func params(step plan.Step) map[string]string {
	out := make(map[string]string, len(step.Params))
	for k, v := range step.Params {
		out[k] = v.String()
	}
	return out
}

func TestPriorityTieBreak(t *testing.T) {
	always := func(string) bool { return true }
	noop := func(string) (struct{}, error) { return struct{}{}, nil }
	build := func(struct{}) (*plan.Plan, error) { return nil, nil }

	reg := NewRegistry()
	require.NoError(t, reg.Register(NewRule("first", 5, always, noop, build)))
	require.NoError(t, reg.Register(NewRule("second", 5, always, noop, build)))

	p, ok := reg.Select("anything")
	require.True(t, ok)
	assert.Equal(t, "first", p.Name())

	require.NoError(t, reg.Register(NewRule("third", 7, always, noop, build)))
	p, ok = reg.Select("anything")
	require.True(t, ok)
	assert.Equal(t, "third", p.Name())

	p, ok = reg.SelectBelow("anything", 7)
	require.True(t, ok)
	assert.Equal(t, "first", p.Name())
}

func TestRegistryRegistration(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewWeather(8)))
	err := reg.Register(NewWeather(3))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	sealed := defaultRegistry(t)
	err = sealed.Register(NewKnowledge(1))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	names := make([]string, 0)
	for _, p := range sealed.Patterns() {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"component_based", "multi_step", "currency", "calculator", "weather", "knowledge_base"}, names)
}

func TestExtractCalculator(t *testing.T) {
	cases := []struct {
		text     string
		op       string
		operands []float64
		expr     string
	}{
		{"What is 12.5% of 243?", "percent_of", []float64{12.5, 243}, ""},
		{"What is 33.5 percent of 200?", "percent_of", []float64{33.5, 200}, ""},
		{"What is 15 + 25?", "add", []float64{15, 25}, ""},
		{"What is 100.0 - 25.75?", "subtract", []float64{100, 25.75}, ""},
		{"What is 3.14 * 2?", "multiply", []float64{3.14, 2}, ""},
		{"What is 50.5 / 5?", "divide", []float64{50.5, 5}, ""},
		{"Add 7 and 8", "add", []float64{7, 8}, ""},
		{"Subtract 5 from 20", "subtract", []float64{20, 5}, ""},
		{"Multiply 3 by 4", "multiply", []float64{3, 4}, ""},
		{"Divide 9 by 3", "divide", []float64{9, 3}, ""},
		{"2 ^ 10", "power", []float64{2, 10}, ""},
		{"6 times 7", "multiply", []float64{6, 7}, ""},
		{"The average of 10, 20 and 30", "average", []float64{10, 20, 30}, ""},
		{"What is (2 + 3) * 4?", "evaluate", nil, "(2 + 3) * 4"},
		{"Calculate 2 + 3 * 4", "evaluate", nil, "2 + 3 * 4"},
	}
	rule := NewCalculator(PriorityCalculator)
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			require.True(t, rule.Matches(tc.text))
			req, err := rule.Extract(tc.text)
			require.NoError(t, err)
			assert.Equal(t, tc.op, req.Operation)
			if tc.expr != "" {
				assert.Equal(t, tc.expr, req.Expression)
				return
			}
			assert.Equal(t, tc.operands, req.Operands)
		})
	}
}

func TestExtractCalculatorUnbalanced(t *testing.T) {
	_, err := NewCalculator(PriorityCalculator).Extract("what is (2 + 3 * 4")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, CodeParameterExtraction))
	meta, ok := apperrors.MetadataOf(err, "pattern")
	require.True(t, ok)
	assert.Equal(t, "calculator", meta)
}

func TestComponentOverAggregate(t *testing.T) {
	p, name := compile(t, "Add 10 to the average temperature in Paris and London right now.")
	assert.Equal(t, "component_based", name)
	assert.Equal(t, plan.KindMulti, p.Kind())
	require.Equal(t, 4, p.Len())

	steps := p.Steps()
	assert.Equal(t, map[string]string{"city": "paris"}, params(steps[0]))
	assert.Equal(t, map[string]string{"city": "london"}, params(steps[1]))
	assert.Equal(t, "average", steps[2].Operation)
	assert.Equal(t, "[${temp1}, ${temp2}]", params(steps[2])["numbers"])
	assert.Equal(t, "add", steps[3].Operation)
	assert.Equal(t, map[string]string{"first_number": "${base_result}", "second_number": "10.0"}, params(steps[3]))
}

func TestComponentOperandOrder(t *testing.T) {
	cases := []struct {
		text    string
		op      string
		operand string
	}{
		{"Subtract 5 from the average temperature in Paris and London right now.", "subtract", "5.0"},
		{"Multiply 2 with the average temperature in Paris and London right now.", "multiply", "2.0"},
		{"Divide 2 by the average temperature in Paris and London right now.", "divide", "2.0"},
		{"Multiply the temperature in Paris by 3", "multiply", "3.0"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			p, name := compile(t, tc.text)
			assert.Equal(t, "component_based", name)
			last := p.Steps()[p.Len()-1]
			assert.Equal(t, tc.op, last.Operation)
			assert.Equal(t, map[string]string{"first_number": "${base_result}", "second_number": tc.operand}, params(last))
		})
	}
}

func TestConvertAverage(t *testing.T) {
	p, name := compile(t, "Convert the average of 10 and 20 USD into EUR")
	assert.Equal(t, "multi_step", name)
	require.Equal(t, 2, p.Len())
	steps := p.Steps()
	assert.Equal(t, "[10.0, 20.0]", params(steps[0])["numbers"])
	assert.Equal(t, "aggregate", steps[0].Output)
	assert.Equal(t, map[string]string{"amount": "${aggregate}", "from_currency": "USD", "to_currency": "EUR"}, params(steps[1]))
}

func TestConditional(t *testing.T) {
	cases := []struct {
		text      string
		op        plan.Operator
		threshold float64
		calc      string
	}{
		{"If the temperature in Paris is 18 and add 5", plan.OpEqual, 18, "add"},
		{"If the temperature in Paris is above 15°C, then add 5", plan.OpGreater, 15, "add"},
		{"if the weather in london is at least 20 degrees and I subtract 3", plan.OpGreaterEqual, 20, "subtract"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			p, name := compile(t, tc.text)
			assert.Equal(t, "multi_step", name)
			assert.Equal(t, plan.KindConditional, p.Kind())
			cond, ok := p.Condition()
			require.True(t, ok)
			assert.Equal(t, tc.op, cond.Operator)
			assert.Equal(t, tc.threshold, cond.Threshold)
			assert.Equal(t, 1, p.Guard())
			assert.Equal(t, tc.calc, p.Steps()[1].Operation)
		})
	}
}

func TestMultiCityShapes(t *testing.T) {
	p, _ := compile(t, "Sum the temperatures in Paris, London and Berlin")
	require.Equal(t, 4, p.Len())
	assert.Equal(t, "sum", p.Steps()[3].Operation)
	assert.Equal(t, "[${temp1}, ${temp2}, ${temp3}]", params(p.Steps()[3])["numbers"])

	p, _ = compile(t, "Compare the temperatures between Paris and London")
	require.Equal(t, 3, p.Len())
	assert.Equal(t, map[string]string{"first_number": "${temp1}", "second_number": "${temp2}"}, params(p.Steps()[2]))

	p, _ = compile(t, "How much colder is London than Dubai?")
	require.Equal(t, 3, p.Len())
	assert.Equal(t, "dubai", params(p.Steps()[0])["city"])
	assert.Equal(t, "london", params(p.Steps()[1])["city"])

	p, _ = compile(t, "What is the highest temperature among Paris, Tokyo and New York?")
	require.Equal(t, 4, p.Len())
	assert.Equal(t, "max", p.Steps()[3].Operation)
	assert.Equal(t, "new york", params(p.Steps()[2])["city"])

	p, _ = compile(t, "Average the weather in Paris and London right now")
	assert.Equal(t, "average", p.Steps()[2].Operation)
}

func TestSummarize(t *testing.T) {
	p, name := compile(t, "Summarize today's weather in Paris in 3 words.")
	assert.Equal(t, "multi_step", name)
	require.Equal(t, 2, p.Len())
	steps := p.Steps()
	assert.Equal(t, "weather_data", steps[0].Output)
	assert.Equal(t, "llm", steps[1].Tool)
	assert.Equal(t, "Summarize the weather temperature ${weather_data} in Paris in exactly 3 words", params(steps[1])["prompt"])
	assert.Equal(t, "3.0", params(steps[1])["max_words"])
}

func TestUnknownCityInMultiCityRequest(t *testing.T) {
	_, pat, err := defaultRegistry(t).Compile("Average the temperature in Paris and Atlantis")
	require.Error(t, err)
	require.NotNil(t, pat)
	assert.Equal(t, "multi_step", pat.Name())
	assert.True(t, apperrors.HasCode(err, CodeParameterExtraction))
	assert.Contains(t, err.Error(), "atlantis")
}

func TestSingleToolRules(t *testing.T) {
	p, name := compile(t, "Convert 100 USD to EUR")
	assert.Equal(t, "currency", name)
	assert.Equal(t, map[string]string{"amount": "100.0", "from_currency": "USD", "to_currency": "EUR"}, params(p.Steps()[0]))

	p, name = compile(t, "How much is 50 euros in dollars?")
	assert.Equal(t, "currency", name)
	assert.Equal(t, map[string]string{"amount": "50.0", "from_currency": "EUR", "to_currency": "USD"}, params(p.Steps()[0]))

	p, name = compile(t, "What is the weather in Paris?")
	assert.Equal(t, "weather", name)
	assert.Equal(t, "paris", params(p.Steps()[0])["city"])

	p, name = compile(t, "What is the temperature in New York right now?")
	assert.Equal(t, "weather", name)
	assert.Equal(t, "new york", params(p.Steps()[0])["city"])

	// single-city lookups leave the existence check to the weather tool
	p, _ = compile(t, "What is the weather in XyzInvalidCity123?")
	assert.Equal(t, "xyzinvalidcity", params(p.Steps()[0])["city"])

	p, name = compile(t, "Who is Ada Lovelace?")
	assert.Equal(t, "knowledge_base", name)
	assert.Equal(t, "ada lovelace", params(p.Steps()[0])["query"])

	p, name = compile(t, "What is 15 + 25?")
	assert.Equal(t, "calculator", name)
	assert.Equal(t, plan.KindSingle, p.Kind())
}

func TestWeatherCityStopsAtConnectors(t *testing.T) {
	p, name := compile(t, "What is the temperature in Paris and London?")
	assert.Equal(t, "weather", name)
	assert.Equal(t, "paris", params(p.Steps()[0])["city"])

	p, name = compile(t, "What is the weather in Łódź?")
	assert.Equal(t, "weather", name)
	assert.Equal(t, "łódź", params(p.Steps()[0])["city"])
	assert.Equal(t, "Get temperature in Łódź", p.Steps()[0].Description)
}

func TestComponentInfixOperand(t *testing.T) {
	p, name := compile(t, "Temperature in Paris today plus 3")
	assert.Equal(t, "component_based", name)
	require.Equal(t, 2, p.Len())
	steps := p.Steps()
	assert.Equal(t, "paris", params(steps[0])["city"])
	assert.Equal(t, "add", steps[1].Operation)
	assert.Equal(t, "3.0", params(steps[1])["second_number"])

	// a bare number on the left stays with the calculator
	_, name = compile(t, "What is 15 plus 25?")
	assert.Equal(t, "calculator", name)
}

func TestCurrencyAmountMustBeNumeric(t *testing.T) {
	_, pat, err := defaultRegistry(t).Compile("Convert abc USD to EUR")
	require.Error(t, err)
	assert.Equal(t, "currency", pat.Name())
	assert.True(t, apperrors.HasCode(err, CodeParameterExtraction))
}

func TestNoMatch(t *testing.T) {
	for _, text := range []string{"", "   ", "Blahblahblah random words xyz 123"} {
		_, pat, err := defaultRegistry(t).Compile(text)
		assert.Nil(t, pat)
		assert.ErrorIs(t, err, ErrNoPatternMatched)
		assert.Equal(t, apperrors.SeverityInfo, apperrors.SeverityOf(err))
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "paris", CleanCity(" the Paris right now. "))
	assert.Equal(t, []string{"paris", "london", "new york"}, SplitCities("Paris, London and New York today"))
	assert.Equal(t, "New York", TitleCase("new york"))
	assert.Equal(t, "Łódź", TitleCase("łódź"))
	assert.Equal(t, "Ürümqi Río", TitleCase("ürümqi río"))
	assert.Equal(t, "paris", CityHead("paris today plus "))
	assert.Equal(t, "paris", CityHead("paris and london"))
	assert.Equal(t, "san andreas", CityHead("san andreas, please"))

	code, ok := CurrencyCode("euros")
	assert.True(t, ok)
	assert.Equal(t, "EUR", code)
	_, ok = CurrencyCode("us1")
	assert.False(t, ok)

	op, ok := Comparison("greater  than")
	assert.True(t, ok)
	assert.Equal(t, plan.OpGreater, op)

	_, err := WordLimit("0")
	assert.Error(t, err)
	assert.Equal(t, "what's up", Prepare("  What’s   UP "))
}
