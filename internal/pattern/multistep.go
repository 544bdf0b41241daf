package pattern

import (
	"fmt"
	"regexp"
	"strings"

	"QueryChain/internal/plan"
)

// Shape names one multi-step request family.
type Shape string

const (
	ShapeConditional Shape = "conditional"
	ShapeSummarize   Shape = "summarize"
	ShapeConvertAvg  Shape = "convert_aggregate"
	ShapeDifference  Shape = "difference"
	ShapeRange       Shape = "range"
	ShapeAggregate   Shape = "aggregate"
)

// MultiRequest is the entity record of a multi-step request. Which fields are
// set depends on Shape.
type MultiRequest struct {
	Shape     Shape
	Cities    []string
	Operation string
	Numbers   []float64
	Operand   float64
	From, To  string
	Words     int
	Operator  plan.Operator
	Threshold float64
}

const (
	numListExpr    = numberExpr + `(?:(?:\s*,\s*(?:and\s+)?|\s+and\s+)` + numberExpr + `)+`
	comparisonExpr = `exactly|equal\s+to|above|over|greater\s+than|higher\s+than|more\s+than|warmer\s+than|below|under|less\s+than|lower\s+than|colder\s+than|at\s+least|at\s+most`
	tempNounExpr   = `(?:temperatures?|weather|temp)`
)

var (
	conditionalRE = regexp.MustCompile(`\bif\s+(?:the\s+)?` + tempNounExpr + `\s+(?:in|of|for)\s+(.+?)\s+is\s+(?:(` + comparisonExpr + `)\s+)?` +
		numCapture + `\s*(?:°\s*c|degrees?(?:\s+c(?:elsius)?)?|celsius|c)?\s*,?\s*(?:then\s+|and\s+)?(?:i\s+)?` + verbExpr + `\s+` + numCapture)
	summarizeRE  = regexp.MustCompile(`\bsummari[sz]e\s+(?:today's\s+|the\s+)?(?:weather|temperature)\s+(?:of|in|for)\s+(.+?)\s+(?:in|using|with)\s+(\d+)\s+words?`)
	convertAvgRE = regexp.MustCompile(`\bconvert\s+(?:the\s+)?(average|sum|total)\s+of\s+(` + numListExpr + `)\s*` + currencyExpr + `\s+(?:to|into|in)\s+` + currencyExpr)
	differenceRE = regexp.MustCompile(`\b(?:compare|difference|diff)\s+(?:(?:in|of)\s+)?(?:the\s+)?` + tempNounExpr + `\s+(?:between|of|in)\s+(.+?)\s+and\s+(.+)`)
	tempDiffRE   = regexp.MustCompile(`\btemperature\s+difference\s+between\s+(.+?)\s+and\s+(.+)`)
	relativeRE   = regexp.MustCompile(`\bhow\s+much\s+(warmer|hotter|colder|cooler)\s+is\s+(?:it\s+in\s+)?(.+?)\s+than\s+(?:in\s+)?(.+)`)
	rangeRE      = regexp.MustCompile(`\b(highest|lowest|maximum|minimum|max|min|warmest|hottest|coldest)\s+` + tempNounExpr + `\s+(?:between|among|of|in|across)\s+(.+)`)
	aggregateRE  = regexp.MustCompile(`\b(average|sum|total|combined?)\s+(?:of\s+)?(?:the\s+)?` + tempNounExpr + `\s+(?:of|in|for|across)\s+(.+)`)
)

var multiShapes = []*regexp.Regexp{conditionalRE, summarizeRE, convertAvgRE, differenceRE, tempDiffRE, relativeRE, rangeRE, aggregateRE}

var rangeOps = map[string]string{
	"highest": "max", "maximum": "max", "max": "max", "warmest": "max", "hottest": "max",
	"lowest": "min", "minimum": "min", "min": "min", "coldest": "min",
}

// NewMultiStep recognises requests that need more than one tool call:
// multi-city aggregates, differences and ranges, conditional arithmetic,
// averaged currency conversion and weather summaries. Every city of a
// multi-city request must be known to gaz.
func NewMultiStep(priority int, gaz Gazetteer) *Rule[MultiRequest] {
	return NewRule("multi_step", priority, matchAny(multiShapes),
		func(text string) (MultiRequest, error) { return ExtractMultiStep(text, gaz) },
		BuildMultiStep)
}

// ExtractMultiStep parses a multi-step request.
func ExtractMultiStep(text string, gaz Gazetteer) (MultiRequest, error) {
	if m := conditionalRE.FindStringSubmatch(text); m != nil {
		return extractConditional(m)
	}
	if m := summarizeRE.FindStringSubmatch(text); m != nil {
		city := CleanCity(m[1])
		if city == "" {
			return MultiRequest{}, failf("no city found in %q", text)
		}
		words, err := WordLimit(m[2])
		if err != nil {
			return MultiRequest{}, err
		}
		return MultiRequest{Shape: ShapeSummarize, Cities: []string{city}, Words: words}, nil
	}
	if m := convertAvgRE.FindStringSubmatch(text); m != nil {
		from, okFrom := CurrencyCode(m[3])
		to, okTo := CurrencyCode(m[4])
		if !okFrom || !okTo {
			return MultiRequest{}, failf("invalid currency pair %q/%q", m[3], m[4])
		}
		op := "average"
		if m[1] != "average" {
			op = "sum"
		}
		return MultiRequest{Shape: ShapeConvertAvg, Operation: op, Numbers: Numbers(m[2]), From: from, To: to}, nil
	}
	if m := differenceRE.FindStringSubmatch(text); m != nil {
		return cityPair(gaz, m[1], m[2], false)
	}
	if m := tempDiffRE.FindStringSubmatch(text); m != nil {
		return cityPair(gaz, m[1], m[2], false)
	}
	if m := relativeRE.FindStringSubmatch(text); m != nil {
		colder := m[1] == "colder" || m[1] == "cooler"
		return cityPair(gaz, m[2], m[3], colder)
	}
	if m := rangeRE.FindStringSubmatch(text); m != nil {
		cities, err := cityList(gaz, m[2])
		if err != nil {
			return MultiRequest{}, err
		}
		return MultiRequest{Shape: ShapeRange, Operation: rangeOps[m[1]], Cities: cities}, nil
	}
	if m := aggregateRE.FindStringSubmatch(text); m != nil {
		cities, err := cityList(gaz, m[2])
		if err != nil {
			return MultiRequest{}, err
		}
		op := "sum"
		if m[1] == "average" {
			op = "average"
		}
		return MultiRequest{Shape: ShapeAggregate, Operation: op, Cities: cities}, nil
	}
	return MultiRequest{}, failf("no multi-step request found in %q", text)
}

func extractConditional(m []string) (MultiRequest, error) {
	city := CleanCity(m[1])
	if city == "" {
		return MultiRequest{}, failf("no city in condition")
	}
	op, ok := Comparison(m[2])
	if !ok {
		return MultiRequest{}, failf("unsupported comparison %q", m[2])
	}
	threshold, err := ParseNumber(m[3])
	if err != nil {
		return MultiRequest{}, err
	}
	calc, ok := Operation(m[4])
	if !ok {
		return MultiRequest{}, failf("unsupported operation %q", m[4])
	}
	operand, err := ParseNumber(m[5])
	if err != nil {
		return MultiRequest{}, err
	}
	return MultiRequest{
		Shape:     ShapeConditional,
		Cities:    []string{city},
		Operation: calc,
		Operand:   operand,
		Operator:  op,
		Threshold: threshold,
	}, nil
}

// cityPair builds a difference request; reversed computes second minus first.
func cityPair(gaz Gazetteer, first, second string, reversed bool) (MultiRequest, error) {
	cities := []string{CleanCity(first), CleanCity(second)}
	if reversed {
		cities[0], cities[1] = cities[1], cities[0]
	}
	if err := knownCities(gaz, cities); err != nil {
		return MultiRequest{}, err
	}
	return MultiRequest{Shape: ShapeDifference, Operation: "subtract", Cities: cities}, nil
}

func cityList(gaz Gazetteer, list string) ([]string, error) {
	cities := SplitCities(list)
	if len(cities) < 2 {
		return nil, failf("need at least two cities, got %d", len(cities))
	}
	if err := knownCities(gaz, cities); err != nil {
		return nil, err
	}
	return cities, nil
}

// BuildMultiStep turns a request into its plan.
func BuildMultiStep(req MultiRequest) (*plan.Plan, error) {
	switch req.Shape {
	case ShapeConditional:
		return buildConditional(req)
	case ShapeSummarize:
		city := TitleCase(req.Cities[0])
		steps := []plan.Step{
			weatherStep(req.Cities[0], "weather_data"),
			{
				Tool:      "llm",
				Operation: "generate",
				Params: map[string]plan.Param{
					"prompt":    plan.Template(fmt.Sprintf("Summarize the weather temperature ${weather_data} in %s in exactly %d words", city, req.Words)),
					"max_words": plan.Number(float64(req.Words)),
				},
				Description: fmt.Sprintf("Summarize weather in %d words", req.Words),
			},
		}
		return plan.New(plan.KindMulti, fmt.Sprintf("Summarize weather in %s in %d words", city, req.Words), steps)
	case ShapeConvertAvg:
		items := make([]plan.Param, 0, len(req.Numbers))
		for _, x := range req.Numbers {
			items = append(items, plan.Number(x))
		}
		steps := []plan.Step{
			{
				Tool:        "calculator",
				Operation:   req.Operation,
				Params:      map[string]plan.Param{"numbers": plan.List(items...)},
				Output:      "aggregate",
				Description: fmt.Sprintf("Calculate %s of %d numbers", req.Operation, len(req.Numbers)),
			},
			convertStep(plan.Ref("aggregate"), req.From, req.To, ""),
		}
		return plan.New(plan.KindMulti, fmt.Sprintf("Convert %s of %d amounts from %s to %s", req.Operation, len(req.Numbers), req.From, req.To), steps)
	case ShapeDifference:
		steps := append(cityTemps(req.Cities), plan.Step{
			Tool:      "calculator",
			Operation: "subtract",
			Params: map[string]plan.Param{
				"first_number":  plan.Ref(varName("temp", 1)),
				"second_number": plan.Ref(varName("temp", 2)),
			},
			Description: "Calculate temperature difference",
		})
		return plan.New(plan.KindMulti, "Temperature difference between "+joinCities(req.Cities), steps)
	case ShapeRange, ShapeAggregate:
		refs := make([]plan.Param, len(req.Cities))
		for i := range req.Cities {
			refs[i] = plan.Ref(varName("temp", i+1))
		}
		steps := append(cityTemps(req.Cities), plan.Step{
			Tool:        "calculator",
			Operation:   req.Operation,
			Params:      map[string]plan.Param{"numbers": plan.List(refs...)},
			Description: fmt.Sprintf("Calculate %s of temperatures", req.Operation),
		})
		return plan.New(plan.KindMulti, fmt.Sprintf("%s temperature in %s", strings.ToUpper(req.Operation[:1])+req.Operation[1:], joinCities(req.Cities)), steps)
	}
	return nil, extractionFailed("multi_step", fmt.Sprintf("unknown request shape %q", req.Shape))
}

func buildConditional(req MultiRequest) (*plan.Plan, error) {
	cond := plan.Condition{Subject: "temperature", Operator: req.Operator, Threshold: req.Threshold}
	steps := []plan.Step{
		weatherStep(req.Cities[0], cond.Subject),
		{
			Tool:      "calculator",
			Operation: req.Operation,
			Params: map[string]plan.Param{
				"first_number":  plan.Ref(cond.Subject),
				"second_number": plan.Number(req.Operand),
			},
			Description: "Apply " + req.Operation + " when " + cond.Expression(),
		},
	}
	return plan.New(plan.KindConditional, "Conditional arithmetic on temperature in "+TitleCase(req.Cities[0]), steps, plan.WithCondition(cond, 1))
}

func cityTemps(cities []string) []plan.Step {
	steps := make([]plan.Step, 0, len(cities)+1)
	for i, city := range cities {
		steps = append(steps, weatherStep(city, varName("temp", i+1)))
	}
	return steps
}

func joinCities(cities []string) string {
	titled := make([]string, len(cities))
	for i, c := range cities {
		titled[i] = TitleCase(c)
	}
	if len(titled) < 2 {
		return strings.Join(titled, "")
	}
	return strings.Join(titled[:len(titled)-1], ", ") + " and " + titled[len(titled)-1]
}
