package pattern

import (
	"regexp"

	"QueryChain/internal/plan"
	"QueryChain/internal/value"
)

// CurrencyRequest is the entity record of a conversion.
type CurrencyRequest struct {
	Amount float64
	From   string
	To     string
}

var (
	convertRE = regexp.MustCompile(`\b(?:convert|change|exchange)\s+(.+?)\s*` + currencyExpr + `\s+(?:to|into|in)\s+` + currencyExpr)
	howMuchRE = regexp.MustCompile(`\bhow\s+much\s+is\s+(.+?)\s*` + currencyExpr + `\s+in\s+` + currencyExpr)
)

// NewCurrency recognises "convert N XXX to YYY".
func NewCurrency(priority int) *Rule[CurrencyRequest] {
	return NewRule("currency", priority, matchAny([]*regexp.Regexp{convertRE, howMuchRE}), ExtractCurrency, BuildCurrency)
}

// ExtractCurrency parses a conversion. The amount must be a literal number.
func ExtractCurrency(text string) (CurrencyRequest, error) {
	m := convertRE.FindStringSubmatch(text)
	if m == nil {
		m = howMuchRE.FindStringSubmatch(text)
	}
	if m == nil {
		return CurrencyRequest{}, failf("no conversion found in %q", text)
	}
	amount, err := ParseNumber(m[1])
	if err != nil {
		return CurrencyRequest{}, err
	}
	from, ok := CurrencyCode(m[2])
	if !ok {
		return CurrencyRequest{}, failf("invalid currency %q", m[2])
	}
	to, ok := CurrencyCode(m[3])
	if !ok {
		return CurrencyRequest{}, failf("invalid currency %q", m[3])
	}
	return CurrencyRequest{Amount: amount, From: from, To: to}, nil
}

// BuildCurrency turns a request into one currency_convert step.
func BuildCurrency(req CurrencyRequest) (*plan.Plan, error) {
	step := convertStep(plan.Number(req.Amount), req.From, req.To, "")
	step.Description = "Convert " + value.FormatNumber(req.Amount) + " " + req.From + " to " + req.To
	return plan.New(plan.KindSingle, step.Description, []plan.Step{step})
}

func convertStep(amount plan.Param, from, to, output string) plan.Step {
	return plan.Step{
		Tool:      "currency",
		Operation: "currency_convert",
		Params: map[string]plan.Param{
			"amount":        amount,
			"from_currency": plan.Text(from),
			"to_currency":   plan.Text(to),
		},
		Output:      output,
		Description: "Convert to " + to,
	}
}
