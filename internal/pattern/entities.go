package pattern

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"QueryChain/internal/plan"
)

// Gazetteer knows which city names are valid.
type Gazetteer interface {
	Contains(city string) bool
}

const numberExpr = `\d+(?:\.\d+)?`

var (
	numberRE    = regexp.MustCompile(numberExpr)
	qualifierRE = regexp.MustCompile(`\b(?:right now|at the moment|currently|today|tonight|now)\b`)
	cityStopRE  = regexp.MustCompile(`[,;:?!]|\s(?:and|plus|minus|times|then|or|but|if|with|today|tonight)\b`)
	listSplitRE = regexp.MustCompile(`\s*,\s*(?:and\s+)?|\s+and\s+`)
	edgeTrimSet = " \t.,;:!?'\"-"
)

// currencyExpr captures an ISO code or a common currency name.
const currencyExpr = `([a-z]{3}|dollars?|euros?|pounds?|yen|yuan|francs?)\b`

var currencyNames = map[string]string{
	"dollar": "USD", "dollars": "USD",
	"euro": "EUR", "euros": "EUR",
	"pound": "GBP", "pounds": "GBP",
	"yen": "JPY", "yuan": "CNY",
	"franc": "CHF", "francs": "CHF",
}

// operationVerbs maps request verbs to calculator operations.
var operationVerbs = map[string]string{
	"add":      "add",
	"plus":     "add",
	"subtract": "subtract",
	"minus":    "subtract",
	"multiply": "multiply",
	"times":    "multiply",
	"divide":   "divide",
}

const verbExpr = `(add|plus|subtract|minus|multiply|times|divide)`

// ParseNumber parses a decimal literal.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, failf("%q is not a number", s)
	}
	return n, nil
}

// Numbers extracts every decimal literal in order.
func Numbers(s string) []float64 {
	matches := numberRE.FindAllString(s, -1)
	out := make([]float64, 0, len(matches))
	for _, m := range matches {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Operation maps a verb to its calculator operation.
func Operation(verb string) (string, bool) {
	op, ok := operationVerbs[strings.ToLower(strings.TrimSpace(verb))]
	return op, ok
}

// CurrencyCode maps a token to an upper-case currency code.
func CurrencyCode(token string) (string, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if code, ok := currencyNames[token]; ok {
		return code, true
	}
	if len(token) != 3 {
		return "", false
	}
	for _, r := range token {
		if r < 'a' || r > 'z' {
			return "", false
		}
	}
	return strings.ToUpper(token), true
}

// CleanCity strips time qualifiers, articles and punctuation from a city
// phrase.
func CleanCity(raw string) string {
	city := qualifierRE.ReplaceAllString(strings.ToLower(raw), " ")
	city = strings.Join(strings.Fields(city), " ")
	city = strings.Trim(city, edgeTrimSet)
	city = strings.TrimPrefix(city, "the ")
	return strings.Trim(city, edgeTrimSet)
}

// CityHead keeps the part of a single-city phrase before the first connector
// or punctuation mark: "paris today plus 3" -> "paris".
func CityHead(raw string) string {
	if loc := cityStopRE.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}
	return CleanCity(raw)
}

// SplitCities splits "a, b and c" into cleaned city names.
func SplitCities(list string) []string {
	parts := listSplitRE.Split(CleanCity(list), -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if city := CleanCity(part); city != "" {
			out = append(out, city)
		}
	}
	return out
}

// WordLimit parses a positive word count.
func WordLimit(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, failf("invalid word limit %q", s)
	}
	return n, nil
}

var comparisonWords = map[string]plan.Operator{
	"":             plan.OpEqual,
	"exactly":      plan.OpEqual,
	"equal to":     plan.OpEqual,
	"above":        plan.OpGreater,
	"over":         plan.OpGreater,
	"greater than": plan.OpGreater,
	"higher than":  plan.OpGreater,
	"more than":    plan.OpGreater,
	"warmer than":  plan.OpGreater,
	"below":        plan.OpLess,
	"under":        plan.OpLess,
	"less than":    plan.OpLess,
	"lower than":   plan.OpLess,
	"colder than":  plan.OpLess,
	"at least":     plan.OpGreaterEqual,
	"at most":      plan.OpLessEqual,
}

// Comparison maps a comparison phrase to an operator. The empty phrase
// ("is 18") means equality.
func Comparison(phrase string) (plan.Operator, bool) {
	op, ok := comparisonWords[strings.Join(strings.Fields(phrase), " ")]
	return op, ok
}

// TitleCase upper-cases the first letter of every word.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// knownCities validates every city against gaz. A nil gazetteer accepts all.
func knownCities(gaz Gazetteer, cities []string) error {
	for _, city := range cities {
		if city == "" {
			return failf("empty city name")
		}
		if gaz != nil && !gaz.Contains(city) {
			return failf("unrecognized city %q", city)
		}
	}
	return nil
}

func varName(prefix string, i int) string {
	return prefix + strconv.Itoa(i)
}
