package pattern

import (
	"regexp"

	"QueryChain/internal/plan"
)

// WeatherRequest names the city of a single lookup.
type WeatherRequest struct {
	City string
}

const cityExpr = `(\p{Ll}[\p{Ll}\s'-]*)`

var weatherShapes = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:get|show|check|tell\s+me)\s+(?:the\s+)?(?:weather|temperature)\s+(?:in|for|at)\s+` + cityExpr),
	regexp.MustCompile(`\b(?:weather|temperature|temp)\s+(?:like\s+)?(?:in|for|at|of)\s+` + cityExpr),
	regexp.MustCompile(`\bhow\s+(?:hot|warm|cold|cool)\s+is\s+it\s+in\s+` + cityExpr),
}

// NewWeather recognises single-city weather lookups. The city is passed
// through as written so the weather tool decides whether it exists.
func NewWeather(priority int) *Rule[WeatherRequest] {
	return NewRule("weather", priority, matchAny(weatherShapes), ExtractWeather, BuildWeather)
}

// ExtractWeather returns the city of a weather request.
func ExtractWeather(text string) (WeatherRequest, error) {
	for _, re := range weatherShapes {
		if m := re.FindStringSubmatch(text); m != nil {
			if city := CityHead(m[1]); city != "" {
				return WeatherRequest{City: city}, nil
			}
		}
	}
	return WeatherRequest{}, failf("no city found in %q", text)
}

// BuildWeather turns a request into one get_weather step.
func BuildWeather(req WeatherRequest) (*plan.Plan, error) {
	step := weatherStep(req.City, "")
	return plan.New(plan.KindSingle, step.Description, []plan.Step{step})
}

func weatherStep(city, output string) plan.Step {
	return plan.Step{
		Tool:        "weather",
		Operation:   "get_weather",
		Params:      map[string]plan.Param{"city": plan.Text(city)},
		Output:      output,
		Description: "Get temperature in " + TitleCase(city),
	}
}

func matchAny(res []*regexp.Regexp) func(string) bool {
	return func(text string) bool {
		for _, re := range res {
			if re.MatchString(text) {
				return true
			}
		}
		return false
	}
}
