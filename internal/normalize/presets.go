package normalize

import (
	"fmt"

	apperrors "QueryChain/internal/errors"
)

var baseCorrections = map[string]string{
	"wether":          "weather",
	"wheather":        "weather",
	"temprature":      "temperature",
	"tempurature":     "temperature",
	"calcualte":       "calculate",
	"convertion":      "conversion",
	"currancy":        "currency",
	"curreny":         "currency",
	"dollers":         "dollars",
	"whats":           "what is",
	"what's":          "what is",
	"what’s":          "what is",
	"wat is":          "what is",
	"wht is":          "what is",
	"ada lovelace":    "Ada Lovelace",
	"marie curie":     "Marie Curie",
	"albert einstein": "Albert Einstein",
}

var enhancedCorrections = map[string]string{
	"averge":     "average",
	"avrage":     "average",
	"avarage":    "average",
	"convrt":     "convert",
	"tempreture": "temperature",
	"temperture": "temperature",
	"weathr":     "weather",
	"substract":  "subtract",
	"mulitply":   "multiply",
	"multipy":    "multiply",
	"devide":     "divide",
	"percnt":     "percent",
	"londn":      "London",
	"pari":       "Paris",
}

var baseAbbreviations = map[string]string{
	"avg":  "average",
	"temp": "temperature",
	"calc": "calculate",
	"curr": "currency",
	"conv": "convert",
}

var enhancedAbbreviations = map[string]string{
	"pls":   "please",
	"plz":   "please",
	"deg":   "degrees",
	"temps": "temperatures",
	"nyc":   "New York",
	"sf":    "San Francisco",
}

func presetSettings(preset Preset) (*settings, error) {
	s := &settings{
		enabled:       map[Stage]bool{},
		corrections:   map[string]string{},
		abbreviations: map[string]string{},
	}
	switch preset {
	case PresetDefault, "":
		enableAll(s)
		merge(s.corrections, baseCorrections)
		merge(s.abbreviations, baseAbbreviations)
	case PresetMinimal:
		s.enabled[StageMath] = true
		s.enabled[StageCapitalize] = true
	case PresetEnhanced:
		enableAll(s)
		merge(s.corrections, baseCorrections)
		merge(s.corrections, enhancedCorrections)
		merge(s.abbreviations, baseAbbreviations)
		merge(s.abbreviations, enhancedAbbreviations)
	default:
		return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown normalizer preset %q", preset))
	}
	return s, nil
}

func enableAll(s *settings) {
	for _, stage := range stageOrder {
		s.enabled[stage] = true
	}
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		dst[k] = v
	}
}
