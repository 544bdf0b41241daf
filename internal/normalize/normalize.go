// Package normalize cleans raw requests before pattern matching: spelling
// corrections, abbreviation expansion, math symbol normalisation and
// sentence capitalisation.
package normalize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "QueryChain/internal/errors"
)

// Preset selects a built-in rule set.
type Preset string

const (
	PresetDefault  Preset = "default"
	PresetMinimal  Preset = "minimal"
	PresetEnhanced Preset = "enhanced"
)

// Stage names one normalisation pass.
type Stage string

const (
	StageSpelling      Stage = "spelling"
	StageAbbreviations Stage = "abbreviations"
	StageMath          Stage = "math"
	StageCapitalize    Stage = "capitalize"
)

var stageOrder = []Stage{StageSpelling, StageAbbreviations, StageMath, StageCapitalize}

// ParsePreset maps a config value to a preset. Empty means default.
func ParsePreset(name string) (Preset, error) {
	switch p := Preset(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PresetDefault, nil
	case PresetDefault, PresetMinimal, PresetEnhanced:
		return p, nil
	default:
		return "", apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown normalizer preset %q", name))
	}
}

// Change records one rewrite applied during normalisation.
type Change struct {
	Stage Stage  `json:"stage"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Result is the outcome of Apply.
type Result struct {
	Original string
	Text     string
	Changes  []Change
}

type replacement struct {
	from string
	to   string
	re   *regexp.Regexp
}

// Normalizer is immutable once built and safe for concurrent use.
type Normalizer struct {
	enabled       map[Stage]bool
	corrections   []replacement
	abbreviations []replacement
	math          []replacement
}

// Option customises a normalizer on top of its preset.
type Option func(*settings)

type settings struct {
	enabled       map[Stage]bool
	corrections   map[string]string
	abbreviations map[string]string
}

// WithCorrections adds or overrides spelling corrections.
func WithCorrections(extra map[string]string) Option {
	return func(s *settings) {
		for k, v := range extra {
			s.corrections[strings.ToLower(k)] = v
		}
	}
}

// WithAbbreviations adds or overrides abbreviation expansions.
func WithAbbreviations(extra map[string]string) Option {
	return func(s *settings) {
		for k, v := range extra {
			s.abbreviations[strings.ToLower(k)] = v
		}
	}
}

// WithStage switches a stage on or off.
func WithStage(stage Stage, on bool) Option {
	return func(s *settings) { s.enabled[stage] = on }
}

// New builds a normalizer from a preset and overrides.
func New(preset Preset, opts ...Option) (*Normalizer, error) {
	s, err := presetSettings(preset)
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for stage := range s.enabled {
		if !knownStage(stage) {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown normalizer stage %q", stage))
		}
	}
	n := &Normalizer{
		enabled:       s.enabled,
		corrections:   wordRules(s.corrections),
		abbreviations: wordRules(s.abbreviations),
		math:          mathRules(),
	}
	return n, nil
}

// Default returns the default preset without overrides.
func Default() *Normalizer {
	n, _ := New(PresetDefault)
	return n
}

func knownStage(stage Stage) bool {
	for _, s := range stageOrder {
		if s == stage {
			return true
		}
	}
	return false
}

// Normalize returns the cleaned text.
func (n *Normalizer) Normalize(text string) string {
	return n.Apply(text).Text
}

// Apply cleans text and reports every rewrite. Blank input yields an empty
// result.
func (n *Normalizer) Apply(text string) Result {
	res := Result{Original: text}
	cleaned := strings.Join(strings.Fields(text), " ")
	if cleaned == "" {
		return res
	}
	for _, stage := range stageOrder {
		if !n.enabled[stage] {
			continue
		}
		switch stage {
		case StageSpelling:
			cleaned = applyRules(stage, n.corrections, cleaned, &res.Changes)
		case StageAbbreviations:
			cleaned = applyRules(stage, n.abbreviations, cleaned, &res.Changes)
		case StageMath:
			cleaned = applyRules(stage, n.math, cleaned, &res.Changes)
		case StageCapitalize:
			cleaned = capitalize(cleaned)
		}
	}
	res.Text = cleaned
	return res
}

func applyRules(stage Stage, rules []replacement, text string, changes *[]Change) string {
	for _, r := range rules {
		next := r.re.ReplaceAllString(text, r.to)
		if next != text {
			*changes = append(*changes, Change{Stage: stage, From: r.from, To: r.to})
			text = next
		}
	}
	return text
}

// wordRules compiles case-insensitive whole-word replacements, longest
// phrase first so "wat is" wins over any shorter overlapping key.
func wordRules(table map[string]string) []replacement {
	keys := make([]string, 0, len(table))
	for k := range table {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	out := make([]replacement, 0, len(keys))
	for _, k := range keys {
		out = append(out, replacement{
			from: k,
			to:   strings.ReplaceAll(table[k], "$", "$$"),
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
		})
	}
	return out
}

func mathRules() []replacement {
	return []replacement{
		{from: "x", to: "${1} * ${2}", re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[x×]\s*(\d+(?:\.\d+)?)`)},
		{from: "÷", to: "${1} / ${2}", re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*÷\s*(\d+(?:\.\d+)?)`)},
		{from: "−", to: "${1} - ${2}", re: regexp.MustCompile(`(\d+(?:\.\d+)?)\s*[−–]\s*(\d+(?:\.\d+)?)`)},
	}
}

// capitalize upper-cases the first letter of every ". "-separated sentence.
func capitalize(text string) string {
	sentences := strings.Split(text, ". ")
	for i, s := range sentences {
		r, size := utf8.DecodeRuneInString(s)
		if size > 0 {
			sentences[i] = string(unicode.ToUpper(r)) + s[size:]
		}
	}
	return strings.Join(sentences, ". ")
}
