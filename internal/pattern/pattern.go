// Package pattern recognises the shape of a request and compiles it into an
// execution plan.
//
// A Pattern pairs a match predicate with a compiler. Built-in rules are Rule
// values: a pure extractor turns text into a typed entity record and a
// builder turns the record into a plan, so each half can be tested against
// literal strings. The Registry selects the single highest-priority match,
// breaking ties by registration order.
package pattern

import (
	"fmt"
	"strings"

	apperrors "QueryChain/internal/errors"
	"QueryChain/internal/plan"
)

const (
	// CodeNoPatternMatched is the outcome when no rule recognises a request.
	CodeNoPatternMatched apperrors.Code = "NO_PATTERN_MATCHED"
	// CodeParameterExtraction marks a matched rule whose entities could not
	// be extracted.
	CodeParameterExtraction apperrors.Code = "PARAMETER_EXTRACTION_FAILED"
)

func init() {
	apperrors.Register(CodeNoPatternMatched, apperrors.Attributes{Message: "no pattern matched", Severity: apperrors.SeverityInfo})
	apperrors.Register(CodeParameterExtraction, apperrors.Attributes{Message: "parameter extraction failed", Severity: apperrors.SeverityInfo})
}

// ErrNoPatternMatched is returned by Registry.Compile when nothing matches.
var ErrNoPatternMatched = apperrors.New(CodeNoPatternMatched, "")

// Pattern recognises and compiles one family of requests. Implementations
// must be stateless.
type Pattern interface {
	Name() string
	Priority() int
	Matches(text string) bool
	Compile(text string) (*plan.Plan, error)
}

// Rule is a Pattern built from a match predicate, an entity extractor and a
// plan builder.
type Rule[E any] struct {
	name     string
	priority int
	match    func(text string) bool
	extract  func(text string) (E, error)
	build    func(E) (*plan.Plan, error)
}

// NewRule assembles a rule. Every function receives prepared (lower-case,
// whitespace-collapsed) text.
func NewRule[E any](name string, priority int, match func(string) bool, extract func(string) (E, error), build func(E) (*plan.Plan, error)) *Rule[E] {
	return &Rule[E]{name: name, priority: priority, match: match, extract: extract, build: build}
}

// Name returns the rule name.
func (r *Rule[E]) Name() string { return r.name }

// Priority returns the rule priority.
func (r *Rule[E]) Priority() int { return r.priority }

// Matches reports whether the rule recognises text.
func (r *Rule[E]) Matches(text string) bool { return r.match(Prepare(text)) }

// Extract returns the entity record for text.
func (r *Rule[E]) Extract(text string) (E, error) {
	entities, err := r.extract(Prepare(text))
	if err != nil {
		var zero E
		if _, ok := apperrors.From(err); ok {
			return zero, err
		}
		return zero, extractionFailed(r.name, err.Error())
	}
	return entities, nil
}

// Compile extracts entities and builds the plan.
func (r *Rule[E]) Compile(text string) (*plan.Plan, error) {
	entities, err := r.Extract(text)
	if err != nil {
		return nil, err
	}
	return r.build(entities)
}

func extractionFailed(pattern, message string) error {
	return apperrors.New(CodeParameterExtraction, message, apperrors.WithMetadata("pattern", pattern))
}

// extractErr is a plain extractor failure; Rule.Extract attaches the code.
type extractErr string

func (e extractErr) Error() string { return string(e) }

func failf(format string, args ...any) error {
	return extractErr(fmt.Sprintf(format, args...))
}

// Prepare lower-cases text and collapses whitespace. Rules match against
// prepared text only.
func Prepare(text string) string {
	text = strings.ReplaceAll(text, "’", "'")
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
