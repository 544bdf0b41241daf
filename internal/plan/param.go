package plan

import (
	"regexp"
	"strings"

	"QueryChain/internal/value"
)

// ParamKind identifies the form of a step parameter.
type ParamKind int

const (
	ParamLiteral ParamKind = iota
	ParamRef
	ParamList
	ParamTemplate
)

var placeholderRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// Param is a step parameter: a literal value, a reference to an earlier
// step's output, a list of params, or a text template with ${name}
// placeholders.
type Param struct {
	kind     ParamKind
	literal  value.Value
	ref      string
	items    []Param
	template string
}

// Literal wraps a constant value.
func Literal(v value.Value) Param { return Param{kind: ParamLiteral, literal: v} }

// Number is Literal(value.Number(n)).
func Number(n float64) Param { return Literal(value.Number(n)) }

// Text is Literal(value.Text(s)).
func Text(s string) Param { return Literal(value.Text(s)) }

// Ref refers to the value bound under name by an earlier step.
func Ref(name string) Param { return Param{kind: ParamRef, ref: name} }

// List groups params into one list argument.
func List(items ...Param) Param {
	cloned := make([]Param, len(items))
	copy(cloned, items)
	return Param{kind: ParamList, items: cloned}
}

// Template interpolates the display form of referenced values into text.
func Template(text string) Param { return Param{kind: ParamTemplate, template: text} }

// Kind reports the param form.
func (p Param) Kind() ParamKind { return p.kind }

// Value returns the literal value.
func (p Param) Value() value.Value { return p.literal }

// Name returns the referenced name of a Ref.
func (p Param) Name() string { return p.ref }

// Items returns the members of a List.
func (p Param) Items() []Param {
	out := make([]Param, len(p.items))
	copy(out, p.items)
	return out
}

// TemplateText returns the raw template of a Template.
func (p Param) TemplateText() string { return p.template }

// Refs lists every name the param depends on, in order of appearance.
func (p Param) Refs() []string {
	switch p.kind {
	case ParamRef:
		return []string{p.ref}
	case ParamList:
		var out []string
		for _, item := range p.items {
			out = append(out, item.Refs()...)
		}
		return out
	case ParamTemplate:
		return TemplateRefs(p.template)
	default:
		return nil
	}
}

// String renders the param the way plans are logged: refs as ${name}.
func (p Param) String() string {
	switch p.kind {
	case ParamRef:
		return "${" + p.ref + "}"
	case ParamList:
		parts := make([]string, 0, len(p.items))
		for _, item := range p.items {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ParamTemplate:
		return p.template
	default:
		return p.literal.String()
	}
}

// TemplateRefs extracts the ${name} placeholders of a template.
func TemplateRefs(template string) []string {
	matches := placeholderRE.FindAllStringSubmatch(template, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// ExpandTemplate replaces every ${name} with lookup(name). The first name
// lookup rejects is returned with ok=false.
func ExpandTemplate(template string, lookup func(name string) (string, bool)) (string, string, bool) {
	var missing string
	out := placeholderRE.ReplaceAllStringFunc(template, func(match string) string {
		if missing != "" {
			return match
		}
		name := strings.TrimSpace(match[2 : len(match)-1])
		text, ok := lookup(name)
		if !ok {
			missing = name
			return match
		}
		return text
	})
	if missing != "" {
		return "", missing, false
	}
	return out, "", true
}
