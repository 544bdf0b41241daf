// Package value defines the tagged union every tool result and step parameter
// is expressed in.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind string

const (
	KindNumber   Kind = "number"
	KindText     Kind = "text"
	KindQuantity Kind = "quantity"
	KindMoney    Kind = "money"
)

// Value is one of Number, Text, Quantity or Money. The zero Value holds no
// variant and reports IsZero.
type Value struct {
	kind    Kind
	number  float64
	text    string
	unit    string
	display string
}

// Number wraps a bare number.
func Number(n float64) Value {
	return Value{kind: KindNumber, number: n}
}

// Text wraps a string.
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Quantity wraps a magnitude tagged with a unit symbol such as "°C".
func Quantity(n float64, unit string) Value {
	return Value{kind: KindQuantity, number: n, unit: unit}
}

// QuantityWithDisplay is Quantity plus the display form produced by the tool
// that measured it, e.g. "18°C".
func QuantityWithDisplay(n float64, unit, display string) Value {
	return Value{kind: KindQuantity, number: n, unit: unit, display: display}
}

// Money wraps an amount in a currency identified by its ISO code.
func Money(amount float64, currency string) Value {
	return Value{kind: KindMoney, number: amount, unit: strings.ToUpper(currency)}
}

// Kind reports the held variant.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether v holds no variant.
func (v Value) IsZero() bool { return v.kind == "" }

// Number returns the numeric component of Number, Quantity and Money values.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber, KindQuantity, KindMoney:
		return v.number, true
	default:
		return 0, false
	}
}

// Unit returns the unit of a Quantity or the currency of a Money value.
func (v Value) Unit() string {
	switch v.kind {
	case KindQuantity, KindMoney:
		return v.unit
	default:
		return ""
	}
}

// Tagged reports whether v carries a unit or currency.
func (v Value) Tagged() bool {
	return v.kind == KindQuantity || v.kind == KindMoney
}

// Text returns the string held by a Text value, or the display form of any
// other variant.
func (v Value) Text() string {
	if v.kind == KindText {
		return v.text
	}
	return v.String()
}

// String returns the display form.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return FormatNumber(v.number)
	case KindText:
		return v.text
	case KindQuantity:
		if v.display != "" {
			return v.display
		}
		return FormatNumber(v.number) + v.unit
	case KindMoney:
		return FormatNumber(v.number) + " " + v.unit
	default:
		return ""
	}
}

// Equal compares variant, magnitude, text and unit. Display forms are ignored.
func (v Value) Equal(other Value) bool {
	return v.kind == other.kind && v.number == other.number && v.text == other.text && v.unit == other.unit
}

// WithNumber returns a copy of v with a new magnitude. The display form is
// dropped because it no longer describes the value.
func (v Value) WithNumber(n float64) Value {
	switch v.kind {
	case KindQuantity, KindMoney:
		return Value{kind: v.kind, number: n, unit: v.unit}
	default:
		return Number(n)
	}
}

// FormatNumber renders n with the shortest representation that round-trips,
// always keeping a fractional part for integral values: 40 -> "40.0".
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "nan"
	case math.IsInf(n, 1):
		return "inf"
	case math.IsInf(n, -1):
		return "-inf"
	}
	abs := math.Abs(n)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(n, 'e', -1, 64)
	}
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

type wire struct {
	Kind    Kind     `json:"kind"`
	Number  *float64 `json:"number,omitempty"`
	Text    string   `json:"text,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Display string   `json:"display,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	w := wire{Kind: v.kind, Text: v.text, Unit: v.unit, Display: v.display}
	if v.kind != KindText {
		n := v.number
		w.Number = &n
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var n float64
	if w.Number != nil {
		n = *w.Number
	}
	switch w.Kind {
	case KindNumber:
		*v = Number(n)
	case KindText:
		*v = Text(w.Text)
	case KindQuantity:
		*v = QuantityWithDisplay(n, w.Unit, w.Display)
	case KindMoney:
		*v = Money(n, w.Unit)
	default:
		return fmt.Errorf("value: unknown kind %q", w.Kind)
	}
	return nil
}
