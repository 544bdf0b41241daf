package value

// UnitRule tells Carry how an arithmetic operation treats the units of its
// operands.
type UnitRule int

const (
	// UnitKeep labels the result with the unit shared by the tagged operands.
	UnitKeep UnitRule = iota
	// UnitRatio behaves like UnitKeep unless two or more operands are tagged,
	// in which case the units cancel and the result is a bare number.
	UnitRatio
	// UnitStrip always yields a bare number.
	UnitStrip
)

// Carry wraps an arithmetic result according to rule and the operands it was
// computed from. Operands tagged with different units, or with a unit and a
// currency, cannot agree on a label and produce a bare number.
func Carry(result float64, rule UnitRule, operands ...Value) Value {
	if rule == UnitStrip {
		return Number(result)
	}
	var (
		label  Value
		tagged int
	)
	for _, op := range operands {
		if !op.Tagged() {
			continue
		}
		tagged++
		if label.IsZero() {
			label = op
			continue
		}
		if op.kind != label.kind || op.unit != label.unit {
			return Number(result)
		}
	}
	if tagged == 0 {
		return Number(result)
	}
	if rule == UnitRatio && tagged > 1 {
		return Number(result)
	}
	return label.WithNumber(result)
}
