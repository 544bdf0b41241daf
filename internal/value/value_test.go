package value

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		40:      "40.0",
		30.375:  "30.375",
		12.75:   "12.75",
		85:      "85.0",
		-5:      "-5.0",
		0:       "0.0",
		58.82:   "58.82",
		0.00001: "1e-05",
		1e16:    "1e+16",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatNumber(in), "FormatNumber(%v)", in)
	}
}

func TestNumericComponent(t *testing.T) {
	n, ok := QuantityWithDisplay(18, "°C", "18°C").Number()
	require.True(t, ok)
	assert.Equal(t, 18.0, n)

	n, ok = Money(12.75, "eur").Number()
	require.True(t, ok)
	assert.Equal(t, 12.75, n)

	_, ok = Text("hello").Number()
	assert.False(t, ok)
}

func TestDisplayForms(t *testing.T) {
	assert.Equal(t, "18°C", QuantityWithDisplay(18, "°C", "18°C").String())
	assert.Equal(t, "27.5°C", Quantity(27.5, "°C").String())
	assert.Equal(t, "85.0 EUR", Money(85, "EUR").String())
	assert.Equal(t, "EUR", Money(1, "eur").Unit())
	assert.Equal(t, "hi", Text("hi").Text())
	assert.True(t, Value{}.IsZero())
}

func TestWithNumberDropsDisplay(t *testing.T) {
	v := QuantityWithDisplay(18, "°C", "18°C").WithNumber(20)
	assert.Equal(t, "20.0°C", v.String())
}

func TestCarry(t *testing.T) {
	paris := QuantityWithDisplay(18, "°C", "18°C")
	london := QuantityWithDisplay(17, "°C", "17°C")

	avg := Carry(17.5, UnitKeep, paris, london)
	assert.Equal(t, KindQuantity, avg.Kind())
	assert.Equal(t, "°C", avg.Unit())

	assert.True(t, Carry(27.5, UnitKeep, avg, Number(10)).Equal(Quantity(27.5, "°C")))
	assert.Equal(t, KindNumber, Carry(1.05, UnitRatio, paris, london).Kind())
	assert.Equal(t, KindQuantity, Carry(9, UnitRatio, paris, Number(2)).Kind())
	assert.Equal(t, KindNumber, Carry(324, UnitStrip, paris, Number(2)).Kind())
	assert.Equal(t, KindNumber, Carry(1, UnitKeep, paris, Money(1, "USD")).Kind())
	assert.Equal(t, KindMoney, Carry(40, UnitKeep, Money(35, "EUR"), Number(5)).Kind())
	assert.Equal(t, KindNumber, Carry(3, UnitKeep, Number(1), Number(2)).Kind())
}

func TestJSONRoundTrip(t *testing.T) {
	in := []Value{
		Number(40),
		Text("Ada Lovelace was a mathematician"),
		QuantityWithDisplay(18, "°C", "18°C"),
		Money(85, "EUR"),
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	var out []Value
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, len(in))
	for i := range in {
		assert.True(t, in[i].Equal(out[i]), "index %d: %v != %v", i, in[i], out[i])
	}
	assert.Equal(t, "18°C", out[2].String())
}
