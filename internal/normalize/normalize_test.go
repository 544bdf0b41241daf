package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "QueryChain/internal/errors"
)

func TestDefaultPreset(t *testing.T) {
	n := Default()
	cases := map[string]string{
		"whats the wether in paris?":       "What is the weather in paris?",
		"avg temp in Paris and London":     "Average temperature in Paris and London",
		"who is ada lovelace?":             "Who is Ada Lovelace?",
		"what is 3 x 4":                    "What is 3 * 4",
		"what is 10 ÷ 4":                   "What is 10 / 4",
		"what is 9 − 2":                    "What is 9 - 2",
		"  convert   100 USD to EUR  ":     "Convert 100 USD to EUR",
		"add 2 and 3. then multiply by 4":  "Add 2 and 3. Then multiply by 4",
		"the temperatures in Paris":        "The temperatures in Paris",
		"WHAT IS THE TEMPRATURE IN LONDON": "WHAT IS THE temperature IN LONDON",
	}
	for in, want := range cases {
		assert.Equal(t, want, n.Normalize(in), in)
	}
}

func TestApplyReportsChanges(t *testing.T) {
	res := Default().Apply("whats the avg temp")
	assert.Equal(t, "whats the avg temp", res.Original)
	assert.Equal(t, "What is the average temperature", res.Text)
	require.Len(t, res.Changes, 3)
	assert.Equal(t, Change{Stage: StageSpelling, From: "whats", To: "what is"}, res.Changes[0])
	assert.Equal(t, StageAbbreviations, res.Changes[1].Stage)
	assert.Equal(t, StageAbbreviations, res.Changes[2].Stage)
}

func TestBlankInput(t *testing.T) {
	res := Default().Apply("   \t ")
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Changes)
}

func TestMinimalPreset(t *testing.T) {
	n, err := New(PresetMinimal)
	require.NoError(t, err)
	assert.Equal(t, "Whats the avg temp of 2 * 3", n.Normalize("whats the avg temp of 2 x 3"))
}

func TestEnhancedPreset(t *testing.T) {
	n, err := New(PresetEnhanced)
	require.NoError(t, err)
	assert.Equal(t, "Devide 10 by 2", Default().Normalize("devide 10 by 2"))
	assert.Equal(t, "Divide 10 by 2", n.Normalize("devide 10 by 2"))
	assert.Equal(t, "Average temperatures in New York", n.Normalize("averge temps in nyc"))
}

func TestOverrides(t *testing.T) {
	n, err := New(PresetDefault,
		WithCorrections(map[string]string{"Pariss": "Paris"}),
		WithAbbreviations(map[string]string{"ldn": "London"}),
		WithStage(StageCapitalize, false),
	)
	require.NoError(t, err)
	assert.Equal(t, "weather in Paris and London", n.Normalize("weather in pariss and ldn"))

	_, err = New(PresetDefault, WithStage("shouting", true))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))
}

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset("")
	require.NoError(t, err)
	assert.Equal(t, PresetDefault, p)

	p, err = ParsePreset(" Enhanced ")
	require.NoError(t, err)
	assert.Equal(t, PresetEnhanced, p)

	_, err = ParsePreset("loud")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidArgument))

	_, err = New("loud")
	assert.Error(t, err)
}
