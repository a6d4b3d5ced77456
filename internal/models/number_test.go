package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumber(t *testing.T) {
	testCases := []struct {
		name   string
		text   string
		unit   string
		value  float64
		parsed bool
	}{
		{
			name:   "Area with unit",
			text:   "70.66m²",
			unit:   "m²",
			value:  70.66,
			parsed: true,
		},
		{
			name:   "Rent with group separator",
			text:   "400,000円",
			unit:   "円",
			value:  400000,
			parsed: true,
		},
		{
			name:   "Full-width digits",
			text:   "１２３円",
			unit:   "円",
			value:  123,
			parsed: true,
		},
		{
			name:   "Surrounding whitespace",
			text:   " 85 m²",
			unit:   "m²",
			value:  85,
			parsed: true,
		},
		{
			name: "Negotiable marker",
			text: "応談",
			unit: "円",
		},
		{
			name: "Empty",
			text: "",
			unit: "円",
		},
		{
			name: "Unit in the middle is not stripped",
			text: "100円/月",
			unit: "円",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pn := ParseNumber(tc.text, tc.unit, JapaneseFormat)

			assert.Equal(t, tc.parsed, pn.Parsed)
			assert.Equal(t, tc.text, pn.Text, "original text is always preserved")
			assert.Equal(t, tc.unit, pn.Unit)
			if tc.parsed {
				assert.InDelta(t, tc.value, pn.Value, 1e-9)
			} else {
				assert.Zero(t, pn.Value)
			}
		})
	}
}

func TestParsedNumberString(t *testing.T) {
	parsed := ParseNumber("70.66m²", "m²", JapaneseFormat)
	assert.Equal(t, "[70.660000,m²]", parsed.String())

	unparsed := ParseNumber("応談", "円", JapaneseFormat)
	assert.Equal(t, "[? 応談]", unparsed.String())
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "鉄筋コンクリート造 地上3階", NormalizeValue("  鉄筋コンクリート造 \n\t 地上3階  "))
	assert.Equal(t, "", NormalizeValue("   "))
	assert.Equal(t, "a b", NormalizeValue("a b"))
}
