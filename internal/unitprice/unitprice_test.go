package unitprice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		qty    float64
		unit   string
		want   float64
		wantOK bool
	}{
		{"grams to kg", 3.49, 250, "g", 13.96, true},
		{"case insensitive", 3.49, 250, " G ", 13.96, true},
		{"kilograms", 5.00, 2, "kg", 2.50, true},
		{"pack-size unit", 4.00, 2, "500g", 4.00, true},
		{"pounds", 4.53592, 1, "lb", 10.00, true},
		{"millilitres to litre", 2.00, 500, "ml", 4.00, true},
		{"litre alias", 3.00, 2, "Litre", 1.50, true},
		{"unknown unit divides plainly", 6.00, 4, "each", 1.50, true},
		{"zero price", 0, 250, "g", 0, false},
		{"negative quantity", 3.49, -1, "g", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Calculate(tt.price, tt.qty, tt.unit)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate(3.49, 13.96, 250, "g", DefaultTolerance))
	assert.True(t, Validate(3.49, 14.06, 250, "g", DefaultTolerance), "difference of exactly the tolerance is accepted")
	assert.False(t, Validate(3.49, 14.07, 250, "g", DefaultTolerance))
	assert.False(t, Validate(3.49, 20.00, 250, "g", DefaultTolerance))
	assert.False(t, Validate(0, 13.96, 250, "g", DefaultTolerance))
	assert.True(t, Validate(3.49, 20.00, 250, "g", 10))
}

func TestNormalizeUnit(t *testing.T) {
	tests := map[string]string{
		"Kilogram":    "kg",
		"kilograms":   "kg",
		"GRAMS":       "g",
		"litres":      "l",
		"Liter":       "l",
		"millilitres": "ml",
		"milliliter":  "ml",
		" KG ":        "kg",
		"each":        "each",
		"Pack":        "pack",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeUnit(in), "NormalizeUnit(%q)", in)
	}
}

func TestCompare(t *testing.T) {
	diff, ok := Compare(13.96, "kg", 10.00, "grams")
	require.True(t, ok)
	assert.InDelta(t, 3.96, diff, 1e-9)

	diff, ok = Compare(2.00, "l", 3.00, "each")
	require.True(t, ok, "neither side is a weight")
	assert.InDelta(t, -1.0, diff, 1e-9)

	_, ok = Compare(13.96, "kg", 4.00, "l")
	assert.False(t, ok)
}
