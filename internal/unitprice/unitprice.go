// Package unitprice converts pack prices into prices per kilogram or litre
// and checks printed unit prices against them.
package unitprice

import (
	"math"
	"strings"

	"github.com/MeKo-Tech/leafscan/internal/pricing"
)

// DefaultTolerance is the accepted absolute difference, in dollars, between a
// printed and a computed unit price.
const DefaultTolerance = 0.10

// WeightFactors convert a weight unit to kilograms.
var WeightFactors = map[string]float64{
	"kg":   1.0,
	"g":    0.001,
	"100g": 0.1,
	"250g": 0.25,
	"500g": 0.5,
	"lb":   0.453592,
	"oz":   0.0283495,
}

// VolumeFactors convert a volume unit to litres.
var VolumeFactors = map[string]float64{
	"l":     1.0,
	"litre": 1.0,
	"liter": 1.0,
	"ml":    0.001,
	"100ml": 0.1,
	"250ml": 0.25,
	"500ml": 0.5,
}

var unitAliases = map[string]string{
	"kilogram":    "kg",
	"kilograms":   "kg",
	"gram":        "g",
	"grams":       "g",
	"litre":       "l",
	"liter":       "l",
	"litres":      "l",
	"liters":      "l",
	"milliliter":  "ml",
	"millilitre":  "ml",
	"milliliters": "ml",
	"millilitres": "ml",
}

// Calculate returns totalPrice per kilogram (weight units) or per litre
// (volume units) for quantity of unit. Unknown units such as "each" or
// "pack" divide by quantity without conversion. It fails when either input
// is not positive.
func Calculate(totalPrice, quantity float64, unit string) (float64, bool) {
	if totalPrice <= 0 || quantity <= 0 {
		return 0, false
	}
	factor, ok := Factor(unit)
	if !ok {
		return pricing.NormalizePrice(totalPrice / quantity), true
	}
	return pricing.NormalizePrice(totalPrice / (quantity * factor)), true
}

// Validate reports whether unitPrice is within tolerance of the unit price
// computed from totalPrice, quantity and unit. It is false when no unit price
// can be computed.
func Validate(totalPrice, unitPrice, quantity float64, unit string, tolerance float64) bool {
	expected, ok := Calculate(totalPrice, quantity, unit)
	if !ok {
		return false
	}
	// Compared in cents at micro-cent precision: a gap of exactly tolerance passes.
	diff := math.Abs(expected-unitPrice) * 100
	return math.Round(diff*1e6)/1e6 <= tolerance*100
}

// NormalizeUnit lower-cases unit and maps long forms to kg, g, l and ml.
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if short, ok := unitAliases[u]; ok {
		return short
	}
	return u
}

// Factor returns the conversion factor of unit to kilograms or litres.
func Factor(unit string) (float64, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if f, ok := WeightFactors[u]; ok {
		return f, true
	}
	f, ok := VolumeFactors[u]
	return f, ok
}

// IsWeight reports whether unit (after normalization) is a weight unit.
func IsWeight(unit string) bool {
	_, ok := WeightFactors[NormalizeUnit(unit)]
	return ok
}

// Compare returns price1 - price2 when both units are of the same kind
// (both weights, or both not weights).
func Compare(price1 float64, unit1 string, price2 float64, unit2 string) (float64, bool) {
	if IsWeight(unit1) != IsWeight(unit2) {
		return 0, false
	}
	return price1 - price2, true
}
