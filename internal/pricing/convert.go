package pricing

import "strings"

// weightToKg maps pack-size units to kilograms for ConvertUnitPrice.
var weightToKg = map[string]float64{
	"g":    0.001,
	"kg":   1.0,
	"100g": 0.1,
	"250g": 0.25,
	"500g": 0.5,
}

// ConvertUnitPrice turns the price of quantity fromUnit into a price per
// toUnit (both weight units, e.g. 250 g at $3.49 is $13.96 per kg).
func ConvertUnitPrice(price, quantity float64, fromUnit, toUnit string) (float64, bool) {
	from, okFrom := weightToKg[strings.ToLower(strings.TrimSpace(fromUnit))]
	to, okTo := weightToKg[strings.ToLower(strings.TrimSpace(toUnit))]
	if !okFrom || !okTo {
		return 0, false
	}
	kg := quantity * from
	if kg == 0 {
		return 0, false
	}
	return NormalizePrice(price / kg * to), true
}
