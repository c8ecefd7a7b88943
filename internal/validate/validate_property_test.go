package validate

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestIsValidPrice_Bounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("non-positive prices are invalid", prop.ForAll(
		func(p float64) bool { return !IsValidPrice(p) },
		gen.Float64Range(-1e9, 0),
	))

	properties.Property("prices above the ceiling are invalid", prop.ForAll(
		func(delta float64) bool { return !IsValidPrice(MaxPrice + delta) },
		gen.Float64Range(0.001, 1e9),
	))

	properties.Property("prices inside the range are valid", prop.ForAll(
		func(p float64) bool { return IsValidPrice(p) },
		gen.Float64Range(0.0001, MaxPrice),
	))

	properties.TestingRun(t)
}
