package textclean

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchBrandFuzzy(t *testing.T) {
	brands := []string{"Cadbury", "Sanitarium Weet-Bix", "Kan"}

	tests := []struct {
		name      string
		text      string
		maxDist   int
		wantBrand string
		wantOK    bool
	}{
		{"exact substring", "Cadbury Dairy Milk", 2, "Cadbury", true},
		{"one substitution", "Cadbvry Dairy Milk", 2, "Cadbury", true},
		{"multi-word brand", "Sanitarium Weet-Blx 575g", 2, "Sanitarium Weet-Bix", true},
		{"beyond budget", "Cdbvy Dairy Milk", 1, "", false},
		{"short brand needs exact token", "Kam Cheese", 2, "", false},
		{"zero budget disables fuzzy", "Cadbvry", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			brand, ok := MatchBrandFuzzy(tt.text, brands, tt.maxDist)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantBrand, brand)
		})
	}
}
