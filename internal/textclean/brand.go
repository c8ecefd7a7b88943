package textclean

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// MatchBrandFuzzy resolves a brand from text even when OCR misread a few
// characters. An exact case-insensitive substring hit wins; otherwise every
// window of len(brand words) tokens is compared by edit distance and the
// closest brand within maxDistance is returned. Ties go to the brand listed
// first.
func MatchBrandFuzzy(text string, knownBrands []string, maxDistance int) (string, bool) {
	if brand := ExtractBrand(text, knownBrands); brand != "" {
		return brand, true
	}
	if maxDistance <= 0 {
		return "", false
	}

	tokens := strings.Fields(strings.ToLower(RemoveSymbols(text, "&'-")))
	best, bestDist := "", maxDistance+1
	for _, brand := range knownBrands {
		target := strings.ToLower(NormalizeWhitespace(brand))
		n := len(strings.Fields(target))
		if n == 0 || n > len(tokens) {
			continue
		}
		for i := 0; i+n <= len(tokens); i++ {
			window := strings.Join(tokens[i:i+n], " ")
			// Short brands need proportionally tighter budgets.
			if len(target) <= 3 && window != target {
				continue
			}
			if d := levenshtein.ComputeDistance(window, target); d < bestDist {
				best, bestDist = brand, d
			}
		}
	}
	return best, best != ""
}
