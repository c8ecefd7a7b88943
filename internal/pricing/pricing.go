// Package pricing pulls main prices, unit prices and discounts out of OCR
// text using ordered rule tables. Within a table the first rule that matches
// decides the result, and within a rule the first match in source order wins.
package pricing

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Rule is one entry of an extraction table. Group 1 of Pattern holds the
// amount; for unit-price rules group 2 holds the unit.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// WholeOnly rejects matches directly followed by a decimal part, so
	// "$3.4" never reads as "$3".
	WholeOnly bool
}

// PriceRules find the main (shelf) price.
var PriceRules = []Rule{
	{Name: "dollars-and-cents", Pattern: regexp.MustCompile(`\$\s*(\d+\.\d{2})`)},
	{Name: "whole-dollars", Pattern: regexp.MustCompile(`\$\s*(\d+)`), WholeOnly: true},
}

// UnitPriceRules find "$13.96 per kg" style prices. They run on lower-cased text.
var UnitPriceRules = []Rule{
	{Name: "dollar-per-unit", Pattern: regexp.MustCompile(`\$\s*(\d+\.\d{2})\s*(?:per|/)\s*(\w+)`)},
	{Name: "parenthesized", Pattern: regexp.MustCompile(`\(\$\s*(\d+\.\d{2})\s*(?:per|/)\s*(\w+)\)`)},
	{Name: "bare-per-unit", Pattern: regexp.MustCompile(`(\d+\.\d{2})\s*(?:per|/)\s*(\w+)`)},
}

// DiscountRules find "Save $2.50" phrasing.
var DiscountRules = []Rule{
	{Name: "save-dollars-and-cents", Pattern: regexp.MustCompile(`[Ss]ave\s+\$\s*(\d+\.\d{2})`)},
	{Name: "save-whole-dollars", Pattern: regexp.MustCompile(`[Ss]ave\s+\$\s*(\d+)`)},
}

var (
	parenthesizedRe = regexp.MustCompile(`\([^)]*\)`)
	perUnitSpanRe   = regexp.MustCompile(`\d+\.\d{2}\s*(?:per|/)\s*\w+`)
	decimalTokenRe  = regexp.MustCompile(`^\d+\.\d{2}$`)
	integerTokenRe  = regexp.MustCompile(`^\d+$`)
)

// UnitPrice is a price per measurement unit. Unit is lower-cased but not
// normalized ("kilograms" stays "kilograms").
type UnitPrice struct {
	Price float64
	Unit  string
}

// StripUnitPrices removes parenthesized spans and "D.DD per unit" spans so a
// unit price is never read as the main price.
func StripUnitPrices(text string) string {
	text = parenthesizedRe.ReplaceAllString(text, "")
	return perUnitSpanRe.ReplaceAllString(text, "")
}

// ExtractPrice returns the main price of text. With excludeUnitPrices the
// unit-price spans are stripped first.
func ExtractPrice(text string, excludeUnitPrices bool) (float64, bool) {
	if excludeUnitPrices {
		text = StripUnitPrices(text)
	}
	for _, rule := range PriceRules {
		if amounts := rule.amounts(text, 1); len(amounts) > 0 {
			return amounts[0], true
		}
	}
	return 0, false
}

// ExtractAllPrices returns every distinct main-price match in ascending order.
func ExtractAllPrices(text string) []float64 {
	seen := make(map[float64]struct{})
	var prices []float64
	for _, rule := range PriceRules {
		for _, p := range rule.amounts(text, -1) {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			prices = append(prices, p)
		}
	}
	sort.Float64s(prices)
	return prices
}

// ExtractUnitPrice returns the first unit price in text.
func ExtractUnitPrice(text string) (UnitPrice, bool) {
	lower := strings.ToLower(text)
	for _, rule := range UnitPriceRules {
		m := rule.Pattern.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		price, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		return UnitPrice{Price: price, Unit: strings.TrimSpace(m[2])}, true
	}
	return UnitPrice{}, false
}

// ExtractDiscount returns the amount of a "Save $X" phrase.
func ExtractDiscount(text string) (float64, bool) {
	for _, rule := range DiscountRules {
		if amounts := rule.amounts(text, 1); len(amounts) > 0 {
			return amounts[0], true
		}
	}
	return 0, false
}

// LenientPrice is the fallback for OCR output that lost its currency sign:
// after "D.DD per unit" spans are stripped, the first whitespace token that
// is a bare D.DD amount wins, then the first bare integer. Surrounding
// punctuation is ignored, so "(3.49)" counts but "250g" does not.
func LenientPrice(text string) (float64, bool) {
	tokens := strings.Fields(perUnitSpanRe.ReplaceAllString(text, ""))
	for i, tok := range tokens {
		tokens[i] = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
	}
	for _, re := range []*regexp.Regexp{decimalTokenRe, integerTokenRe} {
		for _, tok := range tokens {
			if !re.MatchString(tok) {
				continue
			}
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// NormalizePrice rounds to two decimals, half away from zero. The scaled
// value is snapped to six decimals first so 3.495 rounds to 3.50 even though
// its binary form sits just below the midpoint.
func NormalizePrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scaled, err := strconv.ParseFloat(strconv.FormatFloat(v*100, 'f', 6, 64), 64)
	if err != nil {
		return v
	}
	return math.Round(scaled) / 100
}

// amounts returns up to n parsed group-1 amounts (all when n < 0).
func (r Rule) amounts(text string, n int) []float64 {
	var out []float64
	for _, loc := range r.Pattern.FindAllStringSubmatchIndex(text, -1) {
		if r.WholeOnly && followedByDecimal(text, loc[1]) {
			continue
		}
		v, err := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		out = append(out, v)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

func followedByDecimal(text string, end int) bool {
	return end+1 < len(text) && text[end] == '.' && text[end+1] >= '0' && text[end+1] <= '9'
}
