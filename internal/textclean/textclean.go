// Package textclean normalizes OCR text into product names, quantities and
// promotional labels.
package textclean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NoiseWords are promotional tokens dropped from product names.
var NoiseWords = []string{
	"special", "offer", "buy", "now", "save", "only",
	"today", "limited", "new", "fresh", "quality",
}

// OfferPhrases are checked in order by DetectSpecialOffer.
var OfferPhrases = []string{
	"super saver", "special buy", "aldi special",
	"limited time", "while stocks last", "special offer",
}

// quantityRules are tried in order; the first rule with a match wins.
var quantityRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+\s*(?:g|kg|ml|l|pack))`),
	regexp.MustCompile(`(?i)(\d+\s*x\s*\d+\s*(?:g|ml))`),
}

var (
	offerRules      = compileOfferRules(OfferPhrases)
	repeatedPunctRe = regexp.MustCompile(`([.!?]){2,}`)
	noiseWordLookup = toSet(NoiseWords)
)

const nameSymbolsAllow = "-&()/"

// NormalizeWhitespace collapses every run of whitespace into a single space
// and trims the ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// NormalizeUnicode applies NFKC so fullwidth currency signs, digits and
// ligatures reach the extractors in their plain forms.
func NormalizeUnicode(text string) string {
	return norm.NFKC.String(text)
}

// CleanProductName collapses whitespace, strips symbols other than
// hyphen, ampersand, parentheses and slash, title-cases every word and drops
// noise words. The result is stable under repeated application.
func CleanProductName(text string) string {
	if text == "" {
		return ""
	}
	cleaned := NormalizeWhitespace(text)
	cleaned = RemoveSymbols(cleaned, nameSymbolsAllow)
	cleaned = TitleCase(cleaned)

	words := strings.Fields(cleaned)
	kept := words[:0]
	for _, w := range words {
		if _, noisy := noiseWordLookup[strings.ToLower(w)]; noisy {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// ExtractQuantityFromName splits a weight, volume or pack-size token such as
// "250g" or "6 pack" out of text. The quantity is lower-cased; only the
// matched span is removed and the remaining name is whitespace-normalized.
// Without a match quantity is empty.
func ExtractQuantityFromName(text string) (name, quantity string) {
	for _, rule := range quantityRules {
		loc := rule.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		quantity = strings.ToLower(strings.TrimSpace(text[loc[2]:loc[3]]))
		return NormalizeWhitespace(text[:loc[0]] + text[loc[1]:]), quantity
	}
	return NormalizeWhitespace(text), ""
}

// DetectSpecialOffer returns the first promotional phrase found in text,
// taken from the original text and title-cased, or "" when none is present.
func DetectSpecialOffer(text string) string {
	for _, rule := range offerRules {
		if loc := rule.FindStringIndex(text); loc != nil {
			return TitleCase(text[loc[0]:loc[1]])
		}
	}
	return ""
}

// RemoveSymbols drops every rune that is not a letter, digit, underscore,
// whitespace or listed in keep.
func RemoveSymbols(text, keep string) string {
	return strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) || strings.ContainsRune(keep, r) {
			return r
		}
		return -1
	}, text)
}

// ExtractBrand returns the first entry of knownBrands that occurs in text,
// ignoring case, or "".
func ExtractBrand(text string, knownBrands []string) string {
	lower := strings.ToLower(text)
	for _, brand := range knownBrands {
		if brand == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(brand)) {
			return brand
		}
	}
	return ""
}

// CleanDescription collapses whitespace, reduces runs of sentence
// punctuation to their last mark and capitalizes each ". " separated sentence.
func CleanDescription(text string) string {
	cleaned := NormalizeWhitespace(text)
	cleaned = repeatedPunctRe.ReplaceAllString(cleaned, "$1")
	sentences := strings.Split(cleaned, ". ")
	for i, s := range sentences {
		sentences[i] = capitalize(s)
	}
	return strings.TrimSpace(strings.Join(sentences, ". "))
}

// TitleCase upper-cases every cased letter that follows an uncased rune and
// lower-cases the rest, so digits start a new word ("250g" becomes "250G").
func TitleCase(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevCased := false
	for _, r := range text {
		if isCased(r) {
			if prevCased {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevCased = true
		} else {
			prevCased = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToTitle(runes[0])
	return string(runes)
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func compileOfferRules(phrases []string) []*regexp.Regexp {
	rules := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		rules[i] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p))
	}
	return rules
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
