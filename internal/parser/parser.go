// Package parser turns clustered OCR regions into Product records.
package parser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/MeKo-Tech/leafscan/internal/cluster"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
	"github.com/MeKo-Tech/leafscan/internal/pricing"
	"github.com/MeKo-Tech/leafscan/internal/product"
	"github.com/MeKo-Tech/leafscan/internal/textclean"
	"github.com/MeKo-Tech/leafscan/internal/unitprice"
	"github.com/MeKo-Tech/leafscan/internal/validate"
)

// ErrEmptyRegion is returned by ParseRegion for a region without detections.
var ErrEmptyRegion = errors.New("parser: empty region")

const (
	// DefaultMaxNameWords bounds the words kept from a name candidate.
	DefaultMaxNameWords = 8

	minCandidateLength = 2
)

var (
	dollarPriceRe      = regexp.MustCompile(`\$\s*\d+(?:\.\d{2})?`)
	standaloneNumberRe = regexp.MustCompile(`\b\d+\b`)
	descQuantityRe     = regexp.MustCompile(`(\d+)\s*(\w+)`)
)

// Config tunes the parser. Zero fields take their defaults.
type Config struct {
	Currency      string          `mapstructure:"currency" yaml:"currency" json:"currency"`
	MinNameLength int             `mapstructure:"min_name_length" yaml:"min_name_length" json:"min_name_length"`
	MaxNameWords  int             `mapstructure:"max_name_words" yaml:"max_name_words" json:"max_name_words"`
	Tolerance     float64         `mapstructure:"unit_price_tolerance" yaml:"unit_price_tolerance" json:"unit_price_tolerance"`
	Cluster       cluster.Options `mapstructure:"cluster" yaml:"cluster" json:"cluster"`

	// KnownBrands enables brand recognition; BrandMaxDistance allows that
	// many OCR character errors per brand.
	KnownBrands      []string `mapstructure:"known_brands" yaml:"known_brands" json:"known_brands"`
	BrandMaxDistance int      `mapstructure:"brand_max_distance" yaml:"brand_max_distance" json:"brand_max_distance"`

	// DiscountOffers labels regions carrying "Save $X" as special offers
	// when no offer phrase is present.
	DiscountOffers bool `mapstructure:"discount_offers" yaml:"discount_offers" json:"discount_offers"`
}

// DefaultConfig returns AUD pricing with the standard name limits.
func DefaultConfig() Config {
	return Config{
		Currency:         product.DefaultCurrency,
		MinNameLength:    validate.DefaultMinNameLength,
		MaxNameWords:     DefaultMaxNameWords,
		Tolerance:        unitprice.DefaultTolerance,
		Cluster:          cluster.DefaultOptions(),
		BrandMaxDistance: 1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Currency == "" {
		c.Currency = d.Currency
	}
	if c.MinNameLength <= 0 {
		c.MinNameLength = d.MinNameLength
	}
	if c.MaxNameWords <= 0 {
		c.MaxNameWords = d.MaxNameWords
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	return c
}

// Parser clusters detections and parses each region into a product. It is
// safe for concurrent use.
type Parser struct {
	cfg       Config
	clusterer *cluster.Clusterer
	log       zerolog.Logger
}

// New returns a Parser. Pass zerolog.Nop() to silence it.
func New(cfg Config, log zerolog.Logger) *Parser {
	cfg = cfg.withDefaults()
	return &Parser{
		cfg:       cfg,
		clusterer: cluster.New(cfg.Cluster, log),
		log:       log,
	}
}

// ParseProducts clusters dets and parses every region. Regions that fail or
// panic are logged and skipped; no input yields an empty list.
func (p *Parser) ParseProducts(ctx context.Context, dets []ocr.Detection) []product.Product {
	products := []product.Product{}
	if len(dets) == 0 {
		return products
	}

	regions := p.clusterer.Cluster(dets)
	for i, region := range regions {
		if ctx.Err() != nil {
			p.log.Warn().Err(ctx.Err()).Int("parsed", i).Int("regions", len(regions)).Msg("parse cancelled")
			break
		}
		prod, ok, err := p.safeParse(region)
		if err != nil {
			p.log.Warn().Err(err).Int("region", i).Str("text", region.CombinedText()).Msg("skipping region")
			continue
		}
		if ok {
			products = append(products, prod)
		}
	}

	p.log.Info().
		Int("detections", len(dets)).
		Int("regions", len(regions)).
		Int("products", len(products)).
		Msg("parsed products")
	return products
}

func (p *Parser) safeParse(region cluster.Region) (prod product.Product, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			prod, ok, err = product.Product{}, false, fmt.Errorf("parser: panic in region: %v", r)
		}
	}()
	return p.ParseRegion(region)
}

// ParseRegion turns one region into a product. The boolean is false when
// the region carries no valid price or name; that is expected and not an
// error.
func (p *Parser) ParseRegion(region cluster.Region) (product.Product, bool, error) {
	if region.Len() == 0 {
		return product.Product{}, false, ErrEmptyRegion
	}
	combined := region.CombinedText()

	price, ok := pricing.ExtractPrice(combined, true)
	if !ok {
		price, ok = pricing.LenientPrice(combined)
	}
	if !ok || !validate.IsValidPrice(price) {
		p.log.Debug().Str("text", combined).Msg("discarding region without valid price")
		return product.Product{}, false, nil
	}

	rawName := p.nameCandidate(region)
	if utf8.RuneCountInString(rawName) < minCandidateLength {
		p.log.Debug().Str("text", combined).Msg("discarding region without name")
		return product.Product{}, false, nil
	}

	cleaned := textclean.CleanProductName(rawName)
	stripped, quantity := textclean.ExtractQuantityFromName(cleaned)
	name := cleaned
	if utf8.RuneCountInString(stripped) > 2 {
		name = stripped
	}
	if quantity == "" {
		_, quantity = textclean.ExtractQuantityFromName(stripPrices(combined))
	}
	if !validate.IsValidProductName(name, p.cfg.MinNameLength) {
		p.log.Debug().Str("name", name).Msg("discarding region with invalid name")
		return product.Product{}, false, nil
	}

	opts := []product.Option{
		product.WithDescription(quantity),
		product.WithCurrency(p.cfg.Currency),
		product.WithPosition(region.Bounds()),
		product.WithConfidence(region.AverageConfidence()),
	}

	if up, ok := pricing.ExtractUnitPrice(combined); ok {
		unit := unitprice.NormalizeUnit(up.Unit)
		opts = append(opts, product.WithUnitPrice(up.Price, "per "+unit))
		p.checkUnitPrice(name, price, up.Price, quantity)
	}

	offer := textclean.DetectSpecialOffer(combined)
	if offer == "" && p.cfg.DiscountOffers {
		if saving, ok := pricing.ExtractDiscount(combined); ok {
			offer = "Save $" + strconv.FormatFloat(saving, 'f', 2, 64)
		}
	}
	if offer != "" {
		opts = append(opts, product.WithSpecialOffer(offer))
	}

	if len(p.cfg.KnownBrands) > 0 {
		if brand, ok := textclean.MatchBrandFuzzy(combined, p.cfg.KnownBrands, p.cfg.BrandMaxDistance); ok {
			opts = append(opts, product.WithBrand(brand))
		}
	}

	return product.New(name, price, opts...), true, nil
}

// nameCandidate prefers the largest detection whose text survives price and
// number stripping, falling back to the whole region text.
func (p *Parser) nameCandidate(region cluster.Region) string {
	dets := append([]ocr.Detection(nil), region.Detections...)
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Box.Area() > dets[j].Box.Area() })

	for _, d := range dets {
		text := strings.TrimSpace(standaloneNumberRe.ReplaceAllString(stripPrices(d.Text), ""))
		if utf8.RuneCountInString(text) >= minCandidateLength {
			return truncateWords(text, p.cfg.MaxNameWords)
		}
	}
	return truncateWords(strings.TrimSpace(stripPrices(region.CombinedText())), p.cfg.MaxNameWords)
}

// checkUnitPrice logs implausible unit prices. They are kept on the product.
// A known quantity allows an exact check; otherwise only the ratio to the
// shelf price is tested.
func (p *Parser) checkUnitPrice(name string, price, unitPrice float64, quantity string) {
	if qty, unit, ok := parseQuantity(quantity); ok {
		if !unitprice.Validate(price, unitPrice, qty, unit, p.cfg.Tolerance) {
			p.log.Warn().Str("name", name).Float64("price", price).Float64("unit_price", unitPrice).
				Str("quantity", quantity).Msg("unit price does not match quantity")
		}
		return
	}
	if !validate.ValidUnitPriceRatio(price, unitPrice) {
		p.log.Warn().Str("name", name).Float64("price", price).Float64("unit_price", unitPrice).
			Msg("unit price out of range for price")
	}
}

// ValidateProduct re-checks a product and lists every problem found.
func (p *Parser) ValidateProduct(prod product.Product) (bool, []string) {
	var problems []string
	if !validate.IsValidPrice(prod.Price) {
		problems = append(problems, fmt.Sprintf("Invalid price: $%.2f", prod.Price))
	}
	if prod.UnitPrice != nil && prod.Description != "" {
		if qty, unit, ok := parseQuantity(prod.Description); ok &&
			!unitprice.Validate(prod.Price, *prod.UnitPrice, qty, unit, p.cfg.Tolerance) {
			problems = append(problems, fmt.Sprintf("Unit price mismatch: $%.2f", *prod.UnitPrice))
		}
	}
	if !validate.IsValidProductName(prod.Name, p.cfg.MinNameLength) {
		problems = append(problems, fmt.Sprintf("Invalid product name: '%s'", prod.Name))
	}
	return len(problems) == 0, problems
}

// stripPrices removes unit-price spans, parenthesized spans and
// dollar amounts.
func stripPrices(text string) string {
	return dollarPriceRe.ReplaceAllString(pricing.StripUnitPrices(text), "")
}

func truncateWords(text string, limit int) string {
	words := strings.Fields(text)
	if len(words) > limit {
		words = words[:limit]
	}
	return strings.Join(words, " ")
}

func parseQuantity(desc string) (float64, string, bool) {
	m := descQuantityRe.FindStringSubmatch(desc)
	if m == nil {
		return 0, "", false
	}
	qty, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return qty, m[2], true
}
