// Package product holds the records produced by the parser and the
// extraction documents they are exported in.
package product

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/pricing"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "AUD"

// Position is the product's rectangle in image pixels.
type Position = geometry.Rect

// Product is one extracted leaflet item. Optional fields are omitted from
// JSON when empty.
type Product struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Brand        string    `json:"brand,omitempty"`
	Description  string    `json:"description,omitempty"`
	Price        float64   `json:"price"`
	UnitPrice    *float64  `json:"unit_price,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Currency     string    `json:"currency"`
	SpecialOffer string    `json:"special_offer,omitempty"`
	Position     *Position `json:"position,omitempty"`
	Confidence   float64   `json:"confidence"`
}

// Option sets an optional field on a Product.
type Option func(*Product)

// WithDescription sets the quantity/description text.
func WithDescription(desc string) Option {
	return func(p *Product) { p.Description = strings.TrimSpace(desc) }
}

// WithUnitPrice sets the unit price (rounded to cents) and its unit label,
// e.g. "per kg". Non-positive values are ignored.
func WithUnitPrice(price float64, unit string) Option {
	return func(p *Product) {
		if price <= 0 {
			return
		}
		v := pricing.NormalizePrice(price)
		p.UnitPrice = &v
		p.Unit = unit
	}
}

// WithCurrency overrides DefaultCurrency.
func WithCurrency(code string) Option {
	return func(p *Product) {
		if code != "" {
			p.Currency = code
		}
	}
}

// WithSpecialOffer sets the promotion label.
func WithSpecialOffer(offer string) Option {
	return func(p *Product) { p.SpecialOffer = offer }
}

// WithPosition sets the bounding rectangle.
func WithPosition(pos Position) Option {
	return func(p *Product) { p.Position = &pos }
}

// WithBrand sets the recognized brand.
func WithBrand(brand string) Option {
	return func(p *Product) { p.Brand = brand }
}

// WithConfidence sets the extraction confidence.
func WithConfidence(c float64) Option {
	return func(p *Product) { p.Confidence = c }
}

// New builds a Product with a fresh id and the price rounded to cents.
func New(name string, price float64, opts ...Option) Product {
	p := Product{
		ID:       NewID(),
		Name:     strings.TrimSpace(name),
		Price:    pricing.NormalizePrice(price),
		Currency: DefaultCurrency,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Clone returns a deep copy of p that shares no pointers with it.
func (p Product) Clone() Product {
	if p.UnitPrice != nil {
		v := *p.UnitPrice
		p.UnitPrice = &v
	}
	if p.Position != nil {
		pos := *p.Position
		p.Position = &pos
	}
	return p
}

// NewID returns "prod-" followed by 8 hex characters.
func NewID() string {
	return "prod-" + hexID(8)
}

// MarshalJSON rounds the confidence to two decimals.
func (p Product) MarshalJSON() ([]byte, error) {
	type plain Product
	out := plain(p)
	out.Confidence = pricing.NormalizePrice(p.Confidence)
	return json.Marshal(out)
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
