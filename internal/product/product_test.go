package product

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundsAndDefaults(t *testing.T) {
	p := New("  Mini Cucumbers ", 3.495, WithUnitPrice(13.956, "per kg"), WithConfidence(0.876))
	assert.Equal(t, "Mini Cucumbers", p.Name)
	assert.InDelta(t, 3.50, p.Price, 1e-9)
	require.NotNil(t, p.UnitPrice)
	assert.InDelta(t, 13.96, *p.UnitPrice, 1e-9)
	assert.Equal(t, "per kg", p.Unit)
	assert.Equal(t, DefaultCurrency, p.Currency)
	assert.Regexp(t, regexp.MustCompile(`^prod-[0-9a-f]{8}$`), p.ID)
}

func TestCloneDoesNotSharePointers(t *testing.T) {
	orig := New("Milk", 2, WithUnitPrice(1, "per l"), WithPosition(Position{X: 1, Y: 2, Width: 3, Height: 4}))
	c := orig.Clone()
	assert.Equal(t, orig, c)

	*c.UnitPrice = 9
	c.Position.X = 99
	assert.InDelta(t, 1, *orig.UnitPrice, 1e-9)
	assert.Equal(t, 1, orig.Position.X)

	plain := New("Bread", 3).Clone()
	assert.Nil(t, plain.UnitPrice)
	assert.Nil(t, plain.Position)
}

func TestWithUnitPriceIgnoresNonPositive(t *testing.T) {
	p := New("Milk", 2, WithUnitPrice(0, "per l"))
	assert.Nil(t, p.UnitPrice)
	assert.Empty(t, p.Unit)
}

func TestWithCurrencyKeepsDefaultForEmpty(t *testing.T) {
	assert.Equal(t, "NZD", New("Milk", 2, WithCurrency("NZD")).Currency)
	assert.Equal(t, DefaultCurrency, New("Milk", 2, WithCurrency("")).Currency)
}

func TestProductJSONOmitsAbsentFields(t *testing.T) {
	p := New("Bread", 2.5, WithConfidence(0.8349))
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"description", "unit_price", "unit", "special_offer", "position"} {
		assert.NotContains(t, m, key)
	}
	assert.InDelta(t, 0.83, m["confidence"], 1e-9)
	assert.InDelta(t, 0.8349, p.Confidence, 1e-9, "rounding applies to the encoding only")
}

func TestExtractionRoundTrip(t *testing.T) {
	p := New("Fresh Apples", 3.49,
		WithDescription("250g"),
		WithUnitPrice(13.96, "per kg"),
		WithSpecialOffer("Super Saver"),
		WithPosition(Position{X: 45, Y: 120, Width: 200, Height: 150}),
		WithConfidence(0.95),
	)
	ext := NewExtraction("leaflet.jpg", []Product{p}, 1234*time.Millisecond)
	assert.Regexp(t, regexp.MustCompile(`^ext-[0-9a-f]{12}$`), ext.ID)
	assert.InDelta(t, 1.23, ext.ProcessingTimeSeconds, 1e-9)
	assert.Equal(t, 1, ext.TotalProducts)

	data, err := json.Marshal(ext)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"position":{"x":45,"y":120,"width":200,"height":150}`)

	var back Extraction
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ext.ID, back.ID)
	assert.True(t, ext.Timestamp.Equal(back.Timestamp))
	assert.Equal(t, ext.Products, back.Products)
}

func TestNewExtractionEmptyProducts(t *testing.T) {
	ext := NewExtraction("empty.png", nil, 0)
	data, err := json.Marshal(ext)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"products":[]`)
	assert.Zero(t, ext.TotalProducts)
}

func TestSummary(t *testing.T) {
	ext := NewExtraction("a.jpg", []Product{New("Tea", 4)}, time.Second)
	s := ext.Summary()
	assert.Equal(t, ext.ID, s.ExtractionID)
	assert.Equal(t, 1, s.TotalProducts)
	assert.Equal(t, "a.jpg", s.SourceImage)
}

func TestWriteCSV(t *testing.T) {
	products := []Product{
		New("Fresh Apples", 3.49, WithDescription("250g"), WithUnitPrice(13.96, "per kg"),
			WithPosition(Position{X: 1, Y: 2, Width: 3, Height: 4}), WithConfidence(0.9)),
		New("Tea, Black", 4),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, products))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"Fresh Apples", "250g", "3.49", "13.96", "per kg", "AUD", "", "1", "2", "3", "4", "0.90"}, rows[1][1:])
	assert.Equal(t, "Tea, Black", rows[2][1])
	assert.Equal(t, "", rows[2][4])
}
