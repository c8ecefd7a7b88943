package product

import (
	"encoding/csv"
	"io"
	"strconv"
)

// CSVHeader lists the columns written by WriteCSV.
var CSVHeader = []string{"id", "name", "description", "price", "unit_price", "unit", "currency", "special_offer", "x", "y", "width", "height", "confidence"}

// WriteCSV writes a header row followed by one row per product.
func WriteCSV(w io.Writer, products []Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, p := range products {
		if err := cw.Write(p.CSVRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVRecord returns p's row in CSVHeader column order.
func (p Product) CSVRecord() []string {
	money := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	unitPrice := ""
	if p.UnitPrice != nil {
		unitPrice = money(*p.UnitPrice)
	}
	pos := []string{"", "", "", ""}
	if p.Position != nil {
		pos = []string{
			strconv.Itoa(p.Position.X), strconv.Itoa(p.Position.Y),
			strconv.Itoa(p.Position.Width), strconv.Itoa(p.Position.Height),
		}
	}
	rec := []string{p.ID, p.Name, p.Description, money(p.Price), unitPrice, p.Unit, p.Currency, p.SpecialOffer}
	rec = append(rec, pos...)
	return append(rec, money(p.Confidence))
}
