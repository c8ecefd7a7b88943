package testutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
	"github.com/MeKo-Tech/leafscan/internal/ocr"
)

// LeafletItem is one product tile on a synthetic leaflet.
type LeafletItem struct {
	Name      string
	Price     string
	Quantity  string
	UnitPrice string
	Offer     string
}

// DefaultLeafletItems are laid out left to right, 400px apart, so each
// price anchor only reaches its own tile.
var DefaultLeafletItems = []LeafletItem{
	{Name: "Fresh Apples", Price: "$3.99", Quantity: "1kg"},
	{Name: "Full Cream Milk", Price: "$4.50", Quantity: "2L", UnitPrice: "$2.25 per L"},
	{Name: "Sourdough Bread", Price: "$5.00", Offer: "Special Buy"},
}

// ApplesDetections is the three-fragment example: a name, a price and a
// quantity forming one product.
func ApplesDetections() []ocr.Detection {
	return []ocr.Detection{
		ocr.NewDetection(geometry.NewBox(10, 10, 200, 50), "Fresh Apples", 0.95),
		ocr.NewDetection(geometry.NewBox(10, 60, 100, 90), "$3.99", 0.92),
		ocr.NewDetection(geometry.NewBox(120, 90, 290, 120), "1kg", 0.88),
	}
}

// LeafletDetections returns detections for items laid out as tiles.
func LeafletDetections(items []LeafletItem) []ocr.Detection {
	var dets []ocr.Detection
	for i, item := range items {
		x := 10 + i*400
		dets = append(dets,
			ocr.NewDetection(geometry.NewBox(x, 10, x+220, 50), item.Name, 0.95),
			ocr.NewDetection(geometry.NewBox(x, 60, x+90, 95), item.Price, 0.93),
		)
		if item.Quantity != "" {
			dets = append(dets, ocr.NewDetection(geometry.NewBox(x+110, 65, x+160, 90), item.Quantity, 0.9))
		}
		if item.UnitPrice != "" {
			dets = append(dets, ocr.NewDetection(geometry.NewBox(x, 100, x+150, 120), item.UnitPrice, 0.85))
		}
		if item.Offer != "" {
			dets = append(dets, ocr.NewDetection(geometry.NewBox(x, 125, x+130, 145), item.Offer, 0.9))
		}
	}
	return dets
}

// DetectionsJSON encodes dets in the sidecar format.
func DetectionsJSON(t *testing.T, dets []ocr.Detection) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, ocr.WriteDetections(&buf, dets))
	return buf.Bytes()
}

// WriteDetectionsFile writes dets as a sidecar JSON file in dir.
func WriteDetectionsFile(t *testing.T, dir, name string, dets []ocr.Detection) string {
	t.Helper()
	return WriteFile(t, dir, name, DetectionsJSON(t, dets))
}
