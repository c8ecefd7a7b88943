package product

import (
	"time"

	"github.com/MeKo-Tech/leafscan/internal/pricing"
)

// Extraction is the exported result of processing one image.
type Extraction struct {
	ID                    string    `json:"extraction_id"`
	Timestamp             time.Time `json:"timestamp"`
	SourceImage           string    `json:"source_image"`
	Products              []Product `json:"products"`
	TotalProducts         int       `json:"total_products"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
}

// NewExtraction wraps products with a fresh "ext-" id, the current time and
// the elapsed processing time in seconds rounded to two decimals.
func NewExtraction(sourceImage string, products []Product, elapsed time.Duration) *Extraction {
	if products == nil {
		products = []Product{}
	}
	return &Extraction{
		ID:                    NewExtractionID(),
		Timestamp:             time.Now(),
		SourceImage:           sourceImage,
		Products:              products,
		TotalProducts:         len(products),
		ProcessingTimeSeconds: pricing.NormalizePrice(elapsed.Seconds()),
	}
}

// NewExtractionID returns "ext-" followed by 12 hex characters.
func NewExtractionID() string {
	return "ext-" + hexID(12)
}

// Summary is the listing view of a stored extraction.
type Summary struct {
	Filename      string    `json:"filename,omitempty"`
	Location      string    `json:"filepath,omitempty"`
	ExtractionID  string    `json:"extraction_id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalProducts int       `json:"total_products"`
	SourceImage   string    `json:"source_image"`
}

// Summary returns the listing view of e.
func (e *Extraction) Summary() Summary {
	return Summary{
		ExtractionID:  e.ID,
		Timestamp:     e.Timestamp,
		TotalProducts: e.TotalProducts,
		SourceImage:   e.SourceImage,
	}
}
