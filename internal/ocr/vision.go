//go:build vision

package ocr

import (
	"context"
	"image"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/MeKo-Tech/leafscan/internal/geometry"
)

// Vision sends images to Google Cloud Vision document text detection and
// reports one detection per paragraph.
type Vision struct {
	client *vision.ImageAnnotatorClient
	filter FilterOptions
}

// NewVision creates a client from cfg.CredentialsFile, the GOOGLE_CREDENTIALS
// JSON variable, or application default credentials, in that order.
func NewVision(ctx context.Context, cfg Config) (Engine, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case os.Getenv("GOOGLE_CREDENTIALS") != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(os.Getenv("GOOGLE_CREDENTIALS"))))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, WrapError("new engine", err, "vision client")
	}
	return &Vision{client: client, filter: cfg.FilterOptions()}, nil
}

// Name implements Engine.
func (v *Vision) Name() string { return "vision" }

// Detect implements Engine.
func (v *Vision) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	data, err := encodePNG(img)
	if err != nil {
		return nil, WrapError("vision", err, "encode image")
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, WrapError("vision", err, "annotate")
	}
	if len(resp.GetResponses()) == 0 {
		return []Detection{}, nil
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return nil, WrapError("vision", ErrRecognitionFailed, r.GetError().GetMessage())
	}

	offset := img.Bounds().Min
	var dets []Detection
	for _, page := range r.GetFullTextAnnotation().GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				text := paragraphText(para)
				if text == "" {
					continue
				}
				box := polygonBox(para.GetBoundingBox()).Shift(offset.X, offset.Y)
				dets = append(dets, NewDetection(box, text, float64(para.GetConfidence())))
			}
		}
	}
	return Filter(dets, v.filter), nil
}

// Close releases the client connection.
func (v *Vision) Close() error { return v.client.Close() }

func paragraphText(p *visionpb.Paragraph) string {
	words := make([]string, 0, len(p.GetWords()))
	for _, w := range p.GetWords() {
		var sb strings.Builder
		for _, s := range w.GetSymbols() {
			sb.WriteString(s.GetText())
		}
		words = append(words, sb.String())
	}
	return strings.Join(words, " ")
}

func polygonBox(poly *visionpb.BoundingPoly) geometry.BoundingBox {
	pts := make([]geometry.Point, 0, len(poly.GetVertices()))
	for _, v := range poly.GetVertices() {
		pts = append(pts, geometry.Point{X: int(v.GetX()), Y: int(v.GetY())})
	}
	return geometry.FromPoints(pts)
}
