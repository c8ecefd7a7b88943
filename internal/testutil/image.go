package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/MeKo-Tech/leafscan/internal/ocr"
)

// RenderLeaflet draws every detection's text at its box on a white canvas.
// The result is only meant to look like a leaflet to the pipeline; tests
// pair it with the same detections through a static engine.
func RenderLeaflet(dets []ocr.Detection, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.Black), Face: basicfont.Face7x13}
	for _, det := range dets {
		d.Dot = fixed.P(det.Box.TopLeft.X, det.Box.TopLeft.Y+basicfont.Face7x13.Ascent)
		d.DrawString(det.Text)
	}
	return img
}

// PNGBytes encodes img as PNG.
func PNGBytes(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// SaveImage writes img to dir/name; the format follows the extension.
func SaveImage(t *testing.T, img image.Image, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path), "save %s", path)
	return path
}

// WriteLeaflet renders dets and saves them as a PNG in dir.
func WriteLeaflet(t *testing.T, dir, name string, dets []ocr.Detection) string {
	t.Helper()
	return SaveImage(t, RenderLeaflet(dets, 1280, 200), dir, name)
}
