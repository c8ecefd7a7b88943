package pdf

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	if filepath.Ext(path) == ".jpg" {
		require.NoError(t, jpeg.Encode(f, img, nil))
		return
	}
	require.NoError(t, png.Encode(f, img))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("leaflet.pdf"))
	assert.True(t, IsPDF("LEAFLET.PDF"))
	assert.False(t, IsPDF("leaflet.png"))
}

func TestLargestImage(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "leaflet_1_Im0.png"), 20, 20)
	writeImage(t, filepath.Join(dir, "leaflet_1_Im1.jpg"), 120, 80)
	writeImage(t, filepath.Join(dir, "leaflet_1_Im2.png"), 40, 40)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	img, err := largestImage(dir)
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}

func TestLargestImageEmptyDir(t *testing.T) {
	_, err := largestImage(t.TempDir())
	assert.ErrorIs(t, err, ErrNoPageImage)
}

func TestFirstPageImageRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o600))

	_, err := FirstPageImage(path)
	assert.Error(t, err)

	_, err = FirstPageImageBytes([]byte("still not a pdf"))
	assert.Error(t, err)
}
