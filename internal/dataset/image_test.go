package dataset

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, size int, fill color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, fill)
		}
	}
	path := filepath.Join(t.TempDir(), "digit.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestFromImage(t *testing.T) {
	path := writePNG(t, 56, color.White)

	s, err := FromImage(path, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Label)
	require.Len(t, s.Pixels, PixelCount)
	assert.InDelta(t, 1.0, s.Pixels[0], 1e-3)
	assert.InDelta(t, 1.0, s.Pixels[PixelCount/2], 1e-3)

	inv, err := FromImage(path, Unlabeled, true)
	require.NoError(t, err)
	assert.Equal(t, Unlabeled, inv.Label)
	assert.InDelta(t, 0.0, inv.Pixels[PixelCount/2], 1e-3)
}

func TestFromImageErrors(t *testing.T) {
	_, err := FromImage(filepath.Join(t.TempDir(), "missing.png"), 1, false)
	assert.ErrorIs(t, err, ErrLoad)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = FromImage(garbage, 1, false)
	assert.ErrorIs(t, err, ErrLoad)

	_, err = FromImage(writePNG(t, 28, color.Black), 10, false)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestPreprocessKeepsShape(t *testing.T) {
	img := image.NewGray(image.Rect(10, 10, 50, 90))
	pixels := Preprocess(img, false)
	assert.Len(t, pixels, PixelCount)
	for _, p := range pixels {
		assert.InDelta(t, 0.0, p, 1e-6)
	}
}
