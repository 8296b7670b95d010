package dataset

import (
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
)

// FromImage turns a PNG or JPEG file into a Sample the way MNIST digits
// are laid out. MNIST digits are light on dark; set invert for scans of
// dark ink on paper.
func FromImage(path string, label int, invert bool) (*Sample, error) {
	if label != Unlabeled && (label < 0 || label >= NumClasses) {
		return nil, loadError("label %d out of range [0, %d)", label, NumClasses)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, loadError("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, loadError("decode %s: %w", path, err)
	}

	return &Sample{Pixels: Preprocess(img, invert), Label: label}, nil
}

// Preprocess resizes img to 28x28 and flattens its luminance row by row.
func Preprocess(img image.Image, invert bool) []float32 {
	resized := resize.Resize(Cols, Rows, img, resize.Lanczos3)
	bounds := resized.Bounds()

	pixels := make([]float32, PixelCount)
	for y := 0; y < Rows; y++ {
		for x := 0; x < Cols; x++ {
			gray := color.Gray16Model.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			v := float32(gray.Y) / 65535.0
			if invert {
				v = 1 - v
			}
			pixels[y*Cols+x] = v
		}
	}
	return pixels
}
