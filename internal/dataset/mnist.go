// Package dataset reads single labeled digit samples from the MNIST IDX
// distribution or from an ordinary image file.
package dataset

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	Rows       = 28
	Cols       = 28
	PixelCount = Rows * Cols
	NumClasses = 10

	// Unlabeled marks a sample whose ground truth is not known.
	Unlabeled = -1

	imageMagic      = 2051
	labelMagic      = 2049
	imageHeaderSize = 16
	labelHeaderSize = 8
)

// ErrLoad is wrapped by every error returned from this package.
var ErrLoad = errors.New("sample load failed")

// Set names one half of the MNIST distribution.
type Set string

const (
	Test  Set = "t10k"
	Train Set = "train"
)

func ParseSet(s string) (Set, error) {
	switch Set(s) {
	case "", Test:
		return Test, nil
	case Train:
		return Train, nil
	default:
		return "", fmt.Errorf("unknown dataset set %q (want %s or %s)", s, Test, Train)
	}
}

func (s Set) ImagesFile() string { return string(s) + "-images-idx3-ubyte" }
func (s Set) LabelsFile() string { return string(s) + "-labels-idx1-ubyte" }

// Sample is one flattened 28x28 image with intensities in [0, 1].
type Sample struct {
	Pixels []float32
	Label  int
}

// Load reads the sample at index from the set's IDX files under dir.
func Load(dir string, set Set, index int) (*Sample, error) {
	imagePath := filepath.Join(dir, set.ImagesFile())
	labelPath := filepath.Join(dir, set.LabelsFile())

	if index < 0 {
		return nil, loadError("index %d is negative", index)
	}

	pixels, numImages, err := readImage(imagePath, index)
	if err != nil {
		return nil, err
	}
	label, numLabels, err := readLabel(labelPath, index)
	if err != nil {
		return nil, err
	}
	if numImages != numLabels {
		return nil, loadError("image count %d != label count %d", numImages, numLabels)
	}

	return &Sample{Pixels: pixels, Label: label}, nil
}

func readImage(path string, index int) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, loadError("open images: %w", err)
	}
	defer f.Close()

	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return nil, 0, loadError("read image header %s: %w", path, err)
	}
	if header.Magic != imageMagic {
		return nil, 0, loadError("%s: invalid magic number: got %d, want %d", path, header.Magic, imageMagic)
	}
	if header.Rows != Rows || header.Cols != Cols {
		return nil, 0, loadError("%s: image is %dx%d, want %dx%d", path, header.Rows, header.Cols, Rows, Cols)
	}
	count := int(header.Count)
	if index >= count {
		return nil, 0, loadError("index %d out of range: %s holds %d images", index, path, count)
	}

	offset := int64(imageHeaderSize) + int64(index)*PixelCount
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, 0, loadError("seek image %d: %w", index, err)
	}
	raw := make([]byte, PixelCount)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, 0, loadError("read image %d: %w", index, err)
	}

	pixels := make([]float32, PixelCount)
	for i, b := range raw {
		pixels[i] = float32(b) / 255.0
	}
	return pixels, count, nil
}

func readLabel(path string, index int) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, loadError("open labels: %w", err)
	}
	defer f.Close()

	var header struct {
		Magic, Count uint32
	}
	if err := binary.Read(f, binary.BigEndian, &header); err != nil {
		return 0, 0, loadError("read label header %s: %w", path, err)
	}
	if header.Magic != labelMagic {
		return 0, 0, loadError("%s: invalid magic number: got %d, want %d", path, header.Magic, labelMagic)
	}
	count := int(header.Count)
	if index >= count {
		return 0, 0, loadError("index %d out of range: %s holds %d labels", index, path, count)
	}

	if _, err := f.Seek(int64(labelHeaderSize)+int64(index), io.SeekStart); err != nil {
		return 0, 0, loadError("seek label %d: %w", index, err)
	}
	var b [1]byte
	if _, err := io.ReadFull(f, b[:]); err != nil {
		return 0, 0, loadError("read label %d: %w", index, err)
	}
	if int(b[0]) >= NumClasses {
		return 0, 0, loadError("label %d at index %d out of range [0, %d)", b[0], index, NumClasses)
	}
	return int(b[0]), count, nil
}

func loadError(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrLoad, fmt.Errorf(format, args...))
}
