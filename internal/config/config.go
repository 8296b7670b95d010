package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/mnist-infer/internal/dataset"
	"github.com/Brownie44l1/mnist-infer/internal/model"
)

const (
	DefaultDataDir    = "data/"
	DefaultModelPath  = "model/simple_mnist_tf.prototxt"
	DefaultInputName  = "Placeholder"
	DefaultOutputName = "Softmax"
)

// DefaultInputShape is the NCHW-style shape of one flattened digit.
var DefaultInputShape = []int64{1, dataset.PixelCount, 1, 1}

// Config captures the knobs of a single prediction run.
type Config struct {
	DataDir string `yaml:"data_dir"`
	Set     string `yaml:"set"`
	Index   int    `yaml:"index"`

	// Image, when set, replaces the IDX sample with a decoded image file.
	Image  string `yaml:"image"`
	Label  int    `yaml:"label"`
	Invert bool   `yaml:"invert"`

	ModelPath  string  `yaml:"model"`
	InputName  string  `yaml:"input_name"`
	OutputName string  `yaml:"output_name"`
	InputShape []int64 `yaml:"input_shape"`
	Classes    int     `yaml:"classes"`

	Engine         string `yaml:"engine"`
	Compute        string `yaml:"compute"`
	Threads        int    `yaml:"threads"`
	OnnxRuntimeLib string `yaml:"onnxruntime_lib"`

	LogLevel string `yaml:"log_level"`
}

// Default reproduces the behavior of running with no flags at all.
func Default() *Config {
	return &Config{
		DataDir:    DefaultDataDir,
		Set:        string(dataset.Test),
		Index:      0,
		Label:      dataset.Unlabeled,
		ModelPath:  DefaultModelPath,
		InputName:  DefaultInputName,
		OutputName: DefaultOutputName,
		InputShape: append([]int64(nil), DefaultInputShape...),
		Classes:    dataset.NumClasses,
		Engine:     model.AutoEngine,
		Compute:    string(model.DefaultCompute),
		LogLevel:   logrus.WarnLevel.String(),
	}
}

// Load overlays the YAML file at path onto the defaults. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Image == "" && c.DataDir == "" {
		return errors.New("data_dir must be set when no image is given")
	}
	if _, err := dataset.ParseSet(c.Set); err != nil {
		return err
	}
	if c.Index < 0 {
		return fmt.Errorf("index must be >= 0 (got %d)", c.Index)
	}
	if c.Label != dataset.Unlabeled && (c.Label < 0 || c.Label >= c.Classes) {
		return fmt.Errorf("label must be in [0, %d) or %d (got %d)", c.Classes, dataset.Unlabeled, c.Label)
	}
	if c.ModelPath == "" {
		return errors.New("model must be set")
	}
	if c.InputName == "" || c.OutputName == "" {
		return errors.New("input_name and output_name must be set")
	}
	if len(c.InputShape) == 0 {
		return errors.New("input_shape must not be empty")
	}
	for _, d := range c.InputShape {
		if d <= 0 {
			return fmt.Errorf("input_shape dimensions must be > 0 (got %v)", c.InputShape)
		}
	}
	if (model.TensorInfo{Shape: c.InputShape}).Elements() < 0 {
		return fmt.Errorf("%w: input_shape %v overflows the element count", model.ErrShapeMismatch, c.InputShape)
	}
	if c.Classes <= 0 {
		return fmt.Errorf("classes must be > 0 (got %d)", c.Classes)
	}
	if _, err := model.ParseCompute(c.Compute); err != nil {
		return err
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0 (got %d)", c.Threads)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Spec builds the model-load request. Call Validate first.
func (c *Config) Spec() model.Spec {
	compute, _ := model.ParseCompute(c.Compute)
	return model.Spec{
		Path: c.ModelPath,
		Input: model.Binding{
			Name: c.InputName,
			Info: model.TensorInfo{Shape: c.InputShape, DataType: model.Float32},
		},
		Output: model.Binding{
			Name: c.OutputName,
			Info: model.TensorInfo{Shape: []int64{1, int64(c.Classes)}, DataType: model.Float32},
		},
		Compute:     compute,
		Threads:     c.Threads,
		LibraryPath: c.OnnxRuntimeLib,
	}
}

// ParseShape parses a comma separated dimension list such as "1,784,1,1".
func ParseShape(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	shape := make([]int64, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", s, err)
		}
		shape = append(shape, d)
	}
	return shape, nil
}

// FormatShape is the inverse of ParseShape.
func FormatShape(shape []int64) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(dims, ",")
}
