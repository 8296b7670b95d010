package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownCompute     = errors.New("unknown compute backend")
	ErrUnsupportedCompute = errors.New("compute backend not supported by engine")
	ErrShapeMismatch      = errors.New("tensor shape mismatch")
)

// Compute selects the hardware target the optimized network runs on.
type Compute string

const (
	ComputeCPU      Compute = "cpu"
	ComputeCUDA     Compute = "cuda"
	ComputeTensorRT Compute = "tensorrt"
	ComputeCoreML   Compute = "coreml"
	ComputeDirectML Compute = "directml"
	ComputeOpenVINO Compute = "openvino"

	DefaultCompute = ComputeCPU
)

// Computes lists every recognized compute backend.
var Computes = []Compute{
	ComputeCPU,
	ComputeCUDA,
	ComputeTensorRT,
	ComputeCoreML,
	ComputeDirectML,
	ComputeOpenVINO,
}

func ParseCompute(s string) (Compute, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultCompute, nil
	}
	for _, c := range Computes {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownCompute, s, joinComputes(Computes))
}

func joinComputes(cs []Compute) string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

type DataType int

const (
	Float32 DataType = iota + 1
)

func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

type TensorInfo struct {
	Shape    []int64
	DataType DataType
}

// Elements returns the number of scalars a buffer bound to this tensor
// must hold, or -1 when a dimension is negative or the product does not
// fit in an int.
func (t TensorInfo) Elements() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, dim := range t.Shape {
		if dim < 0 {
			return -1
		}
		if dim != 0 && n > math.MaxInt/dim {
			return -1
		}
		n *= dim
	}
	return int(n)
}

func (t TensorInfo) String() string {
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return fmt.Sprintf("%s[%s]", t.DataType, strings.Join(dims, "x"))
}

// Binding ties a named graph node to the shape of the buffer fed to it.
type Binding struct {
	Name string
	Info TensorInfo
}

// Spec is everything an Engine needs to produce a runnable network.
type Spec struct {
	Path    string
	Input   Binding
	Output  Binding
	Compute Compute

	// Threads caps intra-op parallelism; zero leaves the library default.
	Threads     int
	// LibraryPath points engines that dlopen their runtime at the shared
	// library. Empty uses the library's own lookup.
	LibraryPath string
}

func (s Spec) Validate() error {
	if s.Path == "" {
		return errors.New("model path is empty")
	}
	if s.Input.Name == "" || s.Output.Name == "" {
		return errors.New("input and output binding names are required")
	}
	if s.Input.Info.Elements() <= 0 {
		return fmt.Errorf("%w: input %s has no elements", ErrShapeMismatch, s.Input.Info)
	}
	if s.Output.Info.Elements() <= 0 {
		return fmt.Errorf("%w: output %s has no elements", ErrShapeMismatch, s.Output.Info)
	}
	if s.Input.Info.DataType != Float32 || s.Output.Info.DataType != Float32 {
		return fmt.Errorf("only %s bindings are supported", Float32)
	}
	return nil
}

// CheckBuffers reports whether the given buffers match the bound shapes.
func (s Spec) CheckBuffers(input, output []float32) error {
	if want := s.Input.Info.Elements(); len(input) != want {
		return fmt.Errorf("%w: input %q expects %d values, got %d",
			ErrShapeMismatch, s.Input.Name, want, len(input))
	}
	if want := s.Output.Info.Elements(); len(output) != want {
		return fmt.Errorf("%w: output %q expects %d values, got %d",
			ErrShapeMismatch, s.Output.Name, want, len(output))
	}
	return nil
}

// Engine wraps one inference library.
type Engine interface {
	Name() string
	// Extensions lists the model file suffixes the engine can parse,
	// lower case and including the dot.
	Extensions() []string
	Supports(c Compute) bool
	// Load parses, optimizes and loads the model described by spec.
	Load(spec Spec) (Network, error)
}

// Network is a loaded, device-resident model. Run blocks until the
// library finishes; a nil error is the success status.
type Network interface {
	Run(input, output []float32) error
	Close() error
}

type Prediction struct {
	Scores []float32
	Class  int
}

func NewPrediction(scores []float32) Prediction {
	return Prediction{Scores: scores, Class: ArgMax(scores)}
}

func (p Prediction) Confidence() float32 {
	if p.Class < 0 {
		return 0
	}
	return p.Scores[p.Class]
}

// ArgMax returns the index of the first maximum element, or -1 when
// scores is empty.
func ArgMax(scores []float32) int {
	if len(scores) == 0 {
		return -1
	}
	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores {
		if val > maxVal {
			maxVal = val
			maxIdx = i
		}
	}
	return maxIdx
}
