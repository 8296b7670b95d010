// Package gorgonnx evaluates ONNX models in pure Go with onnx-go's
// Gorgonia backend. It needs no native library but only runs on the CPU
// and binds tensors by position rather than by name. The backend has no
// thread pool setting, so Spec.Threads is ignored.
package gorgonnx

import (
	"fmt"
	"os"

	"github.com/owulveryck/onnx-go"
	backend "github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"gorgonia.org/tensor"

	"github.com/Brownie44l1/mnist-infer/internal/model"
)

const Name = "gorgonnx"

func init() {
	model.Register(Engine{})
}

type Engine struct{}

func (Engine) Name() string { return Name }

func (Engine) Extensions() []string { return []string{".onnx"} }

func (Engine) Supports(c model.Compute) bool { return c == model.ComputeCPU }

func (e Engine) Load(spec model.Spec) (model.Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !e.Supports(spec.Compute) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedCompute, spec.Compute)
	}

	b, err := os.ReadFile(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	graph := backend.NewGraph()
	m := onnx.NewModel(graph)
	if err := m.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("decode onnx model %s: %w", spec.Path, err)
	}

	return &network{spec: spec, graph: graph, model: m}, nil
}

type network struct {
	spec  model.Spec
	graph *backend.Graph
	model *onnx.Model
}

func (n *network) Run(input, output []float32) error {
	if err := n.spec.CheckBuffers(input, output); err != nil {
		return err
	}

	shape := make([]int, len(n.spec.Input.Info.Shape))
	for i, d := range n.spec.Input.Info.Shape {
		shape[i] = int(d)
	}
	backing := append([]float32(nil), input...)
	in := tensor.New(tensor.WithShape(shape...), tensor.Of(tensor.Float32), tensor.WithBacking(backing))

	if err := n.model.SetInput(0, in); err != nil {
		return fmt.Errorf("bind input %q: %w", n.spec.Input.Name, err)
	}
	if err := n.graph.Run(); err != nil {
		return fmt.Errorf("gorgonnx: %w", err)
	}

	outputs, err := n.model.GetOutputTensors()
	if err != nil {
		return fmt.Errorf("gorgonnx: %w", err)
	}
	if len(outputs) == 0 {
		return fmt.Errorf("gorgonnx: model produced no output")
	}
	data, ok := outputs[0].Data().([]float32)
	if !ok {
		return fmt.Errorf("gorgonnx: output %q is %T, want []float32", n.spec.Output.Name, outputs[0].Data())
	}
	if len(data) != len(output) {
		return fmt.Errorf("%w: output %q holds %d values, want %d",
			model.ErrShapeMismatch, n.spec.Output.Name, len(data), len(output))
	}
	copy(output, data)
	return nil
}

func (n *network) Close() error { return nil }
