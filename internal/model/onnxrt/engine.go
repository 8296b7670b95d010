// Package onnxrt runs ONNX models through the ONNX Runtime C library.
// Importing it registers the "onnxruntime" engine.
package onnxrt

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/mnist-infer/internal/model"
)

const Name = "onnxruntime"

func init() {
	model.Register(&Engine{})
}

type Engine struct {
	mu sync.Mutex
	// sessions counts live networks; the environment is torn down with
	// the last one, but only if this engine created it.
	sessions int
	owned    bool
	env      environment
}

// environment is the process-wide ONNX Runtime state.
type environment interface {
	IsInitialized() bool
	Initialize(libraryPath string) error
	Destroy() error
}

type ortEnvironment struct{}

func (ortEnvironment) IsInitialized() bool { return ort.IsInitialized() }

func (ortEnvironment) Initialize(libraryPath string) error {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	return ort.InitializeEnvironment()
}

func (ortEnvironment) Destroy() error { return ort.DestroyEnvironment() }

func (e *Engine) Name() string { return Name }

func (e *Engine) Extensions() []string { return []string{".onnx"} }

func (e *Engine) Supports(c model.Compute) bool {
	switch c {
	case model.ComputeCPU, model.ComputeCUDA, model.ComputeTensorRT,
		model.ComputeCoreML, model.ComputeDirectML, model.ComputeOpenVINO:
		return true
	default:
		return false
	}
}

func (e *Engine) runtime() environment {
	if e.env == nil {
		return ortEnvironment{}
	}
	return e.env
}

func (e *Engine) acquire(libraryPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	env := e.runtime()
	if e.sessions == 0 && !env.IsInitialized() {
		if err := env.Initialize(libraryPath); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		e.owned = true
	}
	e.sessions++
	return nil
}

func (e *Engine) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions--
	if e.sessions == 0 && e.owned {
		_ = e.runtime().Destroy()
		e.owned = false
	}
}

func (e *Engine) Load(spec model.Spec) (model.Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := e.acquire(spec.LibraryPath); err != nil {
		return nil, err
	}

	n, err := newNetwork(spec)
	if err != nil {
		e.release()
		return nil, err
	}
	n.release = e.release
	return n, nil
}

type network struct {
	spec         model.Spec
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	release      func()
}

func newNetwork(spec model.Spec) (*network, error) {
	options, err := sessionOptions(spec)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Input.Info.Shape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(spec.Output.Info.Shape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(spec.Path,
		[]string{spec.Input.Name}, []string{spec.Output.Name},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &network{
		spec:         spec,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (n *network) Run(input, output []float32) error {
	if err := n.spec.CheckBuffers(input, output); err != nil {
		return err
	}
	copy(n.inputTensor.GetData(), input)

	if err := n.session.Run(); err != nil {
		return fmt.Errorf("onnxruntime: %w", err)
	}

	copy(output, n.outputTensor.GetData())
	return nil
}

func (n *network) Close() error {
	if n.session == nil {
		return nil
	}
	var firstErr error
	for _, destroy := range []func() error{
		n.session.Destroy,
		n.inputTensor.Destroy,
		n.outputTensor.Destroy,
	} {
		if err := destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	n.session = nil
	if n.release != nil {
		n.release()
	}
	return firstErr
}
