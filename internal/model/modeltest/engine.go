// Package modeltest provides an in-memory model.Engine for tests that
// must not depend on a native inference library.
package modeltest

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/mnist-infer/internal/model"
)

// Engine answers every Run with Scores, or with Classify(input) when set.
type Engine struct {
	EngineName string
	Exts       []string
	Computes   []model.Compute

	Scores   []float32
	Classify func(input []float32) []float32

	LoadErr error
	RunErr  error

	// Recorded calls.
	Loaded []model.Spec
	Runs   int
	Closed int
}

func (e *Engine) Name() string {
	if e.EngineName == "" {
		return "fake"
	}
	return e.EngineName
}

func (e *Engine) Extensions() []string {
	return e.Exts
}

func (e *Engine) Supports(c model.Compute) bool {
	if len(e.Computes) == 0 {
		return c == model.ComputeCPU
	}
	for _, s := range e.Computes {
		if s == c {
			return true
		}
	}
	return false
}

func (e *Engine) Load(spec model.Spec) (model.Network, error) {
	e.Loaded = append(e.Loaded, spec)
	if e.LoadErr != nil {
		return nil, e.LoadErr
	}
	if !e.Supports(spec.Compute) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedCompute, spec.Compute)
	}
	return &network{engine: e, spec: spec}, nil
}

type network struct {
	engine *Engine
	spec   model.Spec
}

func (n *network) Run(input, output []float32) error {
	n.engine.Runs++
	if err := n.spec.CheckBuffers(input, output); err != nil {
		return err
	}
	if n.engine.RunErr != nil {
		return n.engine.RunErr
	}
	scores := n.engine.Scores
	if n.engine.Classify != nil {
		scores = n.engine.Classify(input)
	}
	if len(scores) != len(output) {
		return errors.New("modeltest: canned scores do not match output size")
	}
	copy(output, scores)
	return nil
}

func (n *network) Close() error {
	n.engine.Closed++
	return nil
}

// OneHot returns a score vector of length n peaking at class.
func OneHot(n, class int) []float32 {
	scores := make([]float32, n)
	if class >= 0 && class < n {
		scores[class] = 1
	}
	return scores
}
