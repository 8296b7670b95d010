package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	name string
	exts []string
}

func (s stubEngine) Name() string               { return s.name }
func (s stubEngine) Extensions() []string       { return s.exts }
func (s stubEngine) Supports(Compute) bool      { return true }
func (s stubEngine) Load(Spec) (Network, error) { return nil, nil }

func register(t *testing.T, engines ...Engine) {
	t.Helper()
	for _, e := range engines {
		Register(e)
		name := e.Name()
		t.Cleanup(func() { Unregister(name) })
	}
}

func TestRegisterAndLookup(t *testing.T) {
	register(t, stubEngine{name: "stub-a", exts: []string{".a"}})

	e, err := Lookup("stub-a")
	require.NoError(t, err)
	assert.Equal(t, "stub-a", e.Name())
	assert.Contains(t, Engines(), "stub-a")

	_, err = Lookup("missing")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	register(t, stubEngine{name: "stub-dup"})
	assert.Panics(t, func() { Register(stubEngine{name: "stub-dup"}) })
	assert.Panics(t, func() { Register(nil) })
}

func TestResolveByExtension(t *testing.T) {
	register(t,
		stubEngine{name: "gorgonnx", exts: []string{".onnx"}},
		stubEngine{name: "onnxruntime", exts: []string{".onnx"}},
		stubEngine{name: "tensorflow", exts: []string{".pb", ".prototxt", ".pbtxt"}},
	)

	e, err := Resolve(AutoEngine, "model/simple_mnist.ONNX")
	require.NoError(t, err)
	assert.Equal(t, "onnxruntime", e.Name())

	e, err = Resolve("", "model/simple_mnist_tf.prototxt")
	require.NoError(t, err)
	assert.Equal(t, "tensorflow", e.Name())

	e, err = Resolve("gorgonnx", "model/simple_mnist_tf.prototxt")
	require.NoError(t, err)
	assert.Equal(t, "gorgonnx", e.Name())

	_, err = Resolve(AutoEngine, "model/weights.safetensors")
	assert.ErrorIs(t, err, ErrUnknownEngine)
}
