package driver

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/mnist-infer/internal/dataset"
	"github.com/Brownie44l1/mnist-infer/internal/model"
	"github.com/Brownie44l1/mnist-infer/internal/model/modeltest"
)

func testSpec() model.Spec {
	return model.Spec{
		Path:    "model/simple_mnist_tf.prototxt",
		Input:   model.Binding{Name: "Placeholder", Info: model.TensorInfo{Shape: []int64{1, 784, 1, 1}, DataType: model.Float32}},
		Output:  model.Binding{Name: "Softmax", Info: model.TensorInfo{Shape: []int64{1, 10}, DataType: model.Float32}},
		Compute: model.ComputeCPU,
	}
}

func sampleOf(label int) Source {
	return func() (*dataset.Sample, error) {
		return &dataset.Sample{Pixels: make([]float32, dataset.PixelCount), Label: label}, nil
	}
}

func TestRun(t *testing.T) {
	engine := &modeltest.Engine{Scores: modeltest.OneHot(10, 7)}

	res, err := New(engine, testSpec(), sampleOf(7), nil).Run()
	require.NoError(t, err)
	assert.Equal(t, 7, res.Class)
	assert.Equal(t, 7, res.Actual)
	assert.Len(t, res.Scores, 10)

	require.Len(t, engine.Loaded, 1)
	assert.Equal(t, "Placeholder", engine.Loaded[0].Input.Name)
	assert.Equal(t, 1, engine.Runs)
	assert.Equal(t, 1, engine.Closed)
}

func TestRunFirstMaximumWins(t *testing.T) {
	engine := &modeltest.Engine{Scores: []float32{0, 0, 0.5, 0, 0, 0.5, 0, 0, 0, 0}}
	res, err := New(engine, testSpec(), sampleOf(2), nil).Run()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Class)
}

func TestRunSourceFailureSkipsModel(t *testing.T) {
	engine := &modeltest.Engine{Scores: modeltest.OneHot(10, 1)}
	loadErr := errors.Join(dataset.ErrLoad, errors.New("no such file"))

	res, err := New(engine, testSpec(), func() (*dataset.Sample, error) { return nil, loadErr }, nil).Run()
	assert.ErrorIs(t, err, dataset.ErrLoad)
	assert.Nil(t, res)
	assert.Empty(t, engine.Loaded)
}

func TestRunModelFailure(t *testing.T) {
	engine := &modeltest.Engine{LoadErr: errors.New("parse prototxt: bad node")}
	res, err := New(engine, testSpec(), sampleOf(3), nil).Run()
	assert.ErrorIs(t, err, ErrModel)
	assert.Nil(t, res)
	assert.Zero(t, engine.Closed)
}

func TestRunInferenceFailureClosesNetwork(t *testing.T) {
	engine := &modeltest.Engine{RunErr: errors.New("device lost")}
	res, err := New(engine, testSpec(), sampleOf(3), nil).Run()
	require.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "device lost")
	assert.Nil(t, res)
	assert.Equal(t, 1, engine.Closed)
}

func TestRunUnsupportedCompute(t *testing.T) {
	engine := &modeltest.Engine{Scores: modeltest.OneHot(10, 0)}
	spec := testSpec()
	spec.Compute = model.ComputeCoreML

	_, err := New(engine, spec, sampleOf(0), nil).Run()
	require.ErrorIs(t, err, ErrModel)
	assert.ErrorIs(t, err, model.ErrUnsupportedCompute)
	assert.Empty(t, engine.Loaded)
}

func TestRunShapeMismatch(t *testing.T) {
	engine := &modeltest.Engine{Scores: modeltest.OneHot(10, 0)}
	spec := testSpec()
	spec.Input.Info.Shape = []int64{1, 28, 28, 3}

	_, err := New(engine, spec, sampleOf(0), nil).Run()
	require.ErrorIs(t, err, ErrModel)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
	assert.Empty(t, engine.Loaded)
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{Prediction: model.NewPrediction(modeltest.OneHot(10, 7)), Actual: 7}
	require.NoError(t, r.Report(&buf))
	assert.Equal(t, "Predicted: 7\n   Actual: 7\n", buf.String())

	buf.Reset()
	r.Actual = dataset.Unlabeled
	require.NoError(t, r.Report(&buf))
	assert.Equal(t, "Predicted: 7\n   Actual: unknown\n", buf.String())
}
