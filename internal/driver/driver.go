package driver

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/mnist-infer/internal/dataset"
	"github.com/Brownie44l1/mnist-infer/internal/model"
)

var (
	ErrModel     = errors.New("model load failed")
	ErrInference = errors.New("inference failed")
)

// Source produces the sample to classify.
type Source func() (*dataset.Sample, error)

func IDXSource(dir string, set dataset.Set, index int) Source {
	return func() (*dataset.Sample, error) {
		return dataset.Load(dir, set, index)
	}
}

func ImageSource(path string, label int, invert bool) Source {
	return func() (*dataset.Sample, error) {
		return dataset.FromImage(path, label, invert)
	}
}

type Result struct {
	model.Prediction
	Actual int
}

// Report writes the predicted and actual class, one per line.
func (r *Result) Report(w io.Writer) error {
	actual := "unknown"
	if r.Actual != dataset.Unlabeled {
		actual = fmt.Sprint(r.Actual)
	}
	_, err := fmt.Fprintf(w, "Predicted: %d\n   Actual: %s\n", r.Class, actual)
	return err
}

type Driver struct {
	engine model.Engine
	spec   model.Spec
	source Source
	log    logrus.FieldLogger
}

func New(engine model.Engine, spec model.Spec, source Source, log logrus.FieldLogger) *Driver {
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Driver{
		engine: engine,
		spec:   spec,
		source: source,
		log:    log,
	}
}

// Run classifies one sample. Every failure is terminal: no prediction is
// returned alongside an error.
func (d *Driver) Run() (*Result, error) {
	sample, err := d.source()
	if err != nil {
		return nil, err
	}
	d.log.WithField("label", sample.Label).Debug("sample loaded")

	if err := d.spec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	scores := make([]float32, d.spec.Output.Info.Elements())
	if err := d.spec.CheckBuffers(sample.Pixels, scores); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	if !d.engine.Supports(d.spec.Compute) {
		return nil, fmt.Errorf("%w: %w: %s on %s", ErrModel, model.ErrUnsupportedCompute, d.spec.Compute, d.engine.Name())
	}

	log := d.log.WithFields(logrus.Fields{
		"engine":  d.engine.Name(),
		"compute": d.spec.Compute,
		"model":   d.spec.Path,
	})
	log.Info("loading model")

	network, err := d.engine.Load(d.spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModel, err)
	}
	defer func() {
		if err := network.Close(); err != nil {
			log.WithError(err).Warn("failed to release network")
		}
	}()

	if err := network.Run(sample.Pixels, scores); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	result := &Result{
		Prediction: model.NewPrediction(scores),
		Actual:     sample.Label,
	}
	log.WithFields(logrus.Fields{
		"predicted":  result.Class,
		"confidence": result.Confidence(),
	}).Info("inference complete")
	return result, nil
}
