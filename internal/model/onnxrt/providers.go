package onnxrt

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/mnist-infer/internal/model"
)

// sessionOptions maps the requested compute backend onto an ONNX Runtime
// execution provider. The CPU provider is always present as a fallback
// inside the runtime, so ComputeCPU appends nothing.
func sessionOptions(spec model.Spec) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}

	if spec.Threads > 0 {
		if err := options.SetIntraOpNumThreads(spec.Threads); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	if err := appendProvider(options, spec.Compute); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("failed to enable %s execution provider: %w", spec.Compute, err)
	}
	return options, nil
}

func appendProvider(options *ort.SessionOptions, c model.Compute) error {
	switch c {
	case model.ComputeCPU:
		return nil
	case model.ComputeCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cudaOptions.Destroy()
		if err := cudaOptions.Update(map[string]string{"device_id": "0"}); err != nil {
			return err
		}
		return options.AppendExecutionProviderCUDA(cudaOptions)
	case model.ComputeTensorRT:
		trtOptions, err := ort.NewTensorRTProviderOptions()
		if err != nil {
			return err
		}
		defer trtOptions.Destroy()
		return options.AppendExecutionProviderTensorRT(trtOptions)
	case model.ComputeCoreML:
		return options.AppendExecutionProviderCoreML(0)
	case model.ComputeDirectML:
		return options.AppendExecutionProviderDirectML(0)
	case model.ComputeOpenVINO:
		return options.AppendExecutionProviderOpenVINO(map[string]string{})
	default:
		return fmt.Errorf("%w: %s", model.ErrUnsupportedCompute, c)
	}
}
