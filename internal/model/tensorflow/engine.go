// Package tensorflow runs frozen TensorFlow graphs through the TensorFlow
// C library. Importing it registers the "tensorflow" engine.
package tensorflow

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tf "github.com/wamuir/graft/tensorflow"
	framework "github.com/wamuir/graft/tensorflow/core/framework/graph_go_proto"
	corepb "github.com/wamuir/graft/tensorflow/core/protobuf/for_core_protos_go_proto"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"

	"github.com/Brownie44l1/mnist-infer/internal/model"
)

const Name = "tensorflow"

func init() {
	model.Register(Engine{})
}

type Engine struct{}

func (Engine) Name() string { return Name }

func (Engine) Extensions() []string { return []string{".pb", ".prototxt", ".pbtxt"} }

func (Engine) Supports(c model.Compute) bool {
	return c == model.ComputeCPU || c == model.ComputeCUDA
}

func (e Engine) Load(spec model.Spec) (model.Network, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if !e.Supports(spec.Compute) {
		return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedCompute, spec.Compute)
	}

	def, err := ReadGraphDef(spec.Path)
	if err != nil {
		return nil, err
	}

	graph := tf.NewGraph()
	if err := graph.Import(def, ""); err != nil {
		return nil, fmt.Errorf("import graph %s: %w", spec.Path, err)
	}

	input := graph.Operation(spec.Input.Name)
	if input == nil {
		return nil, fmt.Errorf("input node %q not found in %s", spec.Input.Name, spec.Path)
	}
	output := graph.Operation(spec.Output.Name)
	if output == nil {
		return nil, fmt.Errorf("output node %q not found in %s", spec.Output.Name, spec.Path)
	}

	options, err := sessionOptions(spec)
	if err != nil {
		return nil, err
	}
	session, err := tf.NewSession(graph, options)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if spec.Compute == model.ComputeCUDA {
		devices, err := session.ListDevices()
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("list devices: %w", err)
		}
		if !hasGPU(devices) {
			session.Close()
			return nil, fmt.Errorf("%w: %s requested but the session sees no GPU", model.ErrUnsupportedCompute, spec.Compute)
		}
	}

	return &network{
		spec:    spec,
		session: session,
		input:   input.Output(0),
		output:  output.Output(0),
	}, nil
}

// ReadGraphDef returns the binary GraphDef stored at path. Text-format
// graphs (.prototxt, .pbtxt) are parsed and re-encoded.
func ReadGraphDef(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".prototxt", ".pbtxt":
		var def framework.GraphDef
		if err := prototext.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parse text graph %s: %w", path, err)
		}
		bin, err := proto.Marshal(&def)
		if err != nil {
			return nil, fmt.Errorf("encode graph %s: %w", path, err)
		}
		return bin, nil
	default:
		return raw, nil
	}
}

// sessionOptions hides every GPU from the session when the CPU backend
// is requested and caps intra-op parallelism when spec.Threads is set.
func sessionOptions(spec model.Spec) (*tf.SessionOptions, error) {
	config := &corepb.ConfigProto{}
	if spec.Compute == model.ComputeCPU {
		config.DeviceCount = map[string]int32{"GPU": 0}
	}
	if spec.Threads > 0 {
		config.IntraOpParallelismThreads = int32(spec.Threads)
	}
	b, err := proto.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encode session config: %w", err)
	}
	return &tf.SessionOptions{Config: b}, nil
}

func hasGPU(devices []tf.Device) bool {
	for _, d := range devices {
		if strings.EqualFold(d.Type, "GPU") {
			return true
		}
	}
	return false
}

type network struct {
	spec    model.Spec
	session *tf.Session
	input   tf.Output
	output  tf.Output
}

func (n *network) Run(input, output []float32) error {
	if err := n.spec.CheckBuffers(input, output); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, input); err != nil {
		return err
	}
	in, err := tf.ReadTensor(tf.Float, n.spec.Input.Info.Shape, &buf)
	if err != nil {
		return fmt.Errorf("build input tensor: %w", err)
	}

	results, err := n.session.Run(
		map[tf.Output]*tf.Tensor{n.input: in},
		[]tf.Output{n.output},
		nil,
	)
	if err != nil {
		return fmt.Errorf("tensorflow: %w", err)
	}
	if len(results) != 1 {
		return fmt.Errorf("tensorflow: expected 1 output tensor, got %d", len(results))
	}
	out := results[0]
	if out.DataType() != tf.Float {
		return fmt.Errorf("tensorflow: output %q has type %v, want float", n.spec.Output.Name, out.DataType())
	}

	buf.Reset()
	if _, err := out.WriteContentsTo(&buf); err != nil {
		return fmt.Errorf("read output tensor: %w", err)
	}
	if buf.Len() != len(output)*4 {
		return fmt.Errorf("%w: output %q holds %d values, want %d",
			model.ErrShapeMismatch, n.spec.Output.Name, buf.Len()/4, len(output))
	}
	return binary.Read(&buf, binary.NativeEndian, output)
}

func (n *network) Close() error {
	if n.session == nil {
		return nil
	}
	err := n.session.Close()
	n.session = nil
	return err
}
