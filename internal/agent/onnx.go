package agent

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/alanyoungcy/tradereward/internal/env"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// InitializeORT loads the onnxruntime shared library once per process. An
// empty libPath picks the platform default.
func InitializeORT(libPath string) error {
	ortOnce.Do(func() {
		if libPath == "" {
			switch runtime.GOOS {
			case "windows":
				libPath = "onnxruntime.dll"
			case "darwin":
				libPath = "libonnxruntime.dylib"
			default:
				libPath = "/usr/lib/libonnxruntime.so"
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXPolicy runs an exported policy network and acts greedily on its
// logits. The model takes a [1, window, width] float32 input named "input"
// and returns [1, actions] logits named "output".
type ONNXPolicy struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXPolicy loads the model at path.
func NewONNXPolicy(path, libPath string, window, width, actions int) (*ONNXPolicy, error) {
	if err := InitializeORT(libPath); err != nil {
		return nil, fmt.Errorf("agent: init onnxruntime: %w", err)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(window), int64(width)), make([]float32, window*width))
	if err != nil {
		return nil, fmt.Errorf("agent: input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(actions)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("agent: output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(path,
		[]string{"input"}, []string{"output"},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("agent: load %s: %w", path, err)
	}
	return &ONNXPolicy{session: session, input: input, output: output}, nil
}

func (p *ONNXPolicy) Name() string { return "onnx" }

// Act copies the observation into the input tensor and returns the argmax
// of the output logits.
func (p *ONNXPolicy) Act(obs env.Observation) (int, error) {
	flat := obs.Flatten()
	data := p.input.GetData()
	if len(flat) != len(data) {
		return 0, fmt.Errorf("agent: observation has %d values, model expects %d", len(flat), len(data))
	}
	for i, v := range flat {
		data[i] = float32(v)
	}
	if err := p.session.Run(); err != nil {
		return 0, fmt.Errorf("agent: inference: %w", err)
	}
	return argmax(p.output.GetData()), nil
}

// Close releases the session and tensors.
func (p *ONNXPolicy) Close() {
	if p.session != nil {
		p.session.Destroy()
	}
	if p.input != nil {
		p.input.Destroy()
	}
	if p.output != nil {
		p.output.Destroy()
	}
}

func argmax(logits []float32) int {
	best, idx := float32(math.Inf(-1)), 0
	for i, v := range logits {
		if v > best {
			best, idx = v, i
		}
	}
	return idx
}
