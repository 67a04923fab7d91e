package segment

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/openfluke/loom/nn"

	"github.com/ironsheep/segment-mcp/internal/field"
)

// ConvLayer is one same-padded convolution followed by a leaky ReLU.
//
// Weights are laid out [out][in][ky][kx], flattened row-major.
type ConvLayer struct {
	InChannels  int       `json:"in_channels"`
	OutChannels int       `json:"out_channels"`
	KernelSize  int       `json:"kernel_size"`
	Weights     []float64 `json:"weights"`
	Bias        []float64 `json:"bias"`
}

// LinearHead maps the globally averaged channels of the last layer to a scalar.
type LinearHead struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// ConvNet is a small convolutional prior over level-set fields, evaluated by
// a loom network:
//
//	a⁰ = u
//	aˡ = leaky(Wˡ * aˡ⁻¹ + bˡ)
//	R(u) = softplus(Σₒ hₒ · mean(aᴸₒ) + h₀)
//
// The head is a dense layer whose weights are hₒ/(H·W) over every pixel of
// channel o, so it computes the global average pool and the linear map in one
// step. The gradient with respect to u comes from loom's backward pass.
type ConvNet struct {
	Name        string      `json:"name"`
	InputHeight int         `json:"input_height"`
	InputWidth  int         `json:"input_width"`
	Layers      []ConvLayer `json:"layers"`
	Head        LinearHead  `json:"head"`

	mu    sync.Mutex
	net   *nn.Network
	state *nn.StepState
}

// LoadConvNet reads a JSON model file and builds its network.
func LoadConvNet(path string) (*ConvNet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model: %w", err)
	}
	defer f.Close()
	return DecodeConvNet(f)
}

// DecodeConvNet parses, validates and builds a JSON model.
func DecodeConvNet(r io.Reader) (*ConvNet, error) {
	var net ConvNet
	if err := json.NewDecoder(r).Decode(&net); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if err := net.Validate(); err != nil {
		return nil, err
	}
	net.build()
	return &net, nil
}

// Validate checks that every parameter array has the size its layer implies.
func (n *ConvNet) Validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("model %q has no layers", n.Name)
	}
	if n.InputHeight <= 0 || n.InputWidth <= 0 {
		return fmt.Errorf("model %q: input shape must be positive, got %dx%d", n.Name, n.InputHeight, n.InputWidth)
	}
	channels := 1
	for l, layer := range n.Layers {
		if layer.InChannels != channels {
			return fmt.Errorf("layer %d: in_channels %d, want %d", l, layer.InChannels, channels)
		}
		if layer.OutChannels <= 0 {
			return fmt.Errorf("layer %d: out_channels must be > 0", l)
		}
		if layer.KernelSize <= 0 || layer.KernelSize%2 == 0 {
			return fmt.Errorf("layer %d: kernel_size must be odd and positive, got %d", l, layer.KernelSize)
		}
		want := layer.OutChannels * layer.InChannels * layer.KernelSize * layer.KernelSize
		if len(layer.Weights) != want {
			return fmt.Errorf("layer %d: %d weights, want %d", l, len(layer.Weights), want)
		}
		if len(layer.Bias) != layer.OutChannels {
			return fmt.Errorf("layer %d: %d biases, want %d", l, len(layer.Bias), layer.OutChannels)
		}
		channels = layer.OutChannels
	}
	if len(n.Head.Weights) != channels {
		return fmt.Errorf("head: %d weights, want %d", len(n.Head.Weights), channels)
	}
	return nil
}

// build lays the validated parameters out as a loom network: one Conv2D
// layer per ConvLayer, padded to keep the field size, then the dense head.
func (n *ConvNet) build() {
	height, width := n.InputHeight, n.InputWidth
	pixels := height * width

	net := nn.NewNetwork(pixels, 1, 1, len(n.Layers)+1)
	net.BatchSize = 1

	for l, layer := range n.Layers {
		conv := nn.LayerConfig{
			Type:          nn.LayerConv2D,
			InputHeight:   height,
			InputWidth:    width,
			InputChannels: layer.InChannels,
			Filters:       layer.OutChannels,
			KernelSize:    layer.KernelSize,
			Stride:        1,
			Padding:       layer.KernelSize / 2,
			OutputHeight:  height,
			OutputWidth:   width,
			Activation:    nn.ActivationLeakyReLU,
		}
		conv.Kernel = toFloat32(layer.Weights)
		conv.Bias = toFloat32(layer.Bias)
		net.SetLayer(0, 0, l, conv)
	}

	channels := len(n.Head.Weights)
	head := nn.InitDenseLayer(channels*pixels, 1, nn.ActivationSoftplus)
	for o, w := range n.Head.Weights {
		g := float32(w / float64(pixels))
		for i := 0; i < pixels; i++ {
			head.Kernel[o*pixels+i] = g
		}
	}
	head.Bias[0] = float32(n.Head.Bias)
	net.SetLayer(0, 0, len(n.Layers), head)

	n.net = net
	n.state = net.InitStepState(pixels)
}

// InputShape returns the field shape the network was built for.
func (n *ConvNet) InputShape() (int, int) { return n.InputHeight, n.InputWidth }

// Penalty implements Prior. u must have the model's input shape; Learned
// rejects other shapes through CheckShape before a session starts.
func (n *ConvNet) Penalty(u *field.Field) (float64, *field.Field) {
	if u.Height() != n.InputHeight || u.Width() != n.InputWidth {
		return 0, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.state.SetInput(toFloat32(u.Data()))
	for s := 0; s < n.net.TotalLayers(); s++ {
		n.net.StepForward(n.state)
	}
	value := float64(n.state.GetOutput()[0])

	gradIn, _ := n.net.StepBackward(n.state, []float32{1})
	grad := field.New(n.InputHeight, n.InputWidth)
	data := grad.Data()
	for i := range data {
		data[i] = float64(gradIn[i])
	}
	return value, grad
}

func toFloat32(src []float64) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}
