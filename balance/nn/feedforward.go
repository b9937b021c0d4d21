package nn

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrInputSize is returned when Evaluate receives more inputs than the input layer holds.
var ErrInputSize = errors.New("input vector larger than input layer")

// NeuralNet is a fixed-topology, fully connected feed-forward network.
//
// Layer 0 is the input layer, the last layer is the output layer and every layer in
// between is a hidden layer added with AddHiddenLayer. weights[i] maps layer i onto
// layer i+1 and has shape (len(nodes[i+1]), len(nodes[i])).
type NeuralNet struct {
	nodes       [][]float64  // Node values of the last evaluation, one slice per layer
	weights     []*mat.Dense // len(weights) == len(nodes)-1
	activations []Activation // len(activations) == len(nodes); activations[0] is unused
	weightRange float64      // Weights are initialized uniformly in [-weightRange, weightRange]
}

// New creates a network with an input and an output layer joined by a random weight matrix.
func New(inputSize, outputSize int, outputActivation Activation, weightRange float64, rng *rand.Rand) (*NeuralNet, error) {
	if inputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", inputSize)
	}
	if outputSize <= 0 {
		return nil, fmt.Errorf("output size must be positive, got %d", outputSize)
	}
	if !outputActivation.Valid() {
		return nil, fmt.Errorf("unknown output activation %s", outputActivation)
	}
	if weightRange < 0 {
		return nil, fmt.Errorf("weight range cannot be negative, got %f", weightRange)
	}

	net := &NeuralNet{
		nodes:       [][]float64{make([]float64, inputSize), make([]float64, outputSize)},
		activations: []Activation{Identity, outputActivation},
		weightRange: weightRange,
	}
	net.weights = []*mat.Dense{randomMatrix(outputSize, inputSize, weightRange, rng)}
	return net, nil
}

// AddHiddenLayer inserts a hidden layer directly in front of the output layer.
// The matrices into the new layer and from it to the output are freshly randomized;
// every other weight matrix is preserved.
func (net *NeuralNet) AddHiddenLayer(size int, activation Activation, rng *rand.Rand) error {
	if size <= 0 {
		return fmt.Errorf("hidden layer size must be positive, got %d", size)
	}
	if !activation.Valid() {
		return fmt.Errorf("unknown hidden activation %s", activation)
	}

	last := len(net.nodes) - 1
	prevSize := len(net.nodes[last-1])
	outSize := len(net.nodes[last])

	output := net.nodes[last]
	net.nodes = append(net.nodes[:last:last], make([]float64, size), output)

	outputAct := net.activations[last]
	net.activations = append(net.activations[:last:last], activation, outputAct)

	net.weights = append(net.weights[:last-1:last-1],
		randomMatrix(size, prevSize, net.weightRange, rng),
		randomMatrix(outSize, size, net.weightRange, rng),
	)
	return nil
}

// Evaluate propagates input through the network and returns a copy of the output layer.
//
// Supplying fewer values than the input layer holds leaves the remaining inputs at their
// values from the previous call.
func (net *NeuralNet) Evaluate(input []float64) ([]float64, error) {
	if len(input) > len(net.nodes[0]) {
		return nil, fmt.Errorf("%w: got %d values for %d inputs", ErrInputSize, len(input), len(net.nodes[0]))
	}
	copy(net.nodes[0], input)

	for i, w := range net.weights {
		src := mat.NewVecDense(len(net.nodes[i]), net.nodes[i])
		dst := mat.NewVecDense(len(net.nodes[i+1]), net.nodes[i+1])
		dst.MulVec(w, src)

		act := net.activations[i+1]
		layer := net.nodes[i+1]
		for j, raw := range layer {
			layer[j] = act.Apply(raw)
		}
	}

	out := net.nodes[len(net.nodes)-1]
	result := make([]float64, len(out))
	copy(result, out)
	return result, nil
}

// Copy returns an independent deep clone of the network.
func (net *NeuralNet) Copy() *NeuralNet {
	cp := &NeuralNet{
		nodes:       make([][]float64, len(net.nodes)),
		weights:     make([]*mat.Dense, len(net.weights)),
		activations: append([]Activation(nil), net.activations...),
		weightRange: net.weightRange,
	}
	for i, layer := range net.nodes {
		cp.nodes[i] = append([]float64(nil), layer...)
	}
	for i, w := range net.weights {
		cp.weights[i] = mat.DenseCopyOf(w)
	}
	return cp
}

// NoisyCopy returns a deep clone with independent Gaussian noise of the given standard
// deviation added to every weight.
func (net *NeuralNet) NoisyCopy(stdDev float64, rng *rand.Rand) *NeuralNet {
	cp := net.Copy()
	for _, w := range cp.weights {
		w.Apply(func(_, _ int, v float64) float64 {
			return v + rng.NormFloat64()*stdDev
		}, w)
	}
	return cp
}

// InputSize returns the number of input nodes.
func (net *NeuralNet) InputSize() int { return len(net.nodes[0]) }

// OutputSize returns the number of output nodes.
func (net *NeuralNet) OutputSize() int { return len(net.nodes[len(net.nodes)-1]) }

// NumWeightLayers returns the number of weight matrices (layers - 1).
func (net *NeuralNet) NumWeightLayers() int { return len(net.weights) }

// LayerSizes returns the node count of every layer, input first.
func (net *NeuralNet) LayerSizes() []int {
	sizes := make([]int, len(net.nodes))
	for i, layer := range net.nodes {
		sizes[i] = len(layer)
	}
	return sizes
}

// Activations returns the activation of every layer. The first entry is unused.
func (net *NeuralNet) Activations() []Activation {
	return append([]Activation(nil), net.activations...)
}

// Weights returns deep copies of all weight matrices.
func (net *NeuralNet) Weights() []*mat.Dense {
	out := make([]*mat.Dense, len(net.weights))
	for i, w := range net.weights {
		out[i] = mat.DenseCopyOf(w)
	}
	return out
}

// SetWeights replaces weight matrix i with a copy of m. The shape must match.
func (net *NeuralNet) SetWeights(i int, m mat.Matrix) error {
	if i < 0 || i >= len(net.weights) {
		return fmt.Errorf("weight layer %d out of range [0,%d)", i, len(net.weights))
	}
	wr, wc := net.weights[i].Dims()
	r, c := m.Dims()
	if r != wr || c != wc {
		return fmt.Errorf("weight layer %d has shape %dx%d, got %dx%d", i, wr, wc, r, c)
	}
	net.weights[i] = mat.DenseCopyOf(m)
	return nil
}

// Snapshot is a read-only view of a network for renderers.
type Snapshot struct {
	LayerSizes  []int
	Activations []Activation
	Weights     []*mat.Dense
	Nodes       [][]float64
}

// Snapshot copies the network state into a Snapshot.
func (net *NeuralNet) Snapshot() Snapshot {
	nodes := make([][]float64, len(net.nodes))
	for i, layer := range net.nodes {
		nodes[i] = append([]float64(nil), layer...)
	}
	return Snapshot{
		LayerSizes:  net.LayerSizes(),
		Activations: net.Activations(),
		Weights:     net.Weights(),
		Nodes:       nodes,
	}
}

// String returns a readable dump of the layers and weights.
func (net *NeuralNet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "NeuralNet(layers: %v)\n", net.LayerSizes())
	for i, w := range net.weights {
		fmt.Fprintf(&b, " layer %d -> %d (%s):\n", i, i+1, net.activations[i+1])
		fmt.Fprintf(&b, "%v\n", mat.Formatted(w, mat.Prefix(" "), mat.Squeeze()))
	}
	return b.String()
}

func randomMatrix(rows, cols int, weightRange float64, rng *rand.Rand) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * weightRange
	}
	return mat.NewDense(rows, cols, data)
}
