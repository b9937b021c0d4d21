package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newTestNet(t *testing.T, seed int64) *NeuralNet {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	net, err := New(4, 1, Tanh, 1.0, rng)
	require.NoError(t, err)
	require.NoError(t, net.AddHiddenLayer(6, Tanh, rng))
	require.NoError(t, net.AddHiddenLayer(3, ReLU, rng))
	return net
}

func TestApplyActivation(t *testing.T) {
	tests := []struct {
		name string
		act  Activation
		x    float64
		want float64
	}{
		{name: "identity", act: Identity, x: 2.5, want: 2.5},
		{name: "relu-negative", act: ReLU, x: -1, want: 0},
		{name: "relu-positive", act: ReLU, x: 3, want: 3},
		{name: "tanh", act: Tanh, x: 0, want: 0},
		{name: "sigmoid", act: Sigmoid, x: 0, want: 0.5},
		{name: "clamped", act: Clamped, x: 4, want: 1},
		{name: "hat", act: Hat, x: 0.25, want: 0.75},
		{name: "square", act: Square, x: -3, want: 9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.act.Apply(tc.x), 1e-9)
		})
	}
}

func TestParseActivation(t *testing.T) {
	a, err := ParseActivation(" TANH ")
	require.NoError(t, err)
	assert.Equal(t, Tanh, a)
	assert.Equal(t, "tanh", a.String())

	_, err = ParseActivation("none")
	assert.Error(t, err)
}

func TestNewRejectsBadShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := New(0, 1, Tanh, 1, rng)
	assert.Error(t, err)
	_, err = New(2, 0, Tanh, 1, rng)
	assert.Error(t, err)

	net, err := New(2, 1, Tanh, 1, rng)
	require.NoError(t, err)
	assert.Error(t, net.AddHiddenLayer(0, Tanh, rng))
}

func TestAddHiddenLayerShapes(t *testing.T) {
	net := newTestNet(t, 1)

	assert.Equal(t, []int{4, 6, 3, 1}, net.LayerSizes())
	assert.Equal(t, []Activation{Identity, Tanh, ReLU, Tanh}, net.Activations())
	require.Equal(t, 3, net.NumWeightLayers())

	shapes := [][2]int{{6, 4}, {3, 6}, {1, 3}}
	for i, w := range net.Weights() {
		r, c := w.Dims()
		assert.Equal(t, shapes[i], [2]int{r, c}, "weight layer %d", i)
	}
}

func TestAddHiddenLayerPreservesEarlierWeights(t *testing.T) {
	net := newTestNet(t, 2)
	before := net.Weights()

	require.NoError(t, net.AddHiddenLayer(5, Sigmoid, rand.New(rand.NewSource(3))))

	after := net.Weights()
	require.Len(t, after, 4)
	assert.True(t, mat.Equal(before[0], after[0]))
	assert.True(t, mat.Equal(before[1], after[1]))
	assert.Equal(t, []int{4, 6, 3, 5, 1}, net.LayerSizes())
}

func TestEvaluateDeterministic(t *testing.T) {
	net := newTestNet(t, 4)
	input := []float64{0.1, -0.3, 2, 0.5}

	first, err := net.Evaluate(input)
	require.NoError(t, err)
	second, err := net.Evaluate(input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 1)
	assert.LessOrEqual(t, math.Abs(first[0]), 1.0)
}

func TestEvaluateKnownWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	net, err := New(2, 1, Identity, 1, rng)
	require.NoError(t, err)
	require.NoError(t, net.SetWeights(0, mat.NewDense(1, 2, []float64{2, -1})))

	out, err := net.Evaluate([]float64{1, 0.25})
	require.NoError(t, err)
	assert.InDelta(t, 1.75, out[0], 1e-12)
}

func TestEvaluateReturnsCopy(t *testing.T) {
	net := newTestNet(t, 6)
	input := []float64{1, 2, 3, 4}

	out, err := net.Evaluate(input)
	require.NoError(t, err)
	want := out[0]
	out[0] = 1000

	again, err := net.Evaluate(input)
	require.NoError(t, err)
	assert.Equal(t, want, again[0])
}

func TestEvaluateInputSize(t *testing.T) {
	net := newTestNet(t, 7)

	_, err := net.Evaluate([]float64{1, 2, 3, 4, 5})
	require.ErrorIs(t, err, ErrInputSize)

	full, err := net.Evaluate([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	// Missing trailing inputs keep their previous values.
	partial, err := net.Evaluate([]float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, full, partial)
}

func TestCopyIndependence(t *testing.T) {
	net := newTestNet(t, 8)
	orig := net.Weights()

	cp := net.Copy()
	cp.weights[0].Set(0, 0, 99)
	cp.nodes[0][0] = 42

	assert.True(t, mat.Equal(orig[0], net.weights[0]))
	assert.NotEqual(t, 42.0, net.nodes[0][0])
}

func TestNoisyCopy(t *testing.T) {
	net := newTestNet(t, 9)
	noisy := net.NoisyCopy(0.5, rand.New(rand.NewSource(10)))

	assert.Equal(t, net.LayerSizes(), noisy.LayerSizes())
	for i := range net.weights {
		assert.False(t, mat.Equal(net.weights[i], noisy.weights[i]), "layer %d unchanged", i)
	}

	same := net.NoisyCopy(0, rand.New(rand.NewSource(10)))
	for i := range net.weights {
		assert.True(t, mat.Equal(net.weights[i], same.weights[i]))
	}
}

func TestSetWeightsShapeMismatch(t *testing.T) {
	net := newTestNet(t, 11)
	assert.Error(t, net.SetWeights(0, mat.NewDense(2, 2, nil)))
	assert.Error(t, net.SetWeights(5, mat.NewDense(1, 1, nil)))
}

func TestSnapshotIsDetached(t *testing.T) {
	net := newTestNet(t, 12)
	snap := net.Snapshot()
	snap.Weights[0].Set(0, 0, 123)
	snap.Nodes[0][0] = 5

	assert.NotEqual(t, 123.0, net.weights[0].At(0, 0))
	assert.Equal(t, []int{4, 6, 3, 1}, snap.LayerSizes)
	assert.Contains(t, net.String(), "layers: [4 6 3 1]")
}
