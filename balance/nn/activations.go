package nn

import (
	"fmt"
	"math"
	"strings"
)

// Activation identifies an element-wise activation function.
// Activations are stored by identifier (not as closures) so networks can be serialized.
type Activation uint8

const (
	Identity Activation = iota
	Sigmoid
	Tanh
	ReLU
	Clamped
	Gaussian
	Absolute
	Sine
	Hat
	Square
)

var activationNames = map[Activation]string{
	Identity: "identity",
	Sigmoid:  "sigmoid",
	Tanh:     "tanh",
	ReLU:     "relu",
	Clamped:  "clamped",
	Gaussian: "gaussian",
	Absolute: "absolute",
	Sine:     "sine",
	Hat:      "hat",
	Square:   "square",
}

// ActivationFunctions maps configuration names to activation identifiers.
var ActivationFunctions = map[string]Activation{
	"identity": Identity,
	"linear":   Identity, // Alias for identity
	"sigmoid":  Sigmoid,
	"tanh":     Tanh,
	"relu":     ReLU,
	"clamped":  Clamped,
	"gaussian": Gaussian,
	"absolute": Absolute,
	"abs":      Absolute, // Alias for absolute
	"sine":     Sine,
	"hat":      Hat,
	"square":   Square,
}

// ParseActivation retrieves an activation identifier by name.
func ParseActivation(name string) (Activation, error) {
	if a, ok := ActivationFunctions[strings.ToLower(strings.TrimSpace(name))]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("unknown activation function: %s", name)
}

// String returns the configuration name of the activation.
func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("activation(%d)", uint8(a))
}

// Valid reports whether a is a known activation.
func (a Activation) Valid() bool {
	_, ok := activationNames[a]
	return ok
}

// Apply evaluates the activation at x.
func (a Activation) Apply(x float64) float64 {
	switch a {
	case Sigmoid:
		return 1.0 / (1.0 + math.Exp(-x))
	case Tanh:
		return math.Tanh(x)
	case ReLU:
		return math.Max(0, x)
	case Clamped:
		return math.Max(-1.0, math.Min(x, 1.0))
	case Gaussian:
		return math.Exp(-x * x / 2.0)
	case Absolute:
		return math.Abs(x)
	case Sine:
		return math.Sin(x)
	case Hat:
		return math.Max(0.0, 1.0-math.Abs(x))
	case Square:
		return x * x
	default:
		return x
	}
}
